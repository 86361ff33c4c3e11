// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/luxfi/messaging/admin"
	"github.com/luxfi/messaging/rpc"
)

func newPingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ping [addr]",
		Short: "Probe reachability of a peer through the target node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			endpoint, err := cmd.Flags().GetString("url")
			if err != nil {
				return err
			}
			uri, err := url.Parse(endpoint)
			if err != nil {
				return fmt.Errorf("parse url %q: %w", endpoint, err)
			}

			var reply admin.PingReply
			err = rpc.SendJSONRequest(context.Background(), uri, "admin.Ping",
				&admin.PingArgs{Addr: args[0]}, &reply)
			if err != nil {
				return err
			}
			if !reply.OK {
				return fmt.Errorf("ping %s failed: %s", args[0], reply.Error)
			}
			fmt.Printf("ping %s: ok\n", args[0])
			return nil
		},
	}
	return cmd
}
