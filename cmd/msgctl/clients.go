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

func newClientsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clients",
		Short: "List the target node's pooled outbound connections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			endpoint, err := cmd.Flags().GetString("url")
			if err != nil {
				return err
			}
			uri, err := url.Parse(endpoint)
			if err != nil {
				return fmt.Errorf("parse url %q: %w", endpoint, err)
			}

			var reply admin.ClientStatsReply
			if err := rpc.SendJSONRequest(context.Background(), uri, "admin.ClientStats", &struct{}{}, &reply); err != nil {
				return err
			}
			for _, c := range reply.Clients {
				fmt.Printf("%s\tslot=%d\n", c.Peer, c.Slot)
			}
			return nil
		},
	}
	return cmd
}
