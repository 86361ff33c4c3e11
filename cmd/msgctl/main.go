// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Command msgctl is an operator CLI for a running msgnoded instance: it
// talks to the node's admin JSON-RPC endpoint to probe peers and inspect
// pooled connections.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "msgctl",
	Short: "Operator CLI for a messaging node's admin RPC endpoint",
	Long: `msgctl talks to a running msgnoded instance over JSON-RPC to probe
peer reachability and inspect its pooled connections.`,
}

func init() {
	rootCmd.PersistentFlags().String("url", "http://127.0.0.1:8080/rpc", "URL of the msgnoded admin RPC endpoint")
}

func main() {
	rootCmd.AddCommand(newPingCmd())
	rootCmd.AddCommand(newClientsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "msgctl: %v\n", err)
		os.Exit(1)
	}
}
