// Package main provides the tic-tac-toe session server binary.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tictacserver",
		Short: "Real-time multiplayer tic-tac-toe over websockets",
		Long: `tictacserver accepts websocket clients, pairs them into two-player
tic-tac-toe sessions, and relays every move between the players.

Configuration is read from an optional YAML file and from TICTAC_*
environment variables.`,
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd())
	root.AddCommand(newHealthCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
