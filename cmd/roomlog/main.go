package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "roomlog",
	Short: "Chunked room history with windowed display, served to renderers over a websocket feed",
	Long: `roomlog keeps each chat room's history in fixed-size chunks, decides which
part of it a renderer shows, and streams room changes to connected renderers.

Without a subcommand it runs the server (same as "roomlog serve").`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
