// Command videofeed-cli exercises the playback coordinator from the
// terminal: it can run a simulated feed session locally or query a running
// videofeed server.
package main

import (
	"fmt"
	"os"

	"github.com/marketloop/videofeed/internal/logger"
	"github.com/spf13/cobra"
)

var (
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "videofeed-cli",
	Short: "videofeed CLI - feed playback coordination tools",
	Long: `videofeed-cli drives the feed playback coordinator from the
command line. Run a fully simulated feed session to watch the decision
engine work, or inspect a running videofeed server.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := "info"
		if verbose {
			level = "debug"
		}
		if err := logger.Initialize(level, ""); err != nil {
			fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
			os.Exit(1)
		}
	},
}

func main() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(statsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
