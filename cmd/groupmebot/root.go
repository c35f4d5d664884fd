package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "groupmebot",
	Short: "groupmebot hosts GroupMe bots behind a single webhook server",
	Long: `groupmebot serves any number of GroupMe bots from one HTTP server.

Each bot gets its own callback path. Incoming messages are matched against
the bot's regex handlers in registration order, and scheduled jobs post on
cron triggers. Bots, handlers and jobs are described in a YAML file.`,
	SilenceUsage: true,
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}
