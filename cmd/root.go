package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "botlink",
	Short: "botlink — structured-message transport between bot cores and platform adapters",
	Long: "botlink-go moves structured chat content (text, media, voice, command,\n" +
		"hybrid and forward bundles) between a bot core and its platform adapters\n" +
		"over persistent WebSocket connections keyed by (api_key, platform).",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = Version
}
