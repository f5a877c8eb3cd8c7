// Command controller runs the live-session facilitation controller.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "0.1.0"

var (
	envFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "controller",
	Short: "Facilitation controller for live sessions",
	Long: `controller watches a live session transcript, scores topic drift and
decides when the facilitator should step in. The intervention style can be
switched at any time by the host.

Run 'controller serve' to start the HTTP and websocket server.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file to load (skipped if missing)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL (DEBUG|INFO|WARN|ERROR)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(stylesCmd)
	rootCmd.AddCommand(instructionsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
