// Package commands provides the CLI commands for sman-agent.
package commands

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	logLevel  string
	logPretty bool
)

var rootCmd = &cobra.Command{
	Use:   "sman-agent",
	Short: "sman-agent - IDE analysis assistant backend",
	Long: `sman-agent is the backend of the IDE analysis assistant. IDE plugins
connect over a websocket, submit chat or analyze requests, and receive
structured output parts while project-local tools are forwarded back to
the plugin for execution.

Run 'sman-agent serve' to start the server.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Secrets like the LLM API key usually live in .env.
		_ = godotenv.Load()
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (DEBUG|INFO|WARN|ERROR)")
	rootCmd.PersistentFlags().BoolVar(&logPretty, "log-pretty", false, "Human-readable console logs")

	rootCmd.SetVersionTemplate(fmt.Sprintf("sman-agent %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(serveCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
