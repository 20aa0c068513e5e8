// Package cmd contains the fastchat command-line entry points.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "fastchat",
	Short: "fastchat - conversational backend for FastInnovation",
	Long: `fastchat persists multi-turn conversations in PostgreSQL and relays
messages to the external flow engine. Run "fastchat serve" to start the
HTTP API, or "fastchat migrate" to apply schema migrations and exit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
