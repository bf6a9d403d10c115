// Package cmd wires the aether commands: the streaming chat API server
// and a terminal chat client for talking to it.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "aether",
	Short: "Aether - streaming chat service with tool calling",
	Long: `Aether serves a streaming chat API over SSE, backed by an
OpenAI-compatible model with built-in tools (time, calculator, web
search) and optional PostgreSQL session persistence.

Without an API key it runs in mock mode with deterministic replies, so
a fresh checkout works end to end.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd, args)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
