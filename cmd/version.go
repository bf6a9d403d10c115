package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sgtlim/aether/internal/config"
)

// Version information (injected at build time via ldflags)
var (
	AppVersion = "development"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVersion()
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func runVersion() error {
	fmt.Printf("Aether %s\n", AppVersion)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n", GitCommit)
	fmt.Println()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	fmt.Println("Configuration:")
	fmt.Printf("  Addr: %s\n", cfg.Addr)
	fmt.Printf("  Model: %s\n", cfg.Model)
	fmt.Printf("  Max tokens: %d\n", cfg.MaxTokens)
	fmt.Printf("  Upstream: %s\n", cfg.OpenAIBaseURL)

	if cfg.MockMode() {
		fmt.Println("  OPENAI_API_KEY: Not set (mock mode)")
		fmt.Println()
		fmt.Println("Hint: set AETHER_OPENAI_API_KEY for real model responses")
		fmt.Println("  export AETHER_OPENAI_API_KEY=your-api-key")
	} else {
		fmt.Println("  OPENAI_API_KEY: configured")
	}
	if cfg.BingAPIKey == "" {
		fmt.Println("  BING_API_KEY: Not set (web search placeholder)")
	} else {
		fmt.Println("  BING_API_KEY: configured")
	}
	if cfg.PostgresURL == "" {
		fmt.Println("  POSTGRES_URL: Not set (sessions disabled)")
	} else {
		fmt.Println("  POSTGRES_URL: configured")
	}

	return nil
}
