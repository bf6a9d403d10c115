// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (AETHER_* — runtime override)
//  2. Config file (~/.aether/config.yaml)
//  3. Default values (sensible defaults for quick start)
//
// Security: sensitive values (API keys, database passwords) are never
// logged; use Config.Redacted() when a loggable view is needed.
//
// Error handling uses sentinel errors for Go-idiomatic checking with
// errors.Is(); wrap with context using fmt.Errorf("%w: details", ErrXxx).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrInvalidAddr indicates the listen address is empty or malformed.
	ErrInvalidAddr = errors.New("invalid listen address")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidMaxTokens indicates the max tokens value is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidBaseURL indicates the upstream base URL is malformed.
	ErrInvalidBaseURL = errors.New("invalid upstream base URL")
)

const (
	// DefaultModel is the upstream model used when the caller does not
	// pick one.
	DefaultModel = "gpt-4o"

	// DefaultMaxTokens bounds the completion size per upstream call.
	DefaultMaxTokens = 4096

	// MaxAllowedTokens is the absolute upper bound for max_tokens.
	MaxAllowedTokens = 128000

	// MaxModelNameLength bounds model identifiers, matching the chat
	// endpoint's request validation.
	MaxModelNameLength = 50

	configDirName  = ".aether"
	configFileName = "config"
)

// Config stores application configuration.
type Config struct {
	// HTTP server
	Addr        string   `mapstructure:"addr"`
	CORSOrigins []string `mapstructure:"cors_origins"`

	// Upstream model API (OpenAI-compatible)
	OpenAIAPIKey  string `mapstructure:"openai_api_key"`
	OpenAIBaseURL string `mapstructure:"openai_base_url"`
	Model         string `mapstructure:"model"`
	MaxTokens     int    `mapstructure:"max_tokens"`

	// Web search provider (optional; mock results when empty)
	BingAPIKey string `mapstructure:"bing_api_key"`

	// Session persistence (optional; chat works without it)
	PostgresURL string `mapstructure:"postgres_url"`

	// Logging
	LogLevel string `mapstructure:"log_level"`
	LogJSON  bool   `mapstructure:"log_json"`
}

// Load reads configuration from defaults, the config file and the
// environment. A missing config file is not an error.
func Load() (*Config, error) {
	v := viper.New()

	// Every key needs a default so AutomaticEnv can surface the
	// AETHER_* override through Unmarshal.
	v.SetDefault("addr", "localhost:8080")
	v.SetDefault("cors_origins", []string{})
	v.SetDefault("openai_api_key", "")
	v.SetDefault("openai_base_url", "https://api.openai.com/v1")
	v.SetDefault("model", DefaultModel)
	v.SetDefault("max_tokens", DefaultMaxTokens)
	v.SetDefault("bing_api_key", "")
	v.SetDefault("postgres_url", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)

	v.SetConfigName(configFileName)
	v.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, configDirName))
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix("AETHER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration invariants for the serve command.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidAddr)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: model must not be empty", ErrInvalidModelName)
	}
	if len(c.Model) > MaxModelNameLength {
		return fmt.Errorf("%w: model name exceeds %d characters", ErrInvalidModelName, MaxModelNameLength)
	}
	if c.MaxTokens < 1 || c.MaxTokens > MaxAllowedTokens {
		return fmt.Errorf("%w: max_tokens must be in [1, %d], got %d", ErrInvalidMaxTokens, MaxAllowedTokens, c.MaxTokens)
	}
	if c.OpenAIBaseURL == "" || !strings.Contains(c.OpenAIBaseURL, "://") {
		return fmt.Errorf("%w: %q", ErrInvalidBaseURL, c.OpenAIBaseURL)
	}
	return nil
}

// MockMode reports whether the server will run against the deterministic
// mock streamer instead of the real upstream API.
func (c *Config) MockMode() bool {
	return c.OpenAIAPIKey == ""
}

// Redacted returns a copy safe for logging: secrets are replaced with a
// fixed marker when set.
func (c *Config) Redacted() Config {
	out := *c
	if out.OpenAIAPIKey != "" {
		out.OpenAIAPIKey = "[redacted]"
	}
	if out.BingAPIKey != "" {
		out.BingAPIKey = "[redacted]"
	}
	if out.PostgresURL != "" {
		out.PostgresURL = "[redacted]"
	}
	return out
}
