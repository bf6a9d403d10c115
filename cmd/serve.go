package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/sgtlim/aether/db"
	"github.com/sgtlim/aether/internal/agent"
	"github.com/sgtlim/aether/internal/api"
	"github.com/sgtlim/aether/internal/config"
	"github.com/sgtlim/aether/internal/llm"
	"github.com/sgtlim/aether/internal/log"
	"github.com/sgtlim/aether/internal/session"
	"github.com/sgtlim/aether/internal/tools"
)

// Server timeout configuration.
const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 2 * time.Minute // SSE streaming needs longer timeout
	idleTimeout       = 2 * time.Minute
	shutdownTimeout   = 30 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chat API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// runServe initializes and starts the HTTP API server.
func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err = cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	logger := log.New(log.Config{
		Level: log.ParseLevel(cfg.LogLevel),
		JSON:  cfg.LogJSON,
	})
	logger.Info("starting chat API server", "version", AppVersion)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var streamer llm.Streamer
	if cfg.MockMode() {
		logger.Warn("no API key configured, serving deterministic mock replies",
			"hint", "set AETHER_OPENAI_API_KEY for real model calls")
		streamer = llm.NewMock()
	} else {
		streamer = llm.NewClient(llm.ClientConfig{
			BaseURL: cfg.OpenAIBaseURL,
			APIKey:  cfg.OpenAIAPIKey,
			Logger:  logger,
		})
	}

	var searcher tools.Searcher
	if bing := tools.NewBingClient(cfg.BingAPIKey, logger); bing != nil {
		searcher = bing
	} else {
		logger.Info("no search key configured, web search returns placeholder results")
	}

	ag := agent.New(agent.Config{
		Streamer:    streamer,
		Executor:    tools.NewExecutor(searcher, logger),
		Definitions: tools.Definitions(),
		Logger:      logger,
	})

	var pool *pgxpool.Pool
	var store *session.Store
	if cfg.PostgresURL != "" {
		if err := db.Migrate(cfg.PostgresURL, logger); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		pool, err = pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			return fmt.Errorf("pinging database: %w", err)
		}
		store = session.NewStore(pool, logger)
	} else {
		logger.Info("no database configured, session persistence disabled")
	}

	apiServer, err := api.NewServer(api.ServerConfig{
		Logger:       logger,
		Agent:        ag,
		SessionStore: store,
		Pool:         pool,
		CORSOrigins:  cfg.CORSOrigins,
		Model:        cfg.Model,
		MaxTokens:    cfg.MaxTokens,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	logger.Info("HTTP server ready",
		"addr", cfg.Addr,
		"api", "/api/v1/*",
		"health", "/health, /ready",
		"mock_mode", cfg.MockMode(),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down HTTP server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP server: %w", err)
	}
}
