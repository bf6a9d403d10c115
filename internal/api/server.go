// Package api exposes the HTTP surface: the streaming chat endpoint,
// session CRUD, cross-session search and health probes.
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sgtlim/aether/internal/agent"
	"github.com/sgtlim/aether/internal/session"
)

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger       *slog.Logger
	Agent        *agent.Agent   // Required
	SessionStore *session.Store // Optional: nil disables session CRUD and persistence
	Pool         *pgxpool.Pool  // Optional: nil disables database pings in /ready
	CORSOrigins  []string       // Allowed origins for CORS
	Model        string         // Default model when the request names none
	MaxTokens    int            // Per-request completion budget
}

// Server is the JSON/SSE HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates a server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Agent == nil {
		return nil, errors.New("agent is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	mux := http.NewServeMux()

	ch := &chatHandler{
		logger:    logger,
		agent:     cfg.Agent,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}
	if cfg.SessionStore != nil {
		ch.store = cfg.SessionStore
	}
	mux.HandleFunc("POST /api/v1/chat", ch.send)

	if cfg.SessionStore != nil {
		sh := &sessionHandler{store: cfg.SessionStore, logger: logger}
		mux.HandleFunc("GET /api/v1/sessions", sh.list)
		mux.HandleFunc("POST /api/v1/sessions", sh.create)
		mux.HandleFunc("GET /api/v1/sessions/{id}", sh.get)
		mux.HandleFunc("PATCH /api/v1/sessions/{id}", sh.update)
		mux.HandleFunc("DELETE /api/v1/sessions/{id}", sh.delete)

		srch := &searchHandler{store: cfg.SessionStore, logger: logger}
		mux.HandleFunc("GET /api/v1/search", srch.search)
	}

	// Middleware stack, outermost first:
	//   Recovery → RequestID → Logging → CORS → Routes
	// RequestID runs before Logging so request_id is available in log
	// attributes.
	var handler http.Handler = mux
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Health probes bypass the middleware stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health(logger))
	topMux.Handle("GET /ready", readiness(cfg.Pool, logger))
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
