// Package server assembles the HTTP API: routes, middleware chain and the
// optional WebSocket feed.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ciyexa/cryptoagent/internal/domain"
	"github.com/ciyexa/cryptoagent/internal/server/handler"
	"github.com/ciyexa/cryptoagent/internal/server/middleware"
	"github.com/ciyexa/cryptoagent/internal/server/ws"
)

// APIPrefix is the mount point of all versioned API routes.
const APIPrefix = "/api/v1"

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
}

// RateLimitConfig enables per-client rate limiting when Limiter is non-nil.
type RateLimitConfig struct {
	Limiter  domain.RateLimiter
	Requests int
	Window   time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health  *handler.HealthHandler
	Info    *handler.InfoHandler
	Markets *handler.MarketHandler
	Chat    *handler.ChatHandler
	// ChatHistoryEnabled registers the history route.
	ChatHistoryEnabled bool
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// wsHub and rl.Limiter may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, rl RateLimitConfig, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// --- Register routes ---

	// Welcome, health and unmatched paths (no auth required).
	mux.HandleFunc("GET /{$}", handlers.Info.Root)
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("/", handlers.Health.NotFound)

	mux.HandleFunc("GET "+APIPrefix+"/info", handlers.Info.Info)

	// Chat endpoints.
	mux.HandleFunc("POST "+APIPrefix+"/agent/chat", handlers.Chat.Chat)
	if handlers.ChatHistoryEnabled {
		mux.HandleFunc("GET "+APIPrefix+"/agent/history", handlers.Chat.ListHistory)
	}

	// Market data endpoints. Literal segments take precedence over {id}.
	mux.HandleFunc("GET "+APIPrefix+"/crypto/historical/{id}", handlers.Markets.GetHistorical)
	mux.HandleFunc("GET "+APIPrefix+"/crypto/top/{n}", handlers.Markets.GetTop)
	mux.HandleFunc("GET "+APIPrefix+"/crypto/prices", handlers.Markets.GetPrices)
	mux.HandleFunc("GET "+APIPrefix+"/crypto/supported", handlers.Markets.ListSupported)
	mux.HandleFunc("GET "+APIPrefix+"/crypto/{id}", handlers.Markets.GetSnapshot)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux

	// Apply rate limiting when a limiter is configured.
	if rl.Limiter != nil {
		h = middleware.RateLimit(rl.Limiter, rl.Requests, rl.Window, logger)(h)
	}

	// Apply auth middleware (skips if APIKey is empty).
	h = middleware.Auth(cfg.APIKey, "/", "/api/health")(h)

	// Turn panics into a generic 500.
	h = middleware.Recover(logger, handler.MsgInternalError)(h)

	// Apply request logging middleware.
	h = middleware.Logging(logger)(h)

	// Tag every request with an id before logging sees it.
	h = middleware.RequestID()(h)

	// Apply CORS middleware.
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Chat may wait up to a market fetch plus a full LLM call.
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
