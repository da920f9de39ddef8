// Package app provides the top-level application lifecycle for the crypto
// agent backend. It wires dependencies and runs the HTTP server, the
// WebSocket hub and the archive schedule under one errgroup.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ciyexa/cryptoagent/internal/config"
	"github.com/ciyexa/cryptoagent/internal/pipeline"
	"github.com/ciyexa/cryptoagent/internal/server"
	"github.com/ciyexa/cryptoagent/internal/server/handler"
	"github.com/ciyexa/cryptoagent/internal/server/ws"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 5 * time.Second

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies, starts the background goroutines and blocks
// until ctx is cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("name", a.cfg.App.Name),
		slog.String("version", a.cfg.App.Version),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	g, ctx := errgroup.WithContext(ctx)

	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.logger, ws.Config{
			Name:      a.cfg.App.Name,
			Version:   a.cfg.App.Version,
			StartedAt: time.Now().UTC(),
		})
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	if deps.Archiver != nil {
		job := pipeline.NewArchiveJob(deps.Archiver, deps.LockManager, a.cfg.Archive.RetentionDays, a.logger)
		g.Go(func() error {
			return job.RunCron(ctx, a.cfg.Archive.Cron)
		})
	}

	a.startHTTPServer(ctx, g, deps, hub)

	return g.Wait()
}

// startHTTPServer adds the HTTP server and its shutdown watcher to g.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, hub *ws.Hub) {
	var history handler.ChatHistory
	if deps.ChatStore != nil {
		history = deps.ChatStore
	}

	handlers := server.Handlers{
		Health:             handler.NewHealthHandler(a.logger, deps.HealthChecks),
		Info:               handler.NewInfoHandler(a.cfg.App.Name, a.cfg.App.Version, a.cfg.App.Description),
		Markets:            handler.NewMarketHandler(deps.Markets, a.cfg.MarketData.VsCurrency, a.logger),
		Chat:               handler.NewChatHandler(deps.Chat, history, a.logger),
		ChatHistoryEnabled: history != nil,
	}

	var rl server.RateLimitConfig
	if a.cfg.RateLimit.Enabled && deps.RateLimiter != nil {
		rl = server.RateLimitConfig{
			Limiter:  deps.RateLimiter,
			Requests: a.cfg.RateLimit.Requests,
			Window:   a.cfg.RateLimit.Window.Duration,
		}
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, handlers, hub, rl, a.logger)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
