package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/ciyexa/cryptoagent/internal/blob/s3"
	"github.com/ciyexa/cryptoagent/internal/cache/redis"
	"github.com/ciyexa/cryptoagent/internal/config"
	"github.com/ciyexa/cryptoagent/internal/domain"
	"github.com/ciyexa/cryptoagent/internal/platform/coingecko"
	"github.com/ciyexa/cryptoagent/internal/platform/llm"
	"github.com/ciyexa/cryptoagent/internal/server/handler"
	"github.com/ciyexa/cryptoagent/internal/service"
	"github.com/ciyexa/cryptoagent/internal/store/postgres"
)

// Dependencies bundles everything the run loop needs. Optional
// infrastructure fields are nil when disabled in configuration.
type Dependencies struct {
	Markets *service.MarketService
	Chat    *service.ChatService

	// Redis
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// PostgreSQL
	ChatStore  domain.ChatStore
	AuditStore domain.AuditStore

	// Object storage
	Archiver domain.Archiver

	// HealthChecks probes each enabled backend for /api/health.
	HealthChecks map[string]handler.HealthCheck
}

// Wire constructs all dependencies from cfg and returns them with a cleanup
// function that releases connections in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{HealthChecks: make(map[string]handler.HealthCheck)}

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		deps.ChatStore = postgres.NewChatStore(pgClient.Pool())
		deps.AuditStore = postgres.NewAuditStore(pgClient.Pool())
		deps.HealthChecks["postgres"] = pgClient.Pool().Ping
		logger.InfoContext(ctx, "wire: postgres connected")
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient, redis.DefaultStreamMaxLen)
		deps.HealthChecks["redis"] = redisClient.Ping
		logger.InfoContext(ctx, "wire: redis connected", slog.String("addr", cfg.Redis.Addr))
	}

	// --- S3 archive (requires postgres, enforced by config validation) ---
	if cfg.Archive.Enabled && deps.ChatStore != nil {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.Archive.Endpoint,
			Region:         cfg.Archive.Region,
			Bucket:         cfg.Archive.Bucket,
			AccessKey:      cfg.Archive.AccessKey,
			SecretKey:      cfg.Archive.SecretKey,
			UseSSL:         cfg.Archive.UseSSL,
			ForcePathStyle: cfg.Archive.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		if err := s3Client.Health(ctx); err != nil {
			logger.WarnContext(ctx, "wire: archive bucket not reachable yet",
				slog.String("bucket", cfg.Archive.Bucket),
				slog.String("error", err.Error()),
			)
		}

		deps.HealthChecks["archive"] = s3Client.Health
		deps.Archiver = s3blob.NewChatArchiver(
			s3blob.NewWriter(s3Client),
			s3blob.NewReader(s3Client),
			deps.ChatStore,
			deps.AuditStore,
		)
	}

	// --- Core services ---
	provider := coingecko.NewClient(
		cfg.MarketData.BaseURL,
		cfg.MarketData.APIKey,
		cfg.MarketData.VsCurrency,
		cfg.MarketData.Timeout.Duration,
	)
	assets := domain.NewAssetRegistry(cfg.MarketData.SupportedAssets)
	deps.Markets = service.NewMarketService(provider, assets, logger)

	var chatOpts []service.ChatOption
	if deps.ChatStore != nil {
		chatOpts = append(chatOpts, service.WithChatStore(deps.ChatStore))
	}
	if deps.SignalBus != nil {
		chatOpts = append(chatOpts, service.WithSignalBus(deps.SignalBus))
	}
	generator := llm.NewClient(cfg.LLM.APIURL, cfg.LLM.Timeout.Duration)
	deps.Chat = service.NewChatService(deps.Markets, generator, logger, chatOpts...)

	return deps, cleanup, nil
}
