package service

import (
	"context"
	"log/slog"

	"github.com/ciyexa/cryptoagent/internal/domain"
)

// MarketDataProvider is the upstream market-data API.
type MarketDataProvider interface {
	SimplePrices(ctx context.Context, ids, vsCurrencies []string) (domain.PriceTable, error)
	CoinSnapshot(ctx context.Context, id string) (*domain.MarketSnapshot, error)
	MarketChart(ctx context.Context, id string, days int) (*domain.HistoricalSeries, error)
	TopMarkets(ctx context.Context, n int) ([]domain.RankedAsset, error)
}

// MarketService is the read side of the market-data provider. Every upstream
// failure is logged and reported to callers as absence (a nil result), never
// as an error.
type MarketService struct {
	provider MarketDataProvider
	assets   *domain.AssetRegistry
	logger   *slog.Logger
}

// NewMarketService creates a MarketService with all required dependencies.
func NewMarketService(
	provider MarketDataProvider,
	assets *domain.AssetRegistry,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		provider: provider,
		assets:   assets,
		logger:   logger,
	}
}

// Snapshot returns the current snapshot for id, or nil on any failure.
func (s *MarketService) Snapshot(ctx context.Context, id string) *domain.MarketSnapshot {
	snap, err := s.provider.CoinSnapshot(ctx, id)
	if err != nil {
		s.logger.ErrorContext(ctx, "market_service: fetch snapshot failed",
			slog.String("asset_id", id),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return snap
}

// Historical returns the series for the last days days, or nil on any
// failure. days must be >= 1; the caller validates it.
func (s *MarketService) Historical(ctx context.Context, id string, days int) *domain.HistoricalSeries {
	series, err := s.provider.MarketChart(ctx, id, days)
	if err != nil {
		s.logger.ErrorContext(ctx, "market_service: fetch historical failed",
			slog.String("asset_id", id),
			slog.Int("days", days),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return series
}

// TopN returns at most n assets by market cap in provider order, or nil on
// failure or an empty upstream list.
func (s *MarketService) TopN(ctx context.Context, n int) []domain.RankedAsset {
	assets, err := s.provider.TopMarkets(ctx, n)
	if err != nil {
		s.logger.ErrorContext(ctx, "market_service: fetch top markets failed",
			slog.Int("n", n),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if len(assets) == 0 {
		s.logger.WarnContext(ctx, "market_service: top markets empty", slog.Int("n", n))
		return nil
	}
	if len(assets) > n {
		assets = assets[:n]
	}
	return assets
}

// Prices returns the simple price table for ids, or nil on failure.
func (s *MarketService) Prices(ctx context.Context, ids, vsCurrencies []string) domain.PriceTable {
	table, err := s.provider.SimplePrices(ctx, ids, vsCurrencies)
	if err != nil {
		s.logger.ErrorContext(ctx, "market_service: fetch prices failed",
			slog.Any("asset_ids", ids),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return table
}

// SupportedAssets returns the configured identifiers in order.
func (s *MarketService) SupportedAssets() []string {
	return s.assets.IDs()
}

// IsSupported reports whether id is a configured identifier.
func (s *MarketService) IsSupported(id string) bool {
	return s.assets.Contains(id)
}

// ResolveAsset maps a loose asset name onto a configured identifier.
func (s *MarketService) ResolveAsset(name string) (string, bool) {
	return s.assets.Resolve(name)
}
