package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ciyexa/cryptoagent/internal/agent"
	"github.com/ciyexa/cryptoagent/internal/domain"
)

// recordTimeout bounds best-effort persistence and publishing after the LLM
// has replied.
const recordTimeout = 5 * time.Second

// ChatMarketData is the subset of MarketService the chat pipeline reads.
type ChatMarketData interface {
	Snapshot(ctx context.Context, id string) *domain.MarketSnapshot
	Historical(ctx context.Context, id string, days int) *domain.HistoricalSeries
	SupportedAssets() []string
}

// Generator produces text for a prompt. Failures are *domain.GenerationError.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ChatService routes a chat query through optional market-data enrichment
// and then to the LLM.
type ChatService struct {
	market ChatMarketData
	llm    Generator
	store  domain.ChatStore
	bus    domain.SignalBus
	logger *slog.Logger
	now    func() time.Time
}

// ChatOption configures optional ChatService collaborators.
type ChatOption func(*ChatService)

// WithChatStore persists every completed exchange.
func WithChatStore(store domain.ChatStore) ChatOption {
	return func(s *ChatService) { s.store = store }
}

// WithSignalBus publishes every completed exchange.
func WithSignalBus(bus domain.SignalBus) ChatOption {
	return func(s *ChatService) { s.bus = bus }
}

// NewChatService creates a ChatService with all required dependencies.
func NewChatService(market ChatMarketData, llm Generator, logger *slog.Logger, opts ...ChatOption) *ChatService {
	s := &ChatService{
		market: market,
		llm:    llm,
		logger: logger,
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Chat answers query. The only error it returns is the LLM failure, as a
// *domain.GenerationError.
func (s *ChatService) Chat(ctx context.Context, query string) (domain.ChatResponse, error) {
	start := s.now()

	decision := agent.Classify(query, s.market.SupportedAssets())
	prompt, source := s.enrich(ctx, query, decision)

	text, err := s.llm.Generate(ctx, prompt)
	if err != nil {
		s.logger.ErrorContext(ctx, "chat_service: generation failed",
			slog.String("source", string(source)),
			slog.String("error", err.Error()),
		)
		return domain.ChatResponse{}, fmt.Errorf("chat_service: generate: %w", err)
	}

	resp := domain.ChatResponse{Response: text, Source: source}

	s.record(ctx, domain.ChatRecord{
		ID:        uuid.NewString(),
		RequestID: domain.RequestIDFrom(ctx),
		Query:     query,
		Prompt:    prompt,
		Response:  text,
		Source:    source,
		AssetID:   decision.AssetID,
		LatencyMs: s.now().Sub(start).Milliseconds(),
		CreatedAt: s.now().UTC(),
	})

	return resp, nil
}

// enrich returns the prompt to send and its source tag. A fetch without
// usable data falls back to the unmodified query.
func (s *ChatService) enrich(ctx context.Context, query string, d agent.Decision) (string, domain.Source) {
	switch d.Action() {
	case agent.ActionHistorical:
		series := s.market.Historical(ctx, d.AssetID, agent.HistoryWindowDays)
		if price, ok := series.LatestPrice(); ok {
			return agent.HistoricalPrompt(query, d.AssetID, price), domain.SourceHybridHistorical
		}
		s.logger.InfoContext(ctx, "chat_service: no historical data, answering without enrichment",
			slog.String("asset_id", d.AssetID),
		)
	case agent.ActionCurrent:
		snap := s.market.Snapshot(ctx, d.AssetID)
		if snap != nil {
			if price, ok := snap.MarketData.USDPrice(); ok {
				return agent.CurrentPrompt(query, snap, price), domain.SourceHybridCurrent
			}
		}
		s.logger.InfoContext(ctx, "chat_service: no current data, answering without enrichment",
			slog.String("asset_id", d.AssetID),
		)
	}
	return query, domain.SourceLLM
}

// record stores and publishes rec. Failures are logged only.
func (s *ChatService) record(ctx context.Context, rec domain.ChatRecord) {
	if s.store == nil && s.bus == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if s.store != nil {
		if err := s.store.Insert(ctx, rec); err != nil {
			s.logger.WarnContext(ctx, "chat_service: store exchange failed",
				slog.String("chat_id", rec.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.bus != nil {
		payload, err := json.Marshal(rec)
		if err != nil {
			s.logger.WarnContext(ctx, "chat_service: marshal exchange failed",
				slog.String("error", err.Error()),
			)
			return
		}
		if err := s.bus.Publish(ctx, domain.ChannelChat, payload); err != nil {
			s.logger.WarnContext(ctx, "chat_service: publish exchange failed",
				slog.String("chat_id", rec.ID),
				slog.String("error", err.Error()),
			)
		}
		if err := s.bus.StreamAppend(ctx, domain.StreamChat, payload); err != nil {
			s.logger.WarnContext(ctx, "chat_service: stream append failed",
				slog.String("chat_id", rec.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}
