package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ciyexa/cryptoagent/internal/domain"
	"github.com/ciyexa/cryptoagent/internal/server/handler"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeMarkets struct {
	assets   *domain.AssetRegistry
	snapshot *domain.MarketSnapshot
	series   *domain.HistoricalSeries
	top      []domain.RankedAsset
	prices   domain.PriceTable

	historicalDays []int
	pricesIDs      [][]string
}

func (f *fakeMarkets) Snapshot(context.Context, string) *domain.MarketSnapshot { return f.snapshot }

func (f *fakeMarkets) Historical(_ context.Context, _ string, days int) *domain.HistoricalSeries {
	f.historicalDays = append(f.historicalDays, days)
	return f.series
}

func (f *fakeMarkets) TopN(_ context.Context, n int) []domain.RankedAsset {
	if f.top == nil {
		return nil
	}
	if len(f.top) > n {
		return f.top[:n]
	}
	return f.top
}

func (f *fakeMarkets) Prices(_ context.Context, ids, _ []string) domain.PriceTable {
	f.pricesIDs = append(f.pricesIDs, ids)
	return f.prices
}

func (f *fakeMarkets) SupportedAssets() []string            { return f.assets.IDs() }
func (f *fakeMarkets) IsSupported(id string) bool           { return f.assets.Contains(id) }
func (f *fakeMarkets) ResolveAsset(n string) (string, bool) { return f.assets.Resolve(n) }

type fakeChat struct {
	resp    domain.ChatResponse
	err     error
	panics  bool
	queries []string
}

func (f *fakeChat) Chat(_ context.Context, q string) (domain.ChatResponse, error) {
	if f.panics {
		panic("boom")
	}
	f.queries = append(f.queries, q)
	return f.resp, f.err
}

type fakeHistory struct {
	records []domain.ChatRecord
	err     error
	opts    domain.ListOpts
}

func (f *fakeHistory) List(_ context.Context, opts domain.ListOpts) ([]domain.ChatRecord, error) {
	f.opts = opts
	return f.records, f.err
}

type fakeLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (l *fakeLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	l.keys = append(l.keys, key)
	return l.allow, l.err
}

type testEnv struct {
	markets *fakeMarkets
	chat    *fakeChat
	history *fakeHistory
	cfg     Config
	rl      RateLimitConfig
	checks  map[string]handler.HealthCheck
}

func newEnv() *testEnv {
	change := 2.5
	return &testEnv{
		markets: &fakeMarkets{
			assets: domain.NewAssetRegistry([]string{"bitcoin", "ethereum", "cardano"}),
			snapshot: &domain.MarketSnapshot{
				ID: "bitcoin", Symbol: "btc", Name: "Bitcoin",
				MarketData: &domain.MarketData{
					CurrentPrice:             map[string]float64{"usd": 70000, "eur": 65000},
					MarketCap:                map[string]float64{"usd": 1.3e12},
					TotalVolume:              map[string]float64{"usd": 3e10},
					PriceChangePercentage24h: &change,
				},
			},
			series: &domain.HistoricalSeries{
				Prices:       [][]float64{{1678886400000, 20000}, {1678972800000, 20500}},
				MarketCaps:   [][]float64{{1678886400000, 3.8e11}, {1678972800000, 3.9e11}},
				TotalVolumes: [][]float64{{1678886400000, 1e10}, {1678972800000, 1.1e10}},
			},
			top: []domain.RankedAsset{
				{ID: "bitcoin", Symbol: "btc", Name: "Bitcoin", CurrentPrice: 70000, MarketCapRank: 1},
				{ID: "ethereum", Symbol: "eth", Name: "Ethereum", CurrentPrice: 3500, MarketCapRank: 2},
			},
			prices: domain.PriceTable{"bitcoin": {"usd": 70000}},
		},
		chat:    &fakeChat{resp: domain.ChatResponse{Response: "hi", Source: domain.SourceLLM}},
		history: &fakeHistory{},
	}
}

func (e *testEnv) handler() http.Handler {
	logger := discardLogger()
	var history handler.ChatHistory
	if e.history != nil {
		history = e.history
	}
	srv := NewServer(e.cfg, Handlers{
		Health:             handler.NewHealthHandler(logger, e.checks),
		Info:               handler.NewInfoHandler("Test Agent", "0.2.0", "desc"),
		Markets:            handler.NewMarketHandler(e.markets, "usd", logger),
		Chat:               handler.NewChatHandler(e.chat, history, logger),
		ChatHistoryEnabled: e.history != nil,
	}, nil, e.rl, logger)
	return srv.Handler()
}

func do(t *testing.T, h http.Handler, method, target string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func detail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return body.Detail
}

func TestRoot(t *testing.T) {
	rec := do(t, newEnv().handler(), http.MethodGet, "/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"message":"Welcome to Test Agent!"}` {
		t.Errorf("body = %s", got)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing request id header")
	}
}

func TestInfo(t *testing.T) {
	rec := do(t, newEnv().handler(), http.MethodGet, "/api/v1/info", "")
	want := `{"description":"desc","name":"Test Agent","version":"0.2.0"}`
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != want {
		t.Errorf("status = %d body = %s", rec.Code, rec.Body.String())
	}
}

func TestUnknownRouteIsJSON404(t *testing.T) {
	rec := do(t, newEnv().handler(), http.MethodGet, "/nope", "")
	if rec.Code != http.StatusNotFound || detail(t, rec) != "Not Found" {
		t.Errorf("status = %d body = %s", rec.Code, rec.Body.String())
	}
}

func TestHealthReportsDegradedBackend(t *testing.T) {
	env := newEnv()
	env.checks = map[string]handler.HealthCheck{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	}
	rec := do(t, env.handler(), http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "degraded" || body.Checks["postgres"] != "ok" || body.Checks["redis"] != "unavailable" {
		t.Errorf("body = %+v", body)
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	newEnv().handler().ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("request id = %q", got)
	}
}

func TestSnapshot(t *testing.T) {
	env := newEnv()
	env.markets.snapshot.MarketData.PriceChangePercentage24h = nil
	rec := do(t, env.handler(), http.MethodGet, "/api/v1/crypto/bitcoin", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"price_change_percentage_24h":null`) {
		t.Errorf("absent optional should serialize as null: %s", rec.Body.String())
	}
}

func TestSnapshotErrors(t *testing.T) {
	env := newEnv()
	rec := do(t, env.handler(), http.MethodGet, "/api/v1/crypto/unsupported-coin", "")
	if rec.Code != http.StatusNotFound || detail(t, rec) != "Cryptocurrency 'unsupported-coin' not supported or found." {
		t.Errorf("status = %d body = %s", rec.Code, rec.Body.String())
	}

	env.markets.snapshot = nil
	rec = do(t, env.handler(), http.MethodGet, "/api/v1/crypto/bitcoin", "")
	if rec.Code != http.StatusInternalServerError || detail(t, rec) != "Could not retrieve market data from external service." {
		t.Errorf("status = %d body = %s", rec.Code, rec.Body.String())
	}
}

func TestHistorical(t *testing.T) {
	env := newEnv()
	h := env.handler()

	rec := do(t, h, http.MethodGet, "/api/v1/crypto/historical/bitcoin", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got domain.HistoricalSeries
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got.Prices) != 2 || got.Prices[1][1] != 20500 {
		t.Errorf("prices = %v", got.Prices)
	}

	do(t, h, http.MethodGet, "/api/v1/crypto/historical/bitcoin?days=30", "")
	if len(env.markets.historicalDays) != 2 || env.markets.historicalDays[0] != 7 || env.markets.historicalDays[1] != 30 {
		t.Errorf("days = %v", env.markets.historicalDays)
	}
}

func TestHistoricalErrors(t *testing.T) {
	env := newEnv()
	h := env.handler()

	tests := []struct {
		target     string
		wantStatus int
		wantDetail string
	}{
		{"/api/v1/crypto/historical/unsupported-coin?days=7", http.StatusNotFound, "not supported or found"},
		{"/api/v1/crypto/historical/bitcoin?days=0", http.StatusUnprocessableEntity, "days"},
		{"/api/v1/crypto/historical/bitcoin?days=-3", http.StatusUnprocessableEntity, "days"},
		{"/api/v1/crypto/historical/bitcoin?days=abc", http.StatusUnprocessableEntity, "days"},
	}
	for _, tt := range tests {
		rec := do(t, h, http.MethodGet, tt.target, "")
		if rec.Code != tt.wantStatus || !strings.Contains(detail(t, rec), tt.wantDetail) {
			t.Errorf("%s: status = %d body = %s", tt.target, rec.Code, rec.Body.String())
		}
	}
	if len(env.markets.historicalDays) != 0 {
		t.Errorf("upstream should not be called, got %v", env.markets.historicalDays)
	}

	env.markets.series = nil
	rec := do(t, env.handler(), http.MethodGet, "/api/v1/crypto/historical/bitcoin", "")
	if rec.Code != http.StatusInternalServerError || detail(t, rec) != "Could not retrieve historical data from external service." {
		t.Errorf("status = %d body = %s", rec.Code, rec.Body.String())
	}
}

func TestTop(t *testing.T) {
	rec := do(t, newEnv().handler(), http.MethodGet, "/api/v1/crypto/top/2", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Data []domain.RankedAsset `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Data) != 2 || body.Data[0].ID != "bitcoin" || body.Data[1].ID != "ethereum" {
		t.Errorf("data = %+v", body.Data)
	}
}

func TestTopErrors(t *testing.T) {
	env := newEnv()
	h := env.handler()
	for _, target := range []string{"/api/v1/crypto/top/0", "/api/v1/crypto/top/251", "/api/v1/crypto/top/ten"} {
		if rec := do(t, h, http.MethodGet, target, ""); rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("%s: status = %d", target, rec.Code)
		}
	}
	if rec := do(t, h, http.MethodGet, "/api/v1/crypto/top/250", ""); rec.Code != http.StatusOK {
		t.Errorf("250 should be accepted, got %d", rec.Code)
	}

	env.markets.top = nil
	rec := do(t, env.handler(), http.MethodGet, "/api/v1/crypto/top/5", "")
	if rec.Code != http.StatusInternalServerError || detail(t, rec) != "Could not retrieve top cryptocurrencies from external service." {
		t.Errorf("status = %d body = %s", rec.Code, rec.Body.String())
	}
}

func TestPricesResolvesNames(t *testing.T) {
	env := newEnv()
	rec := do(t, env.handler(), http.MethodGet, "/api/v1/crypto/prices?ids=Bitcoin,ether,bitcoin,gold", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if len(env.markets.pricesIDs) != 1 || strings.Join(env.markets.pricesIDs[0], ",") != "bitcoin,ethereum" {
		t.Errorf("resolved ids = %v", env.markets.pricesIDs)
	}

	rec = do(t, env.handler(), http.MethodGet, "/api/v1/crypto/prices?ids=gold", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
	rec = do(t, env.handler(), http.MethodGet, "/api/v1/crypto/prices", "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestSupported(t *testing.T) {
	rec := do(t, newEnv().handler(), http.MethodGet, "/api/v1/crypto/supported", "")
	if got := strings.TrimSpace(rec.Body.String()); got != `{"data":["bitcoin","ethereum","cardano"]}` {
		t.Errorf("body = %s", got)
	}
}

func TestRepeatedGetsAreIdentical(t *testing.T) {
	h := newEnv().handler()
	for _, target := range []string{
		"/api/v1/crypto/bitcoin",
		"/api/v1/crypto/historical/bitcoin?days=7",
		"/api/v1/crypto/top/2",
	} {
		a := do(t, h, http.MethodGet, target, "").Body.Bytes()
		b := do(t, h, http.MethodGet, target, "").Body.Bytes()
		if !bytes.Equal(a, b) {
			t.Errorf("%s: responses differ:\n%s\n%s", target, a, b)
		}
	}
}

func TestChat(t *testing.T) {
	env := newEnv()
	env.chat.resp = domain.ChatResponse{Response: "Bitcoin is $70k.", Source: domain.SourceHybridCurrent}

	rec := do(t, env.handler(), http.MethodPost, "/api/v1/agent/chat", `{"query":"What is the price of Bitcoin?"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	want := `{"response":"Bitcoin is $70k.","source":"Hybrid (LLM + Current Crypto Data)"}`
	if got := strings.TrimSpace(rec.Body.String()); got != want {
		t.Errorf("body = %s", got)
	}
	if env.chat.queries[0] != "What is the price of Bitcoin?" {
		t.Errorf("query = %q", env.chat.queries[0])
	}
}

func TestChatValidation(t *testing.T) {
	env := newEnv()
	h := env.handler()
	for _, body := range []string{`{"query":""}`, `{}`, `{"query":5}`, `not json`, `{"query":"x"} garbage`, `{"query":"x"}{"query":"y"}`} {
		if rec := do(t, h, http.MethodPost, "/api/v1/agent/chat", body); rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("%s: status = %d", body, rec.Code)
		}
	}
	if len(env.chat.queries) != 0 {
		t.Error("service should not be called for invalid requests")
	}
}

func TestChatForwardsWhitespaceQuery(t *testing.T) {
	env := newEnv()
	rec := do(t, env.handler(), http.MethodPost, "/api/v1/agent/chat", `{"query":"   "}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if len(env.chat.queries) != 1 || env.chat.queries[0] != "   " {
		t.Errorf("queries = %q", env.chat.queries)
	}
}

func TestChatErrors(t *testing.T) {
	env := newEnv()
	env.chat.err = &domain.GenerationError{Reason: "Error communicating with LLM service: dial tcp: refused"}
	rec := do(t, env.handler(), http.MethodPost, "/api/v1/agent/chat", `{"query":"hi"}`)
	if rec.Code != http.StatusInternalServerError || detail(t, rec) != "Error communicating with LLM service: dial tcp: refused" {
		t.Errorf("status = %d body = %s", rec.Code, rec.Body.String())
	}

	env.chat.err = errors.New("something else")
	rec = do(t, env.handler(), http.MethodPost, "/api/v1/agent/chat", `{"query":"hi"}`)
	if rec.Code != http.StatusInternalServerError || detail(t, rec) != handler.MsgInternalError {
		t.Errorf("status = %d body = %s", rec.Code, rec.Body.String())
	}
}

func TestPanicBecomesGeneric500(t *testing.T) {
	env := newEnv()
	env.chat.panics = true
	rec := do(t, env.handler(), http.MethodPost, "/api/v1/agent/chat", `{"query":"hi"}`)
	if rec.Code != http.StatusInternalServerError || detail(t, rec) != handler.MsgInternalError {
		t.Errorf("status = %d body = %s", rec.Code, rec.Body.String())
	}
}

func TestChatHistory(t *testing.T) {
	env := newEnv()
	env.history.records = []domain.ChatRecord{{ID: "1", Query: "q", Source: domain.SourceLLM}}
	rec := do(t, env.handler(), http.MethodGet, "/api/v1/agent/history?limit=10&offset=5", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if env.history.opts.Limit != 10 || env.history.opts.Offset != 5 {
		t.Errorf("opts = %+v", env.history.opts)
	}

	rec = do(t, env.handler(), http.MethodGet, "/api/v1/agent/history?limit=9999&since=2026-01-02T00:00:00Z", "")
	if rec.Code != http.StatusOK || env.history.opts.Limit != 500 || env.history.opts.Since == nil {
		t.Errorf("status = %d opts = %+v", rec.Code, env.history.opts)
	}
	if rec := do(t, env.handler(), http.MethodGet, "/api/v1/agent/history?until=yesterday", ""); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad until status = %d", rec.Code)
	}

	env.history.err = errors.New("db down")
	if rec := do(t, env.handler(), http.MethodGet, "/api/v1/agent/history", ""); rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", rec.Code)
	}

	env.history = nil
	if rec := do(t, env.handler(), http.MethodGet, "/api/v1/agent/history", ""); rec.Code != http.StatusNotFound {
		t.Errorf("disabled history status = %d", rec.Code)
	}
}

func TestAuth(t *testing.T) {
	env := newEnv()
	env.cfg.APIKey = "s3cret"
	h := env.handler()

	if rec := do(t, h, http.MethodGet, "/", ""); rec.Code != http.StatusOK {
		t.Errorf("root should be public, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/health", ""); rec.Code != http.StatusOK {
		t.Errorf("health should be public, got %d", rec.Code)
	}
	rec := do(t, h, http.MethodGet, "/api/v1/crypto/bitcoin", "")
	if rec.Code != http.StatusUnauthorized || detail(t, rec) == "" {
		t.Errorf("status = %d body = %s", rec.Code, rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/crypto/bitcoin", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("bearer status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/crypto/bitcoin", nil)
	req.Header.Set("X-API-Key", "s3cret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("x-api-key status = %d", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	env := newEnv()
	limiter := &fakeLimiter{allow: false}
	env.rl = RateLimitConfig{Limiter: limiter, Requests: 1, Window: time.Minute}

	rec := do(t, env.handler(), http.MethodGet, "/api/v1/crypto/bitcoin", "")
	if rec.Code != http.StatusTooManyRequests || detail(t, rec) != "rate limit exceeded" {
		t.Errorf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Errorf("retry-after = %q", rec.Header().Get("Retry-After"))
	}
	if len(limiter.keys) != 1 || !strings.HasPrefix(limiter.keys[0], "ratelimit:api:") {
		t.Errorf("keys = %v", limiter.keys)
	}

	limiter.err = errors.New("redis down")
	if rec := do(t, env.handler(), http.MethodGet, "/api/v1/crypto/bitcoin", ""); rec.Code != http.StatusOK {
		t.Errorf("limiter errors should fail open, got %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newEnv()
	env.cfg.CORSOrigins = []string{"http://localhost:5173"}
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/agent/chat", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	env.handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Errorf("allow origin = %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
}
