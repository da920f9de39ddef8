package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/ciyexa/cryptoagent/internal/domain"
)

const (
	defaultHistoryDays = 7
	maxTopN            = 250
)

// MarketService defines the methods that the market handler requires from the
// service layer. Nil results mean the upstream data was unavailable.
type MarketService interface {
	Snapshot(ctx context.Context, id string) *domain.MarketSnapshot
	Historical(ctx context.Context, id string, days int) *domain.HistoricalSeries
	TopN(ctx context.Context, n int) []domain.RankedAsset
	Prices(ctx context.Context, ids, vsCurrencies []string) domain.PriceTable
	SupportedAssets() []string
	IsSupported(id string) bool
	ResolveAsset(name string) (string, bool)
}

// MarketHandler serves the direct market-data endpoints.
type MarketHandler struct {
	markets    MarketService
	vsCurrency string
	logger     *slog.Logger
}

// NewMarketHandler creates a MarketHandler. vsCurrency is the default quote
// currency for the prices endpoint.
func NewMarketHandler(markets MarketService, vsCurrency string, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets:    markets,
		vsCurrency: vsCurrency,
		logger:     logger,
	}
}

func notSupported(id string) string {
	return fmt.Sprintf("Cryptocurrency '%s' not supported or found.", id)
}

// GetSnapshot returns the current market snapshot of one supported asset.
// GET /api/v1/crypto/{id}
func (h *MarketHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !h.markets.IsSupported(id) {
		writeError(w, http.StatusNotFound, notSupported(id))
		return
	}

	snap := h.markets.Snapshot(r.Context(), id)
	if snap == nil {
		writeError(w, http.StatusInternalServerError, "Could not retrieve market data from external service.")
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

// GetHistorical returns the historical series of one supported asset.
// GET /api/v1/crypto/historical/{id}?days=7
func (h *MarketHandler) GetHistorical(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	days := defaultHistoryDays
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "days must be an integer")
			return
		}
		days = n
	}
	if days < 1 {
		writeError(w, http.StatusUnprocessableEntity, "days must be greater than or equal to 1")
		return
	}

	if !h.markets.IsSupported(id) {
		writeError(w, http.StatusNotFound, notSupported(id))
		return
	}

	series := h.markets.Historical(r.Context(), id, days)
	if series == nil {
		writeError(w, http.StatusInternalServerError, "Could not retrieve historical data from external service.")
		return
	}

	writeJSON(w, http.StatusOK, series)
}

// GetTop returns the top n assets by market cap.
// GET /api/v1/crypto/top/{n}
func (h *MarketHandler) GetTop(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(r.PathValue("n"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "n must be an integer")
		return
	}
	if n < 1 || n > maxTopN {
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("n must be between 1 and %d", maxTopN))
		return
	}

	assets := h.markets.TopN(r.Context(), n)
	if assets == nil {
		writeError(w, http.StatusInternalServerError, "Could not retrieve top cryptocurrencies from external service.")
		return
	}

	writeJSON(w, http.StatusOK, dataResponse{Data: assets})
}

// GetPrices returns simple prices for a comma-separated list of asset names.
// Names are resolved loosely against the supported list.
// GET /api/v1/crypto/prices?ids=bitcoin,ether&vs_currencies=usd,eur
func (h *MarketHandler) GetPrices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	names := splitList(q.Get("ids"))
	if len(names) == 0 {
		writeError(w, http.StatusUnprocessableEntity, "ids must not be empty")
		return
	}
	vs := splitList(q.Get("vs_currencies"))
	if len(vs) == 0 {
		vs = []string{h.vsCurrency}
	}

	ids := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		id, ok := h.markets.ResolveAsset(name)
		if !ok {
			h.logger.DebugContext(r.Context(), "handler: unresolved asset name", slog.String("name", name))
			continue
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		writeError(w, http.StatusNotFound, notSupported(strings.Join(names, ",")))
		return
	}

	table := h.markets.Prices(r.Context(), ids, vs)
	if table == nil {
		writeError(w, http.StatusInternalServerError, "Could not retrieve prices from external service.")
		return
	}

	writeJSON(w, http.StatusOK, dataResponse{Data: table})
}

// ListSupported returns the configured asset identifiers in order.
// GET /api/v1/crypto/supported
func (h *MarketHandler) ListSupported(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, dataResponse{Data: h.markets.SupportedAssets()})
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
