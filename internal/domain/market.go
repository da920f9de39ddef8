package domain

// MarketData is the price block of a MarketSnapshot. Maps are keyed by quote
// currency code ("usd", "eur", ...).
type MarketData struct {
	CurrentPrice             map[string]float64 `json:"current_price"`
	MarketCap                map[string]float64 `json:"market_cap"`
	TotalVolume              map[string]float64 `json:"total_volume"`
	PriceChangePercentage24h *float64           `json:"price_change_percentage_24h"`
}

// USDPrice returns the current USD price, if present.
func (m *MarketData) USDPrice() (float64, bool) {
	if m == nil || m.CurrentPrice == nil {
		return 0, false
	}
	p, ok := m.CurrentPrice["usd"]
	return p, ok
}

// MarketSnapshot is the current market state of a single asset.
type MarketSnapshot struct {
	ID         string      `json:"id"`
	Symbol     string      `json:"symbol"`
	Name       string      `json:"name"`
	MarketData *MarketData `json:"market_data"`
}

// HistoricalSeries holds [timestamp_ms, value] pairs exactly as the provider
// returned them.
type HistoricalSeries struct {
	Prices       [][]float64 `json:"prices"`
	MarketCaps   [][]float64 `json:"market_caps"`
	TotalVolumes [][]float64 `json:"total_volumes"`
}

// LatestPrice returns the value of the last price point.
func (h *HistoricalSeries) LatestPrice() (float64, bool) {
	if h == nil || len(h.Prices) == 0 {
		return 0, false
	}
	last := h.Prices[len(h.Prices)-1]
	if len(last) < 2 {
		return 0, false
	}
	return last[1], true
}

// RankedAsset is one entry of the market-cap ranking.
type RankedAsset struct {
	ID                       string         `json:"id"`
	Symbol                   string         `json:"symbol"`
	Name                     string         `json:"name"`
	Image                    string         `json:"image"`
	CurrentPrice             float64        `json:"current_price"`
	MarketCap                float64        `json:"market_cap"`
	MarketCapRank            int            `json:"market_cap_rank"`
	TotalVolume              float64        `json:"total_volume"`
	PriceChangePercentage24h *float64       `json:"price_change_percentage_24h"`
	CirculatingSupply        *float64       `json:"circulating_supply"`
	TotalSupply              *float64       `json:"total_supply"`
	MaxSupply                *float64       `json:"max_supply"`
	ATH                      *float64       `json:"ath"`
	ATHChangePercentage      *float64       `json:"ath_change_percentage"`
	ATHDate                  *string        `json:"ath_date"`
	ATL                      *float64       `json:"atl"`
	ATLChangePercentage      *float64       `json:"atl_change_percentage"`
	ATLDate                  *string        `json:"atl_date"`
	ROI                      map[string]any `json:"roi"`
	LastUpdated              *string        `json:"last_updated"`
}

// PriceTable maps asset id to quote currency to price.
type PriceTable map[string]map[string]float64
