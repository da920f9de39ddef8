// Package coingecko is the REST client for the CoinGecko v3 market-data API.
package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ciyexa/cryptoagent/internal/domain"
)

// APIKeyHeader carries the optional pro API key.
const APIKeyHeader = "x-cg-pro-api-key"

// Client issues single GET requests against the market-data API. It performs
// no caching and no retries. Safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	vsCurrency string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a new market-data client.
//
// baseURL is the API root, e.g. "https://api.coingecko.com/api/v3". An empty
// apiKey sends no key header. timeout bounds every call.
func NewClient(baseURL, apiKey, vsCurrency string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		vsCurrency: vsCurrency,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SimplePrices returns prices for ids in each quote currency.
func (c *Client) SimplePrices(ctx context.Context, ids, vsCurrencies []string) (domain.PriceTable, error) {
	params := url.Values{}
	params.Set("ids", strings.Join(ids, ","))
	params.Set("vs_currencies", strings.Join(vsCurrencies, ","))

	body, err := c.doGet(ctx, "/simple/price?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("coingecko: simple price: %w", err)
	}

	var table domain.PriceTable
	if err := json.Unmarshal(body, &table); err != nil {
		return nil, fmt.Errorf("coingecko: decode simple price: %w", err)
	}
	if len(table) == 0 {
		return nil, fmt.Errorf("coingecko: simple price: %w", domain.ErrEmptyResponse)
	}
	return table, nil
}

// CoinSnapshot returns the current market snapshot for a single asset.
func (c *Client) CoinSnapshot(ctx context.Context, id string) (*domain.MarketSnapshot, error) {
	params := url.Values{}
	params.Set("localization", "false")
	params.Set("tickers", "false")
	params.Set("market_data", "true")
	params.Set("community_data", "false")
	params.Set("developer_data", "false")
	params.Set("sparkline", "false")

	path := fmt.Sprintf("/coins/%s?%s", url.PathEscape(id), params.Encode())

	body, err := c.doGet(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("coingecko: get coin %s: %w", id, err)
	}

	var snap domain.MarketSnapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, fmt.Errorf("coingecko: decode coin %s: %w", id, err)
	}
	if snap.ID == "" {
		return nil, fmt.Errorf("coingecko: get coin %s: %w", id, domain.ErrEmptyResponse)
	}
	return &snap, nil
}

// MarketChart returns the price, market-cap and volume series for the last
// days days, quoted in the default currency.
func (c *Client) MarketChart(ctx context.Context, id string, days int) (*domain.HistoricalSeries, error) {
	params := url.Values{}
	params.Set("vs_currency", c.vsCurrency)
	params.Set("days", strconv.Itoa(days))

	path := fmt.Sprintf("/coins/%s/market_chart?%s", url.PathEscape(id), params.Encode())

	body, err := c.doGet(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("coingecko: market chart %s: %w", id, err)
	}

	var series domain.HistoricalSeries
	if err := json.Unmarshal(body, &series); err != nil {
		return nil, fmt.Errorf("coingecko: decode market chart %s: %w", id, err)
	}
	if series.Prices == nil {
		return nil, fmt.Errorf("coingecko: market chart %s: %w", id, domain.ErrEmptyResponse)
	}
	return &series, nil
}

// TopMarkets returns up to n assets ordered by market cap, descending.
func (c *Client) TopMarkets(ctx context.Context, n int) ([]domain.RankedAsset, error) {
	params := url.Values{}
	params.Set("vs_currency", c.vsCurrency)
	params.Set("order", "market_cap_desc")
	params.Set("per_page", strconv.Itoa(n))
	params.Set("page", "1")
	params.Set("sparkline", "false")

	body, err := c.doGet(ctx, "/coins/markets?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("coingecko: top markets: %w", err)
	}

	var assets []domain.RankedAsset
	if err := json.Unmarshal(body, &assets); err != nil {
		return nil, fmt.Errorf("coingecko: decode top markets: %w", err)
	}
	return assets, nil
}

// ---------------------------------------------------------------------------
// Internal helpers
// ---------------------------------------------------------------------------

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(APIKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}

	return body, nil
}

// checkHTTPStatus maps non-2xx responses onto domain sentinel errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrUpstream, statusCode, bodyStr)
	}
}
