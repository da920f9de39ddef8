// Package config defines the top-level configuration for the crypto agent
// backend and provides validation helpers.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by CIYEXA_* environment variables.
type Config struct {
	App        AppConfig        `toml:"app"`
	Server     ServerConfig     `toml:"server"`
	LLM        LLMConfig        `toml:"llm"`
	MarketData MarketDataConfig `toml:"market_data"`
	Redis      RedisConfig      `toml:"redis"`
	RateLimit  RateLimitConfig  `toml:"rate_limit"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Archive    ArchiveConfig    `toml:"archive"`
	LogLevel   string           `toml:"log_level"`
}

// AppConfig holds the project identity reported by the info endpoints.
type AppConfig struct {
	Name        string `toml:"name"`
	Version     string `toml:"version"`
	Description string `toml:"description"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey enables bearer / X-API-Key authentication when non-empty.
	APIKey string `toml:"api_key"`
}

// LLMConfig holds the text-generation endpoint.
type LLMConfig struct {
	APIURL  string   `toml:"api_url"`
	Timeout duration `toml:"timeout"`
}

// MarketDataConfig holds the market-data provider endpoint and the fixed list
// of supported asset identifiers. The order of SupportedAssets matters: the
// chat classifier picks the first listed identifier found in a query.
type MarketDataConfig struct {
	BaseURL         string   `toml:"base_url"`
	APIKey          string   `toml:"api_key"`
	VsCurrency      string   `toml:"vs_currency"`
	Timeout         duration `toml:"timeout"`
	SupportedAssets []string `toml:"supported_assets"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// RateLimitConfig holds the per-client HTTP rate limit. Requires Redis.
type RateLimitConfig struct {
	Enabled  bool     `toml:"enabled"`
	Requests int      `toml:"requests"`
	Window   duration `toml:"window"`
}

// PostgresConfig holds PostgreSQL connection parameters for chat history.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// ArchiveConfig holds S3-compatible object storage parameters and the
// schedule for moving old chat history out of PostgreSQL.
type ArchiveConfig struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	RetentionDays  int    `toml:"retention_days"`
	Cron           string `toml:"cron"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "15s", "1m").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "15s" or "1m".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// DefaultSupportedAssets is the built-in ordered list of supported asset
// identifiers.
var DefaultSupportedAssets = []string{
	"bitcoin", "ethereum", "ripple", "cardano", "solana",
	"dogecoin", "polkadot", "litecoin", "chainlink", "stellar",
	"binancecoin", "tron", "avalanche-2", "shiba-inu", "uniswap",
	"cosmos", "near-protocol", "algorand", "vechain", "elrond-egld",
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	assets := make([]string, len(DefaultSupportedAssets))
	copy(assets, DefaultSupportedAssets)

	return Config{
		App: AppConfig{
			Name:        "Ciyexa AI LLM Crypto Agent Backend",
			Version:     "0.2.0",
			Description: "Backend for Ciyexa, an AI LLM Crypto Agent with advanced data features.",
		},
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"*"},
		},
		LLM: LLMConfig{
			APIURL:  "http://localhost:3000/api/chat",
			Timeout: duration{60 * time.Second},
		},
		MarketData: MarketDataConfig{
			BaseURL:         "https://api.coingecko.com/api/v3",
			VsCurrency:      "usd",
			Timeout:         duration{15 * time.Second},
			SupportedAssets: assets,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		RateLimit: RateLimitConfig{
			Enabled:  false,
			Requests: 60,
			Window:   duration{time.Minute},
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Archive: ArchiveConfig{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "ciyexa-archive",
			ForcePathStyle: true,
			RetentionDays:  90,
			Cron:           "0 3 * * *",
		},
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}

	// LLM
	if !isHTTPURL(c.LLM.APIURL) {
		errs = append(errs, fmt.Sprintf("llm: api_url must be an http(s) URL, got %q", c.LLM.APIURL))
	}
	if c.LLM.Timeout.Duration <= 0 {
		errs = append(errs, "llm: timeout must be > 0")
	}

	// Market data
	if !isHTTPURL(c.MarketData.BaseURL) {
		errs = append(errs, fmt.Sprintf("market_data: base_url must be an http(s) URL, got %q", c.MarketData.BaseURL))
	}
	if strings.TrimSpace(c.MarketData.VsCurrency) == "" {
		errs = append(errs, "market_data: vs_currency must not be empty")
	}
	if c.MarketData.Timeout.Duration <= 0 {
		errs = append(errs, "market_data: timeout must be > 0")
	}
	if len(c.MarketData.SupportedAssets) == 0 {
		errs = append(errs, "market_data: supported_assets must not be empty")
	}
	seen := make(map[string]bool, len(c.MarketData.SupportedAssets))
	for _, id := range c.MarketData.SupportedAssets {
		if strings.TrimSpace(id) == "" {
			errs = append(errs, "market_data: supported_assets must not contain empty identifiers")
			continue
		}
		if seen[id] {
			errs = append(errs, fmt.Sprintf("market_data: duplicate supported asset %q", id))
		}
		seen[id] = true
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Rate limit
	if c.RateLimit.Enabled {
		if !c.Redis.Enabled {
			errs = append(errs, "rate_limit: requires redis.enabled")
		}
		if c.RateLimit.Requests < 1 {
			errs = append(errs, "rate_limit: requests must be >= 1")
		}
		if c.RateLimit.Window.Duration < time.Millisecond {
			errs = append(errs, "rate_limit: window must be >= 1ms")
		}
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Archive
	if c.Archive.Enabled {
		if !c.Postgres.Enabled {
			errs = append(errs, "archive: requires postgres.enabled")
		}
		if c.Archive.Endpoint == "" {
			errs = append(errs, "archive: endpoint must not be empty")
		}
		if c.Archive.Bucket == "" {
			errs = append(errs, "archive: bucket must not be empty")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if n := len(strings.Fields(c.Archive.Cron)); n != 5 {
			errs = append(errs, fmt.Sprintf("archive: cron must have 5 fields, got %d", n))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
