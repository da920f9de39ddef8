package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies CIYEXA_* environment variable overrides, and
// returns the final Config. A missing file is not an error: the defaults and
// environment alone are used. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known CIYEXA_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). The unprefixed names accepted by earlier deployments are read first
// so the prefixed form wins when both are present.
func applyEnvOverrides(cfg *Config) {
	// ── App ──
	setStr(&cfg.App.Name, "CIYEXA_APP_NAME")
	setStr(&cfg.App.Version, "CIYEXA_APP_VERSION")
	setStr(&cfg.App.Description, "CIYEXA_APP_DESCRIPTION")

	// ── Server ──
	setInt(&cfg.Server.Port, "CIYEXA_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "CIYEXA_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "CIYEXA_SERVER_API_KEY")

	// ── LLM ──
	setStr(&cfg.LLM.APIURL, "LLM_API_BASE_URL") // compatibility alias
	setStr(&cfg.LLM.APIURL, "CIYEXA_LLM_API_URL")
	setDuration(&cfg.LLM.Timeout, "CIYEXA_LLM_TIMEOUT")

	// ── Market data ──
	setStr(&cfg.MarketData.BaseURL, "COINGECKO_API_BASE_URL") // compatibility alias
	setStr(&cfg.MarketData.BaseURL, "CIYEXA_MARKET_DATA_BASE_URL")
	setStr(&cfg.MarketData.APIKey, "COINGECKO_API_KEY") // compatibility alias
	setStr(&cfg.MarketData.APIKey, "CIYEXA_MARKET_DATA_API_KEY")
	setStr(&cfg.MarketData.VsCurrency, "DEFAULT_VS_CURRENCY") // compatibility alias
	setStr(&cfg.MarketData.VsCurrency, "CIYEXA_MARKET_DATA_VS_CURRENCY")
	setDuration(&cfg.MarketData.Timeout, "CIYEXA_MARKET_DATA_TIMEOUT")
	setStringSlice(&cfg.MarketData.SupportedAssets, "SUPPORTED_CRYPTOS") // compatibility alias
	setStringSlice(&cfg.MarketData.SupportedAssets, "CIYEXA_MARKET_DATA_SUPPORTED_ASSETS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "CIYEXA_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "CIYEXA_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CIYEXA_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CIYEXA_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CIYEXA_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "CIYEXA_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "CIYEXA_REDIS_TLS_ENABLED")

	// ── Rate limit ──
	setBool(&cfg.RateLimit.Enabled, "CIYEXA_RATE_LIMIT_ENABLED")
	setInt(&cfg.RateLimit.Requests, "CIYEXA_RATE_LIMIT_REQUESTS")
	setDuration(&cfg.RateLimit.Window, "CIYEXA_RATE_LIMIT_WINDOW")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "CIYEXA_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "CIYEXA_DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.DSN, "CIYEXA_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "CIYEXA_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "CIYEXA_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "CIYEXA_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "CIYEXA_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "CIYEXA_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "CIYEXA_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "CIYEXA_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "CIYEXA_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "CIYEXA_POSTGRES_RUN_MIGRATIONS")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "CIYEXA_ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Endpoint, "CIYEXA_ARCHIVE_ENDPOINT")
	setStr(&cfg.Archive.Region, "CIYEXA_ARCHIVE_REGION")
	setStr(&cfg.Archive.Bucket, "CIYEXA_ARCHIVE_BUCKET")
	setStr(&cfg.Archive.AccessKey, "CIYEXA_ARCHIVE_ACCESS_KEY")
	setStr(&cfg.Archive.SecretKey, "CIYEXA_ARCHIVE_SECRET_KEY")
	setBool(&cfg.Archive.UseSSL, "CIYEXA_ARCHIVE_USE_SSL")
	setBool(&cfg.Archive.ForcePathStyle, "CIYEXA_ARCHIVE_FORCE_PATH_STYLE")
	setInt(&cfg.Archive.RetentionDays, "CIYEXA_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Archive.Cron, "CIYEXA_ARCHIVE_CRON")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "LOG_LEVEL") // compatibility alias
	setStr(&cfg.LogLevel, "CIYEXA_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

// setStringSlice accepts either a comma-separated list or a JSON-style array
// such as ["bitcoin","ethereum"].
func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		v = strings.TrimSpace(v)
		v = strings.TrimPrefix(v, "[")
		v = strings.TrimSuffix(v, "]")
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.Trim(strings.TrimSpace(p), `"'`)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
