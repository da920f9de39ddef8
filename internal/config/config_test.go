package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.LLM.Timeout.Duration != 60*time.Second {
		t.Errorf("llm timeout = %v, want 60s", cfg.LLM.Timeout.Duration)
	}
	if cfg.MarketData.Timeout.Duration != 15*time.Second {
		t.Errorf("market data timeout = %v, want 15s", cfg.MarketData.Timeout.Duration)
	}
	if got := cfg.MarketData.SupportedAssets[0]; got != "bitcoin" {
		t.Errorf("first supported asset = %q, want bitcoin", got)
	}
	if len(cfg.MarketData.SupportedAssets) != 20 {
		t.Errorf("supported assets = %d, want 20", len(cfg.MarketData.SupportedAssets))
	}
}

func TestDefaultsDoNotShareAssetSlice(t *testing.T) {
	a := Defaults()
	a.MarketData.SupportedAssets[0] = "mutated"
	if DefaultSupportedAssets[0] != "bitcoin" {
		t.Fatal("Defaults must copy the supported asset list")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("port = %d, want 8000", cfg.Server.Port)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
log_level = "debug"

[server]
port = 9100

[market_data]
timeout = "5s"
supported_assets = ["ethereum", "bitcoin"]
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log_level = %q", cfg.LogLevel)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.MarketData.Timeout.Duration != 5*time.Second {
		t.Errorf("timeout = %v", cfg.MarketData.Timeout.Duration)
	}
	if strings.Join(cfg.MarketData.SupportedAssets, ",") != "ethereum,bitcoin" {
		t.Errorf("assets = %v", cfg.MarketData.SupportedAssets)
	}
	// Untouched sections keep their defaults.
	if cfg.LLM.APIURL != "http://localhost:3000/api/chat" {
		t.Errorf("llm api_url = %q", cfg.LLM.APIURL)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[server\nport = "), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LLM_API_BASE_URL", "http://alias.example/api")
	t.Setenv("CIYEXA_LLM_API_URL", "http://llm.example/api/chat")
	t.Setenv("COINGECKO_API_KEY", "cg-key")
	t.Setenv("SUPPORTED_CRYPTOS", `["bitcoin", "ethereum", "cardano"]`)
	t.Setenv("CIYEXA_MARKET_DATA_TIMEOUT", "3s")
	t.Setenv("CIYEXA_REDIS_ENABLED", "true")
	t.Setenv("CIYEXA_SERVER_PORT", "not-a-number")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.APIURL != "http://llm.example/api/chat" {
		t.Errorf("prefixed variable should win over alias, got %q", cfg.LLM.APIURL)
	}
	if cfg.MarketData.APIKey != "cg-key" {
		t.Errorf("api key = %q", cfg.MarketData.APIKey)
	}
	if got := strings.Join(cfg.MarketData.SupportedAssets, ","); got != "bitcoin,ethereum,cardano" {
		t.Errorf("assets = %q", got)
	}
	if cfg.MarketData.Timeout.Duration != 3*time.Second {
		t.Errorf("timeout = %v", cfg.MarketData.Timeout.Duration)
	}
	if !cfg.Redis.Enabled {
		t.Error("redis should be enabled")
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("unparseable port should be ignored, got %d", cfg.Server.Port)
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.LogLevel = "verbose"
	cfg.Server.Port = 0
	cfg.LLM.APIURL = "not a url"
	cfg.MarketData.SupportedAssets = []string{"bitcoin", "bitcoin", ""}
	cfg.RateLimit.Enabled = true
	cfg.Archive.Enabled = true
	cfg.Archive.Cron = "* * *"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{
		"log_level",
		"server: port",
		"llm: api_url",
		"duplicate supported asset",
		"empty identifiers",
		"rate_limit: requires redis.enabled",
		"archive: requires postgres.enabled",
		"archive: cron",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q:\n%v", want, err)
		}
	}
}

func TestValidatePostgres(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Enabled = true
	cfg.Postgres.PoolMinConns = 20
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "pool_min_conns must not exceed") {
		t.Fatalf("err = %v", err)
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.MarketData.APIKey = "secret"
	cfg.Postgres.DSN = "postgres://u:p@h/db"
	cfg.Archive.SecretKey = "s3-secret"

	out := RedactedConfig(&cfg)
	if out.MarketData.APIKey != "***" || out.Postgres.DSN != "***" || out.Archive.SecretKey != "***" {
		t.Errorf("secrets not redacted: %+v", out)
	}
	if out.Redis.Password != "" {
		t.Errorf("empty secrets should stay empty, got %q", out.Redis.Password)
	}
	if cfg.MarketData.APIKey != "secret" {
		t.Error("original config was mutated")
	}
	out.MarketData.SupportedAssets[0] = "changed"
	if cfg.MarketData.SupportedAssets[0] != "bitcoin" {
		t.Error("redacted copy shares the asset slice")
	}
}

func TestExampleFileMatchesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config.example.toml"))
	if err != nil {
		t.Fatalf("Load example: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("example should validate: %v", err)
	}

	def := Defaults()
	if cfg.Archive.Cron != def.Archive.Cron || cfg.RateLimit.Window != def.RateLimit.Window {
		t.Errorf("example drifted from defaults: archive cron %q, window %v", cfg.Archive.Cron, cfg.RateLimit.Window)
	}
	if strings.Join(cfg.MarketData.SupportedAssets, ",") != strings.Join(def.MarketData.SupportedAssets, ",") {
		t.Errorf("example supported assets = %v", cfg.MarketData.SupportedAssets)
	}
}
