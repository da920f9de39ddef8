package agent

import (
	"strings"
	"testing"

	"github.com/ciyexa/cryptoagent/internal/domain"
)

var testAssets = []string{"bitcoin", "ethereum", "cardano", "shiba-inu"}

func TestClassify(t *testing.T) {
	tests := []struct {
		query      string
		wantAsset  string
		wantAction Action
	}{
		{"What is the price of Bitcoin?", "bitcoin", ActionCurrent},
		{"How much is ETHEREUM right now", "ethereum", ActionCurrent},
		{"What was the price of Bitcoin 7 days ago?", "bitcoin", ActionHistorical},
		{"historical price of cardano", "cardano", ActionHistorical},
		{"price of cardano last week", "cardano", ActionHistorical},
		{"price of bitcoin on march 1", "bitcoin", ActionHistorical},
		{"tell me about bitcoin", "bitcoin", ActionNone},
		{"What is the price of gold?", "", ActionNone},
		{"what was the price of tea in china", "", ActionNone},
		{"current price of shibainu", "shiba-inu", ActionCurrent},
		{"value of shiba-inu", "shiba-inu", ActionCurrent},
		{"", "", ActionNone},
	}
	for _, tt := range tests {
		d := Classify(tt.query, testAssets)
		if d.AssetID != tt.wantAsset {
			t.Errorf("Classify(%q).AssetID = %q, want %q", tt.query, d.AssetID, tt.wantAsset)
		}
		if got := d.Action(); got != tt.wantAction {
			t.Errorf("Classify(%q).Action() = %v, want %v", tt.query, got, tt.wantAction)
		}
	}
}

func TestClassifyFirstConfiguredAssetWins(t *testing.T) {
	// Query mentions ethereum first, but bitcoin is listed first.
	d := Classify("price of ethereum vs bitcoin", []string{"bitcoin", "ethereum"})
	if d.AssetID != "bitcoin" {
		t.Errorf("AssetID = %q, want bitcoin", d.AssetID)
	}
	d = Classify("price of ethereum vs bitcoin", []string{"ethereum", "bitcoin"})
	if d.AssetID != "ethereum" {
		t.Errorf("AssetID = %q, want ethereum", d.AssetID)
	}
}

func TestClassifyHistoricalBeatsCurrent(t *testing.T) {
	d := Classify("what is the price of bitcoin, and what was the price of bitcoin last month", testAssets)
	if !d.Current || !d.Historical {
		t.Fatalf("both matches expected: %+v", d)
	}
	if d.Action() != ActionHistorical {
		t.Errorf("Action = %v, want historical", d.Action())
	}
}

func TestFormatAmount(t *testing.T) {
	tests := map[float64]string{
		70000:       "70,000.00",
		20500:       "20,500.00",
		0.5:         "0.50",
		1234567.891: "1,234,567.89",
	}
	for in, want := range tests {
		if got := FormatAmount(in); got != want {
			t.Errorf("FormatAmount(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestCurrentPrompt(t *testing.T) {
	change := 2.5
	snap := &domain.MarketSnapshot{
		ID:     "bitcoin",
		Symbol: "btc",
		Name:   "Bitcoin",
		MarketData: &domain.MarketData{
			CurrentPrice:             map[string]float64{"usd": 70000},
			PriceChangePercentage24h: &change,
		},
	}
	got := CurrentPrompt("What is the price of Bitcoin?", snap, 70000)
	for _, want := range []string{
		"The user asked: 'What is the price of Bitcoin?'.",
		"current data for Bitcoin (BTC):",
		"- Current Price (USD): $70,000.00\n",
		"- 24h Price Change: 2.50%\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q:\n%s", want, got)
		}
	}
}

func TestCurrentPromptWithoutChange(t *testing.T) {
	snap := &domain.MarketSnapshot{
		Symbol:     "eth",
		Name:       "Ethereum",
		MarketData: &domain.MarketData{CurrentPrice: map[string]float64{"usd": 3500}},
	}
	got := CurrentPrompt("q", snap, 3500)
	if !strings.Contains(got, "24h Price Change: N/A%") {
		t.Errorf("prompt = %s", got)
	}
}

func TestHistoricalPrompt(t *testing.T) {
	got := HistoricalPrompt("What was the price of Bitcoin 7 days ago?", "bitcoin", 20500)
	for _, want := range []string{
		"The user asked: 'What was the price of Bitcoin 7 days ago?'.",
		"historical data for bitcoin (last 7 days):\n",
		"Latest recorded price (approx): $20,500.00 USD.",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q:\n%s", want, got)
		}
	}
}
