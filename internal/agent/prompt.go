package agent

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/ciyexa/cryptoagent/internal/domain"
)

// CurrentPrompt wraps query with a snapshot's USD price and 24h change.
func CurrentPrompt(query string, snap *domain.MarketSnapshot, usdPrice float64) string {
	change := "N/A"
	if snap.MarketData != nil && snap.MarketData.PriceChangePercentage24h != nil {
		change = fmt.Sprintf("%.2f", *snap.MarketData.PriceChangePercentage24h)
	}
	return fmt.Sprintf(
		"The user asked: '%s'. Here is the current data for %s (%s):\n"+
			"- Current Price (USD): $%s\n"+
			"- 24h Price Change: %s%%\n"+
			"Please provide a concise and helpful answer based on this information, "+
			"and then answer any other parts of the user's original query.",
		query, snap.Name, strings.ToUpper(snap.Symbol), FormatAmount(usdPrice), change,
	)
}

// HistoricalPrompt wraps query with the latest price of the look-back window.
func HistoricalPrompt(query, assetID string, latestPrice float64) string {
	return fmt.Sprintf(
		"The user asked: '%s'. Here is recent historical data for %s (last %d days):\n"+
			"Latest recorded price (approx): $%s USD.\n"+
			"Please provide a concise and helpful answer based on this historical information, "+
			"and then answer any other parts of the user's original query.",
		query, assetID, HistoryWindowDays, FormatAmount(latestPrice),
	)
}

// FormatAmount renders v with comma thousands separators and two decimals,
// e.g. 70000 -> "70,000.00".
func FormatAmount(v float64) string {
	return message.NewPrinter(language.English).Sprintf("%.2f", v)
}
