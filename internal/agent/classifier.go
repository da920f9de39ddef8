// Package agent decides whether a chat query needs market data and formats
// the enriched prompt sent to the LLM. Everything here is pure.
package agent

import (
	"regexp"
	"strings"
)

// HistoryWindowDays is the fixed look-back used for historical questions.
const HistoryWindowDays = 7

var currentPriceKeywords = []string{
	"price of",
	"how much is",
	"value of",
	"current price",
	"what is the price",
}

var historicalPricePatterns = []*regexp.Regexp{
	regexp.MustCompile(`historical price of`),
	regexp.MustCompile(`price of .* on`),
	regexp.MustCompile(`price of .* ago`),
	regexp.MustCompile(`price of .* last`),
	regexp.MustCompile(`what was the price of`),
}

// Decision is the outcome of classifying one query.
type Decision struct {
	// AssetID is the first configured identifier found in the query, or "".
	AssetID    string
	Current    bool
	Historical bool
}

// Action is what the chat pipeline should fetch before calling the LLM.
type Action int

const (
	ActionNone Action = iota
	ActionCurrent
	ActionHistorical
)

// Action applies the priority rules: no asset means no enrichment, and a
// historical match wins over a current-price match.
func (d Decision) Action() Action {
	switch {
	case d.AssetID == "":
		return ActionNone
	case d.Historical:
		return ActionHistorical
	case d.Current:
		return ActionCurrent
	default:
		return ActionNone
	}
}

// Classify inspects query against the ordered asset list.
func Classify(query string, assets []string) Decision {
	lower := strings.ToLower(query)

	var d Decision
	for _, kw := range currentPriceKeywords {
		if strings.Contains(lower, kw) {
			d.Current = true
			break
		}
	}
	for _, re := range historicalPricePatterns {
		if re.MatchString(lower) {
			d.Historical = true
			break
		}
	}
	d.AssetID = DetectAsset(lower, assets)
	return d
}

// DetectAsset returns the first id in assets whose lower-cased form, with or
// without hyphens, appears in text. text must already be lower-cased.
func DetectAsset(text string, assets []string) string {
	for _, id := range assets {
		lid := strings.ToLower(id)
		if strings.Contains(text, lid) || strings.Contains(text, strings.ReplaceAll(lid, "-", "")) {
			return id
		}
	}
	return ""
}
