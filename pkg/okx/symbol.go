package okx

import (
	"regexp"
	"strings"
)

const quoteAsset = "USDT"

var symbolPattern = regexp.MustCompile(`^[A-Z]{2,10}USDT$`)

// ValidSymbol reports whether s is a canonical USDT-quoted symbol such as "BTCUSDT".
func ValidSymbol(s string) bool {
	return symbolPattern.MatchString(s)
}

// ToInstID converts a canonical symbol to the OKX instrument id by inserting
// the separator before the quote asset ("BTCUSDT" -> "BTC-USDT").
// Input that does not carry the quote asset passes through unchanged,
// matching the permissive upstream behavior.
func ToInstID(symbol string) string {
	if base, ok := strings.CutSuffix(symbol, quoteAsset); ok && base != "" {
		return base + "-" + quoteAsset
	}
	return symbol
}

// FromInstID is the inverse of ToInstID ("BTC-USDT" -> "BTCUSDT").
func FromInstID(instID string) string {
	return strings.ReplaceAll(instID, "-", "")
}
