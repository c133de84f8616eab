package bitmart

import "strings"

// NormalizeSymbol maps BASE/QUOTE pairs onto Bitmart's BASE_QUOTE form.
// Already-normalized symbols pass through unchanged.
func NormalizeSymbol(symbol string) string {
	return strings.ReplaceAll(symbol, "/", "_")
}
