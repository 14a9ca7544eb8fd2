package recorder

import (
	"path/filepath"

	"github.com/tickvault/tickvault/internal/market"
)

// TablePath returns the compacting bar file for one symbol and resolution.
func TablePath(dataDir, exchange, symbol, resolution string) string {
	return filepath.Join(dataDir, "bars",
		market.SanitizeSegment(exchange),
		market.SanitizeSegment(symbol),
		market.SanitizeSegment(resolution)+".csv")
}

// JournalPath returns the quote journal for one exchange.
func JournalPath(dataDir, exchange string) string {
	return filepath.Join(dataDir, "quotes", market.SanitizeSegment(exchange)+".jsonl")
}

// TapePath returns the trade tape stream for one symbol.
func TapePath(dataDir, exchange, symbol string) string {
	return filepath.Join(dataDir, "tape",
		market.SanitizeSegment(exchange),
		market.SanitizeSegment(symbol)+".csv")
}
