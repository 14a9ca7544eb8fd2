package market

import "strings"

// DefaultExchange is assumed when a feed symbol carries no exchange
// prefix.
const DefaultExchange = "UNKNOWN"

// SplitSymbol splits a feed symbol of the form "EXCHANGE:SYMBOL" into
// its uppercased parts. A missing or empty exchange part falls back to
// defaultExchange (or DefaultExchange when that is empty too).
func SplitSymbol(full, defaultExchange string) (exchange, symbol string) {
	if defaultExchange == "" {
		defaultExchange = DefaultExchange
	}
	full = strings.TrimSpace(full)

	if i := strings.IndexByte(full, ':'); i >= 0 {
		exchange, symbol = full[:i], full[i+1:]
	} else {
		exchange, symbol = defaultExchange, full
	}
	exchange = strings.ToUpper(strings.TrimSpace(exchange))
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if exchange == "" {
		exchange = strings.ToUpper(defaultExchange)
	}
	return exchange, symbol
}

// SanitizeSegment maps an exchange or symbol onto a filesystem-safe path
// segment: uppercase, with anything outside letters, digits, dot, and
// hyphen replaced by underscores. An empty input comes back as "_".
func SanitizeSegment(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return "_"
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	// a dotted prefix would hide the file or escape the layout
	out := b.String()
	if strings.HasPrefix(out, ".") {
		out = "_" + strings.TrimLeft(out, ".")
	}
	return out
}
