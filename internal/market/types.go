// Package market defines the typed records produced by the capture layer
// and consumed by the recorder. Records are validated once, at the
// producer boundary; downstream code can rely on the fields being sane.
package market

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Record kinds
const (
	KindBar   = "bar"
	KindQuote = "quote"
	KindTrade = "trade"
)

// Trade sides
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// ErrInvalidRecord marks a record rejected at the producer boundary.
var ErrInvalidRecord = errors.New("invalid record")

// CandleHeader is the column layout of bar table files.
var CandleHeader = []string{"t", "open", "high", "low", "close", "volume"}

// TradeHeader is the header line of tape stream files.
const TradeHeader = "ts,price,size,side"

// Record is any captured market data record.
type Record interface {
	Kind() string
	Validate() error
}

// Candle is one OHLCV bar for a symbol at a resolution.
type Candle struct {
	Symbol     string
	Resolution string
	Time       int64
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     float64
}

func (c Candle) Kind() string { return KindBar }

// Validate checks the bar is well-formed.
func (c Candle) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("%w: bar without symbol", ErrInvalidRecord)
	}
	if c.Resolution == "" {
		return fmt.Errorf("%w: bar %s without resolution", ErrInvalidRecord, c.Symbol)
	}
	if c.Time <= 0 {
		return fmt.Errorf("%w: bar %s with non-positive time %d", ErrInvalidRecord, c.Symbol, c.Time)
	}
	if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
		return fmt.Errorf("%w: bar %s@%d with non-positive price", ErrInvalidRecord, c.Symbol, c.Time)
	}
	if c.High < c.Low {
		return fmt.Errorf("%w: bar %s@%d with high below low", ErrInvalidRecord, c.Symbol, c.Time)
	}
	if c.Volume < 0 {
		return fmt.Errorf("%w: bar %s@%d with negative volume", ErrInvalidRecord, c.Symbol, c.Time)
	}
	return nil
}

// Key is the table key of the bar: its timestamp in decimal.
func (c Candle) Key() string {
	return strconv.FormatInt(c.Time, 10)
}

// Fields renders the bar as a table row. A zero volume is left absent
// rather than stored as "0" (feeds that carry no volume stay clean).
func (c Candle) Fields() map[string]string {
	row := map[string]string{
		"t":     strconv.FormatInt(c.Time, 10),
		"open":  formatPrice(c.Open),
		"high":  formatPrice(c.High),
		"low":   formatPrice(c.Low),
		"close": formatPrice(c.Close),
	}
	if c.Volume != 0 {
		row["volume"] = formatPrice(c.Volume)
	}
	return row
}

// Quote is a top-of-book snapshot for a symbol.
type Quote struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Last   float64 `json:"last"`
	Volume float64 `json:"volume,omitempty"`
	Time   int64   `json:"ts"`
}

func (q Quote) Kind() string { return KindQuote }

// Validate checks the quote is well-formed.
func (q Quote) Validate() error {
	if q.Symbol == "" {
		return fmt.Errorf("%w: quote without symbol", ErrInvalidRecord)
	}
	if q.Time <= 0 {
		return fmt.Errorf("%w: quote %s with non-positive time %d", ErrInvalidRecord, q.Symbol, q.Time)
	}
	if q.Last <= 0 {
		return fmt.Errorf("%w: quote %s with non-positive last price", ErrInvalidRecord, q.Symbol)
	}
	if q.Bid < 0 || q.Ask < 0 {
		return fmt.Errorf("%w: quote %s with negative bid or ask", ErrInvalidRecord, q.Symbol)
	}
	return nil
}

// Key is the journal key of the quote: its symbol.
func (q Quote) Key() string {
	return q.Symbol
}

// Line renders the quote as one journal line. The symbol field doubles
// as the line's extractable key.
func (q Quote) Line() (string, error) {
	data, err := json.Marshal(q)
	if err != nil {
		return "", fmt.Errorf("failed to marshal quote %s: %w", q.Symbol, err)
	}
	return string(data), nil
}

// Trade is one executed trade from the feed's tape.
type Trade struct {
	Symbol string
	Time   int64
	Price  float64
	Size   float64
	Side   string
}

func (t Trade) Kind() string { return KindTrade }

// Validate checks the trade is well-formed.
func (t Trade) Validate() error {
	if t.Symbol == "" {
		return fmt.Errorf("%w: trade without symbol", ErrInvalidRecord)
	}
	if t.Time <= 0 {
		return fmt.Errorf("%w: trade %s with non-positive time %d", ErrInvalidRecord, t.Symbol, t.Time)
	}
	if t.Price <= 0 {
		return fmt.Errorf("%w: trade %s with non-positive price", ErrInvalidRecord, t.Symbol)
	}
	if t.Size <= 0 {
		return fmt.Errorf("%w: trade %s with non-positive size", ErrInvalidRecord, t.Symbol)
	}
	if t.Side != SideBuy && t.Side != SideSell {
		return fmt.Errorf("%w: trade %s with side %q", ErrInvalidRecord, t.Symbol, t.Side)
	}
	return nil
}

// TapeLine renders the trade as one tape line under TradeHeader. No
// field can contain a delimiter, so no quoting is needed.
func (t Trade) TapeLine() string {
	return strings.Join([]string{
		strconv.FormatInt(t.Time, 10),
		formatPrice(t.Price),
		formatPrice(t.Size),
		t.Side,
	}, ",")
}

// formatPrice renders a float with the shortest exact decimal form.
func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
