package capture

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/tickvault/tickvault/internal/market"
)

const (
	framePrefix     = "~m~"
	keepalivePrefix = "~h~"
)

// splitFrames splits one websocket payload into message chunks. Payloads
// arrive either as bare JSON or as length-prefixed chunks of the form
// ~m~<len>~m~<payload>. A malformed length prefix ends the scan; whatever
// was split off so far is returned.
func splitFrames(payload string) []string {
	if payload == "" {
		return nil
	}
	if !strings.HasPrefix(payload, framePrefix) {
		return []string{payload}
	}

	var chunks []string
	rest := payload
	for strings.HasPrefix(rest, framePrefix) {
		rest = rest[len(framePrefix):]
		end := strings.Index(rest, framePrefix)
		if end < 0 {
			break
		}
		size, err := strconv.Atoi(rest[:end])
		if err != nil || size < 0 {
			break
		}
		rest = rest[end+len(framePrefix):]
		if size > len(rest) {
			size = len(rest)
		}
		chunks = append(chunks, rest[:size])
		rest = rest[size:]
	}
	return chunks
}

// isKeepalive reports whether a chunk is a heartbeat (~h~<n>).
func isKeepalive(chunk string) bool {
	return strings.HasPrefix(chunk, keepalivePrefix)
}

// envelope is the wire shape of one data message.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type barPayload struct {
	Symbol     string  `json:"symbol"`
	Resolution string  `json:"resolution"`
	Time       int64   `json:"t"`
	Open       float64 `json:"o"`
	High       float64 `json:"h"`
	Low        float64 `json:"l"`
	Close      float64 `json:"c"`
	Volume     float64 `json:"v"`
}

type tradePayload struct {
	Symbol string  `json:"symbol"`
	Time   int64   `json:"ts"`
	Price  float64 `json:"price"`
	Size   float64 `json:"size"`
	Side   string  `json:"side"`
}

// decodeChunk decodes one message chunk into a validated market record.
// A nil record with nil error means the chunk carried nothing to
// persist (unknown envelope type).
func decodeChunk(chunk string) (market.Record, error) {
	var env envelope
	if err := json.Unmarshal([]byte(chunk), &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Type {
	case "bar":
		var p barPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("decode bar: %w", err)
		}
		c := market.Candle{
			Symbol:     p.Symbol,
			Resolution: p.Resolution,
			Time:       p.Time,
			Open:       p.Open,
			High:       p.High,
			Low:        p.Low,
			Close:      p.Close,
			Volume:     p.Volume,
		}
		if c.Resolution == "" {
			c.Resolution = "1"
		}
		if err := c.Validate(); err != nil {
			return nil, err
		}
		return c, nil

	case "quote":
		var q market.Quote
		if err := json.Unmarshal(env.Data, &q); err != nil {
			return nil, fmt.Errorf("decode quote: %w", err)
		}
		if err := q.Validate(); err != nil {
			return nil, err
		}
		return q, nil

	case "trade":
		var p tradePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("decode trade: %w", err)
		}
		tr := market.Trade{
			Symbol: p.Symbol,
			Time:   p.Time,
			Price:  p.Price,
			Size:   p.Size,
			Side:   p.Side,
		}
		if err := tr.Validate(); err != nil {
			return nil, err
		}
		return tr, nil
	}

	return nil, nil
}

// historyResponse is the column-array shape of a history endpoint reply.
type historyResponse struct {
	Status  string    `json:"s"`
	Times   []int64   `json:"t"`
	Opens   []float64 `json:"o"`
	Highs   []float64 `json:"h"`
	Lows    []float64 `json:"l"`
	Closes  []float64 `json:"c"`
	Volumes []float64 `json:"v"`
}

// DecodeHistory converts a history endpoint response body into candles.
// Symbol and resolution come from the request URL query. A non-ok
// status yields no candles and no error; ragged column arrays are
// clamped to the shortest price column, and rows that fail validation
// are skipped.
func DecodeHistory(rawURL string, body []byte) ([]market.Candle, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse history url: %w", err)
	}
	symbol := u.Query().Get("symbol")
	if symbol == "" {
		return nil, fmt.Errorf("history url %s missing symbol parameter", u.Path)
	}
	resolution := u.Query().Get("resolution")
	if resolution == "" {
		resolution = "1"
	}

	var resp historyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode history body: %w", err)
	}
	if resp.Status != "ok" {
		return nil, nil
	}

	n := len(resp.Times)
	for _, col := range [][]float64{resp.Opens, resp.Highs, resp.Lows, resp.Closes} {
		if len(col) < n {
			n = len(col)
		}
	}

	candles := make([]market.Candle, 0, n)
	for i := 0; i < n; i++ {
		c := market.Candle{
			Symbol:     symbol,
			Resolution: resolution,
			Time:       resp.Times[i],
			Open:       resp.Opens[i],
			High:       resp.Highs[i],
			Low:        resp.Lows[i],
			Close:      resp.Closes[i],
		}
		if i < len(resp.Volumes) {
			c.Volume = resp.Volumes[i]
		}
		if c.Validate() != nil {
			continue
		}
		candles = append(candles, c)
	}
	return candles, nil
}
