package capture

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tickvault/tickvault/internal/config"
	"github.com/tickvault/tickvault/internal/market"
	"github.com/tickvault/tickvault/internal/metrics"
)

// newTestSession builds a session without starting a browser. The frame
// path is exercised by calling handleFrame directly.
func newTestSession(t *testing.T, bufferSize int) *Session {
	t.Helper()

	cfg := config.CaptureConfig{
		TargetURL:       "https://example.com/chart",
		HistoryPatterns: []string{"/history"},
		BufferSize:      bufferSize,
	}

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	m := metrics.NewManager(config.MetricsConfig{Enable: false}, nil)

	return NewSession(cfg, logger.WithField("component", "capture"), m)
}

// frame packs chunks into the length-prefixed wire form.
func frame(chunks ...string) string {
	var b strings.Builder
	for _, c := range chunks {
		fmt.Fprintf(&b, "~m~%d~m~%s", len(c), c)
	}
	return b.String()
}

func TestNewSession(t *testing.T) {
	s := newTestSession(t, 8)

	assert.NotEmpty(t, s.ID)
	assert.NotNil(t, s.Records())
	assert.Equal(t, 8, cap(s.out))
}

func TestNewSession_DefaultBuffer(t *testing.T) {
	s := newTestSession(t, 0)
	assert.Equal(t, 1024, cap(s.out))
}

func TestHandleFrame(t *testing.T) {
	s := newTestSession(t, 8)

	payload := frame(
		`{"type":"bar","data":{"symbol":"BINANCE:BTCUSDT","resolution":"1","t":1700000000,"o":100,"h":110,"l":95,"c":105,"v":1}}`,
		"~h~3",
		`{"type":"quote","data":{"symbol":"BINANCE:BTCUSDT","bid":99.5,"ask":100.5,"last":100,"ts":1700000000}}`,
	)
	s.handleFrame(payload)

	first := <-s.Records()
	second := <-s.Records()
	assert.Equal(t, market.KindBar, first.Kind())
	assert.Equal(t, market.KindQuote, second.Kind())

	snap := s.Stats()
	assert.Equal(t, int64(1), snap.Frames)
	assert.Equal(t, int64(1), snap.Keepalives)
	assert.Equal(t, int64(1), snap.Bars)
	assert.Equal(t, int64(1), snap.Quotes)
	assert.Equal(t, int64(0), snap.DecodeErrors)
}

func TestHandleFrame_Tolerance(t *testing.T) {
	s := newTestSession(t, 8)

	payload := frame(
		`not json at all`,
		`{"type":"session_info","data":{"id":"x"}}`,
		`{"type":"trade","data":{"symbol":"BTCUSDT","ts":1700000001,"price":100.25,"size":0.5,"side":"buy"}}`,
	)
	s.handleFrame(payload)

	rec := <-s.Records()
	assert.Equal(t, market.KindTrade, rec.Kind())

	snap := s.Stats()
	assert.Equal(t, int64(1), snap.DecodeErrors)
	assert.Equal(t, int64(1), snap.Skipped)
	assert.Equal(t, int64(1), snap.Trades)
}

func TestHandleFrame_Backpressure(t *testing.T) {
	s := newTestSession(t, 1)

	quote := `{"type":"quote","data":{"symbol":"BTCUSDT","bid":99.5,"ask":100.5,"last":100,"ts":1700000000}}`
	s.handleFrame(frame(quote, quote, quote))

	snap := s.Stats()
	assert.Equal(t, int64(1), snap.Quotes)
	assert.Equal(t, int64(2), snap.Dropped)

	// The buffered record is still deliverable
	rec := <-s.Records()
	require.Equal(t, market.KindQuote, rec.Kind())
}

func TestMatchesHistory(t *testing.T) {
	s := newTestSession(t, 1)

	assert.True(t, s.matchesHistory("https://data.example.com/api/history?symbol=X"))
	assert.False(t, s.matchesHistory("https://data.example.com/api/quotes"))
	assert.False(t, s.matchesHistory(""))
}
