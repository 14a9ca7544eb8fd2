// Package recorder routes decoded market records to their store
// destinations: bars into compacting tables, quotes into per-exchange
// journals, trades onto append-only tape streams.
package recorder

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tickvault/tickvault/internal/config"
	"github.com/tickvault/tickvault/internal/market"
	"github.com/tickvault/tickvault/internal/metrics"
	"github.com/tickvault/tickvault/internal/store"
)

// barKey addresses one candle buffer.
type barKey struct {
	exchange   string
	symbol     string
	resolution string
}

// Recorder owns the store engine's write side. Bars and quotes are
// buffered and flushed in batches; trades bypass the buffers and append
// to their tape stream as they arrive.
type Recorder struct {
	dataDir         string
	defaultExchange string
	cfg             config.RecorderConfig
	engine          *store.Engine
	log             *logrus.Entry
	m               metrics.Manager

	mu      sync.Mutex
	bars    map[barKey][]store.Fields
	quotes  map[string][]store.JournalEntry
	streams map[string]*store.Stream
	pending int

	totalBars   atomic.Int64
	totalQuotes atomic.Int64
	totalTrades atomic.Int64
	lastFlush   atomic.Int64
}

// Totals is a point-in-time view of the recorder for status reporting.
type Totals struct {
	Bars        int64 `json:"bars"`
	Quotes      int64 `json:"quotes"`
	Trades      int64 `json:"trades"`
	Pending     int   `json:"pending"`
	OpenStreams int   `json:"open_streams"`
	LastFlush   int64 `json:"last_flush_unix"`
}

// New creates a recorder writing beneath dataDir. Records whose symbol
// carries no exchange prefix are filed under defaultExchange.
func New(dataDir, defaultExchange string, cfg config.RecorderConfig, engine *store.Engine, logger *logrus.Entry, m metrics.Manager) *Recorder {
	if defaultExchange == "" {
		defaultExchange = market.DefaultExchange
	}
	return &Recorder{
		dataDir:         dataDir,
		defaultExchange: defaultExchange,
		cfg:             cfg,
		engine:          engine,
		log:             logger,
		m:               m,
		bars:            make(map[barKey][]store.Fields),
		quotes:          make(map[string][]store.JournalEntry),
		streams:         make(map[string]*store.Stream),
	}
}

// Record accepts one decoded record. Bars and quotes are buffered until
// the next flush; trades are appended to their tape stream immediately.
func (r *Recorder) Record(rec market.Record) {
	switch v := rec.(type) {
	case market.Candle:
		r.totalBars.Add(1)
		exchange, symbol := market.SplitSymbol(v.Symbol, r.defaultExchange)
		k := barKey{exchange: exchange, symbol: symbol, resolution: v.Resolution}

		r.mu.Lock()
		r.bars[k] = append(r.bars[k], store.Fields(v.Fields()))
		r.pending++
		pending := r.pending
		r.mu.Unlock()
		r.m.UpdateBufferedRecords(pending)

	case market.Quote:
		r.totalQuotes.Add(1)
		line, err := v.Line()
		if err != nil {
			r.log.WithError(err).Warn("Dropping unserializable quote")
			return
		}
		exchange, _ := market.SplitSymbol(v.Symbol, r.defaultExchange)

		r.mu.Lock()
		r.quotes[exchange] = append(r.quotes[exchange], store.JournalEntry{Key: v.Key(), Line: line})
		r.pending++
		pending := r.pending
		r.mu.Unlock()
		r.m.UpdateBufferedRecords(pending)

	case market.Trade:
		r.totalTrades.Add(1)
		r.recordTrade(v)
	}
}

// recordTrade appends one trade to its tape stream, opening the stream
// on first use.
func (r *Recorder) recordTrade(v market.Trade) {
	if !r.cfg.TapeEnabled {
		return
	}
	exchange, symbol := market.SplitSymbol(v.Symbol, r.defaultExchange)
	path := TapePath(r.dataDir, exchange, symbol)

	r.mu.Lock()
	s, ok := r.streams[path]
	r.mu.Unlock()

	if !ok {
		var err error
		s, err = r.engine.OpenStream(path, market.TradeHeader)
		if err != nil {
			r.log.WithError(err).WithField("path", path).Error("Failed to open tape stream")
			return
		}
		r.mu.Lock()
		r.streams[path] = s
		r.mu.Unlock()
		r.m.UpdateOpenStreams(r.engine.StreamCount())
	}

	if err := s.Append(v.TapeLine()); err != nil {
		r.log.WithError(err).WithField("path", path).Error("Tape append failed")
		r.mu.Lock()
		delete(r.streams, path)
		r.mu.Unlock()
		return
	}
	r.m.RecordStreamAppend()
}

// Pending returns the number of buffered records awaiting flush.
func (r *Recorder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending
}

// Totals returns cumulative counters for status reporting.
func (r *Recorder) Totals() Totals {
	return Totals{
		Bars:        r.totalBars.Load(),
		Quotes:      r.totalQuotes.Load(),
		Trades:      r.totalTrades.Load(),
		Pending:     r.Pending(),
		OpenStreams: r.engine.StreamCount(),
		LastFlush:   r.lastFlush.Load(),
	}
}

// Flush drains the bar and quote buffers into the store and flushes the
// open tape streams. All destinations are attempted; the first error is
// returned after the pass completes.
func (r *Recorder) Flush() error {
	r.mu.Lock()
	bars := r.bars
	quotes := r.quotes
	r.bars = make(map[barKey][]store.Fields)
	r.quotes = make(map[string][]store.JournalEntry)
	r.pending = 0
	streams := make([]*store.Stream, 0, len(r.streams))
	for _, s := range r.streams {
		streams = append(streams, s)
	}
	r.mu.Unlock()

	var firstErr error

	for k, rows := range bars {
		path := TablePath(r.dataDir, k.exchange, k.symbol, k.resolution)
		start := time.Now()
		err := r.engine.UpsertTable(path, market.CandleHeader, rows, func(f store.Fields) string {
			return f["t"]
		})
		r.m.RecordUpsert("table", err == nil, time.Since(start))
		if err != nil {
			r.log.WithError(err).WithField("path", path).Error("Bar flush failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		r.log.WithFields(logrus.Fields{
			"path": path,
			"rows": len(rows),
		}).Debug("Flushed bars")
	}

	for exchange, entries := range quotes {
		path := JournalPath(r.dataDir, exchange)
		start := time.Now()
		ops, err := r.engine.UpsertJournal(path, entries)
		r.m.RecordUpsert("journal", err == nil, time.Since(start))
		if err != nil {
			r.log.WithError(err).WithField("path", path).Error("Quote flush failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		inserts, updates := 0, 0
		for _, op := range ops {
			switch op {
			case store.JournalInsert:
				inserts++
			case store.JournalUpdate:
				updates++
			}
		}
		r.log.WithFields(logrus.Fields{
			"path":      path,
			"entries":   len(entries),
			"inserts":   inserts,
			"updates":   updates,
			"unchanged": len(entries) - inserts - updates,
		}).Debug("Flushed quotes")
	}

	for _, s := range streams {
		if err := s.Flush(); err != nil && !errors.Is(err, store.ErrStreamClosed) {
			r.log.WithError(err).WithField("path", s.Path()).Error("Tape flush failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	r.m.UpdateBufferedRecords(0)
	r.lastFlush.Store(time.Now().Unix())
	return firstErr
}

// Run consumes records until the channel closes or the context ends,
// flushing on the configured interval and whenever the buffers reach
// the pending cap. A final flush runs before returning.
func (r *Recorder) Run(ctx context.Context, in <-chan market.Record) error {
	interval := time.Duration(r.cfg.FlushInterval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	maxPending := r.cfg.MaxPending
	if maxPending <= 0 {
		maxPending = 500
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.log.WithFields(logrus.Fields{
		"flush_interval": interval.String(),
		"max_pending":    maxPending,
	}).Info("Recorder started")

	for {
		select {
		case rec, ok := <-in:
			if !ok {
				r.log.Info("Record channel closed, draining buffers")
				return r.Flush()
			}
			r.Record(rec)
			if r.Pending() >= maxPending {
				if err := r.Flush(); err != nil {
					r.log.WithError(err).Error("Flush failed")
				}
			}

		case <-ticker.C:
			if err := r.Flush(); err != nil {
				r.log.WithError(err).Error("Flush failed")
			}

		case <-ctx.Done():
			r.log.Info("Recorder stopping, draining buffers")
			// Take whatever the producer already buffered before the
			// final flush; anything still in flight is dropped.
			for {
				select {
				case rec, ok := <-in:
					if !ok {
						return r.Flush()
					}
					r.Record(rec)
				default:
					return r.Flush()
				}
			}
		}
	}
}
