// Package capture drives a headless browser to the target page and
// turns the market data flowing over its network connections into
// typed records.
package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tickvault/tickvault/internal/config"
	"github.com/tickvault/tickvault/internal/market"
	"github.com/tickvault/tickvault/internal/metrics"
)

// Session is one browser visit to the target page. It owns the browser
// lifecycle and emits decoded records on a buffered channel.
type Session struct {
	ID  string
	cfg config.CaptureConfig
	log *logrus.Entry
	m   metrics.Manager

	out   chan market.Record
	stats *Stats
	wg    sync.WaitGroup

	mu        sync.Mutex
	wsTracked map[network.RequestID]bool
	pending   map[network.RequestID]string
}

// NewSession creates a capture session. Records() delivers the decoded
// records; the channel buffer absorbs bursts while the consumer writes.
func NewSession(cfg config.CaptureConfig, logger *logrus.Entry, m metrics.Manager) *Session {
	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	return &Session{
		ID:        uuid.NewString(),
		cfg:       cfg,
		log:       logger,
		m:         m,
		out:       make(chan market.Record, bufferSize),
		stats:     &Stats{},
		wsTracked: make(map[network.RequestID]bool),
		pending:   make(map[network.RequestID]string),
	}
}

// Records returns the channel of captured records. It closes when the
// session ends.
func (s *Session) Records() <-chan market.Record {
	return s.out
}

// Stats returns a snapshot of the capture counters.
func (s *Session) Stats() Snapshot {
	return s.stats.Snapshot()
}

// Run starts the browser, navigates to the target page, and captures
// traffic until the context is cancelled or the browser exits. The
// records channel is closed on return.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.out)
	defer s.wg.Wait()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", s.cfg.Headless),
	)
	if s.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(s.cfg.UserAgent))
	}
	if s.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(s.cfg.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	chromedp.ListenTarget(browserCtx, func(ev interface{}) {
		s.handleEvent(browserCtx, ev)
	})

	s.log.WithFields(logrus.Fields{
		"session_id": s.ID,
		"url":        s.cfg.TargetURL,
		"headless":   s.cfg.Headless,
	}).Info("Starting capture session")

	navTimeout := time.Duration(s.cfg.NavTimeout) * time.Second
	if navTimeout <= 0 {
		navTimeout = 30 * time.Second
	}
	navCtx, navCancel := context.WithTimeout(browserCtx, navTimeout)
	defer navCancel()

	if err := chromedp.Run(navCtx, network.Enable(), chromedp.Navigate(s.cfg.TargetURL)); err != nil {
		return fmt.Errorf("navigate to %s: %w", s.cfg.TargetURL, err)
	}

	s.log.WithField("session_id", s.ID).Info("Page loaded, capturing traffic")

	<-browserCtx.Done()
	if ctx.Err() != nil {
		s.log.WithField("session_id", s.ID).Info("Capture session stopping")
		return nil
	}
	return errors.New("browser exited unexpectedly")
}

// handleEvent dispatches CDP events. It must never block: decoded
// records go to the buffered output channel and are dropped when the
// consumer falls behind.
func (s *Session) handleEvent(browserCtx context.Context, ev interface{}) {
	switch e := ev.(type) {
	case *network.EventWebSocketCreated:
		if s.cfg.WebsocketPattern != "" && !strings.Contains(e.URL, s.cfg.WebsocketPattern) {
			return
		}
		s.mu.Lock()
		s.wsTracked[e.RequestID] = true
		s.mu.Unlock()
		s.log.WithField("url", e.URL).Debug("Tracking websocket")

	case *network.EventWebSocketClosed:
		s.mu.Lock()
		delete(s.wsTracked, e.RequestID)
		s.mu.Unlock()

	case *network.EventWebSocketFrameReceived:
		s.mu.Lock()
		tracked := s.wsTracked[e.RequestID]
		s.mu.Unlock()
		if !tracked {
			return
		}
		s.handleFrame(e.Response.PayloadData)

	case *network.EventResponseReceived:
		respURL := e.Response.URL
		if !s.matchesHistory(respURL) {
			return
		}
		s.mu.Lock()
		s.pending[e.RequestID] = respURL
		s.mu.Unlock()

	case *network.EventLoadingFinished:
		s.mu.Lock()
		respURL, ok := s.pending[e.RequestID]
		if ok {
			delete(s.pending, e.RequestID)
		}
		s.mu.Unlock()
		if !ok {
			return
		}
		// The body fetch issues CDP commands and must not run inside
		// the listener callback.
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.fetchHistory(browserCtx, e.RequestID, respURL)
		}()
	}
}

func (s *Session) matchesHistory(respURL string) bool {
	for _, p := range s.cfg.HistoryPatterns {
		if p != "" && strings.Contains(respURL, p) {
			return true
		}
	}
	return false
}

// handleFrame splits and decodes one websocket payload.
func (s *Session) handleFrame(payload string) {
	s.stats.frames.Add(1)
	s.m.RecordFrame()

	for _, chunk := range splitFrames(payload) {
		if isKeepalive(chunk) {
			s.stats.keepalives.Add(1)
			continue
		}
		rec, err := decodeChunk(chunk)
		if err != nil {
			s.stats.decodeErrors.Add(1)
			s.m.RecordDecodeError()
			s.log.WithError(err).Debug("Undecodable chunk")
			continue
		}
		if rec == nil {
			s.stats.skipped.Add(1)
			continue
		}
		s.emit(rec)
	}
}

// emit forwards a record without blocking the CDP event callback.
func (s *Session) emit(rec market.Record) {
	select {
	case s.out <- rec:
		switch rec.Kind() {
		case market.KindBar:
			s.stats.bars.Add(1)
		case market.KindQuote:
			s.stats.quotes.Add(1)
		case market.KindTrade:
			s.stats.trades.Add(1)
		}
		s.m.RecordDecodedRecord(rec.Kind())
	default:
		s.stats.dropped.Add(1)
		s.m.RecordDroppedRecord()
	}
}

// fetchHistory pulls a finished response body and decodes it.
func (s *Session) fetchHistory(browserCtx context.Context, id network.RequestID, rawURL string) {
	c := chromedp.FromContext(browserCtx)
	if c == nil {
		return
	}
	execCtx := cdp.WithExecutor(browserCtx, c.Target)

	body, err := network.GetResponseBody(id).Do(execCtx)
	if err != nil {
		s.log.WithError(err).WithField("url", rawURL).Debug("History body fetch failed")
		return
	}
	s.stats.histories.Add(1)

	candles, err := DecodeHistory(rawURL, body)
	if err != nil {
		s.stats.decodeErrors.Add(1)
		s.m.RecordDecodeError()
		s.log.WithError(err).WithField("url", rawURL).Debug("History decode failed")
		return
	}
	for _, candle := range candles {
		s.emit(candle)
	}
	if len(candles) > 0 {
		s.log.WithFields(logrus.Fields{
			"url":     rawURL,
			"candles": len(candles),
		}).Debug("History response captured")
	}
}
