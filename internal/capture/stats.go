package capture

import "sync/atomic"

// Stats tracks capture counters. Safe for concurrent use.
type Stats struct {
	frames       atomic.Int64
	keepalives   atomic.Int64
	bars         atomic.Int64
	quotes       atomic.Int64
	trades       atomic.Int64
	skipped      atomic.Int64
	decodeErrors atomic.Int64
	dropped      atomic.Int64
	histories    atomic.Int64
}

// Snapshot is a point-in-time copy of the capture counters.
type Snapshot struct {
	Frames       int64 `json:"frames"`
	Keepalives   int64 `json:"keepalives"`
	Bars         int64 `json:"bars"`
	Quotes       int64 `json:"quotes"`
	Trades       int64 `json:"trades"`
	Skipped      int64 `json:"skipped"`
	DecodeErrors int64 `json:"decode_errors"`
	Dropped      int64 `json:"dropped"`
	Histories    int64 `json:"history_responses"`
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Frames:       s.frames.Load(),
		Keepalives:   s.keepalives.Load(),
		Bars:         s.bars.Load(),
		Quotes:       s.quotes.Load(),
		Trades:       s.trades.Load(),
		Skipped:      s.skipped.Load(),
		DecodeErrors: s.decodeErrors.Load(),
		Dropped:      s.dropped.Load(),
		Histories:    s.histories.Load(),
	}
}
