// Package store implements the upsert persistence layer: key-addressable
// record sets kept in plain-text files. Compacting tables (CSV) rewrite
// atomically and hold exactly one row per key; journals (JSONL) only
// append, with the last line per key authoritative; streams append
// continuously behind a one-time header. All mutations against the same
// destination path are serialized, different paths proceed concurrently.
package store

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// DefaultKeyFields is the ordered candidate list used to index journal
// lines when Options.KeyFields is empty.
var DefaultKeyFields = []string{"id", "symbol"}

// Options configures an Engine.
type Options struct {
	// KeyFields is the ordered list of JSON field names tried when
	// extracting a key from a journal line.
	KeyFields []string

	// Logger receives store diagnostics. Defaults to the standard
	// logger tagged with the store component.
	Logger *logrus.Entry
}

// Engine owns the two per-path registries (write-queue tails and open
// stream writers) and exposes the persistence operations. Create one per
// process and share it; the zero value is not usable.
type Engine struct {
	keyFields []string
	log       *logrus.Entry

	queue   *pathQueue
	streams *streamRegistry

	mu     sync.Mutex
	closed bool
}

// NewEngine creates an engine with empty registries.
func NewEngine(opts Options) *Engine {
	keyFields := opts.KeyFields
	if len(keyFields) == 0 {
		keyFields = DefaultKeyFields
	}
	log := opts.Logger
	if log == nil {
		log = logrus.WithField("component", "store")
	}
	return &Engine{
		keyFields: keyFields,
		log:       log,
		queue:     newPathQueue(),
		streams:   newStreamRegistry(),
	}
}

// UpsertTable merges rows into the compacting table at path. Each row
// wholly replaces the previous row stored under its key; keys keep the
// position they were first inserted at. The read-merge-rewrite runs in
// the path's queue slot and commits through an atomic replace, so a
// failed call leaves the previous file intact. Empty rows is a no-op
// that touches nothing.
func (e *Engine) UpsertTable(path string, header []string, rows []Fields, key KeyFunc) error {
	if len(rows) == 0 {
		return nil
	}

	return e.queue.do(path, func() error {
		if err := ensureParent(path); err != nil {
			return err
		}

		content, err := readFileIfPresent(path)
		if err != nil {
			return err
		}

		st := loadTable(content, header, key)
		skipped := 0
		for _, row := range rows {
			k := key(row)
			if k == "" {
				skipped++
				continue
			}
			st.upsert(k, row)
		}
		if skipped > 0 {
			e.log.WithFields(logrus.Fields{
				"path": path,
				"rows": skipped,
			}).Warn("Skipped table rows without a key")
		}

		e.log.WithFields(logrus.Fields{
			"path": path,
			"keys": st.len(),
			"rows": len(rows) - skipped,
		}).Debug("Rewriting table")

		return replaceFile(path, st.render(header))
	})
}

// UpsertJournal appends every entry's line to the journal at path and
// classifies each key against the journal's current state: a key never
// seen before maps to insert, a key whose latest line differs from the
// incoming one maps to update, and an unchanged key gets no map entry at
// all. Existing lines are never rewritten; the append is a single plain
// write, not an atomic replace. Empty entries is a no-op.
func (e *Engine) UpsertJournal(path string, entries []JournalEntry) (map[string]JournalOp, error) {
	ops := make(map[string]JournalOp)
	if len(entries) == 0 {
		return ops, nil
	}

	err := e.queue.do(path, func() error {
		if err := ensureParent(path); err != nil {
			return err
		}

		content, err := readFileIfPresent(path)
		if err != nil {
			return err
		}

		index := scanJournal(content, e.keyFields)
		lines := make([]string, 0, len(entries))
		for _, entry := range entries {
			lines = append(lines, entry.Line)
			if entry.Key == "" {
				continue
			}
			known, seen := index[entry.Key]
			switch {
			case !seen:
				ops[entry.Key] = JournalInsert
			case known != entry.Line:
				ops[entry.Key] = JournalUpdate
			}
			index[entry.Key] = entry.Line
		}

		e.log.WithFields(logrus.Fields{
			"path":    path,
			"entries": len(entries),
			"changed": len(ops),
		}).Debug("Appending journal entries")

		return appendFile(path, appendPayload(content, lines))
	})
	if err != nil {
		return nil, err
	}
	return ops, nil
}

// CompactJournal rewrites the journal at path keeping, in original
// order, every unkeyed line plus only the last occurrence of each key.
// Compaction is an explicit maintenance operation; nothing triggers it
// automatically. It runs in the path's queue slot and commits through an
// atomic replace, so it can interleave safely with live upserts. A
// missing or empty journal is a successful no-op.
func (e *Engine) CompactJournal(path string) (CompactStats, error) {
	var stats CompactStats

	err := e.queue.do(path, func() error {
		content, err := readFileIfPresent(path)
		if err != nil {
			return err
		}
		if len(content) == 0 {
			return nil
		}

		var compacted []byte
		compacted, stats = compactLines(content, e.keyFields)
		if stats.Removed == 0 {
			return nil
		}

		e.log.WithFields(logrus.Fields{
			"path":    path,
			"kept":    stats.Kept,
			"removed": stats.Removed,
		}).Info("Compacted journal")

		return replaceFile(path, compacted)
	})
	if err != nil {
		return CompactStats{}, err
	}
	return stats, nil
}

// OpenStream returns the stream writer for path, opening one if needed.
// Repeated calls for a still-open path return the same handle; a closed
// handle is transparently replaced. The header is written only when the
// file is newly created. Streams and upsert stores must not share a
// path.
func (e *Engine) OpenStream(path, header string) (*Stream, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrEngineClosed
	}
	e.mu.Unlock()

	return e.streams.open(path, header)
}

// StreamCount reports the number of currently open stream writers.
func (e *Engine) StreamCount() int {
	return e.streams.count()
}

// Close drains every open stream writer: each one is flushed, closed,
// and removed from the registry. Subsequent OpenStream calls fail;
// table and journal upserts are unaffected. Safe to call more than once.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	return e.streams.closeAll()
}
