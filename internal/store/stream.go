package store

import (
	"bufio"
	"os"
	"sync"
)

// Stream is a long-lived append handle for one destination path, used
// for continuous non-upserting output. Lines go through a buffered
// writer; Close flushes, closes the file, and removes the stream from
// its registry.
type Stream struct {
	path string
	reg  *streamRegistry

	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	closed bool
}

// Path reports the destination path of the stream.
func (s *Stream) Path() string {
	return s.path
}

// Append buffers one line, adding the trailing newline.
func (s *Stream) Append(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStreamClosed
	}
	if _, err := s.writer.WriteString(line); err != nil {
		return NewErrorWithCause("WriteStream", "Failed to write stream line", err)
	}
	if err := s.writer.WriteByte('\n'); err != nil {
		return NewErrorWithCause("WriteStream", "Failed to write stream line", err)
	}
	return nil
}

// Flush pushes buffered lines to the file.
func (s *Stream) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStreamClosed
	}
	if err := s.writer.Flush(); err != nil {
		return NewErrorWithCause("FlushStream", "Failed to flush stream buffer", err)
	}
	return nil
}

// Close flushes remaining lines, closes the file, and unregisters the
// stream. Closing an already closed stream is a no-op.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	flushErr := s.writer.Flush()
	closeErr := s.file.Close()
	s.mu.Unlock()

	s.reg.remove(s.path, s)

	if flushErr != nil {
		return NewErrorWithCause("FlushStream", "Failed to flush stream buffer", flushErr)
	}
	if closeErr != nil {
		return NewErrorWithCause("CloseStream", "Failed to close stream file", closeErr)
	}
	return nil
}

func (s *Stream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// streamRegistry tracks the open stream per destination path. Streams
// remove themselves when closed; closeAll drains every remaining handle
// at shutdown.
type streamRegistry struct {
	mu      sync.Mutex
	streams map[string]*Stream
}

func newStreamRegistry() *streamRegistry {
	return &streamRegistry{
		streams: make(map[string]*Stream),
	}
}

// open returns the open stream for path, creating one when the path has
// none or its previous handle has been closed. The header line is
// written, and flushed, only when the file itself is newly created, so
// reopening an existing destination never repeats it.
func (r *streamRegistry) open(path, header string) (*Stream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.streams[path]; ok && !s.isClosed() {
		return s, nil
	}

	if err := ensureParent(path); err != nil {
		return nil, err
	}

	_, statErr := os.Stat(path)
	isNew := os.IsNotExist(statErr)
	if statErr != nil && !isNew {
		return nil, NewErrorWithCause("StatFile", "Failed to stat stream destination", statErr)
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, NewErrorWithCause("OpenStream", "Failed to open stream destination", err)
	}

	s := &Stream{
		path:   path,
		reg:    r,
		file:   file,
		writer: bufio.NewWriter(file),
	}

	if isNew && header != "" {
		if _, err := s.writer.WriteString(header + "\n"); err != nil {
			file.Close()
			return nil, NewErrorWithCause("WriteHeader", "Failed to write stream header", err)
		}
		// header hits the disk before the handle is handed out
		if err := s.writer.Flush(); err != nil {
			file.Close()
			return nil, NewErrorWithCause("WriteHeader", "Failed to write stream header", err)
		}
	}

	r.streams[path] = s
	return s, nil
}

// remove drops the registry entry for path if it still points at s.
func (r *streamRegistry) remove(path string, s *Stream) {
	r.mu.Lock()
	if r.streams[path] == s {
		delete(r.streams, path)
	}
	r.mu.Unlock()
}

// closeAll closes every open stream, waiting for each flush, and reports
// the first failure.
func (r *streamRegistry) closeAll() error {
	r.mu.Lock()
	open := make([]*Stream, 0, len(r.streams))
	for _, s := range r.streams {
		open = append(open, s)
	}
	r.mu.Unlock()

	var firstErr error
	for _, s := range open {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *streamRegistry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.streams)
}
