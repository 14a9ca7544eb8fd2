package store

import "sync"

// pathQueue serializes mutating operations per destination path. Each
// path maps to the completion channel of the operation currently at the
// tail of its chain; a new operation installs itself as the tail before
// waiting, so concurrent callers on the same path always chain in
// arrival order. The map entry is removed once the queue drains.
type pathQueue struct {
	mu    sync.Mutex
	tails map[string]chan struct{}
}

func newPathQueue() *pathQueue {
	return &pathQueue{
		tails: make(map[string]chan struct{}),
	}
}

// do runs op once every previously enqueued operation for path has
// finished, and returns op's result. The completion signal fires whether
// or not op failed (or panicked), so one failure never blocks later
// operations queued on the same path.
func (q *pathQueue) do(path string, op func() error) error {
	done := make(chan struct{})

	q.mu.Lock()
	prev := q.tails[path]
	q.tails[path] = done
	q.mu.Unlock()

	defer func() {
		close(done)
		q.mu.Lock()
		if q.tails[path] == done {
			delete(q.tails, path)
		}
		q.mu.Unlock()
	}()

	if prev != nil {
		<-prev
	}

	return op()
}

// idle reports whether no operation is pending or in flight for path.
func (q *pathQueue) idle(path string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, busy := q.tails[path]
	return !busy
}
