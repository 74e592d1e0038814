package transcript

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type batch struct {
	sessionID string
	entries   []Entry
}

// Recorder persists entries on a single background goroutine so the
// session never waits on storage.
type Recorder struct {
	store   Store
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.Mutex
	queue  chan batch
	closed bool
	done   chan struct{}
}

// NewRecorder starts a recorder with a bounded queue.
func NewRecorder(store Store, size int, timeout time.Duration, logger *slog.Logger) *Recorder {
	if size <= 0 {
		size = 64
	}
	if timeout <= 0 {
		timeout = 800 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := &Recorder{
		store:   store,
		timeout: timeout,
		logger:  logger,
		queue:   make(chan batch, size),
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

// Record queues entries. It returns false when the queue is full or the
// recorder is closed.
func (r *Recorder) Record(sessionID string, entries []Entry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false
	}
	select {
	case r.queue <- batch{sessionID: sessionID, entries: entries}:
		return true
	default:
		r.logger.Warn("Transcript queue full, dropping entries",
			slog.String("session_id", sessionID),
			slog.Int("entries", len(entries)),
		)
		return false
	}
}

func (r *Recorder) run() {
	defer close(r.done)

	for b := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		if err := r.store.Append(ctx, b.sessionID, b.entries); err != nil {
			r.logger.Error("Failed to persist transcript",
				slog.String("session_id", b.sessionID),
				slog.String("error", err.Error()),
			)
		}
		cancel()
	}
}

// Close drains the queue and closes the store.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	<-r.done
	return r.store.Close()
}
