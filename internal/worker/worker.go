package worker

import (
	"context"
	"sync"
	"time"

	"metaphorspace/internal/likes"
	"metaphorspace/internal/metrics"
	"metaphorspace/internal/store"

	"go.uber.org/zap"
)

const (
	DefaultMaxAttempts = 3
	DefaultBackoff     = 200 * time.Millisecond

	shutdownWriteTimeout = 5 * time.Second
)

// Worker persists liked-set snapshots in the background. Only the newest
// pending snapshot is kept: a write that has not started yet is replaced by
// any later Submit.
type Worker struct {
	prefs       store.Preferences
	logger      *zap.Logger
	maxAttempts int
	backoff     time.Duration

	mu         sync.Mutex
	pending    likes.Set
	hasPending bool
	submitted  uint64
	attempted  uint64
	progress   chan struct{}
	wake       chan struct{}
}

type Option func(*Worker)

// WithRetry sets how many times a write is tried and the base delay between
// tries. The delay grows linearly with the attempt number.
func WithRetry(maxAttempts int, backoff time.Duration) Option {
	return func(w *Worker) {
		if maxAttempts > 0 {
			w.maxAttempts = maxAttempts
		}
		if backoff >= 0 {
			w.backoff = backoff
		}
	}
}

// NewWorker initializes the worker for the given preference store
func NewWorker(prefs store.Preferences, logger *zap.Logger, opts ...Option) *Worker {
	w := &Worker{
		prefs:       prefs,
		logger:      logger,
		maxAttempts: DefaultMaxAttempts,
		backoff:     DefaultBackoff,
		progress:    make(chan struct{}),
		wake:        make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Submit queues a snapshot for writing and returns immediately.
func (w *Worker) Submit(set likes.Set) {
	w.mu.Lock()
	w.pending = likes.Set(set.IDs())
	w.hasPending = true
	w.submitted++
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Start runs the worker loop until ctx is cancelled. A snapshot still pending
// at shutdown gets one last write attempt.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Persistence worker started")

	for {
		select {
		case <-ctx.Done():
			w.drain()
			w.logger.Info("Persistence worker shutting down")
			return
		case <-w.wake:
			w.processPending(ctx)
		}
	}
}

func (w *Worker) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownWriteTimeout)
	defer cancel()
	w.processPending(ctx)
}

func (w *Worker) processPending(ctx context.Context) {
	for {
		w.mu.Lock()
		if !w.hasPending {
			w.mu.Unlock()
			return
		}
		snap, seq := w.pending, w.submitted
		w.hasPending = false
		w.mu.Unlock()

		w.write(ctx, snap, seq)
	}
}

func (w *Worker) write(ctx context.Context, snap likes.Set, seq uint64) {
	logger := w.logger.With(zap.Uint64("seq", seq), zap.Int("liked", len(snap)))
	defer w.markAttempted(seq)

	var err error
	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		if err = likes.Save(ctx, w.prefs, snap); err == nil {
			logger.Debug("Liked set persisted", zap.Int("attempt", attempt))
			return
		}
		logger.Warn("Liked set write failed", zap.Int("attempt", attempt), zap.Error(err))

		if w.superseded() {
			logger.Info("Dropping write, newer snapshot pending")
			return
		}
		if attempt == w.maxAttempts {
			break
		}

		t := time.NewTimer(w.backoff * time.Duration(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			logger.Error("Giving up on liked set write", zap.Error(ctx.Err()))
			metrics.PersistFailed()
			return
		case <-t.C:
		}
	}

	logger.Error("Giving up on liked set write", zap.Error(err))
	metrics.PersistFailed()
}

func (w *Worker) superseded() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.hasPending
}

func (w *Worker) markAttempted(seq uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if seq > w.attempted {
		w.attempted = seq
	}
	close(w.progress)
	w.progress = make(chan struct{})
}

// Flush blocks until every snapshot submitted before the call has been
// written or given up on, or until ctx is done.
func (w *Worker) Flush(ctx context.Context) error {
	w.mu.Lock()
	target := w.submitted
	w.mu.Unlock()

	for {
		w.mu.Lock()
		if w.attempted >= target {
			w.mu.Unlock()
			return nil
		}
		ch := w.progress
		w.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
