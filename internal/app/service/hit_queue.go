package service

import (
	"errors"
	"sync"

	"github.com/sifan077/clicktrail/internal/app/model"
	"go.uber.org/zap"
)

var (
	// ErrHitQueueFull is returned by HitQueue.Notify when the buffer is full.
	ErrHitQueueFull = errors.New("hit queue full")
	// ErrHitQueueClosed is returned by HitQueue.Notify after Stop.
	ErrHitQueueClosed = errors.New("hit queue closed")
)

const defaultHitQueueSize = 1024

// HitQueue buffers hit notices and forwards them to next from a single
// worker, keeping stream latency off the redirect path. Notices arriving
// while the buffer is full are dropped.
type HitQueue struct {
	next    HitNotifier
	logger  *zap.Logger
	notices chan model.HitNotice
	done    chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewHitQueue creates a queue of the given capacity in front of next.
func NewHitQueue(next HitNotifier, size int, logger *zap.Logger) *HitQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	if size <= 0 {
		size = defaultHitQueueSize
	}
	return &HitQueue{
		next:    next,
		logger:  logger,
		notices: make(chan model.HitNotice, size),
		done:    make(chan struct{}),
	}
}

// Start launches the forwarding worker.
func (q *HitQueue) Start() {
	go q.run()
}

// Stop refuses new notices, forwards the buffered ones and waits for the
// worker to exit. Start must have been called.
func (q *HitQueue) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.notices)
	q.mu.Unlock()

	<-q.done
}

// Notify enqueues notice without blocking.
func (q *HitQueue) Notify(notice model.HitNotice) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrHitQueueClosed
	}

	select {
	case q.notices <- notice:
		return nil
	default:
		return ErrHitQueueFull
	}
}

func (q *HitQueue) run() {
	defer close(q.done)

	for notice := range q.notices {
		if err := q.next.Notify(notice); err != nil {
			q.logger.Error("failed to forward hit notice",
				zap.Error(err),
				zap.String("token", notice.Token),
			)
		}
	}
	q.logger.Info("hit queue stopped")
}
