package notify

import (
	"context"
	"sync"
	"sync/atomic"
)

// DefaultQueueSize is used when NewQueue is given a non-positive size.
const DefaultQueueSize = 256

// Queue moves notifications off the publishing goroutine. Enqueue never
// blocks: when the buffer is full the notification is dropped and counted.
// EnqueueWait blocks instead and is meant for bulk replays that must not
// lose entries. Run delivers the buffered notifications, in order, to a
// single handler; a panicking handler is recovered and logged.
//
// Sinks doing network or disk I/O attach through a Queue so the stream
// receive loop is not held up by a slow broker or database.
type Queue struct {
	ch      chan Notification
	handler Handler
	mu      sync.RWMutex
	logger  Logger
	dropped atomic.Uint64
}

// NewQueue creates a queue that feeds handler.
func NewQueue(size int, handler Handler) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{ch: make(chan Notification, size), handler: handler, logger: noopLogger{}}
}

// SetLogger sets the logger used to report recovered handler panics.
func (q *Queue) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	q.mu.Lock()
	q.logger = logger
	q.mu.Unlock()
}

// Enqueue buffers n. It reports false if the queue was full.
func (q *Queue) Enqueue(n Notification) bool {
	select {
	case q.ch <- n:
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// EnqueueWait buffers n, waiting for room until ctx is done. Nothing is
// dropped; the error is ctx.Err() when the wait was abandoned.
func (q *Queue) EnqueueWait(ctx context.Context, n Notification) error {
	select {
	case q.ch <- n:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Attach subscribes the queue to every notification on bus.
func (q *Queue) Attach(bus *Bus) Subscription {
	return bus.SubscribeAll(func(n Notification) { q.Enqueue(n) })
}

// Run calls the handler for each queued notification until ctx is done.
// Notifications still buffered at cancellation are discarded.
func (q *Queue) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-q.ch:
			q.deliver(n)
		}
	}
}

func (q *Queue) deliver(n Notification) {
	defer func() {
		if r := recover(); r != nil {
			q.mu.RLock()
			logger := q.logger
			q.mu.RUnlock()
			logger.Error("queued notification handler panic recovered",
				"kind", n.Kind,
				"entity_id", n.ID,
				"panic", r,
			)
		}
	}()
	q.handler(n)
}

// Pending returns the number of buffered notifications.
func (q *Queue) Pending() int {
	return len(q.ch)
}

// Dropped returns how many notifications were discarded because the
// buffer was full.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}
