// Package queue buffers reconciliation triggers between producers (the
// scheduler and the form webhook) and the worker.
package queue

import (
	"context"
	"sync"

	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 64
)

// Rejection reasons reported to metrics.
const (
	reasonClosed    = "closed"
	reasonFull      = "full"
	reasonCancelled = "context_cancelled"
)

// Trigger is the payload type flowing through the queue.
type Trigger = model.Trigger

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a trigger to the queue.
	// Returns false if the queue is full or closed.
	Enqueue(ctx context.Context, t Trigger) bool

	// Dequeue returns a channel that receives triggers as they become
	// available. The channel is closed when the queue is closed.
	Dequeue(ctx context.Context) <-chan Trigger

	// Len returns the current number of pending triggers.
	Len(ctx context.Context) int

	// Close stops accepting triggers and closes the dequeue channel once
	// drained.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	triggers chan Trigger
	capacity int
	coalesce bool

	mu     sync.RWMutex
	closed bool
}

var _ Queue = (*InMemoryQueue)(nil)

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.triggers = make(chan Trigger, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)

	return q
}

// Enqueue adds a trigger to the queue. With coalescing enabled a trigger
// that arrives while another is still pending is accepted without being
// queued: the pending run starts later and will see the same data.
func (q *InMemoryQueue) Enqueue(ctx context.Context, t Trigger) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueRejected(reasonClosed)
		return false
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueRejected(reasonCancelled)
		return false
	}
	if q.coalesce && len(q.triggers) > 0 {
		metrics.RecordTrigger(t.Source)
		return true
	}

	select {
	case q.triggers <- t:
		metrics.RecordTrigger(t.Source)
		metrics.UpdateQueueSize(len(q.triggers))
		return true
	default:
		metrics.RecordQueueRejected(reasonFull)
		return false
	}
}

// Dequeue returns a channel that will receive triggers as they become
// available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Trigger {
	out := make(chan Trigger)
	go func() {
		defer close(out)
		for t := range q.triggers {
			select {
			case out <- t:
				metrics.RecordQueueDequeue()
				metrics.UpdateQueueSize(len(q.triggers))
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the current number of pending triggers.
func (q *InMemoryQueue) Len(_ context.Context) int {
	size := len(q.triggers)
	metrics.UpdateQueueSize(size)
	return size
}

// Capacity returns the maximum number of pending triggers.
func (q *InMemoryQueue) Capacity() int { return q.capacity }

// Close gracefully shuts down the queue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.triggers)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
