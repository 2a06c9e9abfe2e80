package queue

// Option applies a configuration option to the InMemoryQueue.
type Option func(*InMemoryQueue)

// WithCapacity sets the maximum number of pending triggers.
func WithCapacity(capacity int) Option {
	return func(q *InMemoryQueue) {
		if capacity > 0 {
			q.capacity = capacity
		}
	}
}

// WithCoalescing makes Enqueue fold a trigger into one that is already
// pending instead of queuing a redundant run.
func WithCoalescing(on bool) Option {
	return func(q *InMemoryQueue) {
		q.coalesce = on
	}
}
