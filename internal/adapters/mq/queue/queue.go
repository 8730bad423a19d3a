// Package queue carries directory change events from the store listeners
// to the cache invalidation consumer.
//
// The queue is bounded and never blocks producers: when it is full the
// event is dropped and counted. A dropped event only costs a cache miss
// later, because consumers treat overflow as "flush everything".
package queue

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/okian/talentsync/internal/domain/model"
	"github.com/okian/talentsync/pkg/metrics"
)

const defaultQueueCapacity = 1024

// Event is the payload flowing through the queue.
type Event = model.ChangeEvent

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds an event to the queue.
	// Returns false if the queue is full or closed and the event was dropped.
	Enqueue(ctx context.Context, e Event) bool

	// Dequeue returns a channel that receives events as they become available.
	// The channel is closed when the queue is closed or ctx is done.
	Dequeue(ctx context.Context) <-chan Event

	// Len returns the current number of queued events.
	Len(ctx context.Context) int

	// Close stops accepting events; queued events can still be drained.
	Close() error

	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	events   chan Event
	capacity int

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultQueueCapacity,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.events = make(chan Event, q.capacity)
	metrics.UpdateChangeQueueSize(0)
	return q
}

// Enqueue adds an event to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, e Event) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordErrorByComponent("queue", "closed")
		return false
	}

	select {
	case q.events <- e:
		metrics.UpdateChangeQueueSize(len(q.events))
		return true
	case <-ctx.Done():
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return false
	default:
		q.dropped.Add(1)
		metrics.RecordChangeQueueDrop()
		return false
	}
}

// Publish enqueues e without a deadline. Its signature matches the store
// notifier hook.
func (q *InMemoryQueue) Publish(e Event) {
	q.Enqueue(context.Background(), e)
}

// Dequeue returns a channel that receives events as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		for {
			select {
			case event, ok := <-q.events:
				if !ok {
					return
				}
				metrics.UpdateChangeQueueSize(len(q.events))
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the current number of queued events.
func (q *InMemoryQueue) Len(context.Context) int {
	size := len(q.events)
	metrics.UpdateChangeQueueSize(size)
	return size
}

// Dropped returns how many events were rejected because the queue was full.
func (q *InMemoryQueue) Dropped() uint64 {
	return q.dropped.Load()
}

// Close stops the queue. Calling it twice is a no-op.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.events)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
