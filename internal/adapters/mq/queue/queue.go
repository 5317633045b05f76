// Package queue provides a bounded, non-blocking in-memory queue.
package queue

import (
	"context"
	"sync"

	"github.com/okian/classvoice/pkg/metrics"
)

const defaultCapacity = 64

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue[T any] interface {
	// Enqueue adds an item to the queue.
	// Returns false if the queue is full or closed and the item was dropped.
	Enqueue(ctx context.Context, item T) bool

	// Dequeue returns a channel that receives items in enqueue order.
	// The channel is closed once the queue is closed and drained.
	Dequeue(ctx context.Context) <-chan T

	// Len returns the current number of queued items.
	Len() int

	// Close stops accepting items. Items already queued are still delivered.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue[T any] struct {
	items    chan T
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue[T any](opts ...Option) *InMemoryQueue[T] {
	s := settings{capacity: defaultCapacity}
	for _, opt := range opts {
		opt(&s)
	}

	metrics.UpdateQueueCapacity(s.capacity)
	return &InMemoryQueue[T]{
		items:    make(chan T, s.capacity),
		capacity: s.capacity,
	}
}

// Enqueue adds an item without blocking.
func (q *InMemoryQueue[T]) Enqueue(ctx context.Context, item T) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed || ctx.Err() != nil {
		return false
	}

	select {
	case q.items <- item:
		metrics.AddQueueSize(1)
		return true
	default:
		return false
	}
}

// Dequeue forwards queued items until the queue is closed and drained or
// ctx is cancelled. Call it once per consumer.
func (q *InMemoryQueue[T]) Dequeue(ctx context.Context) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		for {
			var item T
			select {
			case <-ctx.Done():
				return
			case next, ok := <-q.items:
				if !ok {
					return
				}
				metrics.AddQueueSize(-1)
				item = next
			}
			select {
			case out <- item:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the current number of queued items.
func (q *InMemoryQueue[T]) Len() int {
	return len(q.items)
}

// Capacity returns the configured bound.
func (q *InMemoryQueue[T]) Capacity() int {
	return q.capacity
}

// Close stops accepting items. It is idempotent.
func (q *InMemoryQueue[T]) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.items)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue[T]) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
