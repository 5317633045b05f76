package worker

import (
	"context"
	"fmt"

	"github.com/okian/classvoice/pkg/logger"
)

// Handler processes one item. Returned errors are logged, never retried.
type Handler[T any] func(ctx context.Context, item T) error

// Source is where a worker reads items from.
type Source[T any] interface {
	Dequeue(ctx context.Context) <-chan T
}

// Worker processes items one at a time so handling order equals queue order.
type Worker[T any] struct {
	source Source[T]
	handle Handler[T]
	name   string

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// New creates a worker. Call Run to start it.
func New[T any](source Source[T], handle Handler[T], opts ...Option) *Worker[T] {
	s := settings{name: "worker"}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named(s.name)
	}
	return &Worker[T]{
		source:   source,
		handle:   handle,
		name:     s.name,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   s.logger,
	}
}

// Run consumes until the source channel closes, ctx is cancelled or
// Shutdown gives up waiting.
func (w *Worker[T]) Run(ctx context.Context) {
	defer close(w.done)

	items := w.source.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case item, ok := <-items:
			if !ok || w.stopped(ctx) {
				return
			}
			if err := w.process(ctx, item); err != nil {
				w.logger.Error(ctx, "error processing item", logger.Error(err))
			}
		}
	}
}

// stopped reports a stop request that raced with an item arriving.
func (w *Worker[T]) stopped(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	select {
	case <-w.shutdown:
		return true
	default:
		return false
	}
}

func (w *Worker[T]) process(ctx context.Context, item T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: handler panic: %v", w.name, r)
		}
	}()
	return w.handle(ctx, item)
}

// Done is closed when Run returns.
func (w *Worker[T]) Done() <-chan struct{} { return w.done }

// Shutdown waits for Run to drain a closed source. If ctx expires first the
// worker is told to stop after its current item and ctx.Err is returned.
func (w *Worker[T]) Shutdown(ctx context.Context) error {
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		select {
		case <-w.shutdown:
		default:
			close(w.shutdown)
		}
		return fmt.Errorf("%s: shutdown: %w", w.name, ctx.Err())
	}
}
