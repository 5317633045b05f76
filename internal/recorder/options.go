package recorder

import (
	"time"

	"github.com/okian/classvoice/pkg/logger"
)

// Option applies a configuration option to the Recorder.
type Option func(*Recorder)

// WithActivity sets the source of the speaking/idle context tag.
func WithActivity(a ActivitySource) Option {
	return func(r *Recorder) {
		r.activity = a
	}
}

// WithStopper sets the sampler stopped on Close.
func WithStopper(s Stopper) Option {
	return func(r *Recorder) {
		r.stopper = s
	}
}

// WithQueueSize bounds the pending write queue.
func WithQueueSize(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.queueSize = n
		}
	}
}

// WithFlushTimeout bounds the drain on Close. Zero disables the bound.
func WithFlushTimeout(d time.Duration) Option {
	return func(r *Recorder) {
		if d >= 0 {
			r.flushTimeout = d
		}
	}
}

// WithIDGenerator replaces the event and message ID generator.
func WithIDGenerator(fn func() string) Option {
	return func(r *Recorder) {
		if fn != nil {
			r.newID = fn
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Recorder) {
		if l != nil {
			r.log = l
		}
	}
}
