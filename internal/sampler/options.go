package sampler

import (
	"time"

	"github.com/okian/classvoice/internal/device"
	"github.com/okian/classvoice/pkg/logger"
)

// Option applies a configuration option to the Sampler.
type Option func(*Sampler)

// WithInterval sets the sampling cadence.
func WithInterval(d time.Duration) Option {
	return func(s *Sampler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithWarmup sets the delay between camera acquisition and the first tick.
func WithWarmup(d time.Duration) Option {
	return func(s *Sampler) {
		if d >= 0 {
			s.warmup = d
		}
	}
}

// WithAcquireTimeout bounds camera acquisition. Zero disables the bound.
func WithAcquireTimeout(d time.Duration) Option {
	return func(s *Sampler) {
		if d >= 0 {
			s.acquireTimeout = d
		}
	}
}

// WithDetectTimeout bounds one frame grab plus inference. Zero disables the bound.
func WithDetectTimeout(d time.Duration) Option {
	return func(s *Sampler) {
		if d >= 0 {
			s.detectTimeout = d
		}
	}
}

// WithConstraints overrides the requested video constraints.
func WithConstraints(c device.VideoConstraints) Option {
	return func(s *Sampler) {
		s.constraints = c
	}
}

// WithClock replaces time.Now for emitted timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Sampler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Sampler) {
		if l != nil {
			s.log = l
		}
	}
}
