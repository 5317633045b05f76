package audio

import (
	"time"

	"github.com/okian/classvoice/pkg/logger"
)

// Option applies a configuration option to the Bridge.
type Option func(*Bridge)

// WithTimeslice sets how often the recorder delivers a chunk.
func WithTimeslice(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.timeslice = d
		}
	}
}

// WithAcquireTimeout bounds microphone acquisition. Zero disables the bound.
func WithAcquireTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		if d >= 0 {
			b.acquireTimeout = d
		}
	}
}

// WithTranscribeTimeout bounds the finalize and transcribe sequence. Zero
// disables the bound.
func WithTranscribeTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		if d >= 0 {
			b.transcribeTimeout = d
		}
	}
}

// WithPreferredMIMETypes overrides the encoding preference list.
func WithPreferredMIMETypes(types []string) Option {
	return func(b *Bridge) {
		if len(types) > 0 {
			b.preferred = types
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.log = l
		}
	}
}
