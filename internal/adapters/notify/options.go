package notify

import (
	"time"

	"github.com/okian/classvoice/pkg/logger"
)

// Option configures a Fanout.
type Option func(*Fanout)

// WithNotifyTimeout bounds each sink call.
func WithNotifyTimeout(d time.Duration) Option {
	return func(f *Fanout) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(f *Fanout) {
		if l != nil {
			f.log = l
		}
	}
}

// SlackOption configures a SlackSink.
type SlackOption func(*SlackSink)

// WithClock replaces time.Now for cooldown tracking.
func WithClock(now func() time.Time) SlackOption {
	return func(s *SlackSink) {
		if now != nil {
			s.now = now
		}
	}
}
