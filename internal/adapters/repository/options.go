package repository

import (
	"time"

	"github.com/okian/classvoice/pkg/logger"
)

// Option applies a configuration option to the SQLiteStore.
type Option func(*SQLiteStore)

// WithClock replaces time.Now for defaulted timestamps and stale checks.
func WithClock(now func() time.Time) Option {
	return func(s *SQLiteStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator replaces the row ID generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *SQLiteStore) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *SQLiteStore) {
		if l != nil {
			s.log = l
		}
	}
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithSweeperLogger sets the sweeper logger.
func WithSweeperLogger(l logger.Logger) SweeperOption {
	return func(s *Sweeper) {
		if l != nil {
			s.log = l
		}
	}
}

// WithSweepTimeout bounds a single sweep run.
func WithSweepTimeout(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLiveSessions names the sessions a sweep must leave open, typically
// those of currently mounted interfaces.
func WithLiveSessions(fn func() []string) SweeperOption {
	return func(s *Sweeper) {
		s.live = fn
	}
}
