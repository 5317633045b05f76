package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/okian/classvoice/pkg/logger"
)

// StaleCloser ends sessions that were never closed, e.g. after a crash.
type StaleCloser interface {
	CloseStaleSessions(ctx context.Context, olderThan time.Duration, live []string) (int, error)
}

// Sweeper runs CloseStaleSessions on a cron schedule.
type Sweeper struct {
	cron    *cron.Cron
	store   StaleCloser
	after   time.Duration
	timeout time.Duration
	live    func() []string
	log     logger.Logger
}

// NewSweeper schedules the sweep. schedule accepts standard five-field cron
// expressions and descriptors such as "@every 10m".
func NewSweeper(store StaleCloser, schedule string, after time.Duration, opts ...SweeperOption) (*Sweeper, error) {
	s := &Sweeper{
		cron:    cron.New(),
		store:   store,
		after:   after,
		timeout: 30 * time.Second,
		log:     logger.Get().Named("sweeper"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidSchedule, schedule, err)
	}
	return s, nil
}

// Start starts the scheduler in its own goroutine.
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop stops scheduling and waits for a running sweep or ctx.
func (s *Sweeper) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sweep closes stale sessions once. Sessions reported live are kept.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	var live []string
	if s.live != nil {
		live = s.live()
	}
	return s.store.CloseStaleSessions(ctx, s.after, live)
}

func (s *Sweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := s.Sweep(ctx); err != nil {
		s.log.Error(ctx, "stale session sweep failed", logger.Error(err))
	}
}
