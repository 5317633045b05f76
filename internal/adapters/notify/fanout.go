// Package notify forwards stored emotion events to external observers:
// realtime subscribers over Redis pub/sub and staff alerts over Slack.
package notify

import (
	"context"
	"time"

	"github.com/okian/classvoice/internal/domain/model"
	"github.com/okian/classvoice/internal/recorder"
	"github.com/okian/classvoice/pkg/logger"
	"github.com/okian/classvoice/pkg/metrics"
)

const defaultNotifyTimeout = 2 * time.Second

// Sink receives every emotion event after it was stored.
type Sink interface {
	Name() string
	Notify(ctx context.Context, e model.EmotionEvent) error
}

// Fanout decorates a recorder store. Sink failures are logged and never
// fail the write.
type Fanout struct {
	recorder.Store
	sinks   []Sink
	timeout time.Duration
	log     logger.Logger
}

// NewFanout wraps store. Nil sinks are skipped.
func NewFanout(store recorder.Store, sinks []Sink, opts ...Option) *Fanout {
	f := &Fanout{
		Store:   store,
		timeout: defaultNotifyTimeout,
		log:     logger.Get().Named("notify"),
	}
	for _, opt := range opts {
		opt(f)
	}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

// AppendEmotionEvent stores e, then notifies each sink in order.
func (f *Fanout) AppendEmotionEvent(ctx context.Context, e model.EmotionEvent) error {
	if err := f.Store.AppendEmotionEvent(ctx, e); err != nil {
		return err
	}
	for _, s := range f.sinks {
		nctx, cancel := context.WithTimeout(ctx, f.timeout)
		err := s.Notify(nctx, e)
		cancel()
		if err != nil {
			metrics.RecordRealtimeError()
			f.log.Warn(ctx, "notify failed",
				logger.String("sink", s.Name()),
				logger.String("session_id", e.SessionID),
				logger.Error(err))
		}
	}
	return nil
}

// CloseSession forwards to the wrapped store when it supports closing.
func (f *Fanout) CloseSession(ctx context.Context, sessionID string, endedAt time.Time) error {
	if c, ok := f.Store.(recorder.SessionCloser); ok {
		return c.CloseSession(ctx, sessionID, endedAt)
	}
	return nil
}

// Sinks returns the configured sink names.
func (f *Fanout) Sinks() []string {
	names := make([]string, 0, len(f.sinks))
	for _, s := range f.sinks {
		names = append(names, s.Name())
	}
	return names
}
