package recorder_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/classvoice/internal/domain/emotion"
	"github.com/okian/classvoice/internal/domain/failure"
	"github.com/okian/classvoice/internal/domain/model"
	"github.com/okian/classvoice/internal/recorder"
	"github.com/okian/classvoice/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

type fakeStore struct {
	mu        sync.Mutex
	createErr error
	appendErr func(e model.EmotionEvent) error
	gate      chan struct{}
	cancelled atomic.Int32
	sessions  []model.Session
	events    []model.EmotionEvent
	messages  []model.Message
	closed    map[string]time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{closed: map[string]time.Time{}}
}

func (s *fakeStore) CreateSession(_ context.Context, in model.Session) (model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return model.Session{}, s.createErr
	}
	in.ID = "session-1"
	s.sessions = append(s.sessions, in)
	return in, nil
}

func (s *fakeStore) AppendEmotionEvent(ctx context.Context, e model.EmotionEvent) error {
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			s.cancelled.Add(1)
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		if err := s.appendErr(e); err != nil {
			return err
		}
	}
	s.events = append(s.events, e)
	return nil
}

func (s *fakeStore) AppendMessage(_ context.Context, m model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, m)
	return nil
}

func (s *fakeStore) CloseSession(_ context.Context, id string, endedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed[id] = endedAt
	return nil
}

func (s *fakeStore) Events() []model.EmotionEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.EmotionEvent(nil), s.events...)
}

func (s *fakeStore) Messages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Message(nil), s.messages...)
}

func (s *fakeStore) Closed(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.closed[id]
	return ok
}

type fakeActivity struct{ capturing atomic.Bool }

func (a *fakeActivity) Capturing() bool { return a.capturing.Load() }

type fakeStopper struct{ calls atomic.Int32 }

func (s *fakeStopper) StopDetection() { s.calls.Add(1) }

var happy = emotion.Classified{Label: emotion.Happy, Confidence: 0.8}

func TestRecorderLifecycle(t *testing.T) {
	Convey("Given a recorder over a working store", t, func() {
		ctx := context.Background()
		store := newFakeStore()
		activity := &fakeActivity{}
		stopper := &fakeStopper{}
		r := recorder.New(store, recorder.WithActivity(activity), recorder.WithStopper(stopper))

		Convey("When an emotion arrives before the session exists", func() {
			ok := r.Record(happy, time.Now())

			Convey("Then nothing is recorded", func() {
				So(ok, ShouldBeFalse)
				So(r.State(), ShouldEqual, recorder.NoSession)
				So(store.Events(), ShouldBeEmpty)
			})
		})

		Convey("When the session opens", func() {
			So(r.Open(ctx, "student-1", "es-ES"), ShouldBeNil)

			Convey("Then it is associated with the student and language", func() {
				s, ok := r.Session()
				So(ok, ShouldBeTrue)
				So(s.StudentID, ShouldEqual, "student-1")
				So(s.LanguageCode, ShouldEqual, "es-ES")
				So(r.State(), ShouldEqual, recorder.SessionOpen)
			})

			Convey("Then a second open is rejected", func() {
				So(errors.Is(r.Open(ctx, "student-1", "es-ES"), recorder.ErrSessionOpen), ShouldBeTrue)
			})

			Convey("And events are recorded, each tagged by voice activity", func() {
				So(r.Record(happy, time.Now()), ShouldBeTrue)
				activity.capturing.Store(true)
				So(r.Record(emotion.Classified{Label: emotion.Sad, Confidence: 0.7}, time.Now()), ShouldBeTrue)
				So(r.Close(ctx), ShouldBeNil)

				events := store.Events()
				So(events, ShouldHaveLength, 2)
				So(events[0].Context, ShouldEqual, model.ContextIdle)
				So(events[1].Context, ShouldEqual, model.ContextSpeaking)
				So(events[1].SessionID, ShouldEqual, "session-1")
				So(events[1].StudentID, ShouldEqual, "student-1")
				So(events[0].ID, ShouldNotEqual, events[1].ID)
			})

			Convey("And many events keep their arrival order", func() {
				base := time.Now()
				for i := 0; i < 20; i++ {
					r.Record(happy, base.Add(time.Duration(i)*time.Millisecond))
				}
				So(r.Close(ctx), ShouldBeNil)

				events := store.Events()
				So(events, ShouldHaveLength, 20)
				for i := 1; i < len(events); i++ {
					So(events[i].DetectedAt.After(events[i-1].DetectedAt), ShouldBeTrue)
				}
			})

			Convey("And the session is closed", func() {
				So(r.Close(ctx), ShouldBeNil)
				So(r.Close(ctx), ShouldBeNil)

				Convey("Then the sampler is stopped and the store closes the session once", func() {
					So(stopper.calls.Load(), ShouldEqual, 1)
					So(store.Closed("session-1"), ShouldBeTrue)
					So(r.State(), ShouldEqual, recorder.SessionClosed)
				})

				Convey("Then later emotions are ignored and reopening fails", func() {
					So(r.Record(happy, time.Now()), ShouldBeFalse)
					So(errors.Is(r.Open(ctx, "student-1", "en"), recorder.ErrSessionClosed), ShouldBeTrue)
				})
			})
		})

		Convey("When closing without a session", func() {
			So(r.Close(ctx), ShouldBeNil)

			Convey("Then the sampler still stops and no session is closed", func() {
				So(stopper.calls.Load(), ShouldEqual, 1)
				So(store.Closed("session-1"), ShouldBeFalse)
			})
		})

		Convey("When the student identity is missing", func() {
			err := r.Open(ctx, "", "en")

			Convey("Then no session is created", func() {
				So(errors.Is(err, recorder.ErrNoSubject), ShouldBeTrue)
				So(r.State(), ShouldEqual, recorder.NoSession)
			})
		})
	})
}

func TestRecorderFailures(t *testing.T) {
	Convey("Given a store that cannot create sessions", t, func() {
		ctx := context.Background()
		store := newFakeStore()
		store.createErr = errors.New("database locked")
		r := recorder.New(store)

		err := r.Open(ctx, "student-1", "en")

		Convey("Then the failure is reported as a persistence failure", func() {
			So(errors.Is(err, failure.ErrPersistenceFailed), ShouldBeTrue)
			So(r.State(), ShouldEqual, recorder.NoSession)
			So(r.Record(happy, time.Now()), ShouldBeFalse)
		})

		Convey("Then opening can be retried", func() {
			store.mu.Lock()
			store.createErr = nil
			store.mu.Unlock()
			So(r.Open(ctx, "student-1", "en"), ShouldBeNil)
			So(r.State(), ShouldEqual, recorder.SessionOpen)
		})
	})

	Convey("Given a store that rejects one event", t, func() {
		ctx := context.Background()
		store := newFakeStore()
		store.appendErr = func(e model.EmotionEvent) error {
			if e.Label == emotion.Angry {
				return errors.New("constraint failed")
			}
			return nil
		}
		r := recorder.New(store)
		So(r.Open(ctx, "student-1", "en"), ShouldBeNil)

		r.Record(happy, time.Now())
		r.Record(emotion.Classified{Label: emotion.Angry, Confidence: 0.9}, time.Now())
		r.Record(emotion.Classified{Label: emotion.Neutral, Confidence: 0.5}, time.Now())
		So(r.Close(ctx), ShouldBeNil)

		Convey("Then later events are still persisted", func() {
			events := store.Events()
			So(events, ShouldHaveLength, 2)
			So(events[1].Label, ShouldEqual, emotion.Neutral)
		})
	})

	Convey("Given a stalled store and a tiny queue", t, func() {
		ctx := context.Background()
		store := newFakeStore()
		store.gate = make(chan struct{})
		r := recorder.New(store, recorder.WithQueueSize(1), recorder.WithFlushTimeout(50*time.Millisecond))
		So(r.Open(ctx, "student-1", "en"), ShouldBeNil)

		accepted := 0
		for i := 0; i < 10; i++ {
			if r.Record(happy, time.Now()) {
				accepted++
			}
		}

		Convey("Then excess events are dropped without blocking", func() {
			So(accepted, ShouldBeLessThan, 10)
		})

		Convey("Then close gives up on the flush after the timeout", func() {
			start := time.Now()
			So(r.Close(ctx), ShouldBeNil)
			So(time.Since(start), ShouldBeLessThan, time.Second)
			So(store.Closed("session-1"), ShouldBeTrue)
		})

		Convey("Then the abandoned write is cancelled", func() {
			So(r.Close(ctx), ShouldBeNil)
			deadline := time.Now().Add(time.Second)
			for store.cancelled.Load() == 0 && time.Now().Before(deadline) {
				time.Sleep(5 * time.Millisecond)
			}
			So(store.cancelled.Load(), ShouldEqual, 1)
		})
	})
}

func TestRecorderMessages(t *testing.T) {
	Convey("Given a recorder", t, func() {
		ctx := context.Background()
		store := newFakeStore()
		r := recorder.New(store)

		Convey("When a message is logged without a session", func() {
			m, err := r.LogMessage(ctx, model.Message{StudentID: "student-1", Type: model.MessageText, OriginalText: "hi"})

			Convey("Then it is stored directly without a session reference", func() {
				So(err, ShouldBeNil)
				So(m.ID, ShouldNotBeEmpty)
				msgs := store.Messages()
				So(msgs, ShouldHaveLength, 1)
				So(msgs[0].SessionID, ShouldBeEmpty)
			})
		})

		Convey("When a message is logged during a session", func() {
			So(r.Open(ctx, "student-1", "fr-FR"), ShouldBeNil)
			r.Record(happy, time.Now())
			_, err := r.LogMessage(ctx, model.Message{Type: model.MessageSpeech, OriginalText: "bonjour"})
			So(err, ShouldBeNil)
			So(r.Close(ctx), ShouldBeNil)

			Convey("Then it carries the session and language", func() {
				msgs := store.Messages()
				So(msgs, ShouldHaveLength, 1)
				So(msgs[0].SessionID, ShouldEqual, "session-1")
				So(msgs[0].StudentID, ShouldEqual, "student-1")
				So(msgs[0].LanguageCode, ShouldEqual, "fr-FR")
				So(store.Events(), ShouldHaveLength, 1)
			})
		})
	})
}
