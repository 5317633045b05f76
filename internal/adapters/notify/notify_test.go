package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/classvoice/internal/adapters/notify"
	"github.com/okian/classvoice/internal/domain/emotion"
	"github.com/okian/classvoice/internal/domain/model"
	"github.com/okian/classvoice/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

type memStore struct {
	mu        sync.Mutex
	err       error
	events    []model.EmotionEvent
	closedIDs []string
}

func (s *memStore) CreateSession(_ context.Context, in model.Session) (model.Session, error) {
	in.ID = "sess-1"
	return in, nil
}

func (s *memStore) AppendEmotionEvent(_ context.Context, e model.EmotionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, e)
	return nil
}

func (s *memStore) AppendMessage(context.Context, model.Message) error { return nil }

func (s *memStore) CloseSession(_ context.Context, id string, _ time.Time) error {
	s.closedIDs = append(s.closedIDs, id)
	return nil
}

type recordingSink struct {
	name   string
	err    error
	events []model.EmotionEvent
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Notify(_ context.Context, e model.EmotionEvent) error {
	s.events = append(s.events, e)
	return s.err
}

type fakePublisher struct {
	err      error
	channels []string
	payloads [][]byte
}

func (p *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	p.channels = append(p.channels, channel)
	if b, ok := message.([]byte); ok {
		p.payloads = append(p.payloads, b)
	}
	cmd := redis.NewIntCmd(ctx)
	if p.err != nil {
		cmd.SetErr(p.err)
	} else {
		cmd.SetVal(1)
	}
	return cmd
}

var sadEvent = model.EmotionEvent{
	ID:         "ev-1",
	StudentID:  "stu-1",
	SessionID:  "sess-1",
	Label:      emotion.Sad,
	Confidence: 0.72,
	Context:    model.ContextIdle,
	DetectedAt: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
}

func TestFanout(t *testing.T) {
	Convey("Given a fanout over a store and two sinks", t, func() {
		ctx := context.Background()
		store := &memStore{}
		failing := &recordingSink{name: "failing", err: errors.New("offline")}
		healthy := &recordingSink{name: "healthy"}
		f := notify.NewFanout(store, []notify.Sink{failing, nil, healthy})

		Convey("When an event is appended", func() {
			err := f.AppendEmotionEvent(ctx, sadEvent)

			Convey("Then it is stored and every sink sees it despite failures", func() {
				So(err, ShouldBeNil)
				So(store.events, ShouldHaveLength, 1)
				So(failing.events, ShouldHaveLength, 1)
				So(healthy.events, ShouldHaveLength, 1)
				So(f.Sinks(), ShouldResemble, []string{"failing", "healthy"})
			})
		})

		Convey("When the store rejects the event", func() {
			store.err = errors.New("disk full")
			err := f.AppendEmotionEvent(ctx, sadEvent)

			Convey("Then the error is returned and no sink is notified", func() {
				So(err, ShouldNotBeNil)
				So(healthy.events, ShouldBeEmpty)
			})
		})

		Convey("When a session is closed", func() {
			So(f.CloseSession(ctx, "sess-1", time.Now()), ShouldBeNil)

			Convey("Then the wrapped store closes it", func() {
				So(store.closedIDs, ShouldResemble, []string{"sess-1"})
			})
		})
	})
}

func TestRedisSink(t *testing.T) {
	Convey("Given a redis sink", t, func() {
		pub := &fakePublisher{}
		s := notify.NewRedisSink(pub, "classvoice")

		Convey("When an event is published", func() {
			So(s.Notify(context.Background(), sadEvent), ShouldBeNil)

			Convey("Then it goes to the student channel as JSON", func() {
				So(pub.channels, ShouldResemble, []string{"classvoice:student:stu-1"})
				var got map[string]any
				So(json.Unmarshal(pub.payloads[0], &got), ShouldBeNil)
				So(got["emotion_type"], ShouldEqual, "sad")
				So(got["session_id"], ShouldEqual, "sess-1")
				So(got["context"], ShouldEqual, "idle")
			})
		})

		Convey("When redis fails", func() {
			pub.err = errors.New("connection refused")

			Convey("Then the error is returned", func() {
				So(s.Notify(context.Background(), sadEvent), ShouldNotBeNil)
			})
		})
	})
}

func TestSlackSink(t *testing.T) {
	Convey("Given a slack webhook", t, func() {
		var mu sync.Mutex
		var bodies []string
		status := http.StatusOK
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			b, _ := io.ReadAll(r.Body)
			mu.Lock()
			bodies = append(bodies, string(b))
			code := status
			mu.Unlock()
			w.WriteHeader(code)
		}))
		defer srv.Close()

		now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
		s := notify.NewSlackSink(srv.URL, time.Minute, notify.WithClock(func() time.Time { return now }))
		ctx := context.Background()

		Convey("When a concerning emotion arrives twice within the cooldown", func() {
			So(s.Notify(ctx, sadEvent), ShouldBeNil)
			So(s.Notify(ctx, sadEvent), ShouldBeNil)

			Convey("Then one alert is posted", func() {
				So(bodies, ShouldHaveLength, 1)
				So(bodies[0], ShouldContainSubstring, "stu-1")
				So(bodies[0], ShouldContainSubstring, "72%")
			})

			Convey("Then another alert is posted after the cooldown", func() {
				now = now.Add(2 * time.Minute)
				So(s.Notify(ctx, sadEvent), ShouldBeNil)
				So(bodies, ShouldHaveLength, 2)
			})
		})

		Convey("When a calm emotion arrives", func() {
			calm := sadEvent
			calm.Label = emotion.Happy
			So(s.Notify(ctx, calm), ShouldBeNil)

			Convey("Then nothing is posted", func() {
				So(bodies, ShouldBeEmpty)
			})
		})

		Convey("When the webhook fails", func() {
			mu.Lock()
			status = http.StatusInternalServerError
			mu.Unlock()
			err := s.Notify(ctx, sadEvent)

			Convey("Then the error is returned and the next event may retry", func() {
				So(err, ShouldNotBeNil)
				mu.Lock()
				status = http.StatusOK
				mu.Unlock()
				So(s.Notify(ctx, sadEvent), ShouldBeNil)
				So(bodies, ShouldHaveLength, 2)
			})
		})
	})
}
