package service_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/okian/classvoice/internal/adapters/notify"
	"github.com/okian/classvoice/internal/adapters/repository"
	service "github.com/okian/classvoice/internal/app"
	"github.com/okian/classvoice/internal/domain/emotion"
	"github.com/okian/classvoice/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

type countingSink struct {
	mu     sync.Mutex
	events []model.EmotionEvent
}

func (s *countingSink) Name() string { return "counting" }

func (s *countingSink) Notify(_ context.Context, e model.EmotionEvent) error {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
	return nil
}

func (s *countingSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestServiceIntegration(t *testing.T) {
	Convey("Given a service over SQLite with a notification fan-out", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		db, err := repository.Open(filepath.Join(t.TempDir(), "classvoice.db"))
		So(err, ShouldBeNil)
		defer db.Close()

		sink := &countingSink{}
		svc := service.New(notify.NewFanout(db, []notify.Sink{sink}),
			service.WithDetector(happyDetector{}),
			service.WithTranscriber(fixedTranscriber{text: "I understand now"}),
			service.WithSampling(20*time.Millisecond, time.Millisecond),
		)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop(ctx)

		c := newClient("stu-42", "es-ES")
		in, err := svc.Mount(ctx, c)
		So(err, ShouldBeNil)

		Convey("When a student detects, speaks and leaves", func() {
			_, err := c.Send(service.CmdDetectionStart, nil)
			So(err, ShouldBeNil)
			So(eventually(func() bool { return sink.Len() >= 2 }), ShouldBeTrue)

			_, err = c.Send(service.CmdRecordingStart, nil)
			So(err, ShouldBeNil)
			c.Microphone.Last().Push([]byte("audio"))
			_, err = c.Send(service.CmdRecordingStop, nil)
			So(err, ShouldBeNil)

			_, err = c.Send(service.CmdMessageSymbol, service.SymbolMessageRequest{Label: "Yes"})
			So(err, ShouldBeNil)

			svc.Unmount(ctx, in.ID())

			Convey("Then the whole session is on disk", func() {
				messages, err := db.ListMessages(ctx, "stu-42", 10)
				So(err, ShouldBeNil)
				So(messages, ShouldHaveLength, 2)
				So(messages[0].Type, ShouldEqual, model.MessageSymbol)
				So(messages[0].Symbol.Emoji, ShouldEqual, "👍")
				So(messages[1].OriginalText, ShouldEqual, "I understand now")
				So(messages[1].LanguageCode, ShouldEqual, "es-ES")

				sessionID := messages[0].SessionID
				So(sessionID, ShouldNotBeEmpty)
				session, err := db.GetSession(ctx, sessionID)
				So(err, ShouldBeNil)
				So(session.Open(), ShouldBeFalse)
				So(session.DurationSeconds, ShouldNotBeNil)

				events, err := db.ListEmotionEvents(ctx, sessionID)
				So(err, ShouldBeNil)
				So(len(events), ShouldBeGreaterThanOrEqualTo, 2)
				So(len(events), ShouldEqual, sink.Len())
				So(events[0].Label, ShouldEqual, emotion.Happy)
			})
		})
	})
}

func TestSweepKeepsMountedSessions(t *testing.T) {
	Convey("Given a mounted student whose session is older than the sweep age", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		// the store sees the future, so every session already looks stale
		later := func() time.Time { return time.Now().Add(5 * time.Hour) }
		db, err := repository.Open(filepath.Join(t.TempDir(), "classvoice.db"), repository.WithClock(later))
		So(err, ShouldBeNil)
		defer db.Close()

		svc := service.New(db)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop(ctx)

		mounted, err := svc.Mount(ctx, newClient("stu-1", "en-US"))
		So(err, ShouldBeNil)
		_, err = svc.Mount(ctx, newClient("stu-2", "en-US"))
		So(err, ShouldBeNil)
		ids := svc.OpenSessionIDs()
		So(ids, ShouldHaveLength, 2)

		sweeper, err := repository.NewSweeper(db, "@every 1h", 4*time.Hour,
			repository.WithLiveSessions(svc.OpenSessionIDs))
		So(err, ShouldBeNil)

		Convey("When the sweeper runs", func() {
			n, err := sweeper.Sweep(ctx)

			Convey("Then live sessions survive", func() {
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 0)
				for _, id := range ids {
					session, err := db.GetSession(ctx, id)
					So(err, ShouldBeNil)
					So(session.Open(), ShouldBeTrue)
				}
			})
		})

		Convey("When one student leaves before the sweep", func() {
			svc.Unmount(ctx, mounted.ID())
			So(svc.OpenSessionIDs(), ShouldHaveLength, 1)

			Convey("Then the sweep has nothing left to close", func() {
				n, err := sweeper.Sweep(ctx)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 0)
			})
		})
	})
}
