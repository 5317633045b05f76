package repository_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/classvoice/internal/adapters/repository"
	. "github.com/smartystreets/goconvey/convey"
)

type countingCloser struct {
	calls atomic.Int32
	after atomic.Int64
	live  atomic.Value
}

func (c *countingCloser) CloseStaleSessions(_ context.Context, olderThan time.Duration, live []string) (int, error) {
	c.calls.Add(1)
	c.after.Store(int64(olderThan))
	c.live.Store(live)
	return 0, nil
}

func TestSweeper(t *testing.T) {
	Convey("Given a sweeper", t, func() {
		closer := &countingCloser{}

		Convey("When the schedule is invalid", func() {
			_, err := repository.NewSweeper(closer, "every tuesday", time.Hour)

			Convey("Then construction fails", func() {
				So(errors.Is(err, repository.ErrInvalidSchedule), ShouldBeTrue)
			})
		})

		Convey("When it is swept by hand", func() {
			s, err := repository.NewSweeper(closer, "@every 1h", 4*time.Hour)
			So(err, ShouldBeNil)
			_, err = s.Sweep(context.Background())

			Convey("Then the configured age is passed through", func() {
				So(err, ShouldBeNil)
				So(closer.calls.Load(), ShouldEqual, 1)
				So(time.Duration(closer.after.Load()), ShouldEqual, 4*time.Hour)
			})
		})

		Convey("When live sessions are reported", func() {
			s, err := repository.NewSweeper(closer, "@every 1h", time.Hour,
				repository.WithLiveSessions(func() []string { return []string{"s-live"} }))
			So(err, ShouldBeNil)
			_, err = s.Sweep(context.Background())

			Convey("Then they are passed to the store", func() {
				So(err, ShouldBeNil)
				So(closer.live.Load(), ShouldResemble, []string{"s-live"})
			})
		})

		Convey("When it runs on a short schedule", func() {
			s, err := repository.NewSweeper(closer, "@every 1s", time.Hour)
			So(err, ShouldBeNil)
			s.Start()
			deadline := time.Now().Add(3 * time.Second)
			for closer.calls.Load() == 0 && time.Now().Before(deadline) {
				time.Sleep(20 * time.Millisecond)
			}
			So(s.Stop(context.Background()), ShouldBeNil)

			Convey("Then the store is swept", func() {
				So(closer.calls.Load(), ShouldBeGreaterThan, 0)
			})
		})
	})
}
