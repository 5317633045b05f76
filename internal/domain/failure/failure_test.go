package failure_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/okian/classvoice/internal/domain/failure"
	. "github.com/smartystreets/goconvey/convey"
)

func TestWrap(t *testing.T) {
	Convey("Given a wrapped collaborator error", t, func() {
		cause := errors.New("socket closed")
		err := failure.Wrap("recorder.Open", failure.ErrPersistenceFailed, cause)

		Convey("Then it matches its kind and unwraps to the cause", func() {
			So(errors.Is(err, failure.ErrPersistenceFailed), ShouldBeTrue)
			So(errors.Is(err, cause), ShouldBeTrue)
			So(errors.Is(err, failure.ErrRateLimited), ShouldBeFalse)
			So(err.Error(), ShouldEqual, "recorder.Open: persistence failed: socket closed")
		})

		Convey("Then it survives further %w wrapping", func() {
			outer := fmt.Errorf("interface mount: %w", err)
			var fe *failure.Error
			So(errors.As(outer, &fe), ShouldBeTrue)
			So(fe.Op, ShouldEqual, "recorder.Open")
			So(failure.KindName(outer), ShouldEqual, "persistence_failed")
		})
	})

	Convey("Given a bare kind error", t, func() {
		err := failure.New("audio.StartRecording", failure.ErrUnsupported)

		So(err.Error(), ShouldEqual, "audio.StartRecording: unsupported")
		So(errors.Is(err, failure.ErrUnsupported), ShouldBeTrue)
		So(errors.Unwrap(err), ShouldBeNil)
	})
}

func TestTranscriptionKind(t *testing.T) {
	Convey("Given transcription collaborator causes", t, func() {
		rate := failure.Wrap("audio.StopRecording", failure.TranscriptionKind(failure.ErrRateLimited), errors.New("429"))
		quota := failure.Wrap("audio.StopRecording", failure.TranscriptionKind(failure.ErrQuotaExhausted), errors.New("402"))
		other := failure.Wrap("audio.StopRecording", failure.TranscriptionKind(errors.New("500")), nil)

		Convey("Then every variant is a transcription failure", func() {
			So(errors.Is(rate, failure.ErrTranscriptionFailed), ShouldBeTrue)
			So(errors.Is(quota, failure.ErrTranscriptionFailed), ShouldBeTrue)
			So(errors.Is(other, failure.ErrTranscriptionFailed), ShouldBeTrue)
		})

		Convey("Then sub-kinds stay distinguishable", func() {
			So(errors.Is(rate, failure.ErrRateLimited), ShouldBeTrue)
			So(errors.Is(rate, failure.ErrQuotaExhausted), ShouldBeFalse)
			So(errors.Is(quota, failure.ErrQuotaExhausted), ShouldBeTrue)
			So(errors.Is(other, failure.ErrRateLimited), ShouldBeFalse)
			So(failure.KindName(rate), ShouldEqual, "rate_limited")
			So(failure.KindName(quota), ShouldEqual, "quota_exhausted")
			So(failure.KindName(other), ShouldEqual, "transcription_failed")
		})

		Convey("Then user messages differ per sub-kind", func() {
			So(failure.UserMessage(rate), ShouldEqual, "Rate limit exceeded. Please wait and try again.")
			So(failure.UserMessage(quota), ShouldEqual, "Transcription credits exhausted. Please contact support.")
			So(failure.UserMessage(other), ShouldEqual, "Failed to transcribe audio. Please try again.")
		})
	})
}

func TestUserMessage(t *testing.T) {
	Convey("Given errors of each kind", t, func() {
		So(failure.UserMessage(nil), ShouldEqual, "")
		So(failure.UserMessage(failure.New("op", failure.ErrPermissionDenied)), ShouldContainSubstring, "denied")
		So(failure.UserMessage(failure.New("op", failure.ErrUnsupported)), ShouldContainSubstring, "not supported")
		So(failure.UserMessage(failure.New("op", failure.ErrQuotaExhausted)), ShouldEqual, "AI credits exhausted. Please contact support.")
		So(failure.UserMessage(errors.New("boom")), ShouldEqual, "Something went wrong. Please try again.")
		So(failure.KindName(errors.New("boom")), ShouldEqual, "other")
		So(failure.KindName(nil), ShouldEqual, "")
	})
}
