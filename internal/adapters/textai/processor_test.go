package textai_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/okian/classvoice/internal/adapters/textai"
	"github.com/okian/classvoice/internal/domain/failure"
	"github.com/okian/classvoice/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

type fakeAPI struct {
	mu     sync.Mutex
	status int
	body   string
	system string
	user   string
	path   string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		System []struct {
			Text string `json:"text"`
		} `json:"system"`
		Messages []struct {
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
		} `json:"messages"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.path = r.URL.Path
	if len(req.System) > 0 {
		f.system = req.System[0].Text
	}
	if len(req.Messages) > 0 && len(req.Messages[0].Content) > 0 {
		f.user = req.Messages[0].Content[0].Text
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(f.status)
	_, _ = w.Write([]byte(f.body))
}

const okBody = `{
  "id": "msg_01",
  "type": "message",
  "role": "assistant",
  "model": "claude-sonnet-4-20250514",
  "content": [{"type": "text", "text": " Break please. "}],
  "stop_reason": "end_turn",
  "stop_sequence": null,
  "usage": {"input_tokens": 12, "output_tokens": 4}
}`

func errorBody(kind, msg string) string {
	return `{"type":"error","error":{"type":"` + kind + `","message":"` + msg + `"}}`
}

func TestProcess(t *testing.T) {
	Convey("Given a processor against a fake Messages API", t, func() {
		ctx := context.Background()
		api := &fakeAPI{status: http.StatusOK, body: okBody}
		srv := httptest.NewServer(api)
		defer srv.Close()
		p := textai.New("test-key", textai.WithBaseURL(srv.URL), textai.WithMaxRetries(0))

		Convey("When text is simplified", func() {
			out, err := p.Simplify(ctx, "I would like to request a short pause please")

			Convey("Then the trimmed model text is returned", func() {
				So(err, ShouldBeNil)
				So(out, ShouldEqual, "Break please.")
				So(api.path, ShouldEqual, "/v1/messages")
				So(api.system, ShouldContainSubstring, "simplification assistant")
				So(api.user, ShouldEqual, "I would like to request a short pause please")
			})
		})

		Convey("When text is translated without a target", func() {
			_, err := p.Translate(ctx, "hello", "")

			Convey("Then Spanish is used", func() {
				So(err, ShouldBeNil)
				So(api.system, ShouldContainSubstring, "Translate the following text to Spanish")
			})
		})

		Convey("When text is translated to French", func() {
			_, _ = p.Translate(ctx, "hello", "French")
			So(api.system, ShouldContainSubstring, "to French")
		})

		Convey("When the API is rate limited", func() {
			api.status = http.StatusTooManyRequests
			api.body = errorBody("rate_limit_error", "Number of requests exceeded")
			_, err := p.Summarize(ctx, "long text")

			Convey("Then the error is RateLimited", func() {
				So(errors.Is(err, failure.ErrRateLimited), ShouldBeTrue)
				So(failure.UserMessage(err), ShouldEqual, "Rate limit exceeded. Please wait and try again.")
			})
		})

		Convey("When the account has no credits", func() {
			api.status = http.StatusBadRequest
			api.body = errorBody("invalid_request_error", "Your credit balance is too low")
			_, err := p.Simplify(ctx, "text")

			Convey("Then the error is QuotaExhausted", func() {
				So(errors.Is(err, failure.ErrQuotaExhausted), ShouldBeTrue)
			})
		})

		Convey("When the API fails otherwise", func() {
			api.status = http.StatusInternalServerError
			api.body = errorBody("api_error", "boom")
			_, err := p.Simplify(ctx, "text")

			Convey("Then the error is an AI processing failure", func() {
				So(errors.Is(err, failure.ErrAIProcessingFailed), ShouldBeTrue)
			})
		})

		Convey("When the input is invalid", func() {
			_, err := p.Process(ctx, textai.Request{Text: "  ", Action: textai.ActionSimplify})
			So(errors.Is(err, failure.ErrInvalidInput), ShouldBeTrue)

			_, err = p.Process(ctx, textai.Request{Text: "hi", Action: "rhyme"})
			So(errors.Is(err, failure.ErrInvalidInput), ShouldBeTrue)
		})
	})
}
