package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/classvoice/internal/adapters/devicebridge"
	"github.com/okian/classvoice/internal/adapters/http/api"
	"github.com/okian/classvoice/internal/adapters/repository"
	"github.com/okian/classvoice/internal/adapters/textai"
	service "github.com/okian/classvoice/internal/app"
	"github.com/okian/classvoice/internal/domain/emotion"
	"github.com/okian/classvoice/internal/domain/failure"
	"github.com/okian/classvoice/internal/domain/model"
	"github.com/okian/classvoice/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

type memStore struct {
	mu       sync.Mutex
	sessions int
	closed   int
}

func (s *memStore) CreateSession(_ context.Context, in model.Session) (model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions++
	in.ID = "session"
	return in, nil
}

func (s *memStore) AppendEmotionEvent(context.Context, model.EmotionEvent) error { return nil }

func (s *memStore) AppendMessage(context.Context, model.Message) error { return nil }

func (s *memStore) CloseSession(context.Context, string, time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *memStore) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// scriptedProcessor fails according to the request text.
type scriptedProcessor struct{}

func (scriptedProcessor) Process(_ context.Context, req textai.Request) (string, error) {
	switch req.Text {
	case "slow down":
		return "", failure.Wrap("test", failure.ErrRateLimited, errors.New("429"))
	case "":
		return "", failure.Wrap("test", failure.ErrInvalidInput, textai.ErrNoText)
	}
	return "simple: " + req.Text, nil
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func newServer(store *memStore, opts ...api.Option) (*service.Service, *http.ServeMux) {
	svc := service.New(store, service.WithTextProcessor(scriptedProcessor{}))
	_ = svc.Start(context.Background())
	mux := http.NewServeMux()
	api.NewServer(svc, opts...).Register(context.Background(), mux)
	return svc, mux
}

func do(mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestServer_Register(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		svc, mux := newServer(&memStore{})
		defer svc.Stop(context.Background())

		Convey("Health endpoint should report ok", func() {
			w := do(mux, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"ok"`)
		})

		Convey("Metrics endpoint should be accessible", func() {
			w := do(mux, http.MethodGet, "/metrics", "")
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("Stats endpoint should report the service", func() {
			w := do(mux, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var stats map[string]any
			So(json.Unmarshal(w.Body.Bytes(), &stats), ShouldBeNil)
			So(stats["started"], ShouldEqual, true)
			So(stats["textAI"], ShouldEqual, true)
		})

		Convey("Symbols endpoint should list the catalog", func() {
			w := do(mux, http.MethodGet, "/symbols", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var cards []model.SymbolCard
			So(json.Unmarshal(w.Body.Bytes(), &cards), ShouldBeNil)
			So(cards, ShouldHaveLength, 12)
		})

		Convey("Unknown paths are not found", func() {
			So(do(mux, http.MethodGet, "/unknown", "").Code, ShouldEqual, http.StatusNotFound)
		})
	})

	Convey("Given a server whose store is down", t, func() {
		svc, mux := newServer(&memStore{}, api.WithPinger(pinger{err: errors.New("closed")}))
		defer svc.Stop(context.Background())

		Convey("Health endpoint should report unavailable", func() {
			So(do(mux, http.MethodGet, "/healthz", "").Code, ShouldEqual, http.StatusServiceUnavailable)
		})
	})
}

func TestClassifyAndProcess(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		svc, mux := newServer(&memStore{})
		defer svc.Stop(context.Background())

		Convey("When classifying confused-looking scores", func() {
			w := do(mux, http.MethodPost, "/classify", `{"surprised":0.5,"neutral":0.4}`)

			Convey("Then the compound label is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"label":"confused"`)
			})
		})

		Convey("When classifying out-of-range scores", func() {
			w := do(mux, http.MethodPost, "/classify", `{"happy":3}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(w.Body.String(), ShouldContainSubstring, "invalid_input")
		})

		Convey("When the body is not JSON", func() {
			So(do(mux, http.MethodPost, "/classify", `nope`).Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodPost, "/process", `nope`).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When processing text", func() {
			w := do(mux, http.MethodPost, "/process", `{"text":"photosynthesis","action":"simplify"}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "simple: photosynthesis")
		})

		Convey("When the collaborator is rate limited", func() {
			w := do(mux, http.MethodPost, "/process", `{"text":"slow down","action":"simplify"}`)

			Convey("Then the student sees the rate limit message", func() {
				So(w.Code, ShouldEqual, http.StatusTooManyRequests)
				var resp map[string]string
				So(json.Unmarshal(w.Body.Bytes(), &resp), ShouldBeNil)
				So(resp["code"], ShouldEqual, "rate_limited")
				So(resp["message"], ShouldEqual, "Rate limit exceeded. Please wait and try again.")
			})
		})

		Convey("When the wrong method is used", func() {
			So(do(mux, http.MethodGet, "/process", "").Code, ShouldEqual, http.StatusNotFound)
		})
	})

	Convey("Given a server without a text collaborator", t, func() {
		svc := service.New(&memStore{})
		_ = svc.Start(context.Background())
		defer svc.Stop(context.Background())
		mux := http.NewServeMux()
		api.NewServer(svc).Register(context.Background(), mux)

		Convey("Processing is unavailable", func() {
			w := do(mux, http.MethodPost, "/process", `{"text":"hi","action":"simplify"}`)
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
		})
	})
}

func TestStudentSocket(t *testing.T) {
	Convey("Given a running server", t, func() {
		store := &memStore{}
		svc, mux := newServer(store)
		defer svc.Stop(context.Background())
		srv := httptest.NewServer(mux)
		defer srv.Close()

		conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/student", nil)
		So(err, ShouldBeNil)
		defer conn.Close()

		read := func() devicebridge.Envelope {
			_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			var env devicebridge.Envelope
			So(conn.ReadJSON(&env), ShouldBeNil)
			return env
		}
		hello, _ := json.Marshal(devicebridge.Hello{StudentID: "stu-1", Language: "en-US", Speech: true})

		Convey("When the browser introduces itself", func() {
			So(conn.WriteJSON(devicebridge.Envelope{Type: devicebridge.TypeHello, Payload: hello}), ShouldBeNil)

			Convey("Then the interface is mounted and pushes its state", func() {
				env := read()
				So(env.Type, ShouldEqual, devicebridge.TypeState)
				So(string(env.Payload), ShouldContainSubstring, `"session":"open"`)
			})

			Convey("Then commands are answered", func() {
				So(read().Type, ShouldEqual, devicebridge.TypeState)
				payload, _ := json.Marshal(service.SpeakRequest{Text: "hello class"})
				So(conn.WriteJSON(devicebridge.Envelope{ID: "c1", Type: service.CmdSpeak, Payload: payload}), ShouldBeNil)

				var reply devicebridge.Envelope
				sawSpeak := false
				for reply.ReplyTo == "" {
					env := read()
					if env.Type == devicebridge.TypeSpeechSpeak {
						sawSpeak = true
					}
					if env.Type == devicebridge.TypeReply {
						reply = env
					}
				}
				So(sawSpeak, ShouldBeTrue)
				So(reply.ReplyTo, ShouldEqual, "c1")
				So(string(reply.Payload), ShouldContainSubstring, `"ok":true`)
			})

			Convey("And disconnecting closes the session", func() {
				So(read().Type, ShouldEqual, devicebridge.TypeState)
				_ = conn.Close()
				deadline := time.Now().Add(2 * time.Second)
				for store.Closed() == 0 && time.Now().Before(deadline) {
					time.Sleep(10 * time.Millisecond)
				}
				So(store.Closed(), ShouldEqual, 1)
				So(svc.GetStats()["interfaces"], ShouldEqual, 0)
			})
		})

		Convey("When the hello has no student", func() {
			empty, _ := json.Marshal(devicebridge.Hello{})
			So(conn.WriteJSON(devicebridge.Envelope{Type: devicebridge.TypeHello, Payload: empty}), ShouldBeNil)

			Convey("Then the server hangs up", func() {
				_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
				_, _, err := conn.ReadMessage()
				So(websocket.IsCloseError(err, websocket.CloseNormalClosure), ShouldBeTrue)
			})
		})
	})
}

func TestHistoryRoutes(t *testing.T) {
	Convey("Given a server reading history from SQLite", t, func() {
		ctx := context.Background()
		db, err := repository.Open(filepath.Join(t.TempDir(), "classvoice.db"))
		So(err, ShouldBeNil)
		defer db.Close()

		sess, err := db.CreateSession(ctx, model.Session{StudentID: "stu-1", LanguageCode: "en-US", StartedAt: time.Now()})
		So(err, ShouldBeNil)
		So(db.AppendEmotionEvent(ctx, model.EmotionEvent{
			StudentID: "stu-1", SessionID: sess.ID, Label: emotion.Confused,
			Confidence: 0.47, Context: model.ContextIdle, DetectedAt: time.Now(),
		}), ShouldBeNil)
		So(db.AppendMessage(ctx, model.Message{
			StudentID: "stu-1", SessionID: sess.ID, Type: model.MessageText,
			OriginalText: "can you repeat that", LanguageCode: "en-US",
		}), ShouldBeNil)

		svc, mux := newServer(&memStore{}, api.WithHistory(db))
		defer svc.Stop(ctx)

		Convey("When a session is read", func() {
			w := do(mux, http.MethodGet, "/sessions?id="+sess.ID, "")

			Convey("Then it comes back with its events", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var resp struct {
					Session model.Session        `json:"session"`
					Events  []model.EmotionEvent `json:"events"`
				}
				So(json.Unmarshal(w.Body.Bytes(), &resp), ShouldBeNil)
				So(resp.Session.ID, ShouldEqual, sess.ID)
				So(resp.Events, ShouldHaveLength, 1)
				So(resp.Events[0].Label, ShouldEqual, emotion.Confused)
			})
		})

		Convey("When a student's messages are listed", func() {
			w := do(mux, http.MethodGet, "/messages?student_id=stu-1&limit=5", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var messages []model.Message
			So(json.Unmarshal(w.Body.Bytes(), &messages), ShouldBeNil)
			So(messages, ShouldHaveLength, 1)
			So(messages[0].OriginalText, ShouldEqual, "can you repeat that")
		})

		Convey("When the request is incomplete or unknown", func() {
			So(do(mux, http.MethodGet, "/sessions", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodGet, "/sessions?id=missing", "").Code, ShouldEqual, http.StatusNotFound)
			So(do(mux, http.MethodGet, "/messages?student_id=stu-1&limit=zero", "").Code, ShouldEqual, http.StatusBadRequest)
		})
	})

	Convey("Given a server without history", t, func() {
		svc, mux := newServer(&memStore{})
		defer svc.Stop(context.Background())

		Convey("Then the history routes are absent", func() {
			So(do(mux, http.MethodGet, "/sessions?id=x", "").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}
