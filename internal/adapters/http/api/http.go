// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/classvoice/internal/adapters/textai"
	service "github.com/okian/classvoice/internal/app"
	"github.com/okian/classvoice/internal/domain/emotion"
	"github.com/okian/classvoice/internal/domain/failure"
	"github.com/okian/classvoice/internal/domain/model"
	"github.com/okian/classvoice/pkg/metrics"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// Mounter attaches connected browsers to the communication core.
type Mounter interface {
	Mount(ctx context.Context, c service.Client) (*service.Interface, error)
	Unmount(ctx context.Context, id string)
}

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	Mounter
	StatsProvider

	Classify(scores emotion.Scores) (emotion.Classified, error)
	Process(ctx context.Context, req textai.Request) (string, error)
	Symbols() []model.SymbolCard
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	studentHandler *StudentHandler
	textHandler    *TextHandler
	historyHandler *HistoryHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	s := &Server{
		healthHandler:  NewHealthHandler(o.pinger),
		statsHandler:   NewStatsHandler(deps),
		studentHandler: NewStudentHandler(deps, o.allowedOrigins, o.peerOptions...),
		textHandler:    NewTextHandler(deps),
	}
	if o.history != nil {
		s.historyHandler = NewHistoryHandler(o.history)
	}
	return s
}

// Register attaches all HTTP routes to mux. ctx bounds the lifetime of
// websocket connections.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	s.studentHandler.ctx = ctx

	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/ws/student", MetricsMiddleware(s.studentHandler.HandleStudent, "student"))
	mux.HandleFunc("/classify", MetricsMiddleware(s.textHandler.HandleClassify, "classify"))
	mux.HandleFunc("/process", MetricsMiddleware(s.textHandler.HandleProcess, "process"))
	mux.HandleFunc("/symbols", MetricsMiddleware(s.textHandler.HandleSymbols, "symbols"))
	if s.historyHandler != nil {
		mux.HandleFunc("/sessions", MetricsMiddleware(s.historyHandler.HandleSession, "sessions"))
		mux.HandleFunc("/messages", MetricsMiddleware(s.historyHandler.HandleMessages, "messages"))
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure maps a failure kind to its status and the student-facing
// message.
func writeFailure(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse{
		Code:    failure.KindName(err),
		Message: failure.UserMessage(err),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, failure.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, failure.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, failure.ErrQuotaExhausted):
		return http.StatusPaymentRequired
	case errors.Is(err, failure.ErrCollaboratorDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, failure.ErrAIProcessingFailed), errors.Is(err, failure.ErrTranscriptionFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return errors.Join(ErrBadRequest, err)
	}
	return nil
}
