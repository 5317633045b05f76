package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/okian/classvoice/internal/adapters/repository"
	"github.com/okian/classvoice/internal/domain/model"
)

const (
	defaultMessageLimit = 50
	maxMessageLimit     = 500
)

// HistoryReader reads back what the recorders persisted.
type HistoryReader interface {
	GetSession(ctx context.Context, id string) (model.Session, error)
	ListEmotionEvents(ctx context.Context, sessionID string) ([]model.EmotionEvent, error)
	ListMessages(ctx context.Context, studentID string, limit int) ([]model.Message, error)
}

// HistoryHandler serves session and message history.
type HistoryHandler struct {
	reader HistoryReader
}

// NewHistoryHandler creates a history handler over reader.
func NewHistoryHandler(reader HistoryReader) *HistoryHandler {
	return &HistoryHandler{reader: reader}
}

type sessionResponse struct {
	Session model.Session        `json:"session"`
	Events  []model.EmotionEvent `json:"events"`
}

// HandleSession handles GET /sessions?id=... with the session and its events.
func (h *HistoryHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "bad_request", ErrMissingParam)
		return
	}
	session, err := h.reader.GetSession(r.Context(), id)
	if err != nil {
		writeHistoryError(w, err)
		return
	}
	events, err := h.reader.ListEmotionEvents(r.Context(), id)
	if err != nil {
		writeHistoryError(w, err)
		return
	}
	if events == nil {
		events = []model.EmotionEvent{}
	}
	writeJSON(w, http.StatusOK, sessionResponse{Session: session, Events: events})
}

// HandleMessages handles GET /messages?student_id=...&limit=...
func (h *HistoryHandler) HandleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	q := r.URL.Query()
	studentID := q.Get("student_id")
	if studentID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", ErrMissingParam)
		return
	}
	limit := defaultMessageLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
			return
		}
		limit = min(n, maxMessageLimit)
	}
	messages, err := h.reader.ListMessages(r.Context(), studentID, limit)
	if err != nil {
		writeHistoryError(w, err)
		return
	}
	if messages == nil {
		messages = []model.Message{}
	}
	writeJSON(w, http.StatusOK, messages)
}

func writeHistoryError(w http.ResponseWriter, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", err)
		return
	}
	writeError(w, http.StatusInternalServerError, "persistence_failed", err)
}
