package api

import (
	"context"
	"net/http"

	"github.com/okian/classvoice/internal/adapters/textai"
	"github.com/okian/classvoice/internal/domain/emotion"
	"github.com/okian/classvoice/internal/domain/failure"
	"github.com/okian/classvoice/internal/domain/model"
)

// TextDependencies are the stateless operations exposed over plain HTTP.
type TextDependencies interface {
	Classify(scores emotion.Scores) (emotion.Classified, error)
	Process(ctx context.Context, req textai.Request) (string, error)
	Symbols() []model.SymbolCard
}

// TextHandler serves classification, text-AI and the symbol catalog.
type TextHandler struct {
	deps TextDependencies
}

// NewTextHandler creates a new text handler.
func NewTextHandler(deps TextDependencies) *TextHandler {
	return &TextHandler{deps: deps}
}

type processResponse struct {
	Result string `json:"result"`
}

// HandleClassify handles POST /classify with a scores object.
func (h *TextHandler) HandleClassify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var scores emotion.Scores
	if err := decodeBody(w, r, &scores); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	c, err := h.deps.Classify(scores)
	if err != nil {
		writeError(w, statusFor(err), failure.KindName(err), err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// HandleProcess handles POST /process with {text, action, targetLanguage}.
func (h *TextHandler) HandleProcess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req textai.Request
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	result, err := h.deps.Process(r.Context(), req)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, processResponse{Result: result})
}

// HandleSymbols handles GET /symbols.
func (h *TextHandler) HandleSymbols(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, h.deps.Symbols())
}
