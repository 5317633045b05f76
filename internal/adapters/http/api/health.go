package api

import (
	"context"
	"net/http"
	"time"
)

const pingTimeout = 2 * time.Second

// HealthHandler handles health check requests.
type HealthHandler struct {
	pinger Pinger
}

// NewHealthHandler creates a new health handler. A nil pinger always
// reports healthy.
func NewHealthHandler(p Pinger) *HealthHandler {
	return &HealthHandler{pinger: p}
}

type healthResponse struct {
	Status string `json:"status"`
}

// HandleHealth handles GET /healthz requests.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	if h.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
		defer cancel()
		if err := h.pinger.Ping(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, "unhealthy", ErrUnhealthy)
			return
		}
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}
