package handlers

import (
	"net/http"

	"github.com/lumivoice/frontdesk-ai/internal/session"
)

// HealthHandler reports liveness plus the current session count, which is
// the one number worth seeing at a glance during a demo.
type HealthHandler struct {
	registry session.Registry
}

func NewHealthHandler(registry session.Registry) *HealthHandler {
	return &HealthHandler{registry: registry}
}

func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{"status": "ok"}
	if h.registry != nil {
		payload["active_sessions"] = h.registry.Len()
	}
	writeJSON(w, http.StatusOK, payload)
}
