package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/lumivoice/frontdesk-ai/internal/persona"
	"github.com/lumivoice/frontdesk-ai/pkg/logging"
)

// SetupHandler registers a finished setup-wizard persona and hands back the
// token the trial call presents. The dashboard CRUD behind the wizard lives
// elsewhere; this is only the setup-to-call seam.
type SetupHandler struct {
	handles persona.HandleStore
	tokens  *persona.TokenIssuer
	logger  *logging.Logger
}

// NewSetupHandler creates the setup endpoint handler.
func NewSetupHandler(handles persona.HandleStore, tokens *persona.TokenIssuer, logger *logging.Logger) *SetupHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &SetupHandler{handles: handles, tokens: tokens, logger: logger}
}

// SetupSessionResponse is the reply to a successful persona registration.
type SetupSessionResponse struct {
	Token     string `json:"token"`
	HandleID  string `json:"handle_id"`
	ExpiresIn int64  `json:"expires_in_seconds"`
}

// HandleCreateSession is the HTTP handler for POST /setup/session.
func (h *SetupHandler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	var p persona.Persona
	if err := json.Unmarshal(body, &p); err != nil {
		http.Error(w, "invalid persona payload", http.StatusBadRequest)
		return
	}
	p.Normalize()
	if p.BusinessName == "" {
		http.Error(w, "business_name is required", http.StatusBadRequest)
		return
	}

	handle, err := h.handles.Put(r.Context(), p)
	if err != nil {
		h.logger.Error("setup: failed to store handle", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	token, err := h.tokens.Issue(handle.ID)
	if err != nil {
		h.logger.Error("setup: failed to issue token", "handle_id", handle.ID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	h.logger.Info("setup: session registered",
		"handle_id", handle.ID,
		"business", p.BusinessName,
		"languages", p.Languages,
	)
	writeJSON(w, http.StatusCreated, SetupSessionResponse{
		Token:     token,
		HandleID:  handle.ID,
		ExpiresIn: int64(h.tokens.TTL().Seconds()),
	})
}
