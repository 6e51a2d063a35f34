package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/lumivoice/frontdesk-ai/internal/conversation"
	"github.com/lumivoice/frontdesk-ai/internal/language"
	"github.com/lumivoice/frontdesk-ai/internal/observability/metrics"
	"github.com/lumivoice/frontdesk-ai/internal/persona"
	"github.com/lumivoice/frontdesk-ai/internal/session"
	"github.com/lumivoice/frontdesk-ai/internal/trial"
	"github.com/lumivoice/frontdesk-ai/pkg/logging"
)

// ----- Voice webhook event types -----

const (
	EventCallStarted   = "call.started"
	EventCallUtterance = "call.utterance"
	EventCallEnded     = "call.ended"
)

// VoiceEvent is the transport's webhook payload. One event per caller turn;
// the transport blocks the caller until our response arrives.
type VoiceEvent struct {
	// Event identifies the lifecycle stage: call.started, call.utterance
	// or call.ended.
	Event string `json:"event"`
	// CallID is the transport-assigned call identifier.
	CallID string `json:"call_id"`
	// Caller is the caller's address (E.164), the trial ledger key.
	Caller string `json:"caller,omitempty"`
	// Destination is the number that received the call.
	Destination string `json:"destination,omitempty"`
	// Utterance is the caller's transcribed speech, empty on silence.
	Utterance string `json:"utterance,omitempty"`
	// DetectedLanguage is the transport's own language detection, if any.
	DetectedLanguage string `json:"detected_language,omitempty"`
	// SetupToken links the call to a setup-session persona.
	SetupToken string `json:"setup_token,omitempty"`
}

const (
	CommandSpeak  = "speak"
	CommandPause  = "pause"
	CommandListen = "listen"
	CommandHangup = "hangup"
)

// Command is one directive in the ordered script returned to the transport.
type Command struct {
	Type                string `json:"type"`
	Text                string `json:"text,omitempty"`
	Voice               string `json:"voice,omitempty"`
	RecognitionLanguage string `json:"recognition_language,omitempty"`
}

// VoiceResponse is the synchronous webhook reply: the full script for this
// turn. Every non-hangup script ends with a listen command re-asserting the
// active recognition language.
type VoiceResponse struct {
	Commands []Command `json:"commands"`
}

const trialDeniedMessage = "Thanks for calling! This number's free trial call has already been used. " +
	"Please finish signing up on our website to keep going. Goodbye!"

// ----- Handler -----

// VoiceWebhookHandler is the request/response transport binding. Each
// webhook carries one caller turn and the response carries the complete
// script for it, so the handler holds no per-connection state of its own.
type VoiceWebhookHandler struct {
	registry  session.Registry
	guard     *trial.Guard
	processor *conversation.Processor
	handles   persona.HandleStore
	tokens    *persona.TokenIssuer
	metrics   *metrics.CallMetrics
	logger    *logging.Logger

	defaultLang string
}

// VoiceWebhookConfig configures the VoiceWebhookHandler.
type VoiceWebhookConfig struct {
	Registry        session.Registry
	Guard           *trial.Guard
	Processor       *conversation.Processor
	Handles         persona.HandleStore
	Tokens          *persona.TokenIssuer
	Metrics         *metrics.CallMetrics
	Logger          *logging.Logger
	DefaultLanguage string
}

// NewVoiceWebhookHandler creates the Binding A handler.
func NewVoiceWebhookHandler(cfg VoiceWebhookConfig) *VoiceWebhookHandler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = "en"
	}
	return &VoiceWebhookHandler{
		registry:    cfg.Registry,
		guard:       cfg.Guard,
		processor:   cfg.Processor,
		handles:     cfg.Handles,
		tokens:      cfg.Tokens,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		defaultLang: cfg.DefaultLanguage,
	}
}

// HandleVoice is the HTTP handler for POST /webhooks/voice.
func (h *VoiceWebhookHandler) HandleVoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		h.logger.Error("voice webhook: failed to read body", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	var event VoiceEvent
	if err := json.Unmarshal(body, &event); err != nil {
		h.logger.Error("voice webhook: failed to parse event", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if event.CallID == "" {
		http.Error(w, "call_id is required", http.StatusBadRequest)
		return
	}

	switch event.Event {
	case EventCallStarted:
		h.handleStarted(ctx, w, event)
	case EventCallUtterance:
		h.handleUtterance(ctx, w, event)
	case EventCallEnded:
		h.handleEnded(w, event)
	default:
		h.logger.Warn("voice webhook: unknown event", "event", event.Event, "call_id", event.CallID)
		http.Error(w, "unknown event", http.StatusBadRequest)
	}
}

func (h *VoiceWebhookHandler) handleStarted(ctx context.Context, w http.ResponseWriter, event VoiceEvent) {
	// Retried webhooks must not greet twice or create a second session.
	if existing, err := h.registry.Get(event.CallID); err == nil {
		h.logger.Info("voice webhook: duplicate call.started", "call_id", event.CallID)
		writeJSON(w, http.StatusOK, VoiceResponse{Commands: []Command{
			listenCommand(existing.ActiveLanguage(), h.defaultLang),
		}})
		return
	}
	// A retry arriving after the call ended is equally a duplicate. It must
	// not resurrect the call, and it must never be answered as a trial
	// denial: this call already held the reservation.
	if h.registry.EndedRecently(event.CallID) {
		h.logger.Info("voice webhook: call.started retry for ended call", "call_id", event.CallID)
		writeJSON(w, http.StatusOK, VoiceResponse{Commands: []Command{}})
		return
	}

	if err := h.guard.Admit(ctx, event.Caller, event.CallID); err != nil {
		if errors.Is(err, trial.ErrAlreadyUsed) {
			h.logger.Info("voice webhook: trial already used", "caller", event.Caller)
			h.metrics.TrialRejected()
			voice := language.VoiceFor(h.defaultLang, h.defaultLang)
			writeJSON(w, http.StatusOK, VoiceResponse{Commands: []Command{
				{Type: CommandSpeak, Text: trialDeniedMessage, Voice: voice.SynthesisVoice},
				{Type: CommandHangup},
			}})
			return
		}
		h.logger.Error("voice webhook: trial check failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	p := h.resolvePersona(ctx, event.SetupToken)
	sess, err := h.registry.Create(event.CallID, event.Caller, p)
	if err != nil {
		if errors.Is(err, session.ErrDuplicateSession) {
			// Lost the race with a concurrent retry; still a no-op.
			writeJSON(w, http.StatusOK, VoiceResponse{Commands: []Command{
				listenCommand(p.PrimaryLanguage(), h.defaultLang),
			}})
			return
		}
		h.logger.Error("voice webhook: session create failed", "call_id", event.CallID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	h.metrics.SessionStarted()
	h.logger.Info("voice webhook: call started",
		"call_id", event.CallID,
		"caller", event.Caller,
		"business", p.BusinessName,
		"language", sess.ActiveLanguage(),
	)

	res := h.processor.GreetingResult(sess)
	writeJSON(w, http.StatusOK, h.serialize(res, sess.ActiveLanguage()))
}

func (h *VoiceWebhookHandler) handleUtterance(ctx context.Context, w http.ResponseWriter, event VoiceEvent) {
	sess, err := h.registry.Get(event.CallID)
	if err != nil {
		// The session may have been reaped or the call never started.
		h.logger.Warn("voice webhook: utterance for unknown session", "call_id", event.CallID)
		writeJSON(w, http.StatusOK, VoiceResponse{Commands: []Command{{Type: CommandHangup}}})
		return
	}

	res := h.processor.HandleTurn(ctx, sess, event.Utterance, event.DetectedLanguage)
	h.observeTurn(res)
	if res.EndCall && h.registry.Remove(event.CallID) {
		h.metrics.SessionEnded("expired")
	}
	writeJSON(w, http.StatusOK, h.serialize(res, sess.ActiveLanguage()))
}

func (h *VoiceWebhookHandler) handleEnded(w http.ResponseWriter, event VoiceEvent) {
	// Remove reports whether this event actually ended the call, so a
	// retried call.ended never double-counts the session metric.
	if h.registry.Remove(event.CallID) {
		h.metrics.SessionEnded("completed")
		h.logger.Info("voice webhook: call ended", "call_id", event.CallID)
	}
	writeJSON(w, http.StatusOK, VoiceResponse{Commands: []Command{}})
}

// resolvePersona maps a setup token to its persona snapshot. An invalid or
// absent token falls back to the most recent setup session, then to a
// generic receptionist, so a demo call always gets an agent.
func (h *VoiceWebhookHandler) resolvePersona(ctx context.Context, token string) persona.Persona {
	if token != "" && h.tokens != nil {
		if id, err := h.tokens.Verify(token); err == nil {
			if handle, err := h.handles.Get(ctx, id); err == nil {
				_ = h.handles.Touch(ctx, id)
				return handle.Persona
			}
			h.logger.Warn("voice webhook: token references unknown handle", "handle_id", id)
		} else {
			h.logger.Warn("voice webhook: invalid setup token", "error", err)
		}
	}
	if h.handles != nil {
		if handle, err := h.handles.MostRecent(ctx); err == nil {
			_ = h.handles.Touch(ctx, handle.ID)
			return handle.Persona
		}
	}
	return persona.Persona{Languages: []string{h.defaultLang}}
}

// serialize flattens a turn result into the webhook command script. The
// active recognition language is re-asserted on every non-hangup response;
// this binding has no out-of-band channel for language changes.
func (h *VoiceWebhookHandler) serialize(res conversation.TurnResult, activeLang string) VoiceResponse {
	commands := make([]Command, 0, len(res.Utterances)+1)
	for _, u := range res.Utterances {
		if u.Pause {
			commands = append(commands, Command{Type: CommandPause})
			continue
		}
		if strings.TrimSpace(u.Text) == "" {
			continue
		}
		commands = append(commands, Command{
			Type:  CommandSpeak,
			Text:  u.Text,
			Voice: u.Voice.SynthesisVoice,
		})
	}
	if res.EndCall {
		commands = append(commands, Command{Type: CommandHangup})
	} else {
		commands = append(commands, listenCommand(activeLang, h.defaultLang))
	}
	return VoiceResponse{Commands: commands}
}

func (h *VoiceWebhookHandler) observeTurn(res conversation.TurnResult) {
	switch {
	case res.NewLanguage != nil:
		h.metrics.ObserveTurn("handoff")
		h.metrics.ObserveHandoff(res.NewLanguage.Code)
	case res.EndCall:
		h.metrics.ObserveTurn("expired")
	default:
		h.metrics.ObserveTurn("ok")
	}
}

func listenCommand(lang, defaultLang string) Command {
	voice := language.VoiceFor(lang, defaultLang)
	return Command{Type: CommandListen, RecognitionLanguage: voice.RecognitionLocale}
}
