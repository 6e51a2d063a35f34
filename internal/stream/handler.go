package stream

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lumivoice/frontdesk-ai/internal/conversation"
	"github.com/lumivoice/frontdesk-ai/internal/language"
	"github.com/lumivoice/frontdesk-ai/internal/observability/metrics"
	"github.com/lumivoice/frontdesk-ai/internal/persona"
	"github.com/lumivoice/frontdesk-ai/internal/session"
	"github.com/lumivoice/frontdesk-ai/internal/trial"
	"github.com/lumivoice/frontdesk-ai/pkg/logging"
)

const (
	maxFrameBytes    = 1 << 20
	handshakeTimeout = 5 * time.Second
)

const trialDeniedMessage = "Thanks for calling! This number's free trial call has already been used. " +
	"Please finish signing up on our website to keep going. Goodbye!"

// Handler is the persistent-stream transport binding. One websocket carries
// one call: the first frame must be start, every utterance frame produces a
// script of speak frames, and closing the connection ends the call.
type Handler struct {
	registry  session.Registry
	guard     *trial.Guard
	processor *conversation.Processor
	handles   persona.HandleStore
	tokens    *persona.TokenIssuer
	metrics   *metrics.CallMetrics
	logger    *logging.Logger

	defaultLang string
	upgrader    websocket.Upgrader
}

// HandlerConfig configures the stream handler.
type HandlerConfig struct {
	Registry        session.Registry
	Guard           *trial.Guard
	Processor       *conversation.Processor
	Handles         persona.HandleStore
	Tokens          *persona.TokenIssuer
	Metrics         *metrics.CallMetrics
	Logger          *logging.Logger
	DefaultLanguage string
	CheckOrigin     func(*http.Request) bool
}

// NewHandler creates the Binding B handler.
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = "en"
	}
	checkOrigin := cfg.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Handler{
		registry:    cfg.Registry,
		guard:       cfg.Guard,
		processor:   cfg.Processor,
		handles:     cfg.Handles,
		tokens:      cfg.Tokens,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		defaultLang: cfg.DefaultLanguage,
		upgrader:    websocket.Upgrader{CheckOrigin: checkOrigin},
	}
}

// ServeHTTP is the handler for GET /stream/voice.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxFrameBytes)

	ctx := r.Context()

	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	start, err := h.readFrame(conn)
	if err != nil || start.Type != FrameStart {
		h.writeError(conn, "first frame must be start")
		return
	}
	if strings.TrimSpace(start.CallID) == "" {
		h.writeError(conn, "call_id is required")
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	// A retried start for a call that already ended is ignored, not denied:
	// that call held its own trial reservation.
	if h.registry.EndedRecently(start.CallID) {
		h.logger.Info("stream: start retry for ended call", "call_id", start.CallID)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "call ended"),
			time.Now().Add(time.Second))
		return
	}

	if err := h.guard.Admit(ctx, start.Caller, start.CallID); err != nil {
		if errors.Is(err, trial.ErrAlreadyUsed) {
			h.logger.Info("stream: trial already used", "caller", start.Caller)
			h.metrics.TrialRejected()
			voice := language.VoiceFor(h.defaultLang, h.defaultLang)
			h.writeSpeak(conn, trialDeniedMessage, voice, true)
			return
		}
		h.logger.Error("stream: trial check failed", "error", err)
		h.writeError(conn, "internal error")
		return
	}

	p := h.resolvePersona(ctx, start.SetupToken)
	sess, err := h.registry.Create(start.CallID, start.Caller, p)
	if err != nil {
		if errors.Is(err, session.ErrDuplicateSession) {
			h.writeError(conn, "call already in progress")
			return
		}
		h.logger.Error("stream: session create failed", "call_id", start.CallID, "error", err)
		h.writeError(conn, "internal error")
		return
	}
	h.metrics.SessionStarted()
	h.logger.Info("stream: call started",
		"call_id", start.CallID,
		"caller", start.Caller,
		"business", p.BusinessName,
		"language", sess.ActiveLanguage(),
	)

	outcome := "abandoned"
	defer func() {
		// Whatever ends the connection ends the call. The reaper may get
		// there first; only the path that removes the session counts it.
		if h.registry.Remove(start.CallID) {
			h.metrics.SessionEnded(outcome)
		}
		h.logger.Info("stream: call closed", "call_id", start.CallID, "outcome", outcome)
	}()

	h.writeLanguage(conn, sess.ActiveLanguage())
	h.writeResult(conn, h.processor.GreetingResult(sess))

	for {
		frame, err := h.readFrame(conn)
		if err != nil {
			return
		}
		switch frame.Type {
		case FrameUtterance:
			res := h.processor.HandleTurn(ctx, sess, frame.Text, frame.DetectedLanguage)
			h.observeTurn(res)
			h.writeResult(conn, res)
			if res.EndCall {
				outcome = "expired"
				return
			}
		case FrameInterrupt:
			// The transport cut TTS short; nothing to unwind on our side,
			// the next utterance frame carries what the caller said over us.
			h.logger.Debug("stream: interrupted", "call_id", start.CallID)
		case FrameEnd:
			outcome = "completed"
			return
		case FrameStart:
			h.writeError(conn, "call already started")
		}
	}
}

func (h *Handler) readFrame(conn *websocket.Conn) (ClientFrame, error) {
	messageType, data, err := conn.ReadMessage()
	if err != nil {
		return ClientFrame{}, err
	}
	if messageType != websocket.TextMessage {
		return ClientFrame{}, errors.New("stream: expected text frame")
	}
	return DecodeClientFrame(data)
}

// writeResult serializes one turn's script. A hand-off pushes set_language
// between the old-voice announcement and the new-voice greeting; the control
// frame itself gives the transport the pause leg's gap.
func (h *Handler) writeResult(conn *websocket.Conn, res conversation.TurnResult) {
	finalIdx := -1
	for i, u := range res.Utterances {
		if !u.Pause && strings.TrimSpace(u.Text) != "" {
			finalIdx = i
		}
	}
	for i, u := range res.Utterances {
		if u.Pause {
			if res.NewLanguage != nil {
				h.writeLanguage(conn, res.NewLanguage.Code)
			}
			continue
		}
		if strings.TrimSpace(u.Text) == "" {
			continue
		}
		h.writeSpeak(conn, u.Text, u.Voice, i == finalIdx)
	}
	if res.EndCall {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "call ended"),
			time.Now().Add(time.Second))
	}
}

func (h *Handler) writeSpeak(conn *websocket.Conn, text string, voice language.Voice, isFinal bool) {
	_ = conn.WriteJSON(SpeakFrame{
		Type:    FrameSpeak,
		Text:    text,
		Voice:   voice.SynthesisVoice,
		IsFinal: isFinal,
	})
}

func (h *Handler) writeLanguage(conn *websocket.Conn, lang string) {
	voice := language.VoiceFor(lang, h.defaultLang)
	_ = conn.WriteJSON(SetLanguageFrame{
		Type:                FrameSetLanguage,
		SynthesisVoice:      voice.SynthesisVoice,
		RecognitionLanguage: voice.RecognitionLocale,
	})
}

func (h *Handler) writeError(conn *websocket.Conn, reason string) {
	_ = conn.WriteJSON(ErrorFrame{Type: FrameError, Reason: reason})
}

func (h *Handler) resolvePersona(ctx context.Context, token string) persona.Persona {
	if token != "" && h.tokens != nil {
		if id, err := h.tokens.Verify(token); err == nil {
			if handle, err := h.handles.Get(ctx, id); err == nil {
				_ = h.handles.Touch(ctx, id)
				return handle.Persona
			}
			h.logger.Warn("stream: token references unknown handle", "handle_id", id)
		} else {
			h.logger.Warn("stream: invalid setup token", "error", err)
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

func (h *Handler) observeTurn(res conversation.TurnResult) {
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
