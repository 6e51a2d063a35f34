package conversation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/lumivoice/frontdesk-ai/internal/language"
	"github.com/lumivoice/frontdesk-ai/internal/session"
	"github.com/lumivoice/frontdesk-ai/internal/trial"
	"github.com/lumivoice/frontdesk-ai/pkg/logging"
)

const (
	defaultCompletionDeadline = 10 * time.Second
	defaultMaxHistoryTurns    = 24
	defaultMaxTokens          = 300
)

var llmTracer = otel.Tracer("frontdesk.internal.conversation.llm")

var llmLatency = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "frontdesk",
		Subsystem: "conversation",
		Name:      "llm_latency_seconds",
		Help:      "Latency of LLM completions",
		Buckets:   []float64{0.25, 0.5, 1, 2, 3, 4, 5, 6, 8, 10, 15},
	},
	[]string{"model", "status"},
)

var llmTokensTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "frontdesk",
		Subsystem: "conversation",
		Name:      "llm_tokens_total",
		Help:      "Tokens used by the LLM",
	},
	[]string{"model", "type"}, // type: input, output, total
)

func init() {
	prometheus.MustRegister(llmLatency)
	prometheus.MustRegister(llmTokensTotal)
}

// Processor turns one caller utterance into the next outgoing script. One
// Processor serves all concurrent calls; per-call state lives entirely in
// the session.
type Processor struct {
	client CompletionClient
	guard  *trial.Guard
	logger *logging.Logger

	model       string
	deadline    time.Duration
	maxHistory  int
	defaultLang string
	confirm     int
	now         func() time.Time
}

// ProcessorConfig configures a Processor. Now may be nil.
type ProcessorConfig struct {
	Client             CompletionClient
	Guard              *trial.Guard
	Logger             *logging.Logger
	Model              string
	CompletionDeadline time.Duration
	MaxHistoryTurns    int
	DefaultLanguage    string
	SwitchConfirmTurns int
	Now                func() time.Time
}

// NewProcessor creates a turn processor.
func NewProcessor(cfg ProcessorConfig) *Processor {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.CompletionDeadline <= 0 {
		cfg.CompletionDeadline = defaultCompletionDeadline
	}
	if cfg.MaxHistoryTurns <= 0 {
		cfg.MaxHistoryTurns = defaultMaxHistoryTurns
	}
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = "en"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Processor{
		client:      cfg.Client,
		guard:       cfg.Guard,
		logger:      cfg.Logger,
		model:       cfg.Model,
		deadline:    cfg.CompletionDeadline,
		maxHistory:  cfg.MaxHistoryTurns,
		defaultLang: cfg.DefaultLanguage,
		confirm:     cfg.SwitchConfirmTurns,
		now:         cfg.Now,
	}
}

// HandleTurn processes one caller utterance for the given session.
// detectedHint is the transport's language detection for this turn, empty
// when the transport provides none (Binding A has no detection of its own).
func (p *Processor) HandleTurn(ctx context.Context, sess *session.CallSession, callerUtterance, detectedHint string) TurnResult {
	activeVoice := language.VoiceFor(sess.ActiveLanguage(), p.defaultLang)

	// Empty or unintelligible speech never reaches the model and never
	// touches history: the caller may retry indefinitely without state
	// corruption, and the idle clock still advances so the reaper can
	// reclaim a genuinely abandoned call.
	if strings.TrimSpace(callerUtterance) == "" {
		sess.Touch(p.now().UTC())
		return speakOne(activeVoice.RepeatPhrase, activeVoice)
	}

	if p.guard.Expired(sess.StartedAt) {
		return TurnResult{
			Utterances: []Utterance{{Text: activeVoice.ClosingPhrase, Voice: activeVoice}},
			EndCall:    true,
		}
	}

	if !sess.AppendTurn(session.RoleUser, callerUtterance, p.now().UTC()) {
		// Session was removed while this turn was queued.
		return TurnResult{EndCall: true}
	}

	raw, err := p.complete(ctx, sess)
	if err != nil {
		// Recoverable per turn: the session stays open and no assistant
		// reply is recorded, since none was produced.
		if errors.Is(err, context.DeadlineExceeded) {
			p.logger.Warn("completion deadline exceeded", "call_id", sess.ID)
			return speakOne(activeVoice.FillerPhrase, activeVoice)
		}
		p.logger.Error("completion failed", "call_id", sess.ID, "error", err)
		return speakOne(activeVoice.ApologyPhrase, activeVoice)
	}

	cleaned, directive := ParseDirectives(raw)
	spoken := SanitizeSpoken(cleaned)
	if spoken == "" {
		spoken = activeVoice.RepeatPhrase
	}

	// History keeps the raw reply, tags included: the model's record of
	// what it said must not be corrupted by TTS-oriented stripping, and
	// seeing its own tags keeps it following the protocol.
	if !sess.AppendTurn(session.RoleAssistant, raw, p.now().UTC()) {
		return TurnResult{EndCall: true}
	}

	result := p.applyLanguagePolicy(sess, directive, detectedHint, spoken)

	// The completion itself may have consumed the rest of the budget.
	if p.guard.Expired(sess.StartedAt) {
		closingVoice := language.VoiceFor(sess.ActiveLanguage(), p.defaultLang)
		result.Utterances = append(result.Utterances, Utterance{
			Text:  closingVoice.ClosingPhrase,
			Voice: closingVoice,
		})
		result.EndCall = true
	}
	return result
}

// GreetingResult builds the opening script for a freshly created session.
func (p *Processor) GreetingResult(sess *session.CallSession) TurnResult {
	voice := language.VoiceFor(sess.ActiveLanguage(), p.defaultLang)
	text := Greeting(sess.Persona, sess.ActiveLanguage(), p.defaultLang)
	sess.AppendTurn(session.RoleAssistant, text, p.now().UTC())
	return speakOne(text, voice)
}

// conversationWindow builds the message list the chat providers accept from
// the history tail. Bedrock Converse and Gemini both require the list to
// open with a user turn and roles to strictly alternate, so leading
// assistant turns (the greeting, or a window cut mid-pair) are dropped and
// consecutive same-role turns (a caller turn orphaned by a failed
// completion) are merged into one message.
func conversationWindow(history []session.Turn, maxTurns int) []ChatMessage {
	if len(history) > maxTurns {
		history = history[len(history)-maxTurns:]
	}
	for len(history) > 0 && history[0].Role != session.RoleUser {
		history = history[1:]
	}
	messages := make([]ChatMessage, 0, len(history))
	for _, turn := range history {
		if n := len(messages); n > 0 && messages[n-1].Role == turn.Role {
			messages[n-1].Content += "\n" + turn.Text
			continue
		}
		messages = append(messages, ChatMessage{Role: turn.Role, Content: turn.Text})
	}
	return messages
}

func (p *Processor) complete(ctx context.Context, sess *session.CallSession) (string, error) {
	messages := conversationWindow(sess.History(), p.maxHistory)

	req := CompletionRequest{
		Model:       p.model,
		System:      BuildSystemPrompt(sess.Persona, sess.ActiveLanguage()),
		Messages:    messages,
		MaxTokens:   defaultMaxTokens,
		Temperature: -1,
	}

	callCtx, cancel := context.WithTimeout(ctx, p.deadline)
	defer cancel()

	spanCtx, span := llmTracer.Start(callCtx, "conversation.complete")
	span.SetAttributes(
		attribute.String("llm.model", p.model),
		attribute.Int("llm.history_turns", len(messages)),
	)
	start := time.Now()
	resp, err := p.client.Complete(spanCtx, req)
	elapsed := time.Since(start).Seconds()
	span.End()

	status := "ok"
	if err != nil {
		status = "error"
		if errors.Is(err, context.DeadlineExceeded) {
			status = "timeout"
		}
	}
	llmLatency.WithLabelValues(p.model, status).Observe(elapsed)
	if err != nil {
		return "", err
	}

	llmTokensTotal.WithLabelValues(p.model, "input").Add(float64(resp.Usage.InputTokens))
	llmTokensTotal.WithLabelValues(p.model, "output").Add(float64(resp.Usage.OutputTokens))
	llmTokensTotal.WithLabelValues(p.model, "total").Add(float64(resp.Usage.TotalTokens))
	return resp.Text, nil
}

// applyLanguagePolicy runs the hysteresis over this turn's detection signals
// and delegates to the hand-off script when a switch is confirmed. The
// transport's own detection outranks the model's tag when both are present.
func (p *Processor) applyLanguagePolicy(sess *session.CallSession, d Directive, detectedHint, spoken string) TurnResult {
	policy := language.NewPolicy(sess.Persona.Languages, p.confirm)
	active, pending, streak := sess.LanguageState()

	// An explicit caller request bypasses the debounce entirely.
	if d.SwitchLanguage != "" {
		if sw := policy.ForceSwitch(active, d.SwitchLanguage); sw != nil {
			return p.switchTo(sess, *sw, spoken)
		}
	}

	detected := detectedHint
	if detected == "" {
		detected = d.DetectedLanguage
	}

	decision := policy.Observe(active, pending, streak, detected)
	if decision.Switch != nil {
		return p.switchTo(sess, *decision.Switch, spoken)
	}
	sess.SetPendingLanguage(decision.Pending, decision.Streak)

	return speakOne(spoken, language.VoiceFor(active, p.defaultLang))
}

func (p *Processor) switchTo(sess *session.CallSession, sw language.Switch, spoken string) TurnResult {
	sess.SetActiveLanguage(sw.To)
	newVoice := language.VoiceFor(sw.To, p.defaultLang)
	p.logger.Info("language hand-off",
		"call_id", sess.ID,
		"from", sw.From,
		"to", sw.To,
	)
	return TurnResult{
		Utterances:  HandoffScript(sw, spoken, sess.Persona, p.defaultLang),
		NewLanguage: &newVoice,
	}
}
