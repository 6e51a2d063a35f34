package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumivoice/frontdesk-ai/internal/conversation"
	"github.com/lumivoice/frontdesk-ai/internal/observability/metrics"
	"github.com/lumivoice/frontdesk-ai/internal/persona"
	"github.com/lumivoice/frontdesk-ai/internal/session"
	"github.com/lumivoice/frontdesk-ai/internal/trial"
)

type cannedClient struct {
	replies []string
	calls   int
}

func (c *cannedClient) Complete(_ context.Context, _ conversation.CompletionRequest) (conversation.CompletionResponse, error) {
	reply := "Okay. [lang:en]"
	if c.calls < len(c.replies) {
		reply = c.replies[c.calls]
	}
	c.calls++
	return conversation.CompletionResponse{Text: reply}, nil
}

type fixtureClock struct{ now time.Time }

func (c *fixtureClock) Now() time.Time          { return c.now }
func (c *fixtureClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type webhookFixture struct {
	handler  *VoiceWebhookHandler
	registry *session.MemoryRegistry
	handles  persona.HandleStore
	tokens   *persona.TokenIssuer
	client   *cannedClient
	clock    *fixtureClock
	prom     *prometheus.Registry
}

func newWebhookFixture(t *testing.T, enforce bool, replies ...string) *webhookFixture {
	t.Helper()
	clock := &fixtureClock{now: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)}
	client := &cannedClient{replies: replies}
	guard := trial.NewGuard(trial.NewMemoryLedger(), enforce, 3*time.Minute, clock.Now)
	registry := session.NewMemoryRegistry(clock.Now)
	handles := persona.NewMemoryHandleStore(time.Hour, clock.Now)
	tokens := persona.NewTokenIssuer("test-secret", time.Hour, clock.Now)
	processor := conversation.NewProcessor(conversation.ProcessorConfig{
		Client:             client,
		Guard:              guard,
		Model:              "test-model",
		DefaultLanguage:    "en",
		SwitchConfirmTurns: 2,
		Now:                clock.Now,
	})
	prom := prometheus.NewRegistry()
	handler := NewVoiceWebhookHandler(VoiceWebhookConfig{
		Registry:        registry,
		Guard:           guard,
		Processor:       processor,
		Handles:         handles,
		Tokens:          tokens,
		Metrics:         metrics.NewCallMetrics(prom),
		DefaultLanguage: "en",
	})
	return &webhookFixture{
		handler:  handler,
		registry: registry,
		handles:  handles,
		tokens:   tokens,
		client:   client,
		clock:    clock,
		prom:     prom,
	}
}

// gaugeValue reads one gauge from the fixture's metrics registry.
func (f *webhookFixture) gaugeValue(t *testing.T, name string) float64 {
	t.Helper()
	families, err := f.prom.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			require.Len(t, mf.GetMetric(), 1)
			return mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	return 0
}

func (f *webhookFixture) post(t *testing.T, event VoiceEvent) (int, VoiceResponse) {
	t.Helper()
	body, err := json.Marshal(event)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/voice", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	f.handler.HandleVoice(rec, req)

	var resp VoiceResponse
	if rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec.Code, resp
}

func commandTypes(resp VoiceResponse) []string {
	types := make([]string, len(resp.Commands))
	for i, c := range resp.Commands {
		types[i] = c.Type
	}
	return types
}

func TestVoiceWebhookCallStarted(t *testing.T) {
	f := newWebhookFixture(t, true)

	code, resp := f.post(t, VoiceEvent{Event: EventCallStarted, CallID: "call-1", Caller: "+4915512345678"})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, []string{CommandSpeak, CommandListen}, commandTypes(resp))
	assert.NotEmpty(t, resp.Commands[0].Text)
	assert.NotEmpty(t, resp.Commands[0].Voice)
	assert.NotEmpty(t, resp.Commands[1].RecognitionLanguage)
	assert.Equal(t, 1, f.registry.Len())
}

func TestVoiceWebhookDuplicateStartIsNoOp(t *testing.T) {
	f := newWebhookFixture(t, true)

	_, first := f.post(t, VoiceEvent{Event: EventCallStarted, CallID: "call-1", Caller: "+4915512345678"})
	require.Equal(t, []string{CommandSpeak, CommandListen}, commandTypes(first))

	_, second := f.post(t, VoiceEvent{Event: EventCallStarted, CallID: "call-1", Caller: "+4915512345678"})
	assert.Equal(t, []string{CommandListen}, commandTypes(second), "a retried start must not greet again")
	assert.Equal(t, 1, f.registry.Len(), "a retried start must not create a second session")
}

func TestVoiceWebhookTrialDenied(t *testing.T) {
	f := newWebhookFixture(t, true)

	f.post(t, VoiceEvent{Event: EventCallStarted, CallID: "call-1", Caller: "+4915512345678"})
	code, resp := f.post(t, VoiceEvent{Event: EventCallStarted, CallID: "call-2", Caller: "+4915512345678"})

	require.Equal(t, http.StatusOK, code)
	require.Equal(t, []string{CommandSpeak, CommandHangup}, commandTypes(resp))
	assert.Contains(t, resp.Commands[0].Text, "already been used")
	assert.Equal(t, 1, f.registry.Len(), "a denied caller must never get a session")
}

func TestVoiceWebhookTrialEnforcementDisabled(t *testing.T) {
	f := newWebhookFixture(t, false)

	f.post(t, VoiceEvent{Event: EventCallStarted, CallID: "call-1", Caller: "+4915512345678"})
	_, resp := f.post(t, VoiceEvent{Event: EventCallStarted, CallID: "call-2", Caller: "+4915512345678"})

	assert.Equal(t, []string{CommandSpeak, CommandListen}, commandTypes(resp))
	assert.Equal(t, 2, f.registry.Len())
}

func TestVoiceWebhookUtterance(t *testing.T) {
	f := newWebhookFixture(t, true, "We open at nine. [lang:en]")

	f.post(t, VoiceEvent{Event: EventCallStarted, CallID: "call-1", Caller: "+4915512345678"})
	code, resp := f.post(t, VoiceEvent{Event: EventCallUtterance, CallID: "call-1", Utterance: "When do you open?"})

	require.Equal(t, http.StatusOK, code)
	require.Equal(t, []string{CommandSpeak, CommandListen}, commandTypes(resp))
	assert.Equal(t, "We open at nine.", resp.Commands[0].Text)
}

func TestVoiceWebhookUnknownSessionHangsUp(t *testing.T) {
	f := newWebhookFixture(t, true)

	code, resp := f.post(t, VoiceEvent{Event: EventCallUtterance, CallID: "ghost", Utterance: "Hello?"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{CommandHangup}, commandTypes(resp))
}

func TestVoiceWebhookHandoffScript(t *testing.T) {
	f := newWebhookFixture(t, true, "Natürlich, gerne. [lang:de] [switch:de]")

	// The default persona supports only the default language, so register a
	// multilingual persona and route the call to it.
	handle, err := f.handles.Put(context.Background(), persona.Persona{
		BusinessName: "Luna Hair Studio",
		Languages:    []string{"en", "de"},
	})
	require.NoError(t, err)
	token, err := f.tokens.Issue(handle.ID)
	require.NoError(t, err)

	f.post(t, VoiceEvent{Event: EventCallStarted, CallID: "call-1", Caller: "+4915512345678", SetupToken: token})
	_, resp := f.post(t, VoiceEvent{Event: EventCallUtterance, CallID: "call-1", Utterance: "Können wir Deutsch sprechen?"})

	require.Equal(t, []string{CommandSpeak, CommandPause, CommandSpeak, CommandSpeak, CommandListen}, commandTypes(resp))
	assert.Equal(t, "Natürlich, gerne.", resp.Commands[3].Text)
	assert.Equal(t, "de-DE", resp.Commands[4].RecognitionLanguage, "the listen command must follow the hand-off")
}

func TestVoiceWebhookCallEnded(t *testing.T) {
	f := newWebhookFixture(t, true)

	f.post(t, VoiceEvent{Event: EventCallStarted, CallID: "call-1", Caller: "+4915512345678"})
	code, resp := f.post(t, VoiceEvent{Event: EventCallEnded, CallID: "call-1"})

	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, resp.Commands)
	assert.Zero(t, f.registry.Len())
}

func TestVoiceWebhookStartRetryAfterEndIsIgnored(t *testing.T) {
	f := newWebhookFixture(t, true)

	f.post(t, VoiceEvent{Event: EventCallStarted, CallID: "call-1", Caller: "+4915512345678"})
	f.post(t, VoiceEvent{Event: EventCallEnded, CallID: "call-1"})

	code, resp := f.post(t, VoiceEvent{Event: EventCallStarted, CallID: "call-1", Caller: "+4915512345678"})
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, resp.Commands, "a retried start for an ended call is ignored, never answered as a denial")
	assert.Zero(t, f.registry.Len(), "the retry must not resurrect the call")

	// The reservation stays with the ended call; a fresh call id from the
	// same caller is still denied.
	_, fresh := f.post(t, VoiceEvent{Event: EventCallStarted, CallID: "call-2", Caller: "+4915512345678"})
	assert.Equal(t, []string{CommandSpeak, CommandHangup}, commandTypes(fresh))
}

func TestVoiceWebhookDoubleEndedCountsOnce(t *testing.T) {
	f := newWebhookFixture(t, true)

	f.post(t, VoiceEvent{Event: EventCallStarted, CallID: "call-1", Caller: "+4915512345678"})
	require.Equal(t, float64(1), f.gaugeValue(t, "frontdesk_calls_active_sessions"))

	f.post(t, VoiceEvent{Event: EventCallEnded, CallID: "call-1"})
	f.post(t, VoiceEvent{Event: EventCallEnded, CallID: "call-1"})

	assert.Equal(t, float64(0), f.gaugeValue(t, "frontdesk_calls_active_sessions"),
		"a retried call.ended must not decrement the gauge twice")
}

func TestVoiceWebhookBudgetExpiryEndsCall(t *testing.T) {
	f := newWebhookFixture(t, true, "We open at nine. [lang:en]")

	f.post(t, VoiceEvent{Event: EventCallStarted, CallID: "call-1", Caller: "+4915512345678"})
	_, ok := f.post(t, VoiceEvent{Event: EventCallUtterance, CallID: "call-1", Utterance: "When do you open?"})
	require.Equal(t, []string{CommandSpeak, CommandListen}, commandTypes(ok))

	f.clock.Advance(3*time.Minute + time.Second)
	_, expired := f.post(t, VoiceEvent{Event: EventCallUtterance, CallID: "call-1", Utterance: "One more thing"})
	require.Equal(t, []string{CommandSpeak, CommandHangup}, commandTypes(expired))
	assert.Contains(t, expired.Commands[0].Text, "Goodbye")
	assert.Zero(t, f.registry.Len(), "an expired call leaves the registry")

	// The call is over; any further turn for this id is rejected.
	_, after := f.post(t, VoiceEvent{Event: EventCallUtterance, CallID: "call-1", Utterance: "Hello?"})
	assert.Equal(t, []string{CommandHangup}, commandTypes(after))
}

func TestVoiceWebhookRejectsGarbage(t *testing.T) {
	f := newWebhookFixture(t, true)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/voice", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	f.handler.HandleVoice(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	code, _ := f.post(t, VoiceEvent{Event: "call.imaginary", CallID: "call-1"})
	assert.Equal(t, http.StatusBadRequest, code)
}
