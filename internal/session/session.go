package session

import (
	"sync"
	"time"

	"github.com/lumivoice/frontdesk-ai/internal/persona"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one entry in a call's conversation history. Insertion order is
// significant; the history is append-only for the life of the call.
type Turn struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// CallSession is the mutable state of one in-progress call. Its value ends
// with the call: nothing here survives a process restart.
//
// The registry lock only guards the id index; each session carries its own
// mutex so a turn in flight for one call never blocks another call, and so
// no lock is ever held across the remote completion call.
type CallSession struct {
	mu sync.Mutex

	// ID is the transport-assigned call identifier.
	ID string
	// CallerIdentity is the caller's address, the trial ledger key.
	CallerIdentity string
	// Persona is the immutable snapshot captured at call start.
	Persona persona.Persona
	// StartedAt anchors the trial time budget.
	StartedAt time.Time

	history        []Turn
	lastActivityAt time.Time

	activeLanguage string
	pendingLang    string
	pendingStreak  int

	removed bool
}

// AppendTurn appends one history entry and bumps the activity clock.
// Returns false if the session was already removed; the caller must discard
// the turn's result rather than resurrect state.
func (s *CallSession) AppendTurn(role, text string, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removed {
		return false
	}
	s.history = append(s.history, Turn{Role: role, Text: text, Timestamp: at})
	s.lastActivityAt = at
	return true
}

// History returns a copy of the conversation so far.
func (s *CallSession) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.history))
	copy(out, s.history)
	return out
}

// TurnCount returns how many history entries the call has accumulated.
func (s *CallSession) TurnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

// ActiveLanguage returns the language currently spoken to the caller.
func (s *CallSession) ActiveLanguage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeLanguage
}

// SetActiveLanguage records a completed hand-off and clears the pending
// candidate.
func (s *CallSession) SetActiveLanguage(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeLanguage = code
	s.pendingLang = ""
	s.pendingStreak = 0
}

// LanguageState returns the hysteresis state carried between turns.
func (s *CallSession) LanguageState() (active, pending string, streak int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeLanguage, s.pendingLang, s.pendingStreak
}

// SetPendingLanguage stores the updated hysteresis state after a turn.
func (s *CallSession) SetPendingLanguage(pending string, streak int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingLang = pending
	s.pendingStreak = streak
}

// Touch bumps the activity clock without appending history (empty-utterance
// retries must not leave the session reapable while the caller keeps trying).
func (s *CallSession) Touch(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if at.After(s.lastActivityAt) {
		s.lastActivityAt = at
	}
}

// LastActivityAt returns the most recent interaction time.
func (s *CallSession) LastActivityAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivityAt
}

// markRemoved flags the session so a racing in-flight turn aborts its writes.
func (s *CallSession) markRemoved() {
	s.mu.Lock()
	s.removed = true
	s.mu.Unlock()
}

// Removed reports whether the session was evicted from the registry.
func (s *CallSession) Removed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removed
}
