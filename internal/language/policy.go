package language

import "strings"

// DefaultConfirmTurns is how many consecutive turns must detect the same
// non-active language before a switch is confirmed. A single stray foreign
// word or an STT misrecognition must not flip the call's language.
const DefaultConfirmTurns = 2

// Switch directs the hand-off controller to move the call from one language
// to another.
type Switch struct {
	From string
	To   string
}

// Decision is the outcome of observing one turn's detection signal. Pending
// and Streak are the updated hysteresis state the session must carry into the
// next turn.
type Decision struct {
	Switch  *Switch
	Pending string
	Streak  int
}

// Policy decides when a detected language change becomes a real switch.
// Supported is the business's configured language list, ordered, first entry
// primary. An empty Supported list permits any detected language.
type Policy struct {
	Supported    []string
	ConfirmTurns int
}

// NewPolicy builds a policy over the business's configured languages.
func NewPolicy(supported []string, confirmTurns int) *Policy {
	if confirmTurns <= 0 {
		confirmTurns = DefaultConfirmTurns
	}
	normalized := make([]string, 0, len(supported))
	for _, code := range supported {
		if code = Normalize(code); code != "" {
			normalized = append(normalized, code)
		}
	}
	return &Policy{Supported: normalized, ConfirmTurns: confirmTurns}
}

// Primary returns the business's primary language, or "en" when none is
// configured.
func (p *Policy) Primary() string {
	if len(p.Supported) > 0 {
		return p.Supported[0]
	}
	return "en"
}

// Allows reports whether the business supports the given language code.
func (p *Policy) Allows(code string) bool {
	if len(p.Supported) == 0 {
		return true
	}
	code = Normalize(code)
	for _, s := range p.Supported {
		if s == code {
			return true
		}
	}
	return false
}

// Observe applies the hysteresis rule to one turn's detection signal.
//
// active is the session's current language; pending/streak are the carried
// hysteresis state; detected is this turn's detected language code, empty when
// detection produced nothing usable.
func (p *Policy) Observe(active, pending string, streak int, detected string) Decision {
	active = Normalize(active)
	detected = Normalize(detected)

	// An ambiguous turn clears the streak. One silent or garbled turn must
	// not keep an old candidate alive.
	if detected == "" {
		return Decision{}
	}

	if detected == active {
		return Decision{}
	}

	if !p.Allows(detected) {
		// Unsupported detections never accumulate.
		return Decision{}
	}

	if detected == Normalize(pending) {
		streak++
		if streak >= p.ConfirmTurns {
			return Decision{Switch: &Switch{From: active, To: detected}}
		}
		return Decision{Pending: detected, Streak: streak}
	}

	// A different candidate restarts the confirmation count.
	return Decision{Pending: detected, Streak: 1}
}

// ForceSwitch bypasses the hysteresis for an explicit caller request
// ("please speak English"). Returns nil when the target is unsupported or
// already active.
func (p *Policy) ForceSwitch(active, to string) *Switch {
	active = Normalize(active)
	to = Normalize(to)
	if to == "" || to == active || !p.Allows(to) {
		return nil
	}
	return &Switch{From: active, To: to}
}

// Normalize lowercases a language code and trims it to its primary subtag
// ("en-US" -> "en").
func Normalize(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if i := strings.IndexAny(code, "-_"); i > 0 {
		code = code[:i]
	}
	return code
}
