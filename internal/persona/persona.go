package persona

import (
	"strings"
	"time"
)

// Persona is the immutable snapshot of a business's agent configuration,
// captured when the call starts. A persona edited mid-call never touches an
// active session.
type Persona struct {
	BusinessName string   `json:"business_name"`
	Category     string   `json:"category,omitempty"`
	Description  string   `json:"description,omitempty"`
	Hours        string   `json:"hours,omitempty"`
	Rules        []string `json:"rules,omitempty"`
	// CustomGreeting overrides the default greeting when set.
	CustomGreeting string `json:"custom_greeting,omitempty"`
	// Languages is the ordered list of supported language codes; the first
	// entry is the primary language the call starts in.
	Languages []string `json:"languages,omitempty"`
}

// Normalize trims fields and lowercases language codes in place.
func (p *Persona) Normalize() {
	p.BusinessName = strings.TrimSpace(p.BusinessName)
	p.Category = strings.TrimSpace(p.Category)
	p.Description = strings.TrimSpace(p.Description)
	p.Hours = strings.TrimSpace(p.Hours)
	p.CustomGreeting = strings.TrimSpace(p.CustomGreeting)
	langs := p.Languages[:0]
	for _, l := range p.Languages {
		if l = strings.ToLower(strings.TrimSpace(l)); l != "" {
			langs = append(langs, l)
		}
	}
	p.Languages = langs
}

// PrimaryLanguage returns the first configured language, or "en".
func (p *Persona) PrimaryLanguage() string {
	if len(p.Languages) > 0 {
		return p.Languages[0]
	}
	return "en"
}

// Greeting returns the configured greeting or a default built from the
// business name.
func (p *Persona) Greeting(fallback string) string {
	if p.CustomGreeting != "" {
		return p.CustomGreeting
	}
	return fallback
}

// Handle is the short-lived mapping from a setup-session token to a persona
// snapshot. It is created when a business finishes the setup wizard and
// consumed when their trial call arrives.
type Handle struct {
	ID         string    `json:"id"`
	Persona    Persona   `json:"persona"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// Expired reports whether the handle has been idle longer than ttl.
func (h *Handle) Expired(now time.Time, ttl time.Duration) bool {
	last := h.LastSeenAt
	if last.IsZero() {
		last = h.CreatedAt
	}
	return now.Sub(last) > ttl
}
