package conversation

import (
	"regexp"
	"strings"
)

// Directive is an out-of-band signal the model embeds in its reply text.
// DetectedLanguage reports what language the caller spoke this turn;
// SwitchLanguage signals the caller explicitly asked for a language.
type Directive struct {
	DetectedLanguage string
	SwitchLanguage   string
}

// The model is instructed to append "[lang:xx]" to every reply and
// "[switch:xx]" when the caller explicitly requests a language. Models do
// not follow instructions reliably, so the parser accepts tags anywhere in
// the text, case-insensitively, and treats anything malformed as absent.
var directiveTagRE = regexp.MustCompile(`(?i)\[\s*(lang|switch)\s*:\s*([a-z]{2})(?:[-_][a-z]{2})?\s*\]`)

// ParseDirectives extracts and strips language directives from model output.
// Never fails: malformed or absent tags yield a zero Directive and the text
// is returned with whatever well-formed tags existed removed.
func ParseDirectives(raw string) (string, Directive) {
	var d Directive
	matches := directiveTagRE.FindAllStringSubmatch(raw, -1)
	for _, m := range matches {
		code := strings.ToLower(m[2])
		switch strings.ToLower(m[1]) {
		case "lang":
			d.DetectedLanguage = code
		case "switch":
			d.SwitchLanguage = code
		}
	}
	cleaned := directiveTagRE.ReplaceAllString(raw, "")
	return strings.TrimSpace(cleaned), d
}
