package conversation

import "github.com/lumivoice/frontdesk-ai/internal/language"

// Utterance is one leg of the outgoing script for a turn. Pause legs carry
// no text; the transport renders them as a short silence.
type Utterance struct {
	Text  string         `json:"text,omitempty"`
	Voice language.Voice `json:"voice"`
	Pause bool           `json:"pause,omitempty"`
}

// TurnResult is everything the transport adapter needs to serialize one
// turn back into its protocol.
type TurnResult struct {
	// Utterances is the ordered script to speak. A plain turn has one
	// entry; a hand-off has four.
	Utterances []Utterance
	// EndCall tells the adapter to terminate the call after speaking.
	EndCall bool
	// NewLanguage is set when a hand-off changed the active language; the
	// adapter must re-point speech recognition at its locale before the
	// next caller turn.
	NewLanguage *language.Voice
}

func speakOne(text string, voice language.Voice) TurnResult {
	return TurnResult{Utterances: []Utterance{{Text: text, Voice: voice}}}
}
