package conversation

import (
	"github.com/lumivoice/frontdesk-ai/internal/language"
	"github.com/lumivoice/frontdesk-ai/internal/persona"
)

// HandoffScript sequences a confirmed language switch as a staged transfer:
//
//	1. a short fixed phrase in the OLD language announcing the transfer,
//	2. a brief pause,
//	3. a greeting in the NEW language and voice,
//	4. the actual reply in the new voice.
//
// The caller hears a colleague picking up the phone rather than the same
// voice abruptly changing accent mid-sentence. The four legs and their order
// are part of the observable contract; both transport bindings serialize
// them as-is.
func HandoffScript(sw language.Switch, reply string, p persona.Persona, defaultLang string) []Utterance {
	oldVoice := language.VoiceFor(sw.From, defaultLang)
	newVoice := language.VoiceFor(sw.To, defaultLang)

	return []Utterance{
		{Text: oldVoice.TransferPhrase, Voice: oldVoice},
		{Pause: true, Voice: newVoice},
		{Text: Greeting(p, sw.To, defaultLang), Voice: newVoice},
		{Text: reply, Voice: newVoice},
	}
}
