package conversation

import (
	"fmt"
	"strings"

	"github.com/lumivoice/frontdesk-ai/internal/language"
	"github.com/lumivoice/frontdesk-ai/internal/persona"
)

const voicePromptAddendum = `
VOICE CHANNEL RULES — the caller is LISTENING, not reading:
1. Keep responses to 1-2 SHORT sentences.
2. Use spoken language, not written. Say "about" not "approximately".
3. NEVER use emoji, bullet points, numbered lists, markdown, or any formatting.
4. NEVER spell out URLs, email addresses, or long strings of text.
5. Be warm, conversational, and professional — like a friendly receptionist.
6. If you don't understand the caller, ask them to repeat; do NOT restart the conversation.
7. NEVER say you are an AI, a language model, or a virtual assistant. You are the business's receptionist.`

const languageProtocolAddendum = `
LANGUAGE PROTOCOL:
- End EVERY reply with a tag naming the language the caller spoke this turn, e.g. [lang:en] or [lang:de].
- If the caller EXPLICITLY asks you to speak a different language ("please speak English", "sprechen Sie Deutsch"), additionally append [switch:xx] with that language's code.
- The tags are machine-read and stripped before speaking; never mention them.
- Until told otherwise, answer in %s.`

// BuildSystemPrompt renders the persona snapshot into the fixed instructions
// sent with every completion. activeLanguage names the language replies must
// be written in until a hand-off completes.
func BuildSystemPrompt(p persona.Persona, activeLanguage string) []string {
	var sb strings.Builder

	name := p.BusinessName
	if name == "" {
		name = "the business"
	}
	fmt.Fprintf(&sb, "You are the phone receptionist for %s.", name)
	if p.Category != "" {
		fmt.Fprintf(&sb, " The business is a %s.", p.Category)
	}
	sb.WriteString("\n")
	if p.Description != "" {
		fmt.Fprintf(&sb, "\nAbout the business:\n%s\n", p.Description)
	}
	if p.Hours != "" {
		fmt.Fprintf(&sb, "\nOpening hours:\n%s\n", p.Hours)
	}
	if len(p.Rules) > 0 {
		sb.WriteString("\nHouse rules you must follow:\n")
		for _, rule := range p.Rules {
			fmt.Fprintf(&sb, "- %s\n", rule)
		}
	}

	langName := language.DisplayName(activeLanguage)
	return []string{
		sb.String(),
		voicePromptAddendum,
		fmt.Sprintf(languageProtocolAddendum, langName),
	}
}

// Greeting returns the opening line for a call in the given language. The
// persona's custom greeting wins only for its primary language; hand-off
// greetings always use the catalog phrase so the voice change lands cleanly.
func Greeting(p persona.Persona, langCode, defaultLang string) string {
	voice := language.VoiceFor(langCode, defaultLang)
	if language.Normalize(langCode) == p.PrimaryLanguage() {
		if g := p.Greeting(""); g != "" {
			return g
		}
		if p.BusinessName != "" {
			return greetingWithName(voice.Code, p.BusinessName)
		}
	}
	return voice.Greeting
}

func greetingWithName(code, name string) string {
	switch code {
	case "de":
		return fmt.Sprintf("Hallo, hier ist %s. Wie kann ich Ihnen helfen?", name)
	case "es":
		return fmt.Sprintf("¡Hola! Ha llamado a %s. ¿En qué puedo ayudarle?", name)
	case "fr":
		return fmt.Sprintf("Bonjour, vous êtes bien chez %s. Comment puis-je vous aider ?", name)
	case "it":
		return fmt.Sprintf("Buongiorno, ha chiamato %s. Come posso aiutarla?", name)
	default:
		return fmt.Sprintf("Hi! Thanks for calling %s. How can I help you today?", name)
	}
}
