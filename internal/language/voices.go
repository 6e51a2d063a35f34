package language

// Voice pairs a speech-synthesis voice with the recognition locale the
// transport should listen in while that voice is active.
type Voice struct {
	Code              string `json:"code"`
	SynthesisVoice    string `json:"synthesis_voice"`
	RecognitionLocale string `json:"recognition_locale"`
	Greeting          string `json:"greeting"`
	TransferPhrase    string `json:"transfer_phrase"`
	RepeatPhrase      string `json:"repeat_phrase"`
	FillerPhrase      string `json:"filler_phrase"`
	ApologyPhrase     string `json:"apology_phrase"`
	ClosingPhrase     string `json:"closing_phrase"`
}

// voiceCatalog is the fixed mapping from language code to voice configuration.
// The fixed phrases are spoken verbatim by the transport's TTS, so they live
// here next to the voice that speaks them.
var voiceCatalog = map[string]Voice{
	"en": {
		Code:              "en",
		SynthesisVoice:    "Polly.Joanna-Neural",
		RecognitionLocale: "en-US",
		Greeting:          "Hello! How can I help you today?",
		TransferPhrase:    "One moment please, I'm connecting you to a colleague.",
		RepeatPhrase:      "I'm sorry, I didn't quite catch that. Could you say that again?",
		FillerPhrase:      "One second please, I'm just looking that up for you.",
		ApologyPhrase:     "I'm sorry, I'm having a bit of trouble. Could you say that again?",
		ClosingPhrase:     "Thank you for calling, I have to let you go now. Goodbye!",
	},
	"de": {
		Code:              "de",
		SynthesisVoice:    "Polly.Vicki-Neural",
		RecognitionLocale: "de-DE",
		Greeting:          "Hallo! Wie kann ich Ihnen helfen?",
		TransferPhrase:    "Einen Moment bitte, ich verbinde Sie mit einem Kollegen.",
		RepeatPhrase:      "Entschuldigung, das habe ich nicht verstanden. Können Sie das bitte wiederholen?",
		FillerPhrase:      "Einen Moment bitte, ich schaue das gerade nach.",
		ApologyPhrase:     "Entschuldigung, es gibt gerade ein kleines Problem. Können Sie das noch einmal sagen?",
		ClosingPhrase:     "Vielen Dank für Ihren Anruf, ich muss jetzt leider Schluss machen. Auf Wiederhören!",
	},
	"es": {
		Code:              "es",
		SynthesisVoice:    "Polly.Lupe-Neural",
		RecognitionLocale: "es-US",
		Greeting:          "¡Hola! ¿En qué puedo ayudarle?",
		TransferPhrase:    "Un momento por favor, le comunico con un colega.",
		RepeatPhrase:      "Disculpe, no le he entendido bien. ¿Puede repetirlo?",
		FillerPhrase:      "Un segundo por favor, estoy consultando esa información.",
		ApologyPhrase:     "Disculpe, estoy teniendo un pequeño problema. ¿Puede decirlo otra vez?",
		ClosingPhrase:     "Gracias por llamar, tengo que despedirme ahora. ¡Hasta luego!",
	},
	"fr": {
		Code:              "fr",
		SynthesisVoice:    "Polly.Lea-Neural",
		RecognitionLocale: "fr-FR",
		Greeting:          "Bonjour ! Comment puis-je vous aider ?",
		TransferPhrase:    "Un instant s'il vous plaît, je vous mets en relation avec un collègue.",
		RepeatPhrase:      "Pardon, je n'ai pas bien compris. Pouvez-vous répéter ?",
		FillerPhrase:      "Un instant s'il vous plaît, je vérifie cela pour vous.",
		ApologyPhrase:     "Désolé, j'ai un petit souci. Pouvez-vous répéter ?",
		ClosingPhrase:     "Merci de votre appel, je dois vous laisser maintenant. Au revoir !",
	},
	"it": {
		Code:              "it",
		SynthesisVoice:    "Polly.Bianca-Neural",
		RecognitionLocale: "it-IT",
		Greeting:          "Buongiorno! Come posso aiutarla?",
		TransferPhrase:    "Un attimo per favore, la metto in contatto con un collega.",
		RepeatPhrase:      "Mi scusi, non ho capito bene. Può ripetere?",
		FillerPhrase:      "Un attimo per favore, sto controllando.",
		ApologyPhrase:     "Mi scusi, c'è un piccolo problema. Può ripetere?",
		ClosingPhrase:     "Grazie per la chiamata, ora devo salutarla. Arrivederci!",
	},
}

const fallbackLanguage = "en"

// VoiceFor returns the voice configuration for a language code. Unmapped
// codes deterministically fall back to the given default language, and to
// English when that is unmapped too.
func VoiceFor(code, defaultCode string) Voice {
	if v, ok := voiceCatalog[Normalize(code)]; ok {
		return v
	}
	if v, ok := voiceCatalog[Normalize(defaultCode)]; ok {
		return v
	}
	return voiceCatalog[fallbackLanguage]
}

// Known reports whether the catalog maps the given code.
func Known(code string) bool {
	_, ok := voiceCatalog[Normalize(code)]
	return ok
}

// DisplayName returns an English display name for a language code, used in
// transfer announcements addressed to the model.
func DisplayName(code string) string {
	switch Normalize(code) {
	case "en":
		return "English"
	case "de":
		return "German"
	case "es":
		return "Spanish"
	case "fr":
		return "French"
	case "it":
		return "Italian"
	default:
		return code
	}
}
