package stream

import (
	"encoding/json"
	"fmt"
)

// Client frame types.
const (
	FrameStart     = "start"
	FrameUtterance = "utterance"
	FrameInterrupt = "interrupt"
	FrameEnd       = "end"
)

// Server frame types.
const (
	FrameSpeak       = "speak"
	FrameSetLanguage = "set_language"
	FrameError       = "error"
)

// ClientFrame is one inbound stream message. Type discriminates; the other
// fields are populated per type.
type ClientFrame struct {
	Type string `json:"type"`

	// start
	CallID     string `json:"call_id,omitempty"`
	Caller     string `json:"caller,omitempty"`
	SetupToken string `json:"setup_token,omitempty"`

	// utterance
	Text             string `json:"text,omitempty"`
	DetectedLanguage string `json:"detected_language,omitempty"`
}

// SpeakFrame tells the transport to synthesize text. IsFinal marks the last
// speak frame of a turn's script; the transport resumes listening after it.
type SpeakFrame struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	Voice   string `json:"voice"`
	IsFinal bool   `json:"is_final"`
}

// SetLanguageFrame re-points the transport's synthesis and recognition at a
// new language. Pushed out-of-band mid-script during a hand-off, before the
// new language's greeting leg.
type SetLanguageFrame struct {
	Type                string `json:"type"`
	SynthesisVoice      string `json:"synthesis_voice"`
	RecognitionLanguage string `json:"recognition_language"`
}

// ErrorFrame reports a protocol-level failure. It is never spoken to the
// caller.
type ErrorFrame struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// DecodeClientFrame parses one inbound message.
func DecodeClientFrame(data []byte) (ClientFrame, error) {
	var frame ClientFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return ClientFrame{}, fmt.Errorf("stream: decode frame: %w", err)
	}
	switch frame.Type {
	case FrameStart, FrameUtterance, FrameInterrupt, FrameEnd:
		return frame, nil
	case "":
		return ClientFrame{}, fmt.Errorf("stream: frame type is required")
	default:
		return ClientFrame{}, fmt.Errorf("stream: unknown frame type %q", frame.Type)
	}
}
