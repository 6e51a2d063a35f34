package language

import "testing"

func TestObserveNoDetectionClearsStreak(t *testing.T) {
	p := NewPolicy([]string{"en", "de"}, 2)

	d := p.Observe("en", "de", 1, "")
	if d.Switch != nil {
		t.Fatal("no detection must never switch")
	}
	if d.Pending != "" || d.Streak != 0 {
		t.Errorf("expected cleared streak, got pending=%q streak=%d", d.Pending, d.Streak)
	}
}

func TestObserveActiveLanguageClearsStreak(t *testing.T) {
	p := NewPolicy([]string{"en", "de"}, 2)

	d := p.Observe("en", "de", 1, "en")
	if d.Switch != nil || d.Pending != "" || d.Streak != 0 {
		t.Errorf("detecting the active language must reset, got %+v", d)
	}
}

func TestObserveConfirmsAfterTwoTurns(t *testing.T) {
	p := NewPolicy([]string{"en", "de"}, 2)

	d := p.Observe("en", "", 0, "de")
	if d.Switch != nil {
		t.Fatal("first detection must not switch")
	}
	if d.Pending != "de" || d.Streak != 1 {
		t.Fatalf("expected pending de/1, got %q/%d", d.Pending, d.Streak)
	}

	d = p.Observe("en", d.Pending, d.Streak, "de")
	if d.Switch == nil {
		t.Fatal("second confirming detection must switch")
	}
	if d.Switch.From != "en" || d.Switch.To != "de" {
		t.Errorf("switch: got %+v", d.Switch)
	}
}

func TestObserveSingleStrayTurnNeverSwitches(t *testing.T) {
	p := NewPolicy([]string{"en", "de"}, 2)

	d := p.Observe("en", "", 0, "de")
	// Caller reverts to English on the next turn.
	d = p.Observe("en", d.Pending, d.Streak, "en")
	if d.Switch != nil {
		t.Fatal("reversion must cancel the pending switch")
	}
	// A later single detection starts over from streak 1.
	d = p.Observe("en", d.Pending, d.Streak, "de")
	if d.Switch != nil || d.Streak != 1 {
		t.Errorf("expected fresh streak of 1, got %+v", d)
	}
}

func TestObserveNewCandidateRestartsCount(t *testing.T) {
	p := NewPolicy([]string{"en", "de", "es"}, 2)

	d := p.Observe("en", "de", 1, "es")
	if d.Switch != nil {
		t.Fatal("candidate change must not switch")
	}
	if d.Pending != "es" || d.Streak != 1 {
		t.Errorf("expected es/1, got %q/%d", d.Pending, d.Streak)
	}
}

func TestObserveUnsupportedLanguageIgnored(t *testing.T) {
	p := NewPolicy([]string{"en", "de"}, 2)

	d := p.Observe("en", "", 0, "fr")
	if d.Switch != nil || d.Pending != "" {
		t.Errorf("unsupported detections must not accumulate, got %+v", d)
	}
}

func TestObserveNormalizesRegionTags(t *testing.T) {
	p := NewPolicy([]string{"en", "de"}, 2)

	d := p.Observe("en", "de", 1, "de-AT")
	if d.Switch == nil || d.Switch.To != "de" {
		t.Errorf("region subtags should confirm the base language, got %+v", d)
	}
}

func TestForceSwitch(t *testing.T) {
	p := NewPolicy([]string{"en", "de"}, 2)

	if sw := p.ForceSwitch("en", "de"); sw == nil || sw.To != "de" {
		t.Errorf("explicit request must switch immediately, got %+v", sw)
	}
	if sw := p.ForceSwitch("en", "en"); sw != nil {
		t.Error("switching to the active language is a no-op")
	}
	if sw := p.ForceSwitch("en", "fr"); sw != nil {
		t.Error("unsupported target must be refused")
	}
	if sw := p.ForceSwitch("en", ""); sw != nil {
		t.Error("empty target must be refused")
	}
}

func TestPrimary(t *testing.T) {
	if got := NewPolicy([]string{"de", "en"}, 2).Primary(); got != "de" {
		t.Errorf("Primary: got %s, want de", got)
	}
	if got := NewPolicy(nil, 2).Primary(); got != "en" {
		t.Errorf("Primary fallback: got %s, want en", got)
	}
}

func TestVoiceForFallsBackDeterministically(t *testing.T) {
	v := VoiceFor("xx", "de")
	if v.Code != "de" {
		t.Errorf("unmapped code should fall back to default, got %s", v.Code)
	}
	v = VoiceFor("xx", "yy")
	if v.Code != "en" {
		t.Errorf("unmapped default should fall back to en, got %s", v.Code)
	}
	v = VoiceFor("ES", "en")
	if v.Code != "es" || v.RecognitionLocale != "es-US" {
		t.Errorf("VoiceFor(ES): got %+v", v)
	}
}
