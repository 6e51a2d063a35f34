package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/lumivoice/frontdesk-ai/internal/persona"
)

func TestCreateAndGet(t *testing.T) {
	reg := NewMemoryRegistry(nil)

	s, err := reg.Create("call_1", "+15550001111", persona.Persona{
		BusinessName: "Harbor Dental",
		Languages:    []string{"de", "en"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if s.ActiveLanguage() != "de" {
		t.Errorf("active language should start at the primary, got %s", s.ActiveLanguage())
	}

	got, err := reg.Get("call_1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != s {
		t.Error("Get should return the same session instance")
	}
}

func TestCreateDuplicate(t *testing.T) {
	reg := NewMemoryRegistry(nil)

	if _, err := reg.Create("call_1", "caller", persona.Persona{}); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	if _, err := reg.Create("call_1", "caller", persona.Persona{}); err != ErrDuplicateSession {
		t.Errorf("duplicate Create: got %v, want ErrDuplicateSession", err)
	}
	if reg.Len() != 1 {
		t.Errorf("duplicate start must never produce two records, len=%d", reg.Len())
	}
}

func TestGetUnknown(t *testing.T) {
	reg := NewMemoryRegistry(nil)
	if _, err := reg.Get("nope"); err != ErrSessionNotFound {
		t.Errorf("got %v, want ErrSessionNotFound", err)
	}
}

func TestRemoveReportsRemoval(t *testing.T) {
	reg := NewMemoryRegistry(nil)
	reg.Create("call_1", "caller", persona.Persona{})

	if !reg.Remove("call_1") {
		t.Error("first Remove should report removal")
	}
	if reg.Remove("call_1") {
		t.Error("second Remove must report nothing left to remove")
	}
	if reg.Remove("never_existed") {
		t.Error("Remove of an unknown id must report false")
	}
}

func TestEndedRecently(t *testing.T) {
	clock := &testClock{t: time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)}
	reg := NewMemoryRegistry(clock.Now)
	reg.Create("call_1", "caller", persona.Persona{})

	if reg.EndedRecently("call_1") {
		t.Error("a live session has not ended")
	}
	reg.Remove("call_1")
	if !reg.EndedRecently("call_1") {
		t.Error("a just-removed call id must be recognized")
	}
	if reg.EndedRecently("never_existed") {
		t.Error("unknown ids are not ended")
	}

	clock.Advance(endedRetention + time.Minute)
	if reg.EndedRecently("call_1") {
		t.Error("the tombstone must lapse after the retention window")
	}

	// Re-creating the id makes it a live call again, not an ended one.
	reg.Create("call_2", "caller", persona.Persona{})
	reg.Remove("call_2")
	reg.Create("call_2", "caller", persona.Persona{})
	if reg.EndedRecently("call_2") {
		t.Error("a re-created session clears the tombstone")
	}
}

func TestRemoveMarksSession(t *testing.T) {
	reg := NewMemoryRegistry(nil)
	s, _ := reg.Create("call_1", "caller", persona.Persona{})

	reg.Remove("call_1")

	if _, err := reg.Get("call_1"); err != ErrSessionNotFound {
		t.Errorf("removed session should be gone, got %v", err)
	}
	if !s.Removed() {
		t.Error("session should be marked removed for racing turns")
	}
	// A racing in-flight turn must not be able to write history back.
	if ok := s.AppendTurn(RoleAssistant, "too late", time.Now()); ok {
		t.Error("AppendTurn after removal must be refused")
	}
}

func TestConcurrentIndependentCalls(t *testing.T) {
	reg := NewMemoryRegistry(nil)
	const calls = 50
	const turns = 20

	var wg sync.WaitGroup
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("call_%d", i)
			s, err := reg.Create(id, fmt.Sprintf("caller_%d", i), persona.Persona{})
			if err != nil {
				t.Errorf("Create %s: %v", id, err)
				return
			}
			for j := 0; j < turns; j++ {
				s.AppendTurn(RoleUser, fmt.Sprintf("turn %d", j), time.Now())
			}
		}(i)
	}
	wg.Wait()

	if reg.Len() != calls {
		t.Fatalf("len: got %d, want %d", reg.Len(), calls)
	}
	reg.Range(func(s *CallSession) bool {
		if s.TurnCount() != turns {
			t.Errorf("%s: turn count %d, want %d (cross-talk?)", s.ID, s.TurnCount(), turns)
		}
		return true
	})
}

func TestHistoryIsACopy(t *testing.T) {
	reg := NewMemoryRegistry(nil)
	s, _ := reg.Create("call_1", "caller", persona.Persona{})
	s.AppendTurn(RoleUser, "hello", time.Now())

	h := s.History()
	h[0].Text = "mutated"

	if s.History()[0].Text != "hello" {
		t.Error("History must return a copy")
	}
}
