package session

import (
	"errors"
	"sync"
	"time"

	"github.com/lumivoice/frontdesk-ai/internal/persona"
)

var (
	// ErrDuplicateSession is returned when a call id is already registered.
	// Adapters treat it as an idempotent no-op for duplicate start events.
	ErrDuplicateSession = errors.New("session: duplicate call id")
	// ErrSessionNotFound is returned for unknown call ids.
	ErrSessionNotFound = errors.New("session: not found")
)

// Registry is the single source of truth for in-progress calls. All methods
// are safe for concurrent use; none blocks on I/O.
type Registry interface {
	Create(id, callerIdentity string, p persona.Persona) (*CallSession, error)
	Get(id string) (*CallSession, error)
	// Remove reports whether it removed a session, so racing termination
	// paths can tell which one actually ended the call.
	Remove(id string) bool
	// EndedRecently reports whether the call id belonged to a session that
	// was removed within the retention window. Adapters use it to ignore
	// retried start events for calls that already ended.
	EndedRecently(id string) bool
	// Range calls fn for each live session until fn returns false.
	Range(fn func(*CallSession) bool)
	Len() int
}

// endedRetention is how long a removed call id stays recognizable. Transport
// webhook retries arrive within seconds; minutes of slack is plenty.
const endedRetention = 30 * time.Minute

// MemoryRegistry is the in-process Registry. Call sessions deliberately do
// not survive a restart; a crash drops all in-flight calls.
type MemoryRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*CallSession
	ended    map[string]time.Time
	now      func() time.Time
}

// NewMemoryRegistry creates an empty registry. nowFn may be nil.
func NewMemoryRegistry(nowFn func() time.Time) *MemoryRegistry {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &MemoryRegistry{
		sessions: make(map[string]*CallSession),
		ended:    make(map[string]time.Time),
		now:      nowFn,
	}
}

func (r *MemoryRegistry) Create(id, callerIdentity string, p persona.Persona) (*CallSession, error) {
	now := r.now().UTC()
	s := &CallSession{
		ID:             id,
		CallerIdentity: callerIdentity,
		Persona:        p,
		StartedAt:      now,
		lastActivityAt: now,
		activeLanguage: p.PrimaryLanguage(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[id]; exists {
		return nil, ErrDuplicateSession
	}
	r.sessions[id] = s
	delete(r.ended, id)
	return s, nil
}

func (r *MemoryRegistry) Get(id string) (*CallSession, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (r *MemoryRegistry) Remove(id string) bool {
	now := r.now().UTC()
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	if ok {
		r.ended[id] = now
	}
	cutoff := now.Add(-endedRetention)
	for endedID, at := range r.ended {
		if at.Before(cutoff) {
			delete(r.ended, endedID)
		}
	}
	r.mu.Unlock()
	if ok {
		s.markRemoved()
	}
	return ok
}

func (r *MemoryRegistry) EndedRecently(id string) bool {
	cutoff := r.now().UTC().Add(-endedRetention)
	r.mu.RLock()
	at, ok := r.ended[id]
	r.mu.RUnlock()
	return ok && !at.Before(cutoff)
}

func (r *MemoryRegistry) Range(fn func(*CallSession) bool) {
	r.mu.RLock()
	snapshot := make([]*CallSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		snapshot = append(snapshot, s)
	}
	r.mu.RUnlock()

	for _, s := range snapshot {
		if !fn(s) {
			return
		}
	}
}

func (r *MemoryRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
