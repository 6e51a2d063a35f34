package persona

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrHandleNotFound is returned when no handle matches the given ID or when
// the store is empty.
var ErrHandleNotFound = errors.New("persona: handle not found")

// HandleStore keeps setup-session handles until a call consumes them or the
// reaper sweeps them.
type HandleStore interface {
	// Put registers a new handle and returns it with an assigned ID.
	Put(ctx context.Context, p Persona) (*Handle, error)
	// Get returns the handle with the given ID.
	Get(ctx context.Context, id string) (*Handle, error)
	// Touch refreshes the handle's last-seen time.
	Touch(ctx context.Context, id string) error
	// Delete removes a handle. Deleting an absent handle is a no-op.
	Delete(ctx context.Context, id string) error
	// MostRecent returns the most recently created unexpired handle.
	//
	// This is the explicit "most recent wins" routing fallback for inbound
	// calls that carry no setup token. It assumes each operator has at most
	// one active trial at a time; under concurrent trials from different
	// tenants a call can be routed to the wrong persona. Known limitation,
	// accepted for the single-tenant trial flow.
	MostRecent(ctx context.Context) (*Handle, error)
	// SweepExpired removes handles idle longer than ttl and returns how many
	// were removed.
	SweepExpired(ctx context.Context, now time.Time, ttl time.Duration) (int, error)
}

// MemoryHandleStore is the process-local HandleStore used when Redis is not
// configured.
type MemoryHandleStore struct {
	mu      sync.RWMutex
	handles map[string]*Handle
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryHandleStore creates an in-memory handle store. nowFn may be nil.
func NewMemoryHandleStore(ttl time.Duration, nowFn func() time.Time) *MemoryHandleStore {
	if nowFn == nil {
		nowFn = time.Now
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &MemoryHandleStore{
		handles: make(map[string]*Handle),
		ttl:     ttl,
		now:     nowFn,
	}
}

func (s *MemoryHandleStore) Put(_ context.Context, p Persona) (*Handle, error) {
	p.Normalize()
	now := s.now().UTC()
	h := &Handle{
		ID:         uuid.New().String(),
		Persona:    p,
		CreatedAt:  now,
		LastSeenAt: now,
	}

	s.mu.Lock()
	s.handles[h.ID] = h
	s.mu.Unlock()

	copied := *h
	return &copied, nil
}

func (s *MemoryHandleStore) Get(_ context.Context, id string) (*Handle, error) {
	s.mu.RLock()
	h, ok := s.handles[id]
	s.mu.RUnlock()
	if !ok || h.Expired(s.now().UTC(), s.ttl) {
		return nil, ErrHandleNotFound
	}
	copied := *h
	return &copied, nil
}

func (s *MemoryHandleStore) Touch(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handles[id]
	if !ok {
		return ErrHandleNotFound
	}
	h.LastSeenAt = s.now().UTC()
	return nil
}

func (s *MemoryHandleStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.handles, id)
	s.mu.Unlock()
	return nil
}

func (s *MemoryHandleStore) MostRecent(_ context.Context) (*Handle, error) {
	now := s.now().UTC()

	s.mu.RLock()
	candidates := make([]*Handle, 0, len(s.handles))
	for _, h := range s.handles {
		if !h.Expired(now, s.ttl) {
			candidates = append(candidates, h)
		}
	}
	s.mu.RUnlock()

	if len(candidates) == 0 {
		return nil, ErrHandleNotFound
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
	})
	copied := *candidates[0]
	return &copied, nil
}

func (s *MemoryHandleStore) SweepExpired(_ context.Context, now time.Time, ttl time.Duration) (int, error) {
	if ttl <= 0 {
		ttl = s.ttl
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, h := range s.handles {
		if h.Expired(now, ttl) {
			delete(s.handles, id)
			removed++
		}
	}
	return removed, nil
}
