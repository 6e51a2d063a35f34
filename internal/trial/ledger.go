package trial

import (
	"context"
	"sync"
)

// Ledger records which caller identities have consumed their one free trial.
// Reserve is an atomic check-and-set: exactly one call id wins the
// reservation for an identity, and re-reserving with that same call id keeps
// succeeding. Transports retry their start events, so admission must be
// idempotent per call rather than per request.
type Ledger interface {
	// Reserve returns true if the identity's trial is unused, or already
	// held by this call id.
	Reserve(ctx context.Context, callerIdentity, callID string) (bool, error)
}

// MemoryLedger is the process-lifetime in-memory ledger. Append-only; there
// is deliberately no way to return a trial.
type MemoryLedger struct {
	mu   sync.Mutex
	used map[string]string // caller identity -> call id that consumed it
}

// NewMemoryLedger creates an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{used: make(map[string]string)}
}

func (l *MemoryLedger) Reserve(_ context.Context, callerIdentity, callID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if holder, taken := l.used[callerIdentity]; taken {
		return holder == callID, nil
	}
	l.used[callerIdentity] = callID
	return true, nil
}
