package trial

import (
	"context"
	"errors"
	"time"
)

// ErrAlreadyUsed is returned when a caller identity has already consumed its
// free trial.
var ErrAlreadyUsed = errors.New("trial: already used")

// DefaultCallBudget is the wall-clock time one trial call may consume.
const DefaultCallBudget = 3 * time.Minute

// Guard enforces the trial policy: one call per caller identity, bounded to
// a wall-clock budget. The elapsed check runs both before and after the
// remote completion call, since the completion itself can eat a large slice
// of the remaining budget.
type Guard struct {
	ledger  Ledger
	enforce bool
	budget  time.Duration
	now     func() time.Time
}

// NewGuard creates a guard. When enforce is false, Admit always succeeds but
// the time budget still applies. nowFn may be nil.
func NewGuard(ledger Ledger, enforce bool, budget time.Duration, nowFn func() time.Time) *Guard {
	if budget <= 0 {
		budget = DefaultCallBudget
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Guard{ledger: ledger, enforce: enforce, budget: budget, now: nowFn}
}

// Admit reserves the caller's trial for the given call id. Must be called
// before the session is created so a denied caller never gets a session
// record. Admitting the same call id again succeeds, keeping retried start
// events from being answered as denials.
func (g *Guard) Admit(ctx context.Context, callerIdentity, callID string) error {
	if !g.enforce {
		return nil
	}
	ok, err := g.ledger.Reserve(ctx, callerIdentity, callID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAlreadyUsed
	}
	return nil
}

// Elapsed returns how much of the budget a call begun at startedAt has used.
func (g *Guard) Elapsed(startedAt time.Time) time.Duration {
	return g.now().Sub(startedAt)
}

// Expired reports whether the call has exhausted its budget.
func (g *Guard) Expired(startedAt time.Time) bool {
	return g.Elapsed(startedAt) >= g.budget
}

// Budget returns the configured per-call budget.
func (g *Guard) Budget() time.Duration {
	return g.budget
}
