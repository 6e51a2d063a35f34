package session

import (
	"context"
	"time"

	"github.com/lumivoice/frontdesk-ai/internal/persona"
	"github.com/lumivoice/frontdesk-ai/pkg/logging"
)

// Reaper periodically evicts call sessions abandoned without a clean
// termination event and sweeps expired setup handles. Sweeps are idempotent
// and safe to run concurrently with live turn handling.
type Reaper struct {
	registry Registry
	handles  persona.HandleStore
	logger   *logging.Logger

	interval  time.Duration
	idleTTL   time.Duration
	handleTTL time.Duration
	now       func() time.Time

	onEvict func(callID string)
}

// ReaperConfig configures a Reaper. Now may be nil.
type ReaperConfig struct {
	Registry  Registry
	Handles   persona.HandleStore
	Logger    *logging.Logger
	Interval  time.Duration
	IdleTTL   time.Duration
	HandleTTL time.Duration
	Now       func() time.Time
	// OnEvict is called for each evicted call session (adapters use it to
	// close any transport connection still attached).
	OnEvict func(callID string)
}

// NewReaper creates a reaper with defaults for unset durations.
func NewReaper(cfg ReaperConfig) *Reaper {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Minute
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	if cfg.HandleTTL <= 0 {
		cfg.HandleTTL = time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Reaper{
		registry:  cfg.Registry,
		handles:   cfg.Handles,
		logger:    cfg.Logger,
		interval:  cfg.Interval,
		idleTTL:   cfg.IdleTTL,
		handleTTL: cfg.HandleTTL,
		now:       cfg.Now,
		onEvict:   cfg.OnEvict,
	}
}

// Run sweeps on a ticker until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep performs one pass. Exposed so tests can drive time deterministically
// instead of sleeping.
func (r *Reaper) Sweep(ctx context.Context) {
	now := r.now().UTC()

	var stale []string
	r.registry.Range(func(s *CallSession) bool {
		if now.Sub(s.LastActivityAt()) > r.idleTTL {
			stale = append(stale, s.ID)
		}
		return true
	})
	for _, id := range stale {
		// A concurrent end event may have removed the session already.
		if !r.registry.Remove(id) {
			continue
		}
		if r.onEvict != nil {
			r.onEvict(id)
		}
		r.logger.Info("reaper: evicted idle call session", "call_id", id)
	}

	if r.handles != nil {
		removed, err := r.handles.SweepExpired(ctx, now, r.handleTTL)
		if err != nil {
			r.logger.Error("reaper: handle sweep failed", "error", err)
		} else if removed > 0 {
			r.logger.Info("reaper: swept expired setup handles", "count", removed)
		}
	}
}
