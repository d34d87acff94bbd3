// Package humanoid paces form interaction: randomized pauses between steps and
// per-keystroke typing with realistic key holds.
package humanoid

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/xkilldash9x/autoreg-cli/internal/config"
)

// Humanoid samples delays from configured ranges. It is safe for concurrent use.
type Humanoid struct {
	cfg config.HumanoidConfig

	mu  sync.Mutex
	rng *rand.Rand

	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Humanoid seeded from the clock.
func New(cfg config.HumanoidConfig) *Humanoid {
	return NewWithSeed(cfg, time.Now().UnixNano())
}

// NewWithSeed creates a Humanoid with deterministic sampling.
func NewWithSeed(cfg config.HumanoidConfig, seed int64) *Humanoid {
	return &Humanoid{
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(seed)),
		sleep: Sleep,
	}
}

// Config returns the ranges in use.
func (h *Humanoid) Config() config.HumanoidConfig { return h.cfg }

// Sample draws a duration uniformly from r, inclusive of both ends.
func (h *Humanoid) Sample(r config.MsRange) time.Duration {
	lo, hi := r.Min, r.Max
	if hi < lo {
		lo, hi = hi, lo
	}
	if lo < 0 {
		lo = 0
	}
	if hi < lo {
		hi = lo
	}
	h.mu.Lock()
	ms := lo + h.rng.Intn(hi-lo+1)
	h.mu.Unlock()
	return time.Duration(ms) * time.Millisecond
}

// Pause sleeps for a duration drawn from r, returning early on cancellation.
func (h *Humanoid) Pause(ctx context.Context, r config.MsRange) error {
	return h.sleep(ctx, h.Sample(r))
}

// RandomDelay is a pause drawn from the default range.
func (h *Humanoid) RandomDelay(ctx context.Context) error {
	return h.Pause(ctx, h.cfg.DefaultPause)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
