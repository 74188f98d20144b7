package limiter

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// CooldownStore holds the last invocation time per key. Acquire must check and
// commit atomically per key.
type CooldownStore interface {
	// Acquire records now for key and returns 0, unless an entry younger than
	// cooldown exists, in which case nothing is written and the remaining wait is returned.
	Acquire(ctx context.Context, key string, now time.Time, cooldown time.Duration) (time.Duration, error)
	// Release removes the entry committed at `at`, leaving newer entries alone.
	Release(ctx context.Context, key string, at time.Time) error
}

// RateLimitStore keeps a sliding window of invocation timestamps per key.
type RateLimitStore interface {
	Acquire(ctx context.Context, key string, now time.Time, limit int, window time.Duration) (RateDecision, error)
	// Release drops the window entry identified by token.
	Release(ctx context.Context, key, token string) error
}

type RateDecision struct {
	Allowed bool
	ResetAt time.Time
	Token   string
}

func Key(actorID, command string) string {
	return actorID + ":" + command
}

type CooldownResult struct {
	Ready            bool
	SecondsRemaining int

	key string
	at  time.Time
}

type Cooldowns struct {
	store CooldownStore
	clock clockwork.Clock
}

func NewCooldowns(store CooldownStore, clock clockwork.Clock) *Cooldowns {
	return &Cooldowns{store: store, clock: clock}
}

// Check returns Ready (and commits now) or the whole seconds left to wait,
// rounded up.
func (c *Cooldowns) Check(ctx context.Context, actorID, command string, seconds int) (CooldownResult, error) {
	if seconds <= 0 {
		return CooldownResult{Ready: true}, nil
	}
	key := Key(actorID, command)
	now := c.clock.Now()
	remaining, err := c.store.Acquire(ctx, key, now, time.Duration(seconds)*time.Second)
	if err != nil {
		return CooldownResult{}, err
	}
	if remaining > 0 {
		return CooldownResult{SecondsRemaining: ceilSeconds(remaining)}, nil
	}
	return CooldownResult{Ready: true, key: key, at: now}, nil
}

// Release undoes a commit made by Check.
func (c *Cooldowns) Release(ctx context.Context, res CooldownResult) error {
	if res.key == "" {
		return nil
	}
	return c.store.Release(ctx, res.key, res.at)
}

type RateResult struct {
	Ready   bool
	ResetAt time.Time

	key   string
	token string
}

type RateLimiter struct {
	store RateLimitStore
	clock clockwork.Clock
}

func NewRateLimiter(store RateLimitStore, clock clockwork.Clock) *RateLimiter {
	return &RateLimiter{store: store, clock: clock}
}

func (r *RateLimiter) Check(ctx context.Context, actorID, command string, limit int, windowMs int64) (RateResult, error) {
	key := Key(actorID, command)
	d, err := r.store.Acquire(ctx, key, r.clock.Now(), limit, time.Duration(windowMs)*time.Millisecond)
	if err != nil {
		return RateResult{}, err
	}
	if !d.Allowed {
		return RateResult{ResetAt: d.ResetAt}, nil
	}
	return RateResult{Ready: true, key: key, token: d.Token}, nil
}

func (r *RateLimiter) Release(ctx context.Context, res RateResult) error {
	if res.token == "" {
		return nil
	}
	return r.store.Release(ctx, res.key, res.token)
}

func ceilSeconds(d time.Duration) int {
	ms := d.Milliseconds()
	if d > time.Duration(ms)*time.Millisecond {
		ms++
	}
	return int((ms + 999) / 1000)
}
