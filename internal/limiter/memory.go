package limiter

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
)

type cooldownEntry struct {
	at        time.Time
	expiresAt time.Time
}

// MemoryCooldownStore is the single-instance store. Entries are evicted lazily
// on access and by Sweep.
type MemoryCooldownStore struct {
	entries *xsync.MapOf[string, cooldownEntry]
}

func NewMemoryCooldownStore() *MemoryCooldownStore {
	return &MemoryCooldownStore{entries: xsync.NewMapOf[string, cooldownEntry]()}
}

func (s *MemoryCooldownStore) Acquire(ctx context.Context, key string, now time.Time, cooldown time.Duration) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var remaining time.Duration
	s.entries.Compute(key, func(old cooldownEntry, loaded bool) (cooldownEntry, bool) {
		if loaded {
			if left := old.at.Add(cooldown).Sub(now); left > 0 {
				remaining = left
				return old, false
			}
		}
		return cooldownEntry{at: now, expiresAt: now.Add(cooldown)}, false
	})
	return remaining, nil
}

func (s *MemoryCooldownStore) Release(_ context.Context, key string, at time.Time) error {
	s.entries.Compute(key, func(old cooldownEntry, loaded bool) (cooldownEntry, bool) {
		return old, loaded && old.at.Equal(at)
	})
	return nil
}

// Sweep drops entries whose window has fully elapsed and returns how many were removed.
func (s *MemoryCooldownStore) Sweep(now time.Time) int {
	removed := 0
	s.entries.Range(func(key string, _ cooldownEntry) bool {
		s.entries.Compute(key, func(old cooldownEntry, loaded bool) (cooldownEntry, bool) {
			expired := loaded && !now.Before(old.expiresAt)
			if expired {
				removed++
			}
			return old, expired
		})
		return true
	})
	return removed
}

func (s *MemoryCooldownStore) Len() int {
	return s.entries.Size()
}

type windowEntry struct {
	at    time.Time
	token string
}

type MemoryRateLimitStore struct {
	windows *xsync.MapOf[string, []windowEntry]
}

func NewMemoryRateLimitStore() *MemoryRateLimitStore {
	return &MemoryRateLimitStore{windows: xsync.NewMapOf[string, []windowEntry]()}
}

func (s *MemoryRateLimitStore) Acquire(ctx context.Context, key string, now time.Time, limit int, window time.Duration) (RateDecision, error) {
	if err := ctx.Err(); err != nil {
		return RateDecision{}, err
	}
	var decision RateDecision
	s.windows.Compute(key, func(old []windowEntry, _ bool) ([]windowEntry, bool) {
		kept := prune(old, now, window)
		if len(kept) >= limit {
			decision = RateDecision{ResetAt: kept[0].at.Add(window)}
			return kept, len(kept) == 0
		}
		token := uuid.NewString()
		decision = RateDecision{Allowed: true, Token: token}
		return append(kept, windowEntry{at: now, token: token}), false
	})
	return decision, nil
}

func (s *MemoryRateLimitStore) Release(_ context.Context, key, token string) error {
	s.windows.Compute(key, func(old []windowEntry, loaded bool) ([]windowEntry, bool) {
		if !loaded {
			return nil, true
		}
		kept := make([]windowEntry, 0, len(old))
		for _, e := range old {
			if e.token != token {
				kept = append(kept, e)
			}
		}
		return kept, len(kept) == 0
	})
	return nil
}

// Sweep prunes every window and drops keys left empty.
func (s *MemoryRateLimitStore) Sweep(now time.Time, window time.Duration) int {
	removed := 0
	s.windows.Range(func(key string, _ []windowEntry) bool {
		s.windows.Compute(key, func(old []windowEntry, loaded bool) ([]windowEntry, bool) {
			kept := prune(old, now, window)
			if len(kept) == 0 {
				removed++
				return nil, true
			}
			return kept, false
		})
		return true
	})
	return removed
}

// prune keeps entries younger than window. Entries are kept in insertion order,
// so the first element is always the oldest.
func prune(entries []windowEntry, now time.Time, window time.Duration) []windowEntry {
	kept := make([]windowEntry, 0, len(entries)+1)
	for _, e := range entries {
		if now.Sub(e.at) < window {
			kept = append(kept, e)
		}
	}
	return kept
}

// Sweeper periodically evicts expired in-memory limiter state.
type Sweeper struct {
	Cooldowns  *MemoryCooldownStore
	RateLimits *MemoryRateLimitStore
	// MaxWindow bounds how long rate-limit entries are kept.
	MaxWindow time.Duration
	Clock     clockwork.Clock
	Log       *zap.Logger
}

func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := s.Clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			now := s.Clock.Now()
			var cd, rl int
			if s.Cooldowns != nil {
				cd = s.Cooldowns.Sweep(now)
			}
			if s.RateLimits != nil {
				rl = s.RateLimits.Sweep(now, s.MaxWindow)
			}
			if cd+rl > 0 {
				s.Log.Debug("limiter sweep", zap.Int("cooldowns", cd), zap.Int("rate_windows", rl))
			}
		}
	}
}
