package gate

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/modgate/backend/internal/limiter"
	"github.com/modgate/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type owners map[string]bool

func (o owners) IsOwner(id string) bool { return o[id] }

type fixture struct {
	gate      *Gate
	clock     *clockwork.FakeClock
	cooldowns *limiter.MemoryCooldownStore
	rates     *limiter.MemoryRateLimitStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClock()
	cds := limiter.NewMemoryCooldownStore()
	rls := limiter.NewMemoryRateLimitStore()
	g := New(owners{"owner-1": true},
		limiter.NewCooldowns(cds, clock),
		limiter.NewRateLimiter(rls, clock),
		nil, zaptest.NewLogger(t))
	return &fixture{gate: g, clock: clock, cooldowns: cds, rates: rls}
}

var allCaps = models.NewCapabilities(models.CapAdministrator)

func member(id string, pos int) models.Member {
	return models.Member{ID: id, HighestPosition: pos, Capabilities: allCaps, Present: true}
}

func invocation(cmd string, actor models.Member, targets ...models.Member) *models.Invocation {
	return &models.Invocation{
		CommandName:               cmd,
		Actor:                     actor,
		Targets:                   targets,
		Community:                 &models.Community{ID: "C", OwnerID: "community-owner"},
		ChannelID:                 "chan-1",
		System:                    member("system", 100),
		SystemChannelCapabilities: allCaps,
		Timestamp:                 time.Now(),
	}
}

func banDescriptor() *models.CommandDescriptor {
	d := &models.CommandDescriptor{
		Name:                 "ban",
		RequiredCapabilities: models.NewCapabilities(models.CapBanMembers),
		RequiresHierarchy:    true,
		CommunityOnly:        true,
	}
	d.WithCooldown(5)
	return d
}

func TestEqualPositionDenied(t *testing.T) {
	f := newFixture(t)
	inv := invocation("ban", member("A", 5), member("T", 5))

	dec, err := f.gate.Evaluate(context.Background(), inv, banDescriptor())
	require.NoError(t, err)
	require.False(t, dec.Proceed())
	assert.Equal(t, models.ReasonEqualOrHigher, dec.Denial.Reason)
	assert.Equal(t, models.KindHierarchyViolation, dec.Denial.Kind)
	assert.Equal(t, 0, f.cooldowns.Len(), "denied before cooldown must not commit")
}

func TestHierarchyInvariant(t *testing.T) {
	ctx := context.Background()
	ids := []string{"A", "T", "system", "community-owner"}

	for actorPos := 0; actorPos <= 4; actorPos++ {
		for targetPos := 0; targetPos <= 4; targetPos++ {
			for _, targetID := range ids {
				name := fmt.Sprintf("actor%d/%s%d", actorPos, targetID, targetPos)
				t.Run(name, func(t *testing.T) {
					f := newFixture(t)
					d := banDescriptor()
					d.WithCooldown(0)
					inv := invocation("ban", member("A", actorPos), member(targetID, targetPos))

					dec, err := f.gate.Evaluate(ctx, inv, d)
					require.NoError(t, err)

					special := targetID == "A" || targetID == "system" || targetID == "community-owner"
					wantDenied := special || targetPos >= actorPos
					assert.Equal(t, wantDenied, !dec.Proceed())
				})
			}
		}
	}
}

func TestHierarchySystemPosition(t *testing.T) {
	actor := member("A", 10)
	target := member("T", 6)
	system := member("system", 6)

	denial := ValidateHierarchy(actor, target, system, &models.Community{ID: "C"})
	require.NotNil(t, denial)
	assert.Equal(t, models.ReasonSystemEqualOrHigh, denial.Reason)
}

func TestHierarchyAbsentTargetAllowed(t *testing.T) {
	target := member("T", 50)
	target.Present = false
	assert.Nil(t, ValidateHierarchy(member("A", 1), target, member("system", 2), &models.Community{ID: "C"}))

	// identity checks still apply
	self := member("A", 0)
	self.Present = false
	require.NotNil(t, ValidateHierarchy(member("A", 1), self, member("system", 2), nil))
}

func TestHierarchyEveryTargetChecked(t *testing.T) {
	f := newFixture(t)
	inv := invocation("massban", member("A", 5), member("T1", 1), member("T2", 7))
	d := banDescriptor()

	dec, err := f.gate.Evaluate(context.Background(), inv, d)
	require.NoError(t, err)
	require.False(t, dec.Proceed())
	assert.Equal(t, models.ReasonEqualOrHigher, dec.Denial.Reason)
}

func TestPipelineOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("scope before owner", func(t *testing.T) {
		f := newFixture(t)
		inv := invocation("eval", member("A", 1))
		inv.Community = nil
		d := &models.CommandDescriptor{Name: "eval", CommunityOnly: true, OwnerOnly: true}

		dec, err := f.gate.Evaluate(ctx, inv, d)
		require.NoError(t, err)
		assert.Equal(t, models.ReasonCommunityOnly, dec.Denial.Reason)
		assert.Equal(t, models.KindScopeViolation, dec.Denial.Kind)
	})

	t.Run("owner only", func(t *testing.T) {
		f := newFixture(t)
		d := &models.CommandDescriptor{Name: "eval", OwnerOnly: true}

		dec, err := f.gate.Evaluate(ctx, invocation("eval", member("A", 1)), d)
		require.NoError(t, err)
		assert.Equal(t, models.ReasonOwnerOnly, dec.Denial.Reason)

		dec, err = f.gate.Evaluate(ctx, invocation("eval", member("owner-1", 1)), d)
		require.NoError(t, err)
		assert.True(t, dec.Proceed())
	})

	t.Run("staff only", func(t *testing.T) {
		f := newFixture(t)
		d := &models.CommandDescriptor{Name: "tickets", StaffOnly: true}

		dec, err := f.gate.Evaluate(ctx, invocation("tickets", member("A", 1)), d)
		require.NoError(t, err)
		assert.Equal(t, models.ReasonStaffOnly, dec.Denial.Reason)

		staff := member("S", 1)
		staff.Tier = models.TierSupport
		dec, err = f.gate.Evaluate(ctx, invocation("tickets", staff), d)
		require.NoError(t, err)
		assert.True(t, dec.Proceed())
	})

	t.Run("capability before hierarchy", func(t *testing.T) {
		f := newFixture(t)
		actor := member("A", 1)
		actor.Capabilities = models.NewCapabilities(models.CapKickMembers)
		inv := invocation("ban", actor, member("T", 9))

		dec, err := f.gate.Evaluate(ctx, inv, banDescriptor())
		require.NoError(t, err)
		assert.Equal(t, "missing-capability:BanMembers", dec.Denial.Reason)
		assert.Equal(t, models.CapBanMembers, dec.Denial.Capability)
	})

	t.Run("system capability", func(t *testing.T) {
		f := newFixture(t)
		inv := invocation("ban", member("A", 5), member("T", 1))
		inv.SystemChannelCapabilities = models.NewCapabilities(models.CapSendMessages)

		dec, err := f.gate.Evaluate(ctx, inv, banDescriptor())
		require.NoError(t, err)
		assert.Equal(t, "system-missing-capability:BanMembers", dec.Denial.Reason)
	})

	t.Run("channel capability", func(t *testing.T) {
		f := newFixture(t)
		inv := invocation("clear", member("A", 5))
		inv.SystemChannelCapabilities = models.NewCapabilities(models.CapSendMessages)
		d := &models.CommandDescriptor{Name: "clear", ChannelCapabilities: models.NewCapabilities(models.CapManageMessages)}

		dec, err := f.gate.Evaluate(ctx, inv, d)
		require.NoError(t, err)
		assert.Equal(t, "channel-missing-capability:ManageMessages", dec.Denial.Reason)
	})

	t.Run("predicates run after hierarchy", func(t *testing.T) {
		f := newFixture(t)
		called := false
		d := banDescriptor()
		d.Predicates = []models.Predicate{func(context.Context, *models.Invocation) *models.DenialError {
			called = true
			return &models.DenialError{Kind: models.KindValidation, Reason: "custom"}
		}}

		dec, err := f.gate.Evaluate(ctx, invocation("ban", member("A", 5), member("T", 5)), d)
		require.NoError(t, err)
		assert.Equal(t, models.ReasonEqualOrHigher, dec.Denial.Reason)
		assert.False(t, called)

		dec, err = f.gate.Evaluate(ctx, invocation("ban", member("A", 5), member("T", 1)), d)
		require.NoError(t, err)
		assert.Equal(t, "custom", dec.Denial.Reason)
		assert.True(t, called)
		assert.Equal(t, 0, f.cooldowns.Len())
	})
}

func TestCooldownThroughGate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	d := banDescriptor()
	inv := invocation("ban", member("A", 5), member("T", 1))

	dec, err := f.gate.Evaluate(ctx, inv, d)
	require.NoError(t, err)
	assert.True(t, dec.Proceed())

	f.clock.Advance(3 * time.Second)
	dec, err = f.gate.Evaluate(ctx, inv, d)
	require.NoError(t, err)
	require.False(t, dec.Proceed())
	assert.Equal(t, models.KindCooldownActive, dec.Denial.Kind)
	assert.Equal(t, 2, dec.Denial.Remaining)

	f.clock.Advance(3 * time.Second)
	dec, err = f.gate.Evaluate(ctx, inv, d)
	require.NoError(t, err)
	assert.True(t, dec.Proceed())
}

func TestRateLimitOptIn(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	plain := &models.CommandDescriptor{Name: "ping"}
	plain.WithCooldown(0)
	for i := 0; i < 20; i++ {
		dec, err := f.gate.Evaluate(ctx, invocation("ping", member("A", 1)), plain)
		require.NoError(t, err)
		require.True(t, dec.Proceed())
	}

	limited := &models.CommandDescriptor{Name: "massban", RateLimit: &models.RateLimit{Limit: 2, WindowMs: 60000}}
	limited.WithCooldown(0)
	for i := 0; i < 2; i++ {
		dec, err := f.gate.Evaluate(ctx, invocation("massban", member("A", 1)), limited)
		require.NoError(t, err)
		require.True(t, dec.Proceed())
	}
	dec, err := f.gate.Evaluate(ctx, invocation("massban", member("A", 1)), limited)
	require.NoError(t, err)
	require.False(t, dec.Proceed())
	assert.Equal(t, models.KindRateLimited, dec.Denial.Kind)
	assert.Equal(t, f.clock.Now().Add(time.Minute), dec.Denial.ResetAt)
}

func TestCancelledContextCommitsNothing(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.gate.Evaluate(ctx, invocation("ban", member("A", 5), member("T", 1)), banDescriptor())
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, f.cooldowns.Len())
}

// cancelOnAcquire cancels the invocation context while the cooldown commits.
type cancelOnAcquire struct {
	*limiter.MemoryCooldownStore
	cancel context.CancelFunc
}

func (c cancelOnAcquire) Acquire(ctx context.Context, key string, now time.Time, cd time.Duration) (time.Duration, error) {
	left, err := c.MemoryCooldownStore.Acquire(ctx, key, now, cd)
	c.cancel()
	return left, err
}

func TestCancelAfterCommitRollsBack(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := limiter.NewMemoryCooldownStore()
	ctx, cancel := context.WithCancel(context.Background())
	g := New(nil, limiter.NewCooldowns(cancelOnAcquire{store, cancel}, clock), nil, nil, zaptest.NewLogger(t))

	_, err := g.Evaluate(ctx, invocation("ban", member("A", 5), member("T", 1)), banDescriptor())
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, store.Len(), "cooldown must be released")
}

type brokenCooldowns struct{}

func (brokenCooldowns) Acquire(context.Context, string, time.Time, time.Duration) (time.Duration, error) {
	return 0, errors.New("redis: connection refused")
}
func (brokenCooldowns) Release(context.Context, string, time.Time) error { return nil }

func TestStoreFailureIsError(t *testing.T) {
	g := New(nil, limiter.NewCooldowns(brokenCooldowns{}, clockwork.NewFakeClock()), nil, nil, zaptest.NewLogger(t))

	_, err := g.Evaluate(context.Background(), invocation("ban", member("A", 5), member("T", 1)), banDescriptor())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cooldown check")
}
