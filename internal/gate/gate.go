package gate

import (
	"context"
	"fmt"
	"time"

	"github.com/modgate/backend/internal/limiter"
	"github.com/modgate/backend/internal/metrics"
	"github.com/modgate/backend/internal/models"
	"go.uber.org/zap"
)

// OwnerDirectory answers whether an identity is a configured bot owner.
type OwnerDirectory interface {
	IsOwner(id string) bool
}

// Decision is the gate result: Proceed, or a denial the actor can be shown.
type Decision struct {
	Denial *models.DenialError
}

func (d Decision) Proceed() bool {
	return d.Denial == nil
}

func Proceed() Decision {
	return Decision{}
}

func Deny(err *models.DenialError) Decision {
	return Decision{Denial: err}
}

type Gate struct {
	owners    OwnerDirectory
	cooldowns *limiter.Cooldowns
	rates     *limiter.RateLimiter
	metrics   *metrics.Metrics
	log       *zap.Logger
}

func New(owners OwnerDirectory, cooldowns *limiter.Cooldowns, rates *limiter.RateLimiter, m *metrics.Metrics, log *zap.Logger) *Gate {
	return &Gate{
		owners:    owners,
		cooldowns: cooldowns,
		rates:     rates,
		metrics:   m,
		log:       log,
	}
}

// Evaluate runs the policy pipeline in order and stops at the first denial:
// scope, owner-only, staff-only, capabilities, channel capabilities,
// hierarchy, descriptor predicates, cooldown, rate limit.
//
// Nothing is committed unless every earlier step passed. A returned error
// means the gate could not decide (limiter store failure or cancelled ctx);
// no handler may run in that case.
func (g *Gate) Evaluate(ctx context.Context, inv *models.Invocation, d *models.CommandDescriptor) (Decision, error) {
	dec, err := g.evaluate(ctx, inv, d)
	if err != nil {
		g.metrics.GateDecision(d.Name, "error", string(models.Classify(err)))
		return Decision{}, err
	}
	if dec.Proceed() {
		g.metrics.GateDecision(d.Name, "proceed", "")
	} else {
		g.metrics.GateDecision(d.Name, "denied", reasonLabel(dec.Denial))
		g.log.Debug("gate denied",
			zap.String("command", d.Name),
			zap.String("actor_id", inv.Actor.ID),
			zap.String("reason", dec.Denial.Reason),
		)
	}
	return dec, nil
}

func (g *Gate) evaluate(ctx context.Context, inv *models.Invocation, d *models.CommandDescriptor) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}

	if d.CommunityOnly && inv.Community == nil {
		return Deny(&models.DenialError{
			Kind:    models.KindScopeViolation,
			Reason:  models.ReasonCommunityOnly,
			Message: "This command can only be used in a community.",
		}), nil
	}

	if d.OwnerOnly && (g.owners == nil || !g.owners.IsOwner(inv.Actor.ID)) {
		return Deny(&models.DenialError{
			Kind:    models.KindPermissionDenied,
			Reason:  models.ReasonOwnerOnly,
			Message: "This command is restricted to the bot owners.",
		}), nil
	}

	if d.StaffOnly && !inv.Actor.Tier.IsStaff() {
		return Deny(&models.DenialError{
			Kind:    models.KindPermissionDenied,
			Reason:  models.ReasonStaffOnly,
			Message: "This command is restricted to staff members.",
		}), nil
	}

	if denial := checkCapabilities(inv, d); denial != nil {
		return Deny(denial), nil
	}

	if d.RequiresHierarchy {
		for _, target := range inv.Targets {
			if denial := ValidateHierarchy(inv.Actor, target, inv.System, inv.Community); denial != nil {
				return Deny(denial), nil
			}
		}
	}

	for _, pred := range d.Predicates {
		if denial := pred(ctx, inv); denial != nil {
			return Deny(denial), nil
		}
	}

	// Everything below commits state.
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}

	cd, err := g.cooldowns.Check(ctx, inv.Actor.ID, d.Name, d.Cooldown())
	if err != nil {
		return Decision{}, fmt.Errorf("cooldown check: %w", err)
	}
	if !cd.Ready {
		return Deny(&models.DenialError{
			Kind:      models.KindCooldownActive,
			Reason:    models.ReasonCooldownActive,
			Message:   fmt.Sprintf("Please wait %d more second(s) before reusing the `%s` command.", cd.SecondsRemaining, d.Name),
			Remaining: cd.SecondsRemaining,
		}), nil
	}

	if d.RateLimit != nil && g.rates != nil {
		if err := ctx.Err(); err != nil {
			g.rollbackCooldown(ctx, cd)
			return Decision{}, err
		}
		rl, err := g.rates.Check(ctx, inv.Actor.ID, d.Name, d.RateLimit.Limit, d.RateLimit.WindowMs)
		if err != nil {
			g.rollbackCooldown(ctx, cd)
			return Decision{}, fmt.Errorf("rate limit check: %w", err)
		}
		if !rl.Ready {
			return Deny(&models.DenialError{
				Kind:    models.KindRateLimited,
				Reason:  models.ReasonRateLimited,
				Message: fmt.Sprintf("You are using `%s` too often. Try again at %s.", d.Name, rl.ResetAt.UTC().Format(time.RFC3339)),
				ResetAt: rl.ResetAt,
			}), nil
		}
		if err := ctx.Err(); err != nil {
			g.rollbackCooldown(ctx, cd)
			if rerr := g.rates.Release(context.WithoutCancel(ctx), rl); rerr != nil {
				g.log.Warn("rate limit rollback failed", zap.String("command", d.Name), zap.Error(rerr))
			}
			return Decision{}, err
		}
		return Proceed(), nil
	}

	if err := ctx.Err(); err != nil {
		g.rollbackCooldown(ctx, cd)
		return Decision{}, err
	}
	return Proceed(), nil
}

func (g *Gate) rollbackCooldown(ctx context.Context, cd limiter.CooldownResult) {
	if err := g.cooldowns.Release(context.WithoutCancel(ctx), cd); err != nil {
		g.log.Warn("cooldown rollback failed", zap.Error(err))
	}
}

// checkCapabilities covers the actor's capabilities, the system's own
// capabilities for the same set, and the channel-scoped set.
func checkCapabilities(inv *models.Invocation, d *models.CommandDescriptor) *models.DenialError {
	if missing, ok := inv.Actor.Capabilities.Missing(d.RequiredCapabilities); ok {
		return &models.DenialError{
			Kind:       models.KindPermissionDenied,
			Reason:     "missing-capability:" + missing.String(),
			Message:    fmt.Sprintf("You need the %s permission to use this command.", missing),
			Capability: missing,
		}
	}

	systemCaps := inv.SystemChannelCapabilities
	if inv.ChannelID == "" {
		systemCaps = inv.System.Capabilities
	}
	if missing, ok := systemCaps.Missing(d.RequiredCapabilities); ok {
		return &models.DenialError{
			Kind:       models.KindPermissionDenied,
			Reason:     "system-missing-capability:" + missing.String(),
			Message:    fmt.Sprintf("I need the %s permission to do that here.", missing),
			Capability: missing,
		}
	}

	if missing, ok := inv.SystemChannelCapabilities.Missing(d.ChannelCapabilities); ok {
		return &models.DenialError{
			Kind:       models.KindPermissionDenied,
			Reason:     "channel-missing-capability:" + missing.String(),
			Message:    fmt.Sprintf("I need the %s permission in this channel.", missing),
			Capability: missing,
		}
	}
	return nil
}

// reasonLabel strips capability names to keep metric cardinality bounded.
func reasonLabel(d *models.DenialError) string {
	if d.Capability != 0 {
		return string(d.Kind)
	}
	return d.Reason
}
