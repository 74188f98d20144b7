package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/modgate/backend/internal/models"
)

// Moderator performs moderation effects through the platform runtime.
type Moderator interface {
	Ban(ctx context.Context, communityID, userID, reason string, deleteDays int) error
	Kick(ctx context.Context, communityID, userID, reason string) error
	Timeout(ctx context.Context, communityID, userID string, d time.Duration, reason string) error
	DeleteMessages(ctx context.Context, channelID string, amount int, authorID string) (deleted int, skipped int, err error)
}

// Notifier delivers best-effort direct messages. Notify never blocks on
// delivery and never fails the caller.
type Notifier interface {
	Notify(ctx context.Context, msg models.DirectMessage)
}

// WarningCounter counts prior actions recorded against a member.
type WarningCounter interface {
	CountActions(ctx context.Context, communityID, targetID, actionType string) (int, error)
}

type Deps struct {
	Moderation Moderator
	Notifier   Notifier
	Warnings   WarningCounter
	// Clock stamps outgoing notices. Nil means the real clock.
	Clock clockwork.Clock
	// MassBanLimit opts massban into the sliding-window rate limiter when
	// Limit is positive.
	MassBanLimit models.RateLimit
}

const (
	maxDeleteDays     = 7
	maxClearAmount    = 100
	maxTimeoutMinutes = 28 * 24 * 60
	maxMassBanTargets = 25
	noReason          = "No reason provided"
)

func cooldown(secs int) *int {
	return &secs
}

// RegisterBuiltins registers the moderation and utility commands.
func RegisterBuiltins(r *Registry, deps Deps) error {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	m := &moderation{deps: deps}
	var massLimit *models.RateLimit
	if deps.MassBanLimit.Limit > 0 {
		rl := deps.MassBanLimit
		massLimit = &rl
	}

	builtins := []struct {
		desc    models.CommandDescriptor
		handler Handler
	}{
		{models.CommandDescriptor{
			Name:                 "ban",
			Description:          "Ban a member from the community",
			RequiredCapabilities: models.NewCapabilities(models.CapBanMembers),
			RequiresHierarchy:    true,
			CommunityOnly:        true,
			CooldownSeconds:      cooldown(5),
		}, m.ban},
		{models.CommandDescriptor{
			Name:                 "kick",
			Description:          "Kick a member from the community",
			RequiredCapabilities: models.NewCapabilities(models.CapKickMembers),
			RequiresHierarchy:    true,
			CommunityOnly:        true,
		}, m.kick},
		{models.CommandDescriptor{
			Name:                 "warn",
			Description:          "Warn a member",
			RequiredCapabilities: models.NewCapabilities(models.CapModerateMembers),
			RequiresHierarchy:    true,
			CommunityOnly:        true,
		}, m.warn},
		{models.CommandDescriptor{
			Name:                 "timeout",
			Description:          "Temporarily mute a member",
			RequiredCapabilities: models.NewCapabilities(models.CapModerateMembers),
			RequiresHierarchy:    true,
			CommunityOnly:        true,
		}, m.timeout},
		{models.CommandDescriptor{
			Name:                 "clear",
			Description:          "Delete recent messages in this channel",
			RequiredCapabilities: models.NewCapabilities(models.CapManageMessages),
			ChannelCapabilities:  models.NewCapabilities(models.CapManageMessages, models.CapReadMessageHistory),
			CommunityOnly:        true,
			CooldownSeconds:      cooldown(5),
		}, m.clear},
		{models.CommandDescriptor{
			Name:                 "massban",
			Description:          "Ban several members at once",
			RequiredCapabilities: models.NewCapabilities(models.CapBanMembers),
			RequiresHierarchy:    true,
			CommunityOnly:        true,
			CooldownSeconds:      cooldown(10),
			RateLimit:            massLimit,
			Predicates:           []models.Predicate{targetCount(1, maxMassBanTargets)},
		}, m.massban},
		{models.CommandDescriptor{
			Name:        "ping",
			Description: "Check that the bot is responsive",
		}, ping},
		{models.CommandDescriptor{
			Name:        "help",
			Description: "List available commands",
		}, helpHandler(r)},
	}

	for _, b := range builtins {
		if err := r.Register(b.desc, b.handler); err != nil {
			return err
		}
	}
	return nil
}

// targetCount denies invocations whose target list is outside [min, max].
func targetCount(min, max int) models.Predicate {
	return func(_ context.Context, inv *models.Invocation) *models.DenialError {
		n := len(inv.Targets)
		if n >= min && n <= max {
			return nil
		}
		return &models.DenialError{
			Kind:    models.KindValidation,
			Reason:  "target-count",
			Message: fmt.Sprintf("This command accepts between %d and %d members (got %d).", min, max, n),
		}
	}
}
