package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modgate/backend/internal/audit"
	"github.com/modgate/backend/internal/models"
)

type moderation struct {
	deps Deps
}

func requireTarget(inv *models.Invocation) (*models.Member, error) {
	t := inv.PrimaryTarget()
	if t == nil {
		return nil, &models.ValidationError{Field: "user", Rule: "a target member is required"}
	}
	return t, nil
}

func reasonOf(inv *models.Invocation) string {
	return strings.TrimSpace(inv.StringOption("reason", ""))
}

func displayReason(reason string) string {
	if reason == "" {
		return noReason
	}
	return reason
}

func (m *moderation) notify(ctx context.Context, userID, title string, fields ...models.EmbedField) {
	if m.deps.Notifier == nil {
		return
	}
	m.deps.Notifier.Notify(ctx, models.DirectMessage{
		UserID: userID,
		Embed: &models.Embed{
			Title:     title,
			Fields:    fields,
			Timestamp: m.deps.Clock.Now().UTC(),
		},
	})
}

func (m *moderation) ban(ctx context.Context, call *Call) (string, error) {
	inv := call.Invocation
	target, err := requireTarget(inv)
	if err != nil {
		return "", err
	}
	days, err := inv.IntOption("delete_messages", 0)
	if err != nil {
		return "", err
	}
	if days < 0 || days > maxDeleteDays {
		return "", &models.ValidationError{Field: "delete_messages", Rule: fmt.Sprintf("must be between 0 and %d", maxDeleteDays)}
	}
	reason := reasonOf(inv)

	// DM before the ban, the member is unreachable afterwards.
	if target.Present {
		m.notify(ctx, target.ID, "🔨 You have been banned",
			models.EmbedField{Name: "Community", Value: inv.CommunityID(), Inline: true},
			models.EmbedField{Name: "Reason", Value: displayReason(reason)},
		)
	}

	if err := m.deps.Moderation.Ban(ctx, inv.CommunityID(), target.ID, displayReason(reason), days); err != nil {
		return "", fmt.Errorf("ban %s: %w", target.ID, err)
	}
	caseID, err := call.Audit.Record(ctx, models.ActionBan, target.ID, reason, map[string]any{"delete_days": days})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("🔨 <@%s> has been banned. Case %s", target.ID, caseID), nil
}

func (m *moderation) kick(ctx context.Context, call *Call) (string, error) {
	inv := call.Invocation
	target, err := requireTarget(inv)
	if err != nil {
		return "", err
	}
	if !target.Present {
		return "", &models.NotFoundError{Entity: "member", ID: target.ID}
	}
	reason := reasonOf(inv)

	m.notify(ctx, target.ID, "👢 You have been kicked",
		models.EmbedField{Name: "Community", Value: inv.CommunityID(), Inline: true},
		models.EmbedField{Name: "Reason", Value: displayReason(reason)},
	)
	if err := m.deps.Moderation.Kick(ctx, inv.CommunityID(), target.ID, displayReason(reason)); err != nil {
		return "", fmt.Errorf("kick %s: %w", target.ID, err)
	}
	caseID, err := call.Audit.Record(ctx, models.ActionKick, target.ID, reason, nil)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("👢 <@%s> has been kicked. Case %s", target.ID, caseID), nil
}

func (m *moderation) warn(ctx context.Context, call *Call) (string, error) {
	inv := call.Invocation
	target, err := requireTarget(inv)
	if err != nil {
		return "", err
	}
	if !target.Present {
		return "", &models.NotFoundError{Entity: "member", ID: target.ID}
	}
	reason := reasonOf(inv)

	previous := 0
	if m.deps.Warnings != nil {
		previous, err = m.deps.Warnings.CountActions(ctx, inv.CommunityID(), target.ID, models.ActionWarn)
		if err != nil {
			return "", err
		}
	}
	caseID, err := call.Audit.Record(ctx, models.ActionWarn, target.ID, reason, map[string]any{"previous_warnings": previous})
	if err != nil {
		return "", err
	}
	total := previous + 1

	m.notify(ctx, target.ID, "⚠️ You have received a warning",
		models.EmbedField{Name: "Community", Value: inv.CommunityID(), Inline: true},
		models.EmbedField{Name: "Reason", Value: displayReason(reason)},
		models.EmbedField{Name: "Total Warnings", Value: fmt.Sprint(total), Inline: true},
	)

	msg := fmt.Sprintf("⚠️ <@%s> has been warned (%d total). Case %s", target.ID, total, caseID)
	switch {
	case total >= 5:
		msg += "\nThis member now has 5+ warnings. Consider taking further action."
	case total >= 3:
		msg += "\nThis member now has 3+ warnings."
	}
	return msg, nil
}

func (m *moderation) timeout(ctx context.Context, call *Call) (string, error) {
	inv := call.Invocation
	target, err := requireTarget(inv)
	if err != nil {
		return "", err
	}
	if !target.Present {
		return "", &models.NotFoundError{Entity: "member", ID: target.ID}
	}
	minutes, err := inv.IntOption("minutes", 10)
	if err != nil {
		return "", err
	}
	if minutes < 1 || minutes > maxTimeoutMinutes {
		return "", &models.ValidationError{Field: "minutes", Rule: fmt.Sprintf("must be between 1 and %d", maxTimeoutMinutes)}
	}
	reason := reasonOf(inv)
	d := time.Duration(minutes) * time.Minute

	if err := m.deps.Moderation.Timeout(ctx, inv.CommunityID(), target.ID, d, displayReason(reason)); err != nil {
		return "", fmt.Errorf("timeout %s: %w", target.ID, err)
	}
	caseID, err := call.Audit.Record(ctx, models.ActionTimeout, target.ID, reason, map[string]any{"duration_ms": d.Milliseconds()})
	if err != nil {
		return "", err
	}
	m.notify(ctx, target.ID, "⏰ You have been timed out",
		models.EmbedField{Name: "Community", Value: inv.CommunityID(), Inline: true},
		models.EmbedField{Name: "Duration", Value: audit.FormatDuration(d), Inline: true},
		models.EmbedField{Name: "Reason", Value: displayReason(reason)},
	)
	return fmt.Sprintf("⏰ <@%s> has been timed out for %s. Case %s", target.ID, audit.FormatDuration(d), caseID), nil
}

func (m *moderation) clear(ctx context.Context, call *Call) (string, error) {
	inv := call.Invocation
	if inv.ChannelID == "" {
		return "", &models.ValidationError{Field: "channel", Rule: "must be used in a channel"}
	}
	amount, err := inv.IntOption("amount", 0)
	if err != nil {
		return "", err
	}
	if amount < 1 || amount > maxClearAmount {
		return "", &models.ValidationError{Field: "amount", Rule: fmt.Sprintf("must be between 1 and %d", maxClearAmount)}
	}
	authorID := ""
	if t := inv.PrimaryTarget(); t != nil {
		authorID = t.ID
	}

	deleted, skipped, err := m.deps.Moderation.DeleteMessages(ctx, inv.ChannelID, amount, authorID)
	if err != nil {
		return "", fmt.Errorf("delete messages: %w", err)
	}
	if deleted == 0 {
		return "", &models.NotFoundError{Entity: "deletable messages (younger than 14 days)"}
	}
	extra := map[string]any{"message_count": deleted}
	if skipped > 0 {
		extra["skipped"] = skipped
	}
	caseID, err := call.Audit.Record(ctx, models.ActionClear, authorID, "", extra)
	if err != nil {
		return "", err
	}
	msg := fmt.Sprintf("🧹 Deleted %d message(s). Case %s", deleted, caseID)
	if skipped > 0 {
		msg += fmt.Sprintf("\nSkipped %d message(s) older than 14 days.", skipped)
	}
	return msg, nil
}

func (m *moderation) massban(ctx context.Context, call *Call) (string, error) {
	inv := call.Invocation
	reason := reasonOf(inv)

	var banned, failed []string
	for _, t := range inv.Targets {
		if err := ctx.Err(); err != nil {
			break
		}
		if err := m.deps.Moderation.Ban(ctx, inv.CommunityID(), t.ID, displayReason(reason), 0); err != nil {
			failed = append(failed, t.ID)
			continue
		}
		banned = append(banned, t.ID)
	}
	if len(banned) == 0 {
		return "", fmt.Errorf("massban: no member could be banned (%d failed)", len(failed))
	}

	extra := map[string]any{}
	if len(failed) > 0 {
		extra["failed"] = failed
	}
	caseID, err := call.Audit.RecordBulk(ctx, models.ActionMassBan, banned, reason, extra)
	if err != nil {
		return "", err
	}
	msg := fmt.Sprintf("🔨 Banned %d member(s). Case %s", len(banned), caseID)
	if len(failed) > 0 {
		msg += fmt.Sprintf("\nCould not ban %d member(s).", len(failed))
	}
	return msg, nil
}
