package audit

import (
	"fmt"
	"strings"
	"time"

	"github.com/modgate/backend/internal/models"
)

const maxListedTargets = 10

var actionColors = map[string]int{
	models.ActionBan:     0xDC3545,
	models.ActionKick:    0xFD7E14,
	models.ActionWarn:    0xFFC107,
	models.ActionTimeout: 0x6F42C1,
	models.ActionClear:   0x20C997,
	models.ActionMassBan: 0xDC3545,
}

var actionIcons = map[string]string{
	models.ActionBan:     "🔨",
	models.ActionKick:    "👢",
	models.ActionWarn:    "⚠️",
	models.ActionTimeout: "⏰",
	models.ActionClear:   "🧹",
	models.ActionMassBan: "🔨",
}

const (
	defaultColor = 0x0099FF
	deniedColor  = 0x6C757D
	failedColor  = 0xFF6B6B
)

// Render turns a record into the human-readable mirror message.
func Render(rec *models.AuditRecord) models.Embed {
	action := strings.ToUpper(rec.ActionType)
	color, ok := actionColors[action]
	if !ok {
		color = defaultColor
	}
	icon := actionIcons[action]

	title := titleCase(action)
	switch {
	case rec.IsDenial():
		color, icon = deniedColor, "⛔"
		title = "Denied: " + strings.TrimPrefix(rec.ActionType, models.DeniedPrefix)
	case rec.IsFailure():
		color, icon = failedColor, "❗"
		title = "Failed: " + strings.TrimPrefix(rec.ActionType, models.FailedPrefix)
	}
	if icon != "" {
		title = icon + " " + title
	}

	e := models.Embed{
		Title:     title,
		Color:     color,
		Footer:    "Case ID: " + rec.CaseID,
		Timestamp: rec.CreatedAt,
	}

	if rec.TargetID != nil {
		e.Fields = append(e.Fields, models.EmbedField{Name: "👤 Target User", Value: mention(*rec.TargetID), Inline: true})
	}
	e.Fields = append(e.Fields, models.EmbedField{Name: "👮 Moderator", Value: mention(rec.ActorID), Inline: true})

	if targets, ok := stringList(rec.Extra["targets"]); ok {
		e.Fields = append(e.Fields, models.EmbedField{Name: "👥 Users Affected", Value: fmt.Sprint(len(targets)), Inline: true})
		if len(targets) <= maxListedTargets {
			lines := make([]string, 0, len(targets))
			for _, id := range targets {
				lines = append(lines, "• "+mention(id))
			}
			e.Fields = append(e.Fields, models.EmbedField{Name: "👤 Affected Users", Value: strings.Join(lines, "\n")})
		}
	}

	reason := "No reason provided"
	if rec.Reason != nil && *rec.Reason != "" {
		reason = *rec.Reason
	}
	e.Fields = append(e.Fields, models.EmbedField{Name: "📝 Reason", Value: reason})

	if ms, ok := number(rec.Extra["duration_ms"]); ok && ms > 0 {
		e.Fields = append(e.Fields, models.EmbedField{Name: "⏰ Duration", Value: FormatDuration(time.Duration(ms) * time.Millisecond), Inline: true})
	}
	if n, ok := number(rec.Extra["message_count"]); ok {
		e.Fields = append(e.Fields, models.EmbedField{Name: "🗑️ Messages Deleted", Value: fmt.Sprint(n), Inline: true})
	}
	if n, ok := number(rec.Extra["delete_days"]); ok && n > 0 {
		e.Fields = append(e.Fields, models.EmbedField{Name: "📅 Message History Deleted", Value: fmt.Sprintf("%d day(s)", n), Inline: true})
	}
	if n, ok := number(rec.Extra["previous_warnings"]); ok {
		e.Fields = append(e.Fields, models.EmbedField{Name: "⚠️ Previous Warnings", Value: fmt.Sprint(n), Inline: true})
	}
	if ch, ok := rec.Extra["channel_id"].(string); ok && ch != "" {
		e.Fields = append(e.Fields, models.EmbedField{Name: "📺 Channel", Value: "<#" + ch + ">", Inline: true})
	}
	if kind, ok := rec.Extra["error_kind"].(string); ok && kind != "" {
		e.Fields = append(e.Fields, models.EmbedField{Name: "Error", Value: kind, Inline: true})
	}
	return e
}

// FormatDuration renders "1d 2h 3m", "2h 5m", "3m 10s" or "42s".
func FormatDuration(d time.Duration) string {
	seconds := int64(d / time.Second)
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm", days, hours%24, minutes%60)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes%60)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds%60)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}

func mention(id string) string {
	return fmt.Sprintf("<@%s> `(%s)`", id, id)
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

// number accepts the numeric types extra values take in memory and after a JSON round trip.
func number(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	}
	return 0, false
}

func stringList(v any) ([]string, bool) {
	switch list := v.(type) {
	case []string:
		return list, true
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}
