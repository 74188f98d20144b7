package models

import (
	"strings"
	"time"
)

const (
	ActionBan     = "BAN"
	ActionKick    = "KICK"
	ActionWarn    = "WARN"
	ActionTimeout = "TIMEOUT"
	ActionClear   = "CLEAR"
	ActionMassBan = "MASSBAN"

	ActionTicketCreated  = "TICKET_CREATED"
	ActionTicketAssign   = "TICKET_ASSIGN"
	ActionTicketPriority = "TICKET_PRIORITY"
	ticketStatusPrefix   = "TICKET_STATUS:"

	DeniedPrefix = "DENIED:"
	FailedPrefix = "FAILED:"
)

// TicketStatusAction names a ticket transition, e.g. TICKET_STATUS:open->closed.
func TicketStatusAction(from, to TicketStatus) string {
	return ticketStatusPrefix + string(from) + "->" + string(to)
}

// AuditRecord is immutable once written.
type AuditRecord struct {
	CaseID      string         `json:"case_id"`
	CommunityID string         `json:"community_id"`
	ActorID     string         `json:"actor_id"`
	TargetID    *string        `json:"target_id,omitempty"`
	ActionType  string         `json:"action_type"`
	Reason      *string        `json:"reason,omitempty"`
	Extra       map[string]any `json:"extra"`
	CreatedAt   time.Time      `json:"created_at"`
}

func (r *AuditRecord) IsDenial() bool {
	return strings.HasPrefix(r.ActionType, DeniedPrefix)
}

func (r *AuditRecord) IsFailure() bool {
	return strings.HasPrefix(r.ActionType, FailedPrefix)
}

// IsAction reports whether the record is an action that took effect, as
// opposed to a refused or failed attempt.
func (r *AuditRecord) IsAction() bool {
	return !r.IsDenial() && !r.IsFailure()
}

type AuditFilter struct {
	CommunityID string
	ActorID     string
	TargetID    string
	ActionType  string
	Since       *time.Time
	// ActionsOnly drops DENIED:* and FAILED:* records.
	ActionsOnly bool
	Limit       uint64
}

type AuditStatistics struct {
	TotalActions int            `json:"total_actions"`
	ByType       map[string]int `json:"by_type"`
	ByModerator  map[string]int `json:"by_moderator"`
	DailyAverage float64        `json:"daily_average"`
	Days         int            `json:"days"`
	// Degraded is set when the statistics could not be read in time.
	Degraded bool `json:"degraded,omitempty"`
}

type AuditConfiguration struct {
	Configured bool   `json:"configured"`
	StreamID   string `json:"stream_id,omitempty"`
	CanPost    bool   `json:"can_post"`
	Reason     string `json:"reason,omitempty"`
}

func StrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
