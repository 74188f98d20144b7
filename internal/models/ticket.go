package models

import (
	"fmt"
	"time"
)

type TicketStatus string

const (
	TicketOpen       TicketStatus = "open"
	TicketInProgress TicketStatus = "in_progress"
	TicketClosed     TicketStatus = "closed"
)

func (s TicketStatus) Valid() bool {
	switch s {
	case TicketOpen, TicketInProgress, TicketClosed:
		return true
	}
	return false
}

type TicketPriority string

const (
	PriorityLow    TicketPriority = "low"
	PriorityNormal TicketPriority = "normal"
	PriorityHigh   TicketPriority = "high"
	PriorityUrgent TicketPriority = "urgent"
)

func (p TicketPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

type Ticket struct {
	ID         string         `json:"id"`
	OwnerID    string         `json:"owner_id"`
	Category   string         `json:"category"`
	Subject    string         `json:"subject"`
	Status     TicketStatus   `json:"status"`
	Priority   TicketPriority `json:"priority"`
	AssignedTo *string        `json:"assigned_to,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	ClosedAt   *time.Time     `json:"closed_at,omitempty"`
	ClosedBy   *string        `json:"closed_by,omitempty"`
}

// Consistent reports whether closedAt/closedBy are set iff the ticket is closed.
func (t *Ticket) Consistent() bool {
	closed := t.Status == TicketClosed
	return closed == (t.ClosedAt != nil) && closed == (t.ClosedBy != nil)
}

type TicketMessage struct {
	ID        int64     `json:"id"`
	TicketID  string    `json:"ticket_id"`
	AuthorID  string    `json:"author_id"`
	IsStaff   bool      `json:"is_staff"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

type TicketWithMessages struct {
	Ticket
	Messages []TicketMessage `json:"messages"`
}

// TicketFilter narrows ticket listings. Zero fields match everything.
type TicketFilter struct {
	OwnerID string
	Status  TicketStatus
	Limit   uint64
}

type TicketStatistics struct {
	Total      int  `json:"total"`
	Open       int  `json:"open"`
	InProgress int  `json:"in_progress"`
	Closed     int  `json:"closed"`
	Degraded   bool `json:"degraded,omitempty"`
}

var ticketTransitions = map[TicketStatus][]TicketStatus{
	TicketOpen:       {TicketInProgress, TicketClosed},
	TicketInProgress: {TicketOpen, TicketClosed},
	TicketClosed:     {TicketOpen},
}

func CanTransitionTicket(from, to TicketStatus) bool {
	for _, s := range ticketTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func ValidateTicketTransition(from, to TicketStatus) error {
	if !to.Valid() {
		return &ValidationError{Field: "status", Rule: fmt.Sprintf("unknown status %q", to)}
	}
	if !CanTransitionTicket(from, to) {
		return &ValidationError{Field: "status", Rule: fmt.Sprintf("invalid transition %s -> %s", from, to)}
	}
	return nil
}

// Ticket events
const (
	TicketEventCreated       = "ticket_created"
	TicketEventMessage       = "ticket_message"
	TicketEventStatusChanged = "ticket_status_changed"
	TicketEventAssigned      = "ticket_assigned"
	TicketEventPriority      = "ticket_priority_changed"
)
