package models

import (
	"testing"
	"time"
)

func TestCanTransitionTicket(t *testing.T) {
	tests := []struct {
		from     TicketStatus
		to       TicketStatus
		expected bool
	}{
		{TicketOpen, TicketInProgress, true},
		{TicketOpen, TicketClosed, true},
		{TicketInProgress, TicketClosed, true},
		{TicketInProgress, TicketOpen, true},

		// Reopen
		{TicketClosed, TicketOpen, true},

		{TicketClosed, TicketInProgress, false},
		{TicketClosed, TicketClosed, false},
		{TicketOpen, TicketOpen, false},
		{"nonexistent", TicketOpen, false},
		{TicketOpen, "nonexistent", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			result := CanTransitionTicket(tt.from, tt.to)
			if result != tt.expected {
				t.Errorf("CanTransitionTicket(%q, %q) = %v, want %v", tt.from, tt.to, result, tt.expected)
			}
		})
	}
}

func TestValidateTicketTransitionUnknownStatus(t *testing.T) {
	err := ValidateTicketTransition(TicketOpen, "archived")
	if Classify(err) != KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestTicketConsistent(t *testing.T) {
	now := time.Now()
	by := "42"

	open := Ticket{Status: TicketOpen}
	if !open.Consistent() {
		t.Error("open ticket without closed fields must be consistent")
	}

	closed := Ticket{Status: TicketClosed, ClosedAt: &now, ClosedBy: &by}
	if !closed.Consistent() {
		t.Error("closed ticket with closed fields must be consistent")
	}

	broken := Ticket{Status: TicketInProgress, ClosedAt: &now}
	if broken.Consistent() {
		t.Error("in_progress ticket with closedAt must be inconsistent")
	}

	missing := Ticket{Status: TicketClosed}
	if missing.Consistent() {
		t.Error("closed ticket without closedAt must be inconsistent")
	}
}

func TestTicketPriorityValid(t *testing.T) {
	for _, p := range []TicketPriority{PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent} {
		if !p.Valid() {
			t.Errorf("%s should be valid", p)
		}
	}
	if TicketPriority("critical").Valid() {
		t.Error("critical should be invalid")
	}
}
