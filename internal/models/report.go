package models

import "time"

// ErrorReport is the operator-facing detail of a failed invocation.
type ErrorReport struct {
	Command     string    `json:"command"`
	CommunityID string    `json:"community_id,omitempty"`
	ChannelID   string    `json:"channel_id,omitempty"`
	ActorID     string    `json:"actor_id"`
	Kind        ErrorKind `json:"kind"`
	Error       string    `json:"error"`
	CaseID      string    `json:"case_id,omitempty"`
	Panic       bool      `json:"panic,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}
