package models

import (
	"fmt"
	"strconv"
	"time"
)

// Member is an actor or target as seen inside one invocation.
type Member struct {
	ID              string       `json:"id"`
	HighestPosition int          `json:"highest_position"`
	Tier            StaffTier    `json:"tier"`
	Capabilities    Capabilities `json:"capabilities"`
	// Present is false when the identity is not currently a member of the community.
	Present bool `json:"present"`
}

// Community is the tenant an invocation happens in.
type Community struct {
	ID      string     `json:"id"`
	OwnerID string     `json:"owner_id"`
	Roles   *RoleModel `json:"-"`
}

// InvocationRequest is the unresolved invocation as sent by the platform.
type InvocationRequest struct {
	CommandName string         `json:"command_name"`
	ActorID     string         `json:"actor_id"`
	TargetIDs   []string       `json:"target_ids,omitempty"`
	CommunityID string         `json:"community_id,omitempty"`
	ChannelID   string         `json:"channel_id,omitempty"`
	Options     map[string]any `json:"options,omitempty"`
}

// Unresolved builds an invocation from the raw request alone, for recording
// a failure when resolution itself did not succeed.
func (req InvocationRequest) Unresolved() *Invocation {
	inv := &Invocation{
		CommandName: req.CommandName,
		Actor:       Member{ID: req.ActorID},
		ChannelID:   req.ChannelID,
		Options:     req.Options,
	}
	if req.CommunityID != "" {
		inv.Community = &Community{ID: req.CommunityID}
	}
	for _, id := range req.TargetIDs {
		inv.Targets = append(inv.Targets, Member{ID: id})
	}
	return inv
}

// Invocation is the fully-resolved context of one command invocation.
type Invocation struct {
	CommandName string   `json:"command_name"`
	Actor       Member   `json:"actor"`
	Targets     []Member `json:"targets,omitempty"`
	// Community is nil for invocations outside any community (direct messages).
	Community *Community `json:"community,omitempty"`
	ChannelID string     `json:"channel_id,omitempty"`
	// System is the platform-side identity of this service.
	System                    Member         `json:"system"`
	SystemChannelCapabilities Capabilities   `json:"system_channel_capabilities"`
	Options                   map[string]any `json:"options,omitempty"`
	Timestamp                 time.Time      `json:"timestamp"`
}

func (inv *Invocation) CommunityID() string {
	if inv.Community == nil {
		return ""
	}
	return inv.Community.ID
}

// PrimaryTarget returns the first target, if any.
func (inv *Invocation) PrimaryTarget() *Member {
	if len(inv.Targets) == 0 {
		return nil
	}
	return &inv.Targets[0]
}

func (inv *Invocation) TargetIDs() []string {
	ids := make([]string, 0, len(inv.Targets))
	for _, t := range inv.Targets {
		ids = append(ids, t.ID)
	}
	return ids
}

// StringOption returns a string option or fallback when absent or empty.
func (inv *Invocation) StringOption(name, fallback string) string {
	v, ok := inv.Options[name]
	if !ok || v == nil {
		return fallback
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return fallback
	}
	return s
}

// IntOption accepts JSON numbers (float64), ints and numeric strings.
func (inv *Invocation) IntOption(name string, fallback int) (int, error) {
	v, ok := inv.Options[name]
	if !ok || v == nil {
		return fallback, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, &ValidationError{Field: name, Rule: "must be an integer"}
		}
		return int(n), nil
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, &ValidationError{Field: name, Rule: "must be an integer"}
		}
		return i, nil
	default:
		return 0, &ValidationError{Field: name, Rule: fmt.Sprintf("unsupported type %T", v)}
	}
}
