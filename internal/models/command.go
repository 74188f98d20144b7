package models

import (
	"context"
	"strings"
)

const DefaultCooldownSeconds = 3

// Predicate is an extra policy check composed into a descriptor. It returns a
// non-nil *DenialError to deny.
type Predicate func(ctx context.Context, inv *Invocation) *DenialError

// RateLimit opts a command into the sliding-window limiter.
type RateLimit struct {
	Limit    int   `json:"limit"`
	WindowMs int64 `json:"window_ms"`
}

type CommandDescriptor struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	RequiredCapabilities Capabilities `json:"required_capabilities"`
	// ChannelCapabilities are checked against the system's own channel-level capabilities.
	ChannelCapabilities Capabilities `json:"channel_capabilities"`

	// CooldownSeconds nil means DefaultCooldownSeconds; 0 disables the cooldown.
	CooldownSeconds *int `json:"cooldown_seconds,omitempty"`

	RequiresHierarchy bool `json:"requires_hierarchy"`
	CommunityOnly     bool `json:"community_only"`
	OwnerOnly         bool `json:"owner_only"`
	StaffOnly         bool `json:"staff_only"`

	RateLimit *RateLimit `json:"rate_limit,omitempty"`

	Predicates []Predicate `json:"-"`
}

func (d *CommandDescriptor) Cooldown() int {
	if d.CooldownSeconds == nil {
		return DefaultCooldownSeconds
	}
	return *d.CooldownSeconds
}

func (d *CommandDescriptor) WithCooldown(seconds int) {
	d.CooldownSeconds = &seconds
}

func (d *CommandDescriptor) Validate() error {
	name := strings.TrimSpace(d.Name)
	if name == "" {
		return &ValidationError{Field: "name", Rule: "required"}
	}
	if name != d.Name || strings.ContainsAny(name, " \t\n:") {
		return &ValidationError{Field: "name", Rule: "must not contain whitespace or ':'"}
	}
	if d.CooldownSeconds != nil && *d.CooldownSeconds < 0 {
		return &ValidationError{Field: "cooldown_seconds", Rule: "must be >= 0"}
	}
	if d.RateLimit != nil {
		if d.RateLimit.Limit <= 0 {
			return &ValidationError{Field: "rate_limit.limit", Rule: "must be > 0"}
		}
		if d.RateLimit.WindowMs <= 0 {
			return &ValidationError{Field: "rate_limit.window_ms", Rule: "must be > 0"}
		}
	}
	return nil
}
