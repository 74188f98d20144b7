package models

import "strings"

// StaffTier is a global, cross-community rank. Higher values outrank lower ones.
type StaffTier int

const (
	TierNone StaffTier = iota
	TierSupport
	TierModerator
	TierAdmin
	TierOwner
)

var tierNames = map[StaffTier]string{
	TierNone:      "none",
	TierSupport:   "support",
	TierModerator: "moderator",
	TierAdmin:     "admin",
	TierOwner:     "owner",
}

func (t StaffTier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return "none"
}

// IsStaff reports whether the tier is any staff tier.
func (t StaffTier) IsStaff() bool {
	return t > TierNone
}

// AtLeast reports whether t ranks equal to or above min.
func (t StaffTier) AtLeast(min StaffTier) bool {
	return t >= min
}

func (t StaffTier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func ParseStaffTier(s string) (StaffTier, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for tier, name := range tierNames {
		if name == s {
			return tier, true
		}
	}
	return TierNone, false
}
