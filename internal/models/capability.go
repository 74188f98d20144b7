package models

import (
	"encoding/json"
	"fmt"
	"math/bits"
	"sort"
	"strings"
)

// Capability is a single platform permission bit.
type Capability uint64

const (
	CapViewChannel Capability = 1 << iota
	CapSendMessages
	CapEmbedLinks
	CapReadMessageHistory
	CapManageMessages
	CapKickMembers
	CapBanMembers
	CapModerateMembers
	CapManageRoles
	CapManageChannels
	CapManageGuild
	CapAdministrator
)

var capabilityNames = map[Capability]string{
	CapViewChannel:        "ViewChannel",
	CapSendMessages:       "SendMessages",
	CapEmbedLinks:         "EmbedLinks",
	CapReadMessageHistory: "ReadMessageHistory",
	CapManageMessages:     "ManageMessages",
	CapKickMembers:        "KickMembers",
	CapBanMembers:         "BanMembers",
	CapModerateMembers:    "ModerateMembers",
	CapManageRoles:        "ManageRoles",
	CapManageChannels:     "ManageChannels",
	CapManageGuild:        "ManageGuild",
	CapAdministrator:      "Administrator",
}

func (c Capability) String() string {
	if name, ok := capabilityNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Capability(%d)", uint64(c))
}

// ParseCapability resolves a capability by name (case-insensitive).
func ParseCapability(name string) (Capability, error) {
	name = strings.TrimSpace(name)
	for c, n := range capabilityNames {
		if strings.EqualFold(n, name) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown capability %q", name)
}

// Capabilities is a set of capabilities computed once per invocation.
type Capabilities uint64

func NewCapabilities(caps ...Capability) Capabilities {
	var set Capabilities
	for _, c := range caps {
		set |= Capabilities(c)
	}
	return set
}

// ParseCapabilities builds a set from names; unknown names are an error.
func ParseCapabilities(names []string) (Capabilities, error) {
	var set Capabilities
	for _, n := range names {
		c, err := ParseCapability(n)
		if err != nil {
			return 0, err
		}
		set |= Capabilities(c)
	}
	return set, nil
}

// Has reports whether c is in the set. Administrator implies every capability.
func (s Capabilities) Has(c Capability) bool {
	if s&Capabilities(CapAdministrator) != 0 {
		return true
	}
	return s&Capabilities(c) != 0
}

// Missing returns the first capability of required (lowest bit first) not held by s.
func (s Capabilities) Missing(required Capabilities) (Capability, bool) {
	if s&Capabilities(CapAdministrator) != 0 {
		return 0, false
	}
	lacking := uint64(required &^ s)
	if lacking == 0 {
		return 0, false
	}
	return Capability(uint64(1) << bits.TrailingZeros64(lacking)), true
}

// List returns capability names sorted alphabetically.
func (s Capabilities) List() []string {
	var names []string
	for c, n := range capabilityNames {
		if s&Capabilities(c) != 0 {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}

func (s Capabilities) MarshalJSON() ([]byte, error) {
	names := s.List()
	if names == nil {
		names = []string{}
	}
	return json.Marshal(names)
}

func (s *Capabilities) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	set, err := ParseCapabilities(names)
	if err != nil {
		return err
	}
	*s = set
	return nil
}
