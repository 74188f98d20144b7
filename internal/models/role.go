package models

import (
	"fmt"
	"sort"
)

// Role is one entry of a community's role hierarchy.
type Role struct {
	ID       string `json:"id"`
	Position int    `json:"position"`
	// Everyone marks the base role every member implicitly holds.
	Everyone bool `json:"everyone,omitempty"`
	// Managed marks roles owned by integrations/the platform itself.
	Managed bool `json:"managed,omitempty"`
}

// RoleModel is the ordered role set of a single community.
type RoleModel struct {
	communityID string
	byID        map[string]Role
	ordered     []Role
}

// NewRoleModel validates that positions form a strict total order and ids are unique.
func NewRoleModel(communityID string, roles []Role) (*RoleModel, error) {
	m := &RoleModel{
		communityID: communityID,
		byID:        make(map[string]Role, len(roles)),
		ordered:     make([]Role, 0, len(roles)),
	}
	positions := make(map[int]string, len(roles))
	for _, r := range roles {
		if r.ID == "" {
			return nil, &ValidationError{Field: "role.id", Rule: "required"}
		}
		if _, dup := m.byID[r.ID]; dup {
			return nil, &ValidationError{Field: "role.id", Rule: fmt.Sprintf("duplicate role %s", r.ID)}
		}
		if other, dup := positions[r.Position]; dup {
			return nil, &ValidationError{Field: "role.position", Rule: fmt.Sprintf("roles %s and %s share position %d", other, r.ID, r.Position)}
		}
		positions[r.Position] = r.ID
		m.byID[r.ID] = r
		m.ordered = append(m.ordered, r)
	}
	sort.Slice(m.ordered, func(i, j int) bool { return m.ordered[i].Position > m.ordered[j].Position })
	return m, nil
}

func (m *RoleModel) CommunityID() string {
	return m.communityID
}

// Roles returns roles ordered from highest to lowest position.
func (m *RoleModel) Roles() []Role {
	out := make([]Role, len(m.ordered))
	copy(out, m.ordered)
	return out
}

func (m *RoleModel) Role(id string) (Role, bool) {
	r, ok := m.byID[id]
	return r, ok
}

// HighestPosition returns the highest privilege-bearing position among roleIDs.
// The everyone role and managed roles never count; a member holding none of the
// remaining roles sits at position 0. Unknown role ids are ignored.
func (m *RoleModel) HighestPosition(roleIDs []string) int {
	highest := 0
	for _, id := range roleIDs {
		r, ok := m.byID[id]
		if !ok || r.Everyone || r.Managed {
			continue
		}
		if r.Position > highest {
			highest = r.Position
		}
	}
	return highest
}
