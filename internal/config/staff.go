package config

import "github.com/modgate/backend/internal/models"

// StaffDirectory resolves global staff tiers. An id listed in several sets
// gets the highest tier.
type StaffDirectory struct {
	tiers  map[string]models.StaffTier
	owners map[string]struct{}
}

func NewStaffDirectory(owners, admins, moderators, support []string) *StaffDirectory {
	d := &StaffDirectory{
		tiers:  make(map[string]models.StaffTier),
		owners: make(map[string]struct{}, len(owners)),
	}
	d.add(support, models.TierSupport)
	d.add(moderators, models.TierModerator)
	d.add(admins, models.TierAdmin)
	d.add(owners, models.TierOwner)
	for _, id := range owners {
		d.owners[id] = struct{}{}
	}
	return d
}

func (d *StaffDirectory) add(ids []string, tier models.StaffTier) {
	for _, id := range ids {
		if d.tiers[id] < tier {
			d.tiers[id] = tier
		}
	}
}

func (d *StaffDirectory) Tier(id string) models.StaffTier {
	return d.tiers[id]
}

func (d *StaffDirectory) IsOwner(id string) bool {
	_, ok := d.owners[id]
	return ok
}

func (d *StaffDirectory) IsStaff(id string) bool {
	return d.tiers[id].IsStaff()
}
