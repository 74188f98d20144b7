package gate

import "github.com/modgate/backend/internal/models"

// ValidateHierarchy decides whether actor may act on target. It returns nil
// when the action is allowed.
//
// Identity checks (self, system, owner) always apply. Position checks are
// skipped for targets that are not currently members of the community.
func ValidateHierarchy(actor, target, system models.Member, community *models.Community) *models.DenialError {
	switch {
	case target.ID == actor.ID:
		return hierarchyDenial(models.ReasonSelfTarget, "You cannot target yourself with this command.")
	case target.ID == system.ID:
		return hierarchyDenial(models.ReasonSystemTarget, "You cannot target me with this command.")
	case community != nil && target.ID == community.OwnerID:
		return hierarchyDenial(models.ReasonOwnerTarget, "You cannot target the community owner.")
	}

	if !target.Present {
		return nil
	}

	if target.HighestPosition >= actor.HighestPosition {
		return hierarchyDenial(models.ReasonEqualOrHigher, "You cannot target this member. They have a higher or equal role.")
	}
	if target.HighestPosition >= system.HighestPosition {
		return hierarchyDenial(models.ReasonSystemEqualOrHigh, "I cannot target this member. They have a higher or equal role than me.")
	}
	return nil
}

func hierarchyDenial(reason, msg string) *models.DenialError {
	return &models.DenialError{
		Kind:    models.KindHierarchyViolation,
		Reason:  reason,
		Message: msg,
	}
}
