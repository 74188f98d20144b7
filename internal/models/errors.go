package models

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type ErrorKind string

const (
	KindScopeViolation     ErrorKind = "scope_violation"
	KindPermissionDenied   ErrorKind = "permission_denied"
	KindHierarchyViolation ErrorKind = "hierarchy_violation"
	KindCooldownActive     ErrorKind = "cooldown_active"
	KindRateLimited        ErrorKind = "rate_limited"
	KindValidation         ErrorKind = "validation_error"
	KindNotFound           ErrorKind = "not_found"
	KindPersistence        ErrorKind = "persistence_failure"
	KindUnclassified       ErrorKind = "unclassified"
)

// IsDenial reports whether the kind is resolved locally by the gate.
func (k ErrorKind) IsDenial() bool {
	switch k {
	case KindScopeViolation, KindPermissionDenied, KindHierarchyViolation,
		KindCooldownActive, KindRateLimited, KindValidation:
		return true
	}
	return false
}

// Denial reasons
const (
	ReasonCommunityOnly     = "community-only"
	ReasonOwnerOnly         = "owner-only"
	ReasonStaffOnly         = "staff-only"
	ReasonSelfTarget        = "self-target"
	ReasonSystemTarget      = "system-target"
	ReasonOwnerTarget       = "owner-target"
	ReasonEqualOrHigher     = "equal-or-higher-role"
	ReasonSystemEqualOrHigh = "system-equal-or-higher-role"
	ReasonCooldownActive    = "cooldown-active"
	ReasonRateLimited       = "rate-limited"
)

// DenialError is a gate-level rejection. It carries a machine reason and a
// message that is safe to show to the actor.
type DenialError struct {
	Kind       ErrorKind
	Reason     string
	Message    string
	Capability Capability
	Remaining  int
	ResetAt    time.Time
}

func (e *DenialError) Error() string {
	return fmt.Sprintf("denied (%s): %s", e.Kind, e.Reason)
}

type ValidationError struct {
	Field string
	Rule  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Rule)
}

type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Entity + " not found"
	}
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// PersistenceError wraps a storage failure (including timeouts).
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

var ErrForbidden = errors.New("forbidden")

// WrapPersistence marks err as a storage failure unless it already is a
// not-found or validation error.
func WrapPersistence(op string, err error) error {
	if err == nil {
		return nil
	}
	var nf *NotFoundError
	var ve *ValidationError
	var pe *PersistenceError
	if errors.As(err, &nf) || errors.As(err, &ve) || errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// Classify maps any error onto the error taxonomy.
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var de *DenialError
	if errors.As(err, &de) {
		return de.Kind
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return KindValidation
	}
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return KindNotFound
	}
	if errors.Is(err, ErrForbidden) {
		return KindPermissionDenied
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return KindPersistence
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindPersistence
	}
	return KindUnclassified
}
