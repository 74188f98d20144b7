package services

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// AuditStreamStore is the persisted per-community audit stream setting.
type AuditStreamStore interface {
	AuditStream(ctx context.Context, communityID string) (string, bool, error)
	SetAuditStream(ctx context.Context, communityID, streamID string, at time.Time) error
	Delete(ctx context.Context, communityID string) error
}

// AuditStreams resolves a community's audit stream. Configured overrides win
// over the stored setting.
type AuditStreams struct {
	overrides map[string]string
	store     AuditStreamStore
	clock     clockwork.Clock
}

func NewAuditStreams(overrides map[string]string, store AuditStreamStore, clock clockwork.Clock) *AuditStreams {
	return &AuditStreams{overrides: overrides, store: store, clock: clock}
}

func (a *AuditStreams) AuditStream(ctx context.Context, communityID string) (string, bool, error) {
	if id, ok := a.overrides[communityID]; ok && id != "" {
		return id, true, nil
	}
	if a.store == nil {
		return "", false, nil
	}
	return a.store.AuditStream(ctx, communityID)
}

func (a *AuditStreams) Set(ctx context.Context, communityID, streamID string) error {
	return a.store.SetAuditStream(ctx, communityID, streamID, a.clock.Now().UTC())
}

func (a *AuditStreams) Forget(ctx context.Context, communityID string) error {
	return a.store.Delete(ctx, communityID)
}
