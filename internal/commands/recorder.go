package commands

import (
	"context"
	"sync"

	"github.com/modgate/backend/internal/audit"
	"github.com/modgate/backend/internal/models"
)

// AuditLogger is the audit surface the dispatcher depends on.
type AuditLogger interface {
	Record(ctx context.Context, e audit.Entry) (string, error)
	RecordBulk(ctx context.Context, communityID, actionType, actorID string, targetIDs []string, reason string, extra map[string]any) (string, error)
	RecordDenial(ctx context.Context, inv *models.Invocation, denial *models.DenialError) (string, error)
	RecordFailure(ctx context.Context, inv *models.Invocation, kind models.ErrorKind) (string, error)
}

// ActionRecorder lets a handler record its specific action type. When a
// handler records, the dispatcher skips its generic execution record.
type ActionRecorder struct {
	logger AuditLogger
	inv    *models.Invocation

	mu     sync.Mutex
	caseID string
}

func newActionRecorder(logger AuditLogger, inv *models.Invocation) *ActionRecorder {
	return &ActionRecorder{logger: logger, inv: inv}
}

func (r *ActionRecorder) Record(ctx context.Context, actionType, targetID, reason string, extra map[string]any) (string, error) {
	extra = r.withChannel(extra)
	caseID, err := r.logger.Record(ctx, audit.Entry{
		CommunityID: r.inv.CommunityID(),
		ActorID:     r.inv.Actor.ID,
		TargetID:    targetID,
		ActionType:  actionType,
		Reason:      reason,
		Extra:       extra,
	})
	if err != nil {
		return "", err
	}
	r.set(caseID)
	return caseID, nil
}

func (r *ActionRecorder) RecordBulk(ctx context.Context, actionType string, targetIDs []string, reason string, extra map[string]any) (string, error) {
	caseID, err := r.logger.RecordBulk(ctx, r.inv.CommunityID(), actionType, r.inv.Actor.ID, targetIDs, reason, r.withChannel(extra))
	if err != nil {
		return "", err
	}
	r.set(caseID)
	return caseID, nil
}

// CaseID returns the case id of the handler's most recent record, if any.
func (r *ActionRecorder) CaseID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.caseID
}

func (r *ActionRecorder) set(caseID string) {
	r.mu.Lock()
	r.caseID = caseID
	r.mu.Unlock()
}

func (r *ActionRecorder) withChannel(extra map[string]any) map[string]any {
	if r.inv.ChannelID == "" {
		return extra
	}
	if extra == nil {
		extra = map[string]any{}
	}
	if _, ok := extra["channel_id"]; !ok {
		extra["channel_id"] = r.inv.ChannelID
	}
	return extra
}
