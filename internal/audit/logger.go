package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/modgate/backend/internal/events"
	"github.com/modgate/backend/internal/ids"
	"github.com/modgate/backend/internal/metrics"
	"github.com/modgate/backend/internal/models"
	"go.uber.org/zap"
)

// Store is the durable, append-only record store.
type Store interface {
	Insert(ctx context.Context, rec *models.AuditRecord) error
	List(ctx context.Context, f models.AuditFilter) ([]models.AuditRecord, error)
	Count(ctx context.Context, f models.AuditFilter) (int, error)
	Statistics(ctx context.Context, communityID string, since time.Time) (*models.AuditStatistics, error)
	DeleteCommunity(ctx context.Context, communityID string) (int64, error)
}

// StreamDirectory resolves a community's audit stream destination.
type StreamDirectory interface {
	AuditStream(ctx context.Context, communityID string) (string, bool, error)
}

// Poster posts rendered records to a stream.
type Poster interface {
	CanPost(ctx context.Context, communityID, channelID string) (bool, error)
	PostEmbed(ctx context.Context, channelID string, embed models.Embed) error
}

// Entry is a single action to record.
type Entry struct {
	CommunityID string
	ActorID     string
	TargetID    string
	ActionType  string
	Reason      string
	Extra       map[string]any
}

type Options struct {
	PersistTimeout time.Duration
	MirrorTimeout  time.Duration
}

type Logger struct {
	store   Store
	streams StreamDirectory
	poster  Poster
	events  events.Publisher
	ids     *ids.Generator
	clock   clockwork.Clock
	metrics *metrics.Metrics
	log     *zap.Logger
	opts    Options

	wg sync.WaitGroup
}

func NewLogger(store Store, streams StreamDirectory, poster Poster, pub events.Publisher,
	gen *ids.Generator, clock clockwork.Clock, m *metrics.Metrics, log *zap.Logger, opts Options) *Logger {
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = 5 * time.Second
	}
	if opts.MirrorTimeout <= 0 {
		opts.MirrorTimeout = 5 * time.Second
	}
	return &Logger{
		store:   store,
		streams: streams,
		poster:  poster,
		events:  pub,
		ids:     gen,
		clock:   clock,
		metrics: m,
		log:     log,
		opts:    opts,
	}
}

// Record persists one audit record and returns its case id. The durable write
// is synchronous and fails closed; mirroring happens in the background and
// never fails the caller.
func (l *Logger) Record(ctx context.Context, e Entry) (string, error) {
	if e.ActionType == "" {
		return "", &models.ValidationError{Field: "action_type", Rule: "required"}
	}
	extra := e.Extra
	if extra == nil {
		extra = map[string]any{}
	}
	rec := &models.AuditRecord{
		CaseID:      l.ids.CaseID(),
		CommunityID: e.CommunityID,
		ActorID:     e.ActorID,
		TargetID:    models.StrPtr(e.TargetID),
		ActionType:  e.ActionType,
		Reason:      models.StrPtr(e.Reason),
		Extra:       extra,
		CreatedAt:   l.clock.Now().UTC(),
	}

	// The record is written even if the invocation was cancelled meanwhile.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.opts.PersistTimeout)
	defer cancel()
	err := l.store.Insert(wctx, rec)
	l.metrics.AuditWrite(err)
	if err != nil {
		l.log.Error("audit write failed",
			zap.String("case_id", rec.CaseID),
			zap.String("action", rec.ActionType),
			zap.String("community_id", rec.CommunityID),
			zap.Error(err),
		)
		return "", models.WrapPersistence("audit insert", err)
	}

	l.mirror(ctx, rec)
	return rec.CaseID, nil
}

// RecordBulk writes a single record covering every target.
func (l *Logger) RecordBulk(ctx context.Context, communityID, actionType, actorID string, targetIDs []string, reason string, extra map[string]any) (string, error) {
	if len(targetIDs) == 0 {
		return "", &models.ValidationError{Field: "targets", Rule: "at least one target required"}
	}
	merged := make(map[string]any, len(extra)+2)
	for k, v := range extra {
		merged[k] = v
	}
	targets := make([]string, len(targetIDs))
	copy(targets, targetIDs)
	merged["targets"] = targets
	merged["count"] = len(targets)

	return l.Record(ctx, Entry{
		CommunityID: communityID,
		ActorID:     actorID,
		ActionType:  actionType,
		Reason:      reason,
		Extra:       merged,
	})
}

// RecordDenial records a gate rejection as DENIED:<command>.
func (l *Logger) RecordDenial(ctx context.Context, inv *models.Invocation, denial *models.DenialError) (string, error) {
	extra := map[string]any{
		"kind": string(denial.Kind),
	}
	if inv.ChannelID != "" {
		extra["channel_id"] = inv.ChannelID
	}
	if denial.Remaining > 0 {
		extra["seconds_remaining"] = denial.Remaining
	}
	if !denial.ResetAt.IsZero() {
		extra["reset_at"] = denial.ResetAt.UTC().Format(time.RFC3339Nano)
	}
	return l.Record(ctx, Entry{
		CommunityID: inv.CommunityID(),
		ActorID:     inv.Actor.ID,
		TargetID:    primaryTargetID(inv),
		ActionType:  models.DeniedPrefix + inv.CommandName,
		Reason:      denial.Reason,
		Extra:       extra,
	})
}

// RecordFailure records a handler or gate failure as FAILED:<command>. Only
// the error kind is persisted; raw error text goes to the operator log.
func (l *Logger) RecordFailure(ctx context.Context, inv *models.Invocation, kind models.ErrorKind) (string, error) {
	extra := map[string]any{"error_kind": string(kind)}
	if inv.ChannelID != "" {
		extra["channel_id"] = inv.ChannelID
	}
	return l.Record(ctx, Entry{
		CommunityID: inv.CommunityID(),
		ActorID:     inv.Actor.ID,
		TargetID:    primaryTargetID(inv),
		ActionType:  models.FailedPrefix + inv.CommandName,
		Extra:       extra,
	})
}

func primaryTargetID(inv *models.Invocation) string {
	if t := inv.PrimaryTarget(); t != nil && len(inv.Targets) == 1 {
		return t.ID
	}
	return ""
}

// Wait blocks until all background mirrors have finished.
func (l *Logger) Wait() {
	l.wg.Wait()
}

func (l *Logger) mirror(ctx context.Context, rec *models.AuditRecord) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.opts.MirrorTimeout)
		defer cancel()

		if l.events != nil {
			if err := l.events.Publish(mctx, events.StreamAudit, events.Event{
				Type:    events.EventAuditRecorded,
				Payload: recordPayload(rec),
			}); err != nil {
				l.log.Warn("audit event publish failed", zap.String("case_id", rec.CaseID), zap.Error(err))
			}
		}

		if err := l.postToStream(mctx, rec); err != nil {
			l.metrics.AuditMirrorFailed()
			l.log.Warn("audit mirror failed",
				zap.String("case_id", rec.CaseID),
				zap.String("community_id", rec.CommunityID),
				zap.Error(err),
			)
		}
	}()
}

var errCannotPost = errors.New("system cannot post to audit stream")

func (l *Logger) postToStream(ctx context.Context, rec *models.AuditRecord) error {
	if l.streams == nil || l.poster == nil || rec.CommunityID == "" {
		return nil
	}
	streamID, ok, err := l.streams.AuditStream(ctx, rec.CommunityID)
	if err != nil {
		return fmt.Errorf("resolve stream: %w", err)
	}
	if !ok {
		return nil
	}
	can, err := l.poster.CanPost(ctx, rec.CommunityID, streamID)
	if err != nil {
		return fmt.Errorf("check stream permissions: %w", err)
	}
	if !can {
		return errCannotPost
	}
	return l.poster.PostEmbed(ctx, streamID, Render(rec))
}

func recordPayload(rec *models.AuditRecord) map[string]any {
	p := map[string]any{
		"case_id":      rec.CaseID,
		"community_id": rec.CommunityID,
		"actor_id":     rec.ActorID,
		"action_type":  rec.ActionType,
		"created_at":   rec.CreatedAt,
		"extra":        rec.Extra,
	}
	if rec.TargetID != nil {
		p["target_id"] = *rec.TargetID
	}
	if rec.Reason != nil {
		p["reason"] = *rec.Reason
	}
	return p
}
