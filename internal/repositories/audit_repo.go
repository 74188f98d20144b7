package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/modgate/backend/internal/db"
	"github.com/modgate/backend/internal/models"
)

var auditColumns = []string{
	"case_id", "community_id", "actor_id", "target_id", "action_type", "reason", "extra", "created_at",
}

// AuditRepo is the append-only audit record store. The only delete is a
// whole-community purge.
type AuditRepo struct {
	db db.DB
}

func NewAuditRepo(conn db.DB) *AuditRepo {
	return &AuditRepo{db: conn}
}

func (r *AuditRepo) Insert(ctx context.Context, rec *models.AuditRecord) error {
	extra, err := json.Marshal(rec.Extra)
	if err != nil {
		return &models.ValidationError{Field: "extra", Rule: "must be JSON serialisable"}
	}
	query, args, err := psql.Insert("audit_records").
		Columns(auditColumns...).
		Values(rec.CaseID, rec.CommunityID, rec.ActorID, rec.TargetID, rec.ActionType, rec.Reason, extra, rec.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build audit insert: %w", err)
	}
	_, err = r.db.Exec(ctx, query, args...)
	return wrap("audit insert", "audit record", rec.CaseID, err)
}

func applyAuditFilter(b sq.SelectBuilder, f models.AuditFilter) sq.SelectBuilder {
	if f.CommunityID != "" {
		b = b.Where(sq.Eq{"community_id": f.CommunityID})
	}
	if f.ActorID != "" {
		b = b.Where(sq.Eq{"actor_id": f.ActorID})
	}
	if f.TargetID != "" {
		b = b.Where(sq.Eq{"target_id": f.TargetID})
	}
	if f.ActionType != "" {
		b = b.Where(sq.Eq{"action_type": f.ActionType})
	}
	if f.Since != nil {
		b = b.Where(sq.GtOrEq{"created_at": *f.Since})
	}
	if f.ActionsOnly {
		b = actionsOnly(b)
	}
	return b
}

func actionsOnly(b sq.SelectBuilder) sq.SelectBuilder {
	return b.Where(sq.NotLike{"action_type": models.DeniedPrefix + "%"}).
		Where(sq.NotLike{"action_type": models.FailedPrefix + "%"})
}

func (r *AuditRepo) List(ctx context.Context, f models.AuditFilter) ([]models.AuditRecord, error) {
	b := applyAuditFilter(psql.Select(auditColumns...).From("audit_records"), f).
		OrderBy("created_at DESC", "case_id DESC")
	if f.Limit > 0 {
		b = b.Limit(f.Limit)
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build audit list: %w", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, wrap("audit list", "audit record", "", err)
	}
	defer rows.Close()

	var out []models.AuditRecord
	for rows.Next() {
		var rec models.AuditRecord
		var extra []byte
		if err := rows.Scan(&rec.CaseID, &rec.CommunityID, &rec.ActorID, &rec.TargetID,
			&rec.ActionType, &rec.Reason, &extra, &rec.CreatedAt); err != nil {
			return nil, wrap("audit scan", "audit record", "", err)
		}
		rec.Extra = map[string]any{}
		if len(extra) > 0 {
			if err := json.Unmarshal(extra, &rec.Extra); err != nil {
				return nil, models.WrapPersistence("audit decode extra", err)
			}
		}
		out = append(out, rec)
	}
	return out, wrap("audit list", "audit record", "", rows.Err())
}

func (r *AuditRepo) Count(ctx context.Context, f models.AuditFilter) (int, error) {
	query, args, err := applyAuditFilter(psql.Select("COUNT(*)").From("audit_records"), f).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build audit count: %w", err)
	}
	var n int
	if err := r.db.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, wrap("audit count", "audit record", "", err)
	}
	return n, nil
}

func (r *AuditRepo) groupCount(ctx context.Context, column, communityID string, since time.Time) (map[string]int, error) {
	query, args, err := actionsOnly(psql.Select(column, "COUNT(*)").
		From("audit_records").
		Where(sq.Eq{"community_id": communityID}).
		Where(sq.GtOrEq{"created_at": since})).
		GroupBy(column).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build audit group: %w", err)
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, wrap("audit statistics", "audit record", "", err)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, wrap("audit statistics", "audit record", "", err)
		}
		out[key] = n
	}
	return out, wrap("audit statistics", "audit record", "", rows.Err())
}

// Statistics aggregates actions by type and by actor since the given time.
// Denied and failed attempts are not counted.
func (r *AuditRepo) Statistics(ctx context.Context, communityID string, since time.Time) (*models.AuditStatistics, error) {
	byType, err := r.groupCount(ctx, "action_type", communityID, since)
	if err != nil {
		return nil, err
	}
	byActor, err := r.groupCount(ctx, "actor_id", communityID, since)
	if err != nil {
		return nil, err
	}
	stats := &models.AuditStatistics{ByType: byType, ByModerator: byActor}
	for _, n := range byType {
		stats.TotalActions += n
	}
	return stats, nil
}

func (r *AuditRepo) DeleteCommunity(ctx context.Context, communityID string) (int64, error) {
	query, args, err := psql.Delete("audit_records").Where(sq.Eq{"community_id": communityID}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build audit purge: %w", err)
	}
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, wrap("audit purge", "community", communityID, err)
	}
	return tag.RowsAffected(), nil
}
