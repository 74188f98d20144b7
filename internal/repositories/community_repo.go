package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/modgate/backend/internal/db"
)

// CommunityRepo stores per-community settings.
type CommunityRepo struct {
	db db.DB
}

func NewCommunityRepo(conn db.DB) *CommunityRepo {
	return &CommunityRepo{db: conn}
}

// AuditStream returns the configured audit stream id, if any.
func (r *CommunityRepo) AuditStream(ctx context.Context, communityID string) (string, bool, error) {
	query, args, err := psql.Select("audit_stream_id").
		From("community_settings").
		Where(sq.Eq{"community_id": communityID}).
		ToSql()
	if err != nil {
		return "", false, fmt.Errorf("build settings query: %w", err)
	}
	var stream *string
	err = r.db.QueryRow(ctx, query, args...).Scan(&stream)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrap("community settings", "community", communityID, err)
	}
	if stream == nil || *stream == "" {
		return "", false, nil
	}
	return *stream, true, nil
}

// SetAuditStream upserts the audit stream; an empty streamID clears it.
func (r *CommunityRepo) SetAuditStream(ctx context.Context, communityID, streamID string, at time.Time) error {
	var value *string
	if streamID != "" {
		value = &streamID
	}
	query, args, err := psql.Insert("community_settings").
		Columns("community_id", "audit_stream_id", "updated_at").
		Values(communityID, value, at).
		Suffix("ON CONFLICT (community_id) DO UPDATE SET audit_stream_id = EXCLUDED.audit_stream_id, updated_at = EXCLUDED.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build settings upsert: %w", err)
	}
	_, err = r.db.Exec(ctx, query, args...)
	return wrap("community settings upsert", "community", communityID, err)
}

func (r *CommunityRepo) Delete(ctx context.Context, communityID string) error {
	query, args, err := psql.Delete("community_settings").Where(sq.Eq{"community_id": communityID}).ToSql()
	if err != nil {
		return fmt.Errorf("build settings delete: %w", err)
	}
	_, err = r.db.Exec(ctx, query, args...)
	return wrap("community settings delete", "community", communityID, err)
}
