package audit

import (
	"context"
	"time"

	"github.com/modgate/backend/internal/models"
	"go.uber.org/zap"
)

const (
	defaultRecentLimit  = 50
	defaultHistoryLimit = 10
	maxLimit            = 500
	defaultStatsDays    = 30
)

func clampLimit(limit, fallback int) uint64 {
	if limit <= 0 {
		return uint64(fallback)
	}
	if limit > maxLimit {
		return maxLimit
	}
	return uint64(limit)
}

// Recent returns the newest records of a community.
func (l *Logger) Recent(ctx context.Context, communityID string, limit int) ([]models.AuditRecord, error) {
	rctx, cancel := context.WithTimeout(ctx, l.opts.PersistTimeout)
	defer cancel()
	recs, err := l.store.List(rctx, models.AuditFilter{CommunityID: communityID, Limit: clampLimit(limit, defaultRecentLimit)})
	if err != nil {
		return nil, models.WrapPersistence("audit recent", err)
	}
	return recs, nil
}

// History returns actions taken against a member of a community. Refused
// and failed attempts are left out.
func (l *Logger) History(ctx context.Context, communityID, userID string, limit int) ([]models.AuditRecord, error) {
	rctx, cancel := context.WithTimeout(ctx, l.opts.PersistTimeout)
	defer cancel()
	recs, err := l.store.List(rctx, models.AuditFilter{
		CommunityID: communityID,
		TargetID:    userID,
		ActionsOnly: true,
		Limit:       clampLimit(limit, defaultHistoryLimit),
	})
	if err != nil {
		return nil, models.WrapPersistence("audit history", err)
	}
	return recs, nil
}

// CountActions counts matching records. Used by handlers that decide on
// prior history, so errors are returned rather than degraded.
func (l *Logger) CountActions(ctx context.Context, communityID, targetID, actionType string) (int, error) {
	rctx, cancel := context.WithTimeout(ctx, l.opts.PersistTimeout)
	defer cancel()
	n, err := l.store.Count(rctx, models.AuditFilter{
		CommunityID: communityID,
		TargetID:    targetID,
		ActionType:  actionType,
	})
	if err != nil {
		return 0, models.WrapPersistence("audit count", err)
	}
	return n, nil
}

// Statistics summarises the last `days` days. It fails open: when the store
// cannot answer in time an empty, degraded result is returned.
func (l *Logger) Statistics(ctx context.Context, communityID string, days int) *models.AuditStatistics {
	if days <= 0 {
		days = defaultStatsDays
	}
	since := l.clock.Now().Add(-time.Duration(days) * 24 * time.Hour)

	rctx, cancel := context.WithTimeout(ctx, l.opts.PersistTimeout)
	defer cancel()
	stats, err := l.store.Statistics(rctx, communityID, since)
	if err != nil {
		l.log.Warn("audit statistics degraded", zap.String("community_id", communityID), zap.Error(err))
		return &models.AuditStatistics{
			ByType:      map[string]int{},
			ByModerator: map[string]int{},
			Days:        days,
			Degraded:    true,
		}
	}
	stats.Days = days
	stats.DailyAverage = float64(stats.TotalActions) / float64(days)
	return stats
}

// PurgeCommunity removes every record of a community. This is the only delete.
func (l *Logger) PurgeCommunity(ctx context.Context, communityID string) (int64, error) {
	if communityID == "" {
		return 0, &models.ValidationError{Field: "community_id", Rule: "required"}
	}
	rctx, cancel := context.WithTimeout(ctx, l.opts.PersistTimeout)
	defer cancel()
	n, err := l.store.DeleteCommunity(rctx, communityID)
	if err != nil {
		return 0, models.WrapPersistence("audit purge", err)
	}
	l.log.Info("audit records purged", zap.String("community_id", communityID), zap.Int64("count", n))
	return n, nil
}

// CheckConfiguration reports whether mirroring can work for a community.
func (l *Logger) CheckConfiguration(ctx context.Context, communityID string) (*models.AuditConfiguration, error) {
	if l.streams == nil {
		return &models.AuditConfiguration{Reason: "no stream directory"}, nil
	}
	streamID, ok, err := l.streams.AuditStream(ctx, communityID)
	if err != nil {
		return nil, models.WrapPersistence("audit stream lookup", err)
	}
	if !ok {
		return &models.AuditConfiguration{Reason: "no audit stream configured"}, nil
	}
	cfg := &models.AuditConfiguration{Configured: true, StreamID: streamID}
	if l.poster == nil {
		cfg.Reason = "no poster"
		return cfg, nil
	}
	can, err := l.poster.CanPost(ctx, communityID, streamID)
	if err != nil {
		cfg.Reason = "permission check failed"
		return cfg, nil
	}
	cfg.CanPost = can
	if !can {
		cfg.Reason = "missing SendMessages/EmbedLinks in audit stream"
	}
	return cfg, nil
}
