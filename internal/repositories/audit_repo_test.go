package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/modgate/backend/internal/models"
	pgxmock "github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return mock
}

func anyArgs(n int) []any {
	out := make([]any, n)
	for i := range out {
		out[i] = pgxmock.AnyArg()
	}
	return out
}

func TestAuditRepoInsert(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	rec := &models.AuditRecord{
		CaseID:      "LVN5Q3K0-ABCDEFGH",
		CommunityID: "C",
		ActorID:     "A",
		TargetID:    models.StrPtr("T"),
		ActionType:  models.ActionBan,
		Extra:       map[string]any{"delete_days": 1},
		CreatedAt:   now,
	}

	tests := []struct {
		name    string
		setup   func(mock pgxmock.PgxPoolIface)
		wantErr models.ErrorKind
	}{
		{
			name: "inserted",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO audit_records`).
					WithArgs(anyArgs(8)...).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
			},
		},
		{
			name: "database down",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO audit_records`).
					WithArgs(anyArgs(8)...).
					WillReturnError(errors.New("connection reset"))
			},
			wantErr: models.KindPersistence,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMock(t)
			tt.setup(mock)

			err := NewAuditRepo(mock).Insert(context.Background(), rec)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			assert.Equal(t, tt.wantErr, models.Classify(err))
		})
	}
}

func TestAuditRepoList(t *testing.T) {
	mock := newMock(t)
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	target := "T"
	reason := "spam"

	rows := pgxmock.NewRows(auditColumns).
		AddRow("CASE-2", "C", "A", &target, models.ActionWarn, &reason, []byte(`{"previous_warnings":1}`), now).
		AddRow("CASE-1", "C", "A", &target, models.ActionWarn, (*string)(nil), []byte(`{}`), now.Add(-time.Hour))
	mock.ExpectQuery(`SELECT .+ FROM audit_records WHERE community_id = \$1 AND target_id = \$2 ORDER BY created_at DESC, case_id DESC LIMIT 10`).
		WithArgs("C", "T").
		WillReturnRows(rows)

	recs, err := NewAuditRepo(mock).List(context.Background(), models.AuditFilter{
		CommunityID: "C",
		TargetID:    "T",
		Limit:       10,
	})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "CASE-2", recs[0].CaseID)
	assert.Equal(t, float64(1), recs[0].Extra["previous_warnings"])
	assert.Nil(t, recs[1].Reason)
	assert.Empty(t, recs[1].Extra)
}

func TestAuditRepoListActionsOnly(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`SELECT .+ FROM audit_records WHERE community_id = \$1 AND target_id = \$2 AND action_type NOT LIKE \$3 AND action_type NOT LIKE \$4 ORDER BY`).
		WithArgs("C", "T", "DENIED:%", "FAILED:%").
		WillReturnRows(pgxmock.NewRows(auditColumns))

	recs, err := NewAuditRepo(mock).List(context.Background(), models.AuditFilter{
		CommunityID: "C", TargetID: "T", ActionsOnly: true, Limit: 10,
	})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestAuditRepoCount(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM audit_records WHERE community_id = \$1 AND target_id = \$2 AND action_type = \$3`).
		WithArgs("C", "T", models.ActionWarn).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))

	n, err := NewAuditRepo(mock).Count(context.Background(), models.AuditFilter{
		CommunityID: "C", TargetID: "T", ActionType: models.ActionWarn,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestAuditRepoStatistics(t *testing.T) {
	mock := newMock(t)
	since := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT action_type, COUNT\(\*\) FROM audit_records .+ AND action_type NOT LIKE \$3 AND action_type NOT LIKE \$4 GROUP BY action_type`).
		WithArgs("C", since, "DENIED:%", "FAILED:%").
		WillReturnRows(pgxmock.NewRows([]string{"action_type", "count"}).
			AddRow(models.ActionBan, 2).
			AddRow(models.ActionWarn, 5))
	mock.ExpectQuery(`SELECT actor_id, COUNT\(\*\) FROM audit_records .+ AND action_type NOT LIKE \$3 AND action_type NOT LIKE \$4 GROUP BY actor_id`).
		WithArgs("C", since, "DENIED:%", "FAILED:%").
		WillReturnRows(pgxmock.NewRows([]string{"actor_id", "count"}).
			AddRow("M1", 6).
			AddRow("M2", 1))

	stats, err := NewAuditRepo(mock).Statistics(context.Background(), "C", since)
	require.NoError(t, err)
	assert.Equal(t, 7, stats.TotalActions)
	assert.Equal(t, map[string]int{models.ActionBan: 2, models.ActionWarn: 5}, stats.ByType)
	assert.Equal(t, 6, stats.ByModerator["M1"])
}

func TestAuditRepoDeleteCommunity(t *testing.T) {
	mock := newMock(t)
	mock.ExpectExec(`DELETE FROM audit_records WHERE community_id = \$1`).
		WithArgs("C").
		WillReturnResult(pgxmock.NewResult("DELETE", 12))

	n, err := NewAuditRepo(mock).DeleteCommunity(context.Background(), "C")
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
}
