package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/modgate/backend/internal/models"
	pgxmock "github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ticketNow = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func sampleTicket() *models.Ticket {
	return &models.Ticket{
		ID:        "TKT-LVN5Q3K0-ABCDEFGH",
		OwnerID:   "A",
		Category:  "billing",
		Subject:   "Refund",
		Status:    models.TicketOpen,
		Priority:  models.PriorityNormal,
		CreatedAt: ticketNow,
		UpdatedAt: ticketNow,
	}
}

func TestTicketRepoCreate(t *testing.T) {
	mock := newMock(t)
	tk := sampleTicket()
	msg := &models.TicketMessage{TicketID: tk.ID, AuthorID: "A", Body: "Please refund order 42", CreatedAt: ticketNow}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO tickets`).
		WithArgs(anyArgs(11)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`INSERT INTO ticket_messages .+ RETURNING id`).
		WithArgs(tk.ID, "A", false, "Please refund order 42", ticketNow).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectCommit()

	require.NoError(t, NewTicketRepo(mock).Create(context.Background(), tk, msg))
	assert.Equal(t, int64(1), msg.ID)
}

func TestTicketRepoCreateRollsBack(t *testing.T) {
	mock := newMock(t)
	tk := sampleTicket()
	msg := &models.TicketMessage{TicketID: tk.ID, AuthorID: "A", Body: "hi", CreatedAt: ticketNow}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO tickets`).
		WithArgs(anyArgs(11)...).
		WillReturnError(errors.New("duplicate key"))
	mock.ExpectRollback()

	err := NewTicketRepo(mock).Create(context.Background(), tk, msg)
	assert.Equal(t, models.KindPersistence, models.Classify(err))
}

func TestTicketRepoGetNotFound(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`SELECT .+ FROM tickets WHERE id = \$1`).
		WithArgs("TKT-X").
		WillReturnError(pgx.ErrNoRows)

	_, err := NewTicketRepo(mock).Get(context.Background(), "TKT-X")
	var nf *models.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "ticket", nf.Entity)
}

func TestTicketRepoList(t *testing.T) {
	mock := newMock(t)
	tk := sampleTicket()
	rows := pgxmock.NewRows(ticketColumns).
		AddRow(tk.ID, tk.OwnerID, tk.Category, tk.Subject, tk.Status, tk.Priority,
			(*string)(nil), tk.CreatedAt, tk.UpdatedAt, (*time.Time)(nil), (*string)(nil))
	mock.ExpectQuery(`SELECT .+ FROM tickets WHERE status = \$1 ORDER BY updated_at DESC, id DESC`).
		WithArgs(models.TicketOpen).
		WillReturnRows(rows)

	list, err := NewTicketRepo(mock).List(context.Background(), models.TicketFilter{Status: models.TicketOpen})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, tk.ID, list[0].ID)
	assert.True(t, list[0].Consistent())
}

func TestTicketRepoAppendMessage(t *testing.T) {
	mock := newMock(t)
	msg := &models.TicketMessage{TicketID: "TKT-1", AuthorID: "S", IsStaff: true, Body: "On it", CreatedAt: ticketNow}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status FROM tickets WHERE id = \$1 FOR UPDATE`).
		WithArgs("TKT-1").
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow(models.TicketOpen))
	mock.ExpectQuery(`INSERT INTO ticket_messages`).
		WithArgs("TKT-1", "S", true, "On it", ticketNow).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(2)))
	mock.ExpectExec(`UPDATE tickets SET updated_at = \$1 WHERE id = \$2`).
		WithArgs(ticketNow, "TKT-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	require.NoError(t, NewTicketRepo(mock).AppendMessage(context.Background(), msg))
	assert.Equal(t, int64(2), msg.ID)
}

func TestTicketRepoAppendMessageClosed(t *testing.T) {
	tests := []struct {
		name string
		rows *pgxmock.Rows
		want models.ErrorKind
	}{
		{"closed meanwhile", pgxmock.NewRows([]string{"status"}).AddRow(models.TicketClosed), models.KindValidation},
		{"missing", pgxmock.NewRows([]string{"status"}), models.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMock(t)
			msg := &models.TicketMessage{TicketID: "TKT-1", AuthorID: "A", Body: "late", CreatedAt: ticketNow}

			mock.ExpectBegin()
			mock.ExpectQuery(`SELECT status FROM tickets WHERE id = \$1 FOR UPDATE`).
				WithArgs("TKT-1").
				WillReturnRows(tt.rows)
			mock.ExpectRollback()

			err := NewTicketRepo(mock).AppendMessage(context.Background(), msg)
			assert.Equal(t, tt.want, models.Classify(err))
			assert.Zero(t, msg.ID)
		})
	}
}

func TestTicketRepoUpdateStatusConflict(t *testing.T) {
	mock := newMock(t)
	tk := sampleTicket()
	tk.Status = models.TicketInProgress

	mock.ExpectExec(`UPDATE tickets SET status = \$1, closed_at = \$2, closed_by = \$3, updated_at = \$4 WHERE id = \$5 AND status = \$6`).
		WithArgs(models.TicketInProgress, (*time.Time)(nil), (*string)(nil), ticketNow, tk.ID, models.TicketOpen).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := NewTicketRepo(mock).UpdateStatus(context.Background(), tk, models.TicketOpen)
	assert.Equal(t, models.KindValidation, models.Classify(err))
}

func TestTicketRepoUpdateAssigneeMissing(t *testing.T) {
	mock := newMock(t)
	mock.ExpectExec(`UPDATE tickets SET assigned_to = \$1, updated_at = \$2 WHERE id = \$3`).
		WithArgs("S", ticketNow, "TKT-404").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := NewTicketRepo(mock).UpdateAssignee(context.Background(), "TKT-404", "S", ticketNow)
	assert.Equal(t, models.KindNotFound, models.Classify(err))
}

func TestTicketRepoStatistics(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`SELECT status, COUNT\(\*\) FROM tickets GROUP BY status`).
		WillReturnRows(pgxmock.NewRows([]string{"status", "count"}).
			AddRow(models.TicketOpen, 3).
			AddRow(models.TicketInProgress, 2).
			AddRow(models.TicketClosed, 5))

	stats, err := NewTicketRepo(mock).Statistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.TicketStatistics{Total: 10, Open: 3, InProgress: 2, Closed: 5}, *stats)
}

func TestCommunityRepoAuditStream(t *testing.T) {
	t.Run("configured", func(t *testing.T) {
		mock := newMock(t)
		stream := "audit-chan"
		mock.ExpectQuery(`SELECT audit_stream_id FROM community_settings WHERE community_id = \$1`).
			WithArgs("C").
			WillReturnRows(pgxmock.NewRows([]string{"audit_stream_id"}).AddRow(&stream))

		id, ok, err := NewCommunityRepo(mock).AuditStream(context.Background(), "C")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "audit-chan", id)
	})

	t.Run("no row", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`SELECT audit_stream_id FROM community_settings`).
			WithArgs("C").
			WillReturnError(pgx.ErrNoRows)

		_, ok, err := NewCommunityRepo(mock).AuditStream(context.Background(), "C")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
