package repositories

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/modgate/backend/internal/db"
	"github.com/modgate/backend/internal/models"
)

var ticketColumns = []string{
	"id", "owner_id", "category", "subject", "status", "priority",
	"assigned_to", "created_at", "updated_at", "closed_at", "closed_by",
}

type TicketRepo struct {
	db db.DB
}

func NewTicketRepo(conn db.DB) *TicketRepo {
	return &TicketRepo{db: conn}
}

func scanTicket(row pgx.Row, t *models.Ticket) error {
	return row.Scan(&t.ID, &t.OwnerID, &t.Category, &t.Subject, &t.Status, &t.Priority,
		&t.AssignedTo, &t.CreatedAt, &t.UpdatedAt, &t.ClosedAt, &t.ClosedBy)
}

// Create inserts the ticket and its first message in one transaction.
func (r *TicketRepo) Create(ctx context.Context, t *models.Ticket, first *models.TicketMessage) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return wrap("ticket create", "ticket", t.ID, err)
	}
	defer tx.Rollback(ctx)

	query, args, err := psql.Insert("tickets").
		Columns(ticketColumns...).
		Values(t.ID, t.OwnerID, t.Category, t.Subject, t.Status, t.Priority,
			t.AssignedTo, t.CreatedAt, t.UpdatedAt, t.ClosedAt, t.ClosedBy).
		ToSql()
	if err != nil {
		return fmt.Errorf("build ticket insert: %w", err)
	}
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return wrap("ticket create", "ticket", t.ID, err)
	}
	if err := insertMessage(ctx, tx, first); err != nil {
		return err
	}
	return wrap("ticket create", "ticket", t.ID, tx.Commit(ctx))
}

func insertMessage(ctx context.Context, tx pgx.Tx, m *models.TicketMessage) error {
	query, args, err := psql.Insert("ticket_messages").
		Columns("ticket_id", "author_id", "is_staff", "body", "created_at").
		Values(m.TicketID, m.AuthorID, m.IsStaff, m.Body, m.CreatedAt).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return fmt.Errorf("build message insert: %w", err)
	}
	return wrap("ticket message insert", "ticket", m.TicketID, tx.QueryRow(ctx, query, args...).Scan(&m.ID))
}

func (r *TicketRepo) Get(ctx context.Context, id string) (*models.Ticket, error) {
	query, args, err := psql.Select(ticketColumns...).From("tickets").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build ticket get: %w", err)
	}
	var t models.Ticket
	if err := scanTicket(r.db.QueryRow(ctx, query, args...), &t); err != nil {
		return nil, wrap("ticket get", "ticket", id, err)
	}
	return &t, nil
}

func (r *TicketRepo) Messages(ctx context.Context, ticketID string) ([]models.TicketMessage, error) {
	query, args, err := psql.Select("id", "ticket_id", "author_id", "is_staff", "body", "created_at").
		From("ticket_messages").
		Where(sq.Eq{"ticket_id": ticketID}).
		OrderBy("id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build messages query: %w", err)
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, wrap("ticket messages", "ticket", ticketID, err)
	}
	defer rows.Close()

	var out []models.TicketMessage
	for rows.Next() {
		var m models.TicketMessage
		if err := rows.Scan(&m.ID, &m.TicketID, &m.AuthorID, &m.IsStaff, &m.Body, &m.CreatedAt); err != nil {
			return nil, wrap("ticket messages", "ticket", ticketID, err)
		}
		out = append(out, m)
	}
	return out, wrap("ticket messages", "ticket", ticketID, rows.Err())
}

func (r *TicketRepo) List(ctx context.Context, f models.TicketFilter) ([]models.Ticket, error) {
	b := psql.Select(ticketColumns...).From("tickets").OrderBy("updated_at DESC", "id DESC")
	if f.OwnerID != "" {
		b = b.Where(sq.Eq{"owner_id": f.OwnerID})
	}
	if f.Status != "" {
		b = b.Where(sq.Eq{"status": f.Status})
	}
	if f.Limit > 0 {
		b = b.Limit(f.Limit)
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build ticket list: %w", err)
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, wrap("ticket list", "ticket", "", err)
	}
	defer rows.Close()

	var out []models.Ticket
	for rows.Next() {
		var t models.Ticket
		if err := scanTicket(rows, &t); err != nil {
			return nil, wrap("ticket list", "ticket", "", err)
		}
		out = append(out, t)
	}
	return out, wrap("ticket list", "ticket", "", rows.Err())
}

// AppendMessage inserts the message and advances the ticket's updated_at in
// one transaction. The ticket row is locked first so a concurrent close
// either lands before the check or waits for the commit.
func (r *TicketRepo) AppendMessage(ctx context.Context, m *models.TicketMessage) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return wrap("ticket append", "ticket", m.TicketID, err)
	}
	defer tx.Rollback(ctx)

	lock, args, err := psql.Select("status").
		From("tickets").
		Where(sq.Eq{"id": m.TicketID}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return fmt.Errorf("build ticket lock: %w", err)
	}
	var status models.TicketStatus
	if err := tx.QueryRow(ctx, lock, args...).Scan(&status); err != nil {
		return wrap("ticket append", "ticket", m.TicketID, err)
	}
	if status == models.TicketClosed {
		return &models.ValidationError{Field: "status", Rule: "ticket is closed"}
	}

	if err := insertMessage(ctx, tx, m); err != nil {
		return err
	}
	query, args, err := psql.Update("tickets").
		Set("updated_at", m.CreatedAt).
		Where(sq.Eq{"id": m.TicketID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build ticket touch: %w", err)
	}
	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return wrap("ticket append", "ticket", m.TicketID, err)
	}
	if tag.RowsAffected() == 0 {
		return &models.NotFoundError{Entity: "ticket", ID: m.TicketID}
	}
	return wrap("ticket append", "ticket", m.TicketID, tx.Commit(ctx))
}

// UpdateStatus writes t's status fields only if the stored status still
// equals from.
func (r *TicketRepo) UpdateStatus(ctx context.Context, t *models.Ticket, from models.TicketStatus) error {
	query, args, err := psql.Update("tickets").
		Set("status", t.Status).
		Set("closed_at", t.ClosedAt).
		Set("closed_by", t.ClosedBy).
		Set("updated_at", t.UpdatedAt).
		Where(sq.Eq{"id": t.ID, "status": from}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build status update: %w", err)
	}
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return wrap("ticket status", "ticket", t.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return &models.ValidationError{Field: "status", Rule: fmt.Sprintf("ticket is no longer %s", from)}
	}
	return nil
}

func (r *TicketRepo) update(ctx context.Context, op, id string, column string, value any, at time.Time) error {
	query, args, err := psql.Update("tickets").
		Set(column, value).
		Set("updated_at", at).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build %s: %w", op, err)
	}
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return wrap(op, "ticket", id, err)
	}
	if tag.RowsAffected() == 0 {
		return &models.NotFoundError{Entity: "ticket", ID: id}
	}
	return nil
}

func (r *TicketRepo) UpdateAssignee(ctx context.Context, id, staffID string, at time.Time) error {
	return r.update(ctx, "ticket assign", id, "assigned_to", staffID, at)
}

func (r *TicketRepo) UpdatePriority(ctx context.Context, id string, p models.TicketPriority, at time.Time) error {
	return r.update(ctx, "ticket priority", id, "priority", p, at)
}

func (r *TicketRepo) Statistics(ctx context.Context) (*models.TicketStatistics, error) {
	query, args, err := psql.Select("status", "COUNT(*)").From("tickets").GroupBy("status").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build ticket statistics: %w", err)
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, wrap("ticket statistics", "ticket", "", err)
	}
	defer rows.Close()

	stats := &models.TicketStatistics{}
	for rows.Next() {
		var status models.TicketStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, wrap("ticket statistics", "ticket", "", err)
		}
		switch status {
		case models.TicketOpen:
			stats.Open = n
		case models.TicketInProgress:
			stats.InProgress = n
		case models.TicketClosed:
			stats.Closed = n
		}
		stats.Total += n
	}
	return stats, wrap("ticket statistics", "ticket", "", rows.Err())
}
