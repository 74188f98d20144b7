package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/modgate/backend/internal/audit"
	"github.com/modgate/backend/internal/events"
	"github.com/modgate/backend/internal/ids"
	"github.com/modgate/backend/internal/metrics"
	"github.com/modgate/backend/internal/models"
	"go.uber.org/zap"
)

const (
	maxSubjectRunes  = 100
	maxCategoryRunes = 50
)

// TicketStore persists tickets and their messages.
type TicketStore interface {
	Create(ctx context.Context, t *models.Ticket, first *models.TicketMessage) error
	Get(ctx context.Context, id string) (*models.Ticket, error)
	Messages(ctx context.Context, ticketID string) ([]models.TicketMessage, error)
	List(ctx context.Context, f models.TicketFilter) ([]models.Ticket, error)
	AppendMessage(ctx context.Context, m *models.TicketMessage) error
	UpdateStatus(ctx context.Context, t *models.Ticket, from models.TicketStatus) error
	UpdateAssignee(ctx context.Context, id, staffID string, at time.Time) error
	UpdatePriority(ctx context.Context, id string, p models.TicketPriority, at time.Time) error
	Statistics(ctx context.Context) (*models.TicketStatistics, error)
}

// TierDirectory resolves global staff tiers.
type TierDirectory interface {
	Tier(id string) models.StaffTier
}

// Notifier sends best-effort direct messages. It never blocks or fails.
type Notifier interface {
	Notify(ctx context.Context, msg models.DirectMessage)
}

// AuditRecorder writes ticket actions to the audit trail.
type AuditRecorder interface {
	Record(ctx context.Context, e audit.Entry) (string, error)
}

type TicketServiceOptions struct {
	// SupportCanManage lets Support-tier staff change ticket status.
	SupportCanManage bool
	Timeout          time.Duration
}

type TicketService struct {
	store    TicketStore
	staff    TierDirectory
	notifier Notifier
	audit    AuditRecorder
	events   events.Publisher
	ids      *ids.Generator
	clock    clockwork.Clock
	metrics  *metrics.Metrics
	log      *zap.Logger
	opts     TicketServiceOptions
}

func NewTicketService(store TicketStore, staff TierDirectory, notifier Notifier, recorder AuditRecorder,
	pub events.Publisher, gen *ids.Generator, clock clockwork.Clock, m *metrics.Metrics, log *zap.Logger,
	opts TicketServiceOptions) *TicketService {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	return &TicketService{
		store:    store,
		staff:    staff,
		notifier: notifier,
		audit:    recorder,
		events:   pub,
		ids:      gen,
		clock:    clock,
		metrics:  m,
		log:      log,
		opts:     opts,
	}
}

func (s *TicketService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opts.Timeout)
}

func requireText(field, value string, max int) (string, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return "", &models.ValidationError{Field: field, Rule: "must not be empty"}
	}
	if len([]rune(v)) > max {
		return "", &models.ValidationError{Field: field, Rule: fmt.Sprintf("must be at most %d characters", max)}
	}
	return v, nil
}

// Create opens a ticket with the owner's first message.
func (s *TicketService) Create(ctx context.Context, ownerID, category, subject, message string) (*models.TicketWithMessages, error) {
	if ownerID == "" {
		return nil, &models.ValidationError{Field: "owner_id", Rule: "required"}
	}
	category, err := requireText("category", category, maxCategoryRunes)
	if err != nil {
		return nil, err
	}
	subject, err = requireText("subject", subject, maxSubjectRunes)
	if err != nil {
		return nil, err
	}
	body, err := SanitizeMessage(message)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	t := &models.Ticket{
		ID:        s.ids.TicketID(),
		OwnerID:   ownerID,
		Category:  strings.ToLower(category),
		Subject:   subject,
		Status:    models.TicketOpen,
		Priority:  models.PriorityNormal,
		CreatedAt: now,
		UpdatedAt: now,
	}
	first := &models.TicketMessage{TicketID: t.ID, AuthorID: ownerID, Body: body, CreatedAt: now}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.store.Create(ctx, t, first); err != nil {
		return nil, models.WrapPersistence("ticket create", err)
	}
	if err := s.record(ctx, ownerID, models.ActionTicketCreated, t, ownerID, map[string]any{
		"category": t.Category,
		"subject":  t.Subject,
	}); err != nil {
		return nil, err
	}

	s.log.Info("ticket created", zap.String("ticket_id", t.ID), zap.String("owner_id", ownerID), zap.String("category", t.Category))
	s.publish(ctx, models.TicketEventCreated, t, ownerID)
	return &models.TicketWithMessages{Ticket: *t, Messages: []models.TicketMessage{*first}}, nil
}

func (s *TicketService) canRead(actorID string, t *models.Ticket) bool {
	return t.OwnerID == actorID || s.staff.Tier(actorID).IsStaff()
}

func (s *TicketService) load(ctx context.Context, actorID, ticketID string) (*models.Ticket, error) {
	t, err := s.store.Get(ctx, ticketID)
	if err != nil {
		return nil, models.WrapPersistence("ticket get", err)
	}
	if !s.canRead(actorID, t) {
		return nil, fmt.Errorf("ticket %s: %w", ticketID, models.ErrForbidden)
	}
	return t, nil
}

// Get returns the ticket with its messages if the actor owns it or is staff.
func (s *TicketService) Get(ctx context.Context, actorID, ticketID string) (*models.TicketWithMessages, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	t, err := s.load(ctx, actorID, ticketID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.store.Messages(ctx, ticketID)
	if err != nil {
		return nil, models.WrapPersistence("ticket messages", err)
	}
	return &models.TicketWithMessages{Ticket: *t, Messages: msgs}, nil
}

func (s *TicketService) ListByUser(ctx context.Context, userID string) ([]models.Ticket, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	list, err := s.store.List(ctx, models.TicketFilter{OwnerID: userID})
	if err != nil {
		return nil, models.WrapPersistence("ticket list", err)
	}
	return list, nil
}

// ListAll is staff-only. An empty status lists every ticket.
func (s *TicketService) ListAll(ctx context.Context, actorID string, status models.TicketStatus) ([]models.Ticket, error) {
	if !s.staff.Tier(actorID).IsStaff() {
		return nil, models.ErrForbidden
	}
	if status != "" && !status.Valid() {
		return nil, &models.ValidationError{Field: "status", Rule: fmt.Sprintf("unknown status %q", status)}
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	list, err := s.store.List(ctx, models.TicketFilter{Status: status})
	if err != nil {
		return nil, models.WrapPersistence("ticket list", err)
	}
	return list, nil
}

// AddMessage appends a message. A staff reply to an open ticket moves it to
// in_progress; that transition is a separate write and its failure does not
// undo the message.
func (s *TicketService) AddMessage(ctx context.Context, actorID, ticketID, message string) (*models.TicketMessage, *models.Ticket, error) {
	body, err := SanitizeMessage(message)
	if err != nil {
		return nil, nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	t, err := s.load(ctx, actorID, ticketID)
	if err != nil {
		return nil, nil, err
	}
	if t.Status == models.TicketClosed {
		return nil, nil, &models.ValidationError{Field: "status", Rule: "ticket is closed"}
	}

	isStaff := s.staff.Tier(actorID).IsStaff()
	now := s.clock.Now().UTC()
	msg := &models.TicketMessage{TicketID: t.ID, AuthorID: actorID, IsStaff: isStaff, Body: body, CreatedAt: now}
	if err := s.store.AppendMessage(ctx, msg); err != nil {
		return nil, nil, models.WrapPersistence("ticket append", err)
	}
	t.UpdatedAt = now
	s.publish(ctx, models.TicketEventMessage, t, actorID)

	if isStaff && t.Status == models.TicketOpen {
		next := *t
		next.Status = models.TicketInProgress
		if err := s.store.UpdateStatus(ctx, &next, models.TicketOpen); err != nil {
			s.log.Warn("auto transition to in_progress failed", zap.String("ticket_id", t.ID), zap.Error(err))
		} else {
			s.metrics.TicketTransition(string(models.TicketOpen), string(models.TicketInProgress))
			t = &next
			// The message is already stored, a lost record does not fail the reply.
			_ = s.recordTransition(ctx, actorID, t, models.TicketOpen)
			s.publish(ctx, models.TicketEventStatusChanged, t, actorID)
		}
	}

	if isStaff && actorID != t.OwnerID {
		s.notifyOwner(ctx, t, "💬 New reply on your ticket", body)
	}
	return msg, t, nil
}

func (s *TicketService) canManageStatus(actorID string) bool {
	tier := s.staff.Tier(actorID)
	if tier.AtLeast(models.TierModerator) {
		return true
	}
	return tier == models.TierSupport && s.opts.SupportCanManage
}

// SetStatus changes status. Closing records closedAt/closedBy; reopening clears them.
func (s *TicketService) SetStatus(ctx context.Context, actorID, ticketID string, status models.TicketStatus) (*models.Ticket, error) {
	if actorID == "" {
		return nil, &models.ValidationError{Field: "actor", Rule: "required"}
	}
	if !s.canManageStatus(actorID) {
		return nil, models.ErrForbidden
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	t, err := s.load(ctx, actorID, ticketID)
	if err != nil {
		return nil, err
	}
	if err := models.ValidateTicketTransition(t.Status, status); err != nil {
		return nil, err
	}

	from := t.Status
	next := *t
	next.Status = status
	next.UpdatedAt = s.clock.Now().UTC()
	if status == models.TicketClosed {
		at := next.UpdatedAt
		by := actorID
		next.ClosedAt, next.ClosedBy = &at, &by
	} else {
		next.ClosedAt, next.ClosedBy = nil, nil
	}

	if err := s.store.UpdateStatus(ctx, &next, from); err != nil {
		return nil, models.WrapPersistence("ticket status", err)
	}
	s.metrics.TicketTransition(string(from), string(status))
	if err := s.recordTransition(ctx, actorID, &next, from); err != nil {
		return nil, err
	}
	s.log.Info("ticket status changed",
		zap.String("ticket_id", ticketID),
		zap.String("from", string(from)),
		zap.String("to", string(status)),
		zap.String("actor_id", actorID),
	)
	s.publish(ctx, models.TicketEventStatusChanged, &next, actorID)
	s.notifyOwner(ctx, &next, "🎫 Ticket status updated", "Your ticket is now **"+string(status)+"**.")
	return &next, nil
}

// Assign is Support+ and only to staff ids.
func (s *TicketService) Assign(ctx context.Context, actorID, ticketID, staffID string) (*models.Ticket, error) {
	if !s.staff.Tier(actorID).AtLeast(models.TierSupport) {
		return nil, models.ErrForbidden
	}
	if !s.staff.Tier(staffID).IsStaff() {
		return nil, &models.ValidationError{Field: "assigned_to", Rule: "must be a staff member"}
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	t, err := s.load(ctx, actorID, ticketID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now().UTC()
	if err := s.store.UpdateAssignee(ctx, ticketID, staffID, now); err != nil {
		return nil, models.WrapPersistence("ticket assign", err)
	}
	previous := ""
	if t.AssignedTo != nil {
		previous = *t.AssignedTo
	}
	if err := s.record(ctx, actorID, models.ActionTicketAssign, t, staffID, map[string]any{
		"from": previous,
		"to":   staffID,
	}); err != nil {
		return nil, err
	}
	t.AssignedTo = &staffID
	t.UpdatedAt = now
	s.publish(ctx, models.TicketEventAssigned, t, actorID)
	return t, nil
}

func (s *TicketService) SetPriority(ctx context.Context, actorID, ticketID string, p models.TicketPriority) (*models.Ticket, error) {
	if !s.staff.Tier(actorID).AtLeast(models.TierSupport) {
		return nil, models.ErrForbidden
	}
	if !p.Valid() {
		return nil, &models.ValidationError{Field: "priority", Rule: fmt.Sprintf("unknown priority %q", p)}
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	t, err := s.load(ctx, actorID, ticketID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now().UTC()
	if err := s.store.UpdatePriority(ctx, ticketID, p, now); err != nil {
		return nil, models.WrapPersistence("ticket priority", err)
	}
	if err := s.record(ctx, actorID, models.ActionTicketPriority, t, t.OwnerID, map[string]any{
		"from": string(t.Priority),
		"to":   string(p),
	}); err != nil {
		return nil, err
	}
	t.Priority = p
	t.UpdatedAt = now
	s.publish(ctx, models.TicketEventPriority, t, actorID)
	return t, nil
}

// Statistics is a read and fails open: on a store error it returns zero
// counts flagged Degraded.
func (s *TicketService) Statistics(ctx context.Context) *models.TicketStatistics {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	stats, err := s.store.Statistics(ctx)
	if err != nil {
		s.log.Warn("ticket statistics unavailable", zap.Error(err))
		return &models.TicketStatistics{Degraded: true}
	}
	return stats
}

// record writes a ticket action to the audit trail. Tickets are not scoped
// to a community, so the record carries none and no community stream gets it.
func (s *TicketService) record(ctx context.Context, actorID, actionType string, t *models.Ticket, targetID string, extra map[string]any) error {
	if extra == nil {
		extra = map[string]any{}
	}
	extra["ticket_id"] = t.ID
	_, err := s.audit.Record(ctx, audit.Entry{
		ActorID:    actorID,
		TargetID:   targetID,
		ActionType: actionType,
		Extra:      extra,
	})
	if err != nil {
		s.log.Error("ticket audit record failed",
			zap.String("ticket_id", t.ID),
			zap.String("action", actionType),
			zap.Error(err),
		)
	}
	return err
}

func (s *TicketService) recordTransition(ctx context.Context, actorID string, t *models.Ticket, from models.TicketStatus) error {
	return s.record(ctx, actorID, models.TicketStatusAction(from, t.Status), t, t.OwnerID, map[string]any{
		"from": string(from),
		"to":   string(t.Status),
	})
}

func (s *TicketService) publish(ctx context.Context, kind string, t *models.Ticket, actorID string) {
	if s.events == nil {
		return
	}
	err := s.events.Publish(context.WithoutCancel(ctx), events.StreamTickets, events.Event{
		Type: events.EventTicketUpdated,
		Payload: map[string]any{
			"event":     kind,
			"ticket_id": t.ID,
			"owner_id":  t.OwnerID,
			"status":    string(t.Status),
			"priority":  string(t.Priority),
			"actor_id":  actorID,
		},
	})
	if err != nil {
		s.log.Warn("ticket event publish failed", zap.String("ticket_id", t.ID), zap.Error(err))
	}
}

func (s *TicketService) notifyOwner(ctx context.Context, t *models.Ticket, title, text string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, models.DirectMessage{
		UserID: t.OwnerID,
		Embed: &models.Embed{
			Title:       title,
			Description: text,
			Fields: []models.EmbedField{
				{Name: "Ticket", Value: t.ID, Inline: true},
				{Name: "Subject", Value: t.Subject, Inline: true},
			},
			Footer:    "Ticket " + t.ID,
			Timestamp: s.clock.Now().UTC(),
		},
	})
}
