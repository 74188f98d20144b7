package events

import "context"

// Streams
const (
	StreamAudit         = "events:audit"
	StreamTickets       = "events:tickets"
	StreamNotifications = "events:notifications"
)

// Event types
const (
	EventAuditRecorded   = "audit_recorded"
	EventTicketUpdated   = "ticket_updated"
	EventBotNotification = "bot_notification"
)

type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}
