package services

import (
	"context"
	"sync"
	"time"

	"github.com/modgate/backend/internal/events"
	"github.com/modgate/backend/internal/models"
	"go.uber.org/zap"
)

// EventNotifier queues direct messages on the notification stream; the
// notify-bridge process delivers them. Notify returns immediately and
// failures are only logged.
type EventNotifier struct {
	pub     events.Publisher
	log     *zap.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewEventNotifier(pub events.Publisher, log *zap.Logger) *EventNotifier {
	return &EventNotifier{pub: pub, log: log, timeout: 3 * time.Second}
}

func (n *EventNotifier) Notify(ctx context.Context, msg models.DirectMessage) {
	if msg.UserID == "" {
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
		defer cancel()

		payload := map[string]any{"user_id": msg.UserID}
		if msg.Text != "" {
			payload["text"] = msg.Text
		}
		if msg.Embed != nil {
			payload["embed"] = msg.Embed
		}
		err := n.pub.Publish(pctx, events.StreamNotifications, events.Event{
			Type:    events.EventBotNotification,
			Payload: payload,
		})
		if err != nil {
			n.log.Warn("notification dropped", zap.String("user_id", msg.UserID), zap.Error(err))
		}
	}()
}

// Wait blocks until queued notifications are published or dropped.
func (n *EventNotifier) Wait() {
	n.wg.Wait()
}
