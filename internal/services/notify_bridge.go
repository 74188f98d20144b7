package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/modgate/backend/internal/events"
	"github.com/modgate/backend/internal/models"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// DirectSender delivers a direct message through the bot runtime.
type DirectSender interface {
	SendDirectMessage(ctx context.Context, msg models.DirectMessage) error
}

// NotificationBridge forwards queued direct messages to the bot runtime.
// Transport failures and 5xx answers are retried with exponential backoff;
// anything else (user gone, DMs closed) is dropped.
type NotificationBridge struct {
	sender     DirectSender
	log        *zap.Logger
	base       time.Duration
	maxRetries uint64
	timeout    time.Duration
}

func NewNotificationBridge(sender DirectSender, log *zap.Logger) *NotificationBridge {
	return &NotificationBridge{
		sender:     sender,
		log:        log,
		base:       200 * time.Millisecond,
		maxRetries: 4,
		timeout:    10 * time.Second,
	}
}

// Run subscribes to the notification stream. It returns once subscribed.
func (b *NotificationBridge) Run(ctx context.Context, sub events.Subscriber) error {
	return sub.Subscribe(ctx, events.StreamNotifications, func(e events.Event) {
		if err := b.Forward(ctx, e); err != nil {
			b.log.Warn("notification not delivered", zap.String("type", e.Type), zap.Error(err))
		}
	})
}

func (b *NotificationBridge) Forward(ctx context.Context, e events.Event) error {
	if e.Type != events.EventBotNotification {
		return nil
	}
	msg, err := decodeDirectMessage(e.Payload)
	if err != nil {
		return err
	}

	backoff := retry.WithMaxRetries(b.maxRetries, retry.NewExponential(b.base))
	attempts := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		sctx, cancel := context.WithTimeout(ctx, b.timeout)
		defer cancel()
		err := b.sender.SendDirectMessage(sctx, msg)
		if err != nil && retryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("deliver to %s after %d attempt(s): %w", msg.UserID, attempts, err)
	}
	b.log.Debug("notification delivered", zap.String("user_id", msg.UserID), zap.Int("attempts", attempts))
	return nil
}

func decodeDirectMessage(payload map[string]any) (models.DirectMessage, error) {
	var msg models.DirectMessage
	raw, err := json.Marshal(payload)
	if err != nil {
		return msg, err
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return msg, fmt.Errorf("decode notification: %w", err)
	}
	if msg.UserID == "" {
		return msg, &models.ValidationError{Field: "user_id", Rule: "required"}
	}
	if msg.Text == "" && msg.Embed == nil {
		return msg, &models.ValidationError{Field: "text", Rule: "text or embed required"}
	}
	return msg, nil
}

func retryable(err error) bool {
	var be *BotError
	if errors.As(err, &be) {
		return be.Status >= 500 || be.Status == 429
	}
	var nf *models.NotFoundError
	return !errors.As(err, &nf)
}
