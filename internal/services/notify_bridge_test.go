package services

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/modgate/backend/internal/events"
	"github.com/modgate/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type scriptedSender struct {
	errs  []error
	calls int
	last  models.DirectMessage
}

func (s *scriptedSender) SendDirectMessage(_ context.Context, msg models.DirectMessage) error {
	s.last = msg
	s.calls++
	if len(s.errs) == 0 {
		return nil
	}
	err := s.errs[0]
	s.errs = s.errs[1:]
	return err
}

func fastBridge(t *testing.T, s DirectSender) *NotificationBridge {
	b := NewNotificationBridge(s, zaptest.NewLogger(t))
	b.base = time.Millisecond
	return b
}

func notification(payload map[string]any) events.Event {
	return events.Event{Type: events.EventBotNotification, Payload: payload}
}

func TestBridgeRetriesServerErrors(t *testing.T) {
	s := &scriptedSender{errs: []error{
		&BotError{Status: http.StatusBadGateway},
		errors.New("connection refused"),
	}}
	err := fastBridge(t, s).Forward(context.Background(), notification(map[string]any{
		"user_id": "T",
		"embed":   map[string]any{"title": "Ticket updated", "color": 3447003},
	}))
	require.NoError(t, err)
	assert.Equal(t, 3, s.calls)
	require.NotNil(t, s.last.Embed)
	assert.Equal(t, "Ticket updated", s.last.Embed.Title)
}

func TestBridgeDropsClientErrors(t *testing.T) {
	s := &scriptedSender{errs: []error{&BotError{Status: http.StatusForbidden}}}
	err := fastBridge(t, s).Forward(context.Background(), notification(map[string]any{"user_id": "T", "text": "hi"}))
	require.Error(t, err)
	assert.Equal(t, 1, s.calls)

	s = &scriptedSender{errs: []error{&models.NotFoundError{Entity: "user", ID: "T"}}}
	err = fastBridge(t, s).Forward(context.Background(), notification(map[string]any{"user_id": "T", "text": "hi"}))
	require.Error(t, err)
	assert.Equal(t, 1, s.calls)
}

func TestBridgeGivesUp(t *testing.T) {
	errs := make([]error, 10)
	for i := range errs {
		errs[i] = &BotError{Status: http.StatusServiceUnavailable}
	}
	s := &scriptedSender{errs: errs}
	err := fastBridge(t, s).Forward(context.Background(), notification(map[string]any{"user_id": "T", "text": "hi"}))
	require.Error(t, err)
	assert.Equal(t, 5, s.calls, "first attempt plus four retries")
}

func TestBridgeIgnoresMalformed(t *testing.T) {
	s := &scriptedSender{}
	b := fastBridge(t, s)

	assert.NoError(t, b.Forward(context.Background(), events.Event{Type: events.EventTicketUpdated}))
	err := b.Forward(context.Background(), notification(map[string]any{"text": "no user"}))
	assert.Equal(t, models.KindValidation, models.Classify(err))
	assert.Zero(t, s.calls)
}

func TestBridgeRunDeliversFromBus(t *testing.T) {
	bus := events.NewMemoryBus()
	s := &scriptedSender{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, fastBridge(t, s).Run(ctx, bus))

	require.NoError(t, bus.Publish(ctx, events.StreamNotifications, notification(map[string]any{"user_id": "T", "text": "hi"})))
	assert.Equal(t, 1, s.calls)
	assert.Equal(t, "hi", s.last.Text)
}
