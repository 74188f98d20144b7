package handlers

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/modgate/backend/internal/auth"
	"github.com/modgate/backend/internal/events"
	"github.com/modgate/backend/internal/middleware"
	"github.com/modgate/backend/internal/models"
	"go.uber.org/zap"
)

const (
	wsSendBuffer   = 64
	wsWriteTimeout = 5 * time.Second
)

type wsConn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// wsClient is one dashboard connection. Its writer goroutine is the only one
// touching the socket; broadcasts only enqueue.
type wsClient struct {
	conn        wsConn
	userID      string
	tier        models.StaffTier
	communityID string
	out         chan []byte
	done        chan struct{}
	stopOnce    sync.Once
}

func newWSClient(conn wsConn, userID string, tier models.StaffTier, communityID string) *wsClient {
	return &wsClient{
		conn:        conn,
		userID:      userID,
		tier:        tier,
		communityID: communityID,
		out:         make(chan []byte, wsSendBuffer),
		done:        make(chan struct{}),
	}
}

// enqueue never blocks. A client whose buffer is full misses the message.
func (c *wsClient) enqueue(data []byte) bool {
	select {
	case c.out <- data:
		return true
	default:
		return false
	}
}

func (c *wsClient) writeLoop() {
	for {
		select {
		case data := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				// Closing the socket ends the read loop, which unregisters.
				c.stop()
				_ = c.conn.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *wsClient) stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

// WSHub pushes live audit records to moderators and ticket updates to staff
// and ticket owners.
type WSHub struct {
	secret     string
	staff      middleware.TierDirectory
	subscriber events.Subscriber
	log        *zap.Logger
	mu         sync.RWMutex
	clients    map[string][]*wsClient
}

func NewWSHub(secret string, staff middleware.TierDirectory, subscriber events.Subscriber, log *zap.Logger) *WSHub {
	return &WSHub{
		secret:     secret,
		staff:      staff,
		subscriber: subscriber,
		log:        log,
		clients:    make(map[string][]*wsClient),
	}
}

func (h *WSHub) Start(ctx context.Context) error {
	if err := h.subscriber.Subscribe(ctx, events.StreamAudit, h.onAudit); err != nil {
		return err
	}
	return h.subscriber.Subscribe(ctx, events.StreamTickets, h.onTicket)
}

func (h *WSHub) onAudit(event events.Event) {
	communityID, _ := event.Payload["community_id"].(string)
	h.broadcast(event, func(c *wsClient) bool {
		if !c.tier.AtLeast(models.TierModerator) {
			return false
		}
		return c.communityID == "" || c.communityID == communityID
	})
}

func (h *WSHub) onTicket(event events.Event) {
	ownerID, _ := event.Payload["owner_id"].(string)
	h.broadcast(event, func(c *wsClient) bool {
		return c.tier.IsStaff() || c.userID == ownerID
	})
}

func (h *WSHub) broadcast(event events.Event, match func(*wsClient) bool) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	var targets []*wsClient
	h.mu.RLock()
	for _, conns := range h.clients {
		for _, c := range conns {
			if match(c) {
				targets = append(targets, c)
			}
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.enqueue(data) {
			h.log.Debug("ws client too slow, message dropped",
				zap.String("user_id", c.userID),
				zap.String("event", event.Type),
			)
		}
	}
}

// Connections returns the number of open connections.
func (h *WSHub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, conns := range h.clients {
		n += len(conns)
	}
	return n
}

// WSUpgradeMiddleware checks for websocket upgrade
func WSUpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

func (h *WSHub) register(c *wsClient) {
	h.mu.Lock()
	h.clients[c.userID] = append(h.clients[c.userID], c)
	h.mu.Unlock()
}

func (h *WSHub) unregister(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns := h.clients[c.userID]
	for i, existing := range conns {
		if existing == c {
			h.clients[c.userID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	if len(h.clients[c.userID]) == 0 {
		delete(h.clients, c.userID)
	}
}

func (h *WSHub) HandleWS(conn *websocket.Conn) {
	tokenStr := conn.Query("token")
	if tokenStr == "" {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"missing token"}`))
		conn.Close()
		return
	}

	claims, err := auth.ParseJWT(h.secret, tokenStr)
	if err != nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"invalid token"}`))
		conn.Close()
		return
	}

	client := newWSClient(conn, claims.UserID, h.staff.Tier(claims.UserID), conn.Query("community_id"))
	h.register(client)
	go client.writeLoop()
	defer func() {
		h.unregister(client)
		client.stop()
		conn.Close()
	}()

	// Read loop (keep alive / pings)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
