package handlers

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/audit-trail/backend/internal/auth"
	"github.com/audit-trail/backend/internal/config"
	"github.com/audit-trail/backend/internal/events"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// WSHub streams the live audit feed to connected clients. Every audit.logged
// event published on the bus is broadcast to all authenticated connections,
// which gives operators a tail of writes as they happen.
type WSHub struct {
	cfg   *config.Config
	sub   events.Subscriber
	log   *zap.Logger
	mu    sync.RWMutex
	conns map[*websocket.Conn]struct{}
}

func NewWSHub(cfg *config.Config, sub events.Subscriber, log *zap.Logger) *WSHub {
	return &WSHub{
		cfg:   cfg,
		sub:   sub,
		log:   log,
		conns: make(map[*websocket.Conn]struct{}),
	}
}

func (h *WSHub) Start(ctx context.Context) {
	_ = h.sub.Subscribe(ctx, events.StreamAudit, func(event events.Event) {
		h.broadcast(event)
	})
}

func (h *WSHub) broadcast(event events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for conn := range h.conns {
		_ = conn.WriteMessage(websocket.TextMessage, data)
	}
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

func (h *WSHub) HandleWS(conn *websocket.Conn) {
	tokenStr := conn.Query("token")
	if tokenStr == "" {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"missing token"}`))
		conn.Close()
		return
	}

	if _, err := auth.ParseJWT(h.cfg.JWTSecret, tokenStr); err != nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"invalid token"}`))
		conn.Close()
		return
	}

	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.conns, conn)
		h.mu.Unlock()
		conn.Close()
	}()

	// Read loop: the feed is one-way, but reading keeps ping/pong alive and
	// detects closed peers.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
