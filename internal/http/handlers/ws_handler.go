package handlers

import (
	"context"
	"strings"
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seal-agent/backend/internal/auth"
	"github.com/seal-agent/backend/internal/config"
	"github.com/seal-agent/backend/internal/events"
)

// WSHub fans settlement events out to connected operator sockets.
type WSHub struct {
	cfg         *config.Config
	subscriber  events.Subscriber
	log         *zap.Logger
	mu          sync.RWMutex
	connections map[uuid.UUID]*wsConn
}

type wsConn struct {
	mu    sync.Mutex
	conn  *websocket.Conn
	types map[string]bool // nil receives every event type
}

func (w *wsConn) wants(eventType string) bool {
	return w.types == nil || w.types[eventType]
}

func (w *wsConn) write(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func NewWSHub(cfg *config.Config, subscriber events.Subscriber, log *zap.Logger) *WSHub {
	return &WSHub{
		cfg:         cfg,
		subscriber:  subscriber,
		log:         log,
		connections: make(map[uuid.UUID]*wsConn),
	}
}

func (h *WSHub) Start(ctx context.Context) error {
	return h.subscriber.Subscribe(ctx, events.StreamSettlement, h.broadcast)
}

func (h *WSHub) broadcast(event events.Event) {
	data, err := events.Encode(event)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, c := range h.connections {
		if !c.wants(event.Type) {
			continue
		}
		if err := c.write(data); err != nil {
			h.log.Debug("ws write failed", zap.String("conn_id", id.String()), zap.Error(err))
		}
	}
}

// Connections is the number of live sockets.
func (h *WSHub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
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
	claims, err := auth.ParseJWT(h.cfg.JWTSecret, tokenStr)
	if err != nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"invalid token"}`))
		conn.Close()
		return
	}

	id := uuid.New()
	h.mu.Lock()
	h.connections[id] = &wsConn{conn: conn, types: parseTypes(conn.Query("types"))}
	h.mu.Unlock()
	h.log.Debug("ws connected", zap.String("conn_id", id.String()), zap.String("operator", claims.Operator))

	defer func() {
		h.mu.Lock()
		delete(h.connections, id)
		h.mu.Unlock()
		conn.Close()
	}()

	// Read loop (keep alive / pings)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// parseTypes reads the comma separated ?types= filter.
func parseTypes(raw string) map[string]bool {
	if raw == "" {
		return nil
	}
	out := make(map[string]bool)
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out[t] = true
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
