package devserver

import (
	"sync"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/Omdevsinh-Zala/chat-session/internal/wire"
)

// clientConn wraps one connected user. Writes are serialized per connection.
type clientConn struct {
	userID string
	conn   *websocket.Conn
	mu     sync.Mutex
}

func (c *clientConn) send(event string, payload interface{}) error {
	data, err := wire.Encode(event, payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub tracks the connected users. One connection per user; a new connection
// replaces the old one.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*clientConn
	log     *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{clients: make(map[string]*clientConn), log: log}
}

func (h *Hub) Register(userID string, conn *websocket.Conn) *clientConn {
	c := &clientConn{userID: userID, conn: conn}
	h.mu.Lock()
	h.clients[userID] = c
	total := len(h.clients)
	h.mu.Unlock()
	h.log.Info("client connected", zap.String("user", userID), zap.Int("total", total))
	return c
}

func (h *Hub) Unregister(userID string, c *clientConn) {
	h.mu.Lock()
	if cur, ok := h.clients[userID]; ok && cur == c {
		delete(h.clients, userID)
	}
	total := len(h.clients)
	h.mu.Unlock()
	h.log.Info("client disconnected", zap.String("user", userID), zap.Int("total", total))
}

func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

// Send delivers an event to one user if connected.
func (h *Hub) Send(userID, event string, payload interface{}) {
	h.mu.RLock()
	c := h.clients[userID]
	h.mu.RUnlock()
	if c == nil {
		return
	}
	if err := c.send(event, payload); err != nil {
		h.log.Warn("send failed", zap.String("user", userID), zap.Error(err))
	}
}

// Broadcast delivers an event to every connected user except the excluded
// one.
func (h *Hub) Broadcast(exceptUserID, event string, payload interface{}) {
	h.mu.RLock()
	targets := make([]*clientConn, 0, len(h.clients))
	for id, c := range h.clients {
		if id == exceptUserID {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	for _, c := range targets {
		if err := c.send(event, payload); err != nil {
			h.log.Warn("broadcast failed", zap.String("user", c.userID), zap.Error(err))
		}
	}
}
