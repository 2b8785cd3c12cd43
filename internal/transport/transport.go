// Package transport owns the persistent bidirectional connection to the chat
// server. It dispatches tagged events to registered handlers and preserves
// emit ordering on a single writer goroutine. Reconnection is deliberately
// manual: the owner must call Connect again after a disconnect, typically
// after re-authentication.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Omdevsinh-Zala/chat-session/internal/wire"
)

// Handler receives the raw payload of a dispatched event.
type Handler func(payload json.RawMessage)

// Subscription is a handle returned by On. Cancel deterministically removes
// the registration; cancelling a handle that has since been replaced by a
// newer registration for the same event is a no-op.
type Subscription interface {
	Cancel()
}

// Transport is the connection contract the session core consumes.
type Transport interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Connected() bool
	Emit(event string, payload interface{}) error
	On(event string, h Handler) Subscription
}

// ConnectionError wraps transport-level failures. Unauthorized marks the
// 401-class handshake failures the owning application must react to by
// invalidating the session.
type ConnectionError struct {
	Unauthorized bool
	Err          error
}

func (e *ConnectionError) Error() string {
	if e.Unauthorized {
		return fmt.Sprintf("connection unauthorized: %v", e.Err)
	}
	return fmt.Sprintf("connection failed: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ErrNotConnected is returned by Emit when no connection is open.
var ErrNotConnected = errors.New("transport: not connected")

type Options struct {
	URL       string
	AuthToken string

	DialTimeout  time.Duration
	PingInterval time.Duration
	PongTimeout  time.Duration
	WriteTimeout time.Duration

	// OnDisconnected fires on unexpected connection loss, never on an
	// explicit Disconnect.
	OnDisconnected func(err error)
	// OnUnauthorized fires when the server rejects the handshake with a
	// 401-class status.
	OnUnauthorized func()

	Logger *zap.Logger
}

func (o *Options) withDefaults() {
	if o.DialTimeout <= 0 {
		o.DialTimeout = 10 * time.Second
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.PongTimeout <= 0 {
		o.PongTimeout = 90 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// Conn is the gorilla/websocket implementation of Transport.
type Conn struct {
	opts Options

	mu       sync.Mutex
	ws       *websocket.Conn
	outbound chan []byte
	done     chan struct{}

	hmu      sync.RWMutex
	handlers map[string]*subscription
}

type subscription struct {
	conn  *Conn
	event string
	h     Handler
}

func (s *subscription) Cancel() {
	s.conn.hmu.Lock()
	defer s.conn.hmu.Unlock()
	if cur, ok := s.conn.handlers[s.event]; ok && cur == s {
		delete(s.conn.handlers, s.event)
	}
}

func New(opts Options) *Conn {
	opts.withDefaults()
	return &Conn{
		opts:     opts,
		handlers: make(map[string]*subscription),
	}
}

// Connect opens the connection if not already open. Idempotent.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ws != nil {
		return nil
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.opts.DialTimeout}
	header := http.Header{}
	if c.opts.AuthToken != "" {
		header.Set("Authorization", "Bearer "+c.opts.AuthToken)
	}

	ws, resp, err := dialer.DialContext(ctx, c.opts.URL, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			c.opts.Logger.Warn("handshake rejected", zap.Int("status", resp.StatusCode))
			if c.opts.OnUnauthorized != nil {
				c.opts.OnUnauthorized()
			}
			return &ConnectionError{Unauthorized: true, Err: err}
		}
		return &ConnectionError{Err: err}
	}

	ws.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
	})

	c.ws = ws
	c.outbound = make(chan []byte, 256)
	c.done = make(chan struct{})

	go c.writeLoop(ws, c.outbound, c.done)
	go c.readLoop(ws, c.done)

	c.opts.Logger.Info("connected", zap.String("url", c.opts.URL))
	return nil
}

// Disconnect closes the connection and clears all event registrations.
func (c *Conn) Disconnect() error {
	c.mu.Lock()
	ws := c.ws
	done := c.done
	c.ws = nil
	c.done = nil
	c.outbound = nil
	c.mu.Unlock()

	if ws == nil {
		return nil
	}

	close(done)
	deadline := time.Now().Add(c.opts.WriteTimeout)
	_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	err := ws.Close()

	c.hmu.Lock()
	c.handlers = make(map[string]*subscription)
	c.hmu.Unlock()

	c.opts.Logger.Info("disconnected")
	return err
}

func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws != nil
}

// Emit sends an event, fire-and-forget. Ordering is preserved relative to
// other emits on the same connection.
func (c *Conn) Emit(event string, payload interface{}) error {
	data, err := wire.Encode(event, payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	outbound := c.outbound
	done := c.done
	c.mu.Unlock()

	if outbound == nil {
		return ErrNotConnected
	}
	select {
	case outbound <- data:
		return nil
	case <-done:
		return ErrNotConnected
	}
}

// On registers a handler for an event name, replacing any previous one.
func (c *Conn) On(event string, h Handler) Subscription {
	sub := &subscription{conn: c, event: event, h: h}
	c.hmu.Lock()
	c.handlers[event] = sub
	c.hmu.Unlock()
	return sub
}

func (c *Conn) writeLoop(ws *websocket.Conn, outbound chan []byte, done chan struct{}) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case data := <-outbound:
			ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.opts.Logger.Error("write failed", zap.Error(err))
				c.teardown(ws, err)
				return
			}
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteTimeout)); err != nil {
				c.opts.Logger.Error("ping failed", zap.Error(err))
				c.teardown(ws, err)
				return
			}
		}
	}
}

// readLoop is the single dispatch goroutine: handlers run here sequentially,
// so per-connection event ordering carries through to state mutation.
func (c *Conn) readLoop(ws *websocket.Conn, done chan struct{}) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			select {
			case <-done:
				// Deliberate disconnect, no signal.
			default:
				c.teardown(ws, err)
			}
			return
		}

		env, err := wire.Decode(data)
		if err != nil {
			c.opts.Logger.Warn("dropping malformed frame", zap.Error(err))
			continue
		}

		c.hmu.RLock()
		sub := c.handlers[env.Type]
		c.hmu.RUnlock()
		if sub == nil {
			c.opts.Logger.Debug("no handler for event", zap.String("event", env.Type))
			continue
		}
		sub.h(env.Payload)
	}
}

// teardown handles an unexpected connection loss. Handlers are kept so a
// later Connect resumes dispatch without re-registration.
func (c *Conn) teardown(ws *websocket.Conn, err error) {
	c.mu.Lock()
	if c.ws != ws {
		c.mu.Unlock()
		return
	}
	done := c.done
	c.ws = nil
	c.done = nil
	c.outbound = nil
	c.mu.Unlock()

	close(done)
	_ = ws.Close()

	c.opts.Logger.Warn("connection lost", zap.Error(err))
	if c.opts.OnDisconnected != nil {
		c.opts.OnDisconnected(err)
	}
}
