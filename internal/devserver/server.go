// Package devserver is an in-memory chat server for local development and
// manual end-to-end runs of the client session. It speaks the same event
// vocabulary as a production backend but keeps everything in process: no
// database, no broker, history vanishes on restart.
package devserver

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/Omdevsinh-Zala/chat-session/internal/models"
	"github.com/Omdevsinh-Zala/chat-session/internal/wire"
)

// DefaultPageSize is how many messages an initial load or pagination request
// returns.
const DefaultPageSize = 50

type Options struct {
	// AuthToken, when set, is piggybacked on every initial history response.
	AuthToken string
	PageSize  int
	Logger    *zap.Logger
}

type Server struct {
	app   *fiber.App
	hub   *Hub
	store *Store
	opts  Options
	log   *zap.Logger
}

func New(opts Options) *Server {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	s := &Server{
		hub:   NewHub(opts.Logger),
		store: NewStore(),
		opts:  opts,
		log:   opts.Logger,
	}

	app := fiber.New(fiber.Config{
		AppName:               "chat-session devserver",
		DisableStartupMessage: true,
	})
	app.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		user := strings.TrimSpace(c.Query("user"))
		if user == "" {
			return fiber.NewError(fiber.StatusBadRequest, "user query parameter required")
		}
		c.Locals("userID", user)
		return c.Next()
	})
	app.Get("/ws", websocket.New(s.handle))
	s.app = app
	return s
}

// Store exposes the backing store for seeding channels and history.
func (s *Server) Store() *Store { return s.store }

func (s *Server) Listen(addr string) error {
	s.log.Info("devserver listening", zap.String("addr", addr))
	return s.app.Listen(addr)
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) handle(c *websocket.Conn) {
	userID := c.Locals("userID").(string)
	client := s.hub.Register(userID, c)
	s.hub.Broadcast(userID, wire.EventPresence, wire.Presence{UserID: userID, Online: true})
	defer func() {
		s.hub.Unregister(userID, client)
		s.hub.Broadcast(userID, wire.EventPresence, wire.Presence{UserID: userID, Online: false})
	}()

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			return
		}
		env, err := wire.Decode(data)
		if err != nil {
			s.log.Warn("dropping malformed frame", zap.String("user", userID), zap.Error(err))
			continue
		}
		s.dispatch(userID, env)
	}
}

func (s *Server) dispatch(userID string, env *wire.Envelope) {
	switch env.Type {
	case wire.EventConversationChange:
		var p wire.ConversationChange
		if env.Bind(&p) == nil {
			s.sendHistory(userID, p)
		}
	case wire.EventAppendMessages:
		var p wire.AppendMessages
		if env.Bind(&p) == nil {
			s.sendPage(userID, p)
		}
	case wire.EventSendMessage:
		var p wire.SendMessage
		if env.Bind(&p) == nil {
			s.receiveSend(userID, p)
		}
	case wire.EventReadMessage:
		var p wire.ReadMessage
		if env.Bind(&p) == nil {
			s.receiveRead(p)
		}
	case wire.EventTyping:
		var p wire.Typing
		if env.Bind(&p) == nil {
			s.relayTyping(userID, p)
		}
	default:
		s.log.Debug("unhandled event", zap.String("event", env.Type), zap.String("user", userID))
	}
}

func (s *Server) sendHistory(userID string, p wire.ConversationChange) {
	members := s.store.Members(p.ScopeKind, userID, p.ScopeID)
	h := wire.InitialHistory{
		ScopeID:   p.ScopeID,
		Groups:    s.store.Page(p.ScopeKind, userID, p.ScopeID, 0, s.opts.PageSize),
		Members:   members,
		AuthToken: s.opts.AuthToken,
		Summary: &models.Summary{
			ID:       p.ScopeID,
			Kind:     p.ScopeKind,
			Title:    p.ScopeID,
			IsActive: p.ScopeKind == models.ScopeDirect && s.hub.IsOnline(p.ScopeID),
		},
	}
	s.hub.Send(userID, wire.EventInitialHistory, h)
}

func (s *Server) sendPage(userID string, p wire.AppendMessages) {
	s.hub.Send(userID, wire.EventAppendedMessages, wire.AppendedMessages{
		ScopeID: p.ScopeID,
		Groups:  s.store.Page(p.ScopeKind, userID, p.ScopeID, p.Offset, s.opts.PageSize),
	})
}

func (s *Server) receiveSend(senderID string, p wire.SendMessage) {
	msg := s.store.Append(p.ScopeKind, senderID, p.ScopeID, models.Message{
		ClientID:    p.ClientID,
		Content:     p.Content,
		MessageType: p.MessageType,
		Attachments: p.Attachments,
	})
	key := convKey(p.ScopeKind, senderID, p.ScopeID)
	s.deliver(key, msg)
}

// deliver fans a stored message out to everyone in its conversation,
// including the sender, whose copy doubles as the send acknowledgement.
func (s *Server) deliver(key string, msg models.Message) {
	group := models.MessageGroup{
		MonthYear: models.MonthYear(msg.CreatedAt),
		Messages:  []models.Message{msg},
	}
	for _, userID := range s.store.Participants(key) {
		s.hub.Send(userID, wire.EventReceiveMessage, wire.ReceiveMessage{Group: group})
	}
}

func (s *Server) receiveRead(p wire.ReadMessage) {
	msg, key, ok := s.store.FindMessage(p.MessageID)
	if !ok {
		return
	}
	at := s.store.MarkRead(key, p.ViewerID, msg.CreatedAt)
	for _, userID := range s.store.Participants(key) {
		s.hub.Send(userID, wire.EventReadUpdated, wire.ReadUpdated{
			ScopeID:    scopeIDFor(key, userID),
			UserID:     p.ViewerID,
			LastReadAt: at,
		})
	}
}

func (s *Server) relayTyping(senderID string, p wire.Typing) {
	key := convKey(p.ScopeKind, senderID, p.ScopeID)
	for _, userID := range s.store.Participants(key) {
		if userID == senderID {
			continue
		}
		out := p
		out.SenderID = senderID
		out.ScopeID = scopeIDFor(key, userID)
		s.hub.Send(userID, wire.EventTyping, out)
	}
}

// scopeIDFor maps a canonical conversation key back to the id a given viewer
// addresses it by: the channel id, or the other party of a direct pair.
func scopeIDFor(key, viewerID string) string {
	if strings.HasPrefix(key, "channel:") {
		return strings.TrimPrefix(key, "channel:")
	}
	parts := strings.SplitN(strings.TrimPrefix(key, "direct:"), ":", 2)
	if len(parts) != 2 {
		return key
	}
	if parts[0] == viewerID {
		return parts[1]
	}
	return parts[0]
}

// Seed loads a scripted history, useful for demos. Messages are stamped a
// minute apart ending now.
func (s *Server) Seed(kind models.ScopeKind, senderID, scopeID string, contents []string) {
	base := time.Now().UTC().Add(-time.Duration(len(contents)) * time.Minute)
	for i, content := range contents {
		s.store.Append(kind, senderID, scopeID, models.Message{
			Content:     content,
			MessageType: models.TextMessage,
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		})
	}
}
