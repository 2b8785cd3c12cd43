// Package session is the client-side core of a chat connection: it owns the
// conversation registry, routes transport events into per-conversation state,
// and exposes the operations a UI layer calls. All state mutation is
// serialized under one lock, entered either from the transport dispatch
// goroutine or from a caller.
package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Omdevsinh-Zala/chat-session/internal/models"
	"github.com/Omdevsinh-Zala/chat-session/internal/notify"
	"github.com/Omdevsinh-Zala/chat-session/internal/storage"
	"github.com/Omdevsinh-Zala/chat-session/internal/transport"
	"github.com/Omdevsinh-Zala/chat-session/internal/typing"
	"github.com/Omdevsinh-Zala/chat-session/internal/wire"
)

// Compressor shrinks an image attachment before upload and returns the new
// bytes and content type. Non-image files pass through untouched.
type Compressor func(data []byte, mimeType string) ([]byte, string, error)

type Options struct {
	ViewerID    string
	DisplayName string

	// Capacity bounds the warm-conversation registry; zero means
	// DefaultCapacity.
	Capacity  int
	TypingTTL time.Duration

	Uploader   storage.Uploader
	Compressor Compressor

	// OnChange fires after an observable state change so a UI layer can
	// re-render. It runs outside the session lock and may be nil.
	OnChange func()

	Logger *zap.Logger
}

// Session ties the transport, the conversation registry and the notification
// fan-out together.
type Session struct {
	opts   Options
	tr     transport.Transport
	fanout *notify.Fanout
	log    *zap.Logger

	mu       sync.Mutex
	reg      *registry
	activeID string
	// typingSent tracks whether our own typing-start has been emitted, so
	// repeated keystrokes produce one start and one stop.
	typingSent bool
	// pendingSends maps client id to the local echo's message id until the
	// server echo swaps it out.
	pendingSends map[string]string
	authToken    string

	subs []transport.Subscription
}

// New wires a session onto a transport. Event handlers are registered
// immediately; they stay in place across reconnects of the same transport.
func New(tr transport.Transport, fanout *notify.Fanout, opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	s := &Session{
		opts:         opts,
		tr:           tr,
		fanout:       fanout,
		log:          opts.Logger,
		reg:          newRegistry(opts.Capacity),
		pendingSends: make(map[string]string),
	}
	s.subs = []transport.Subscription{
		tr.On(wire.EventInitialHistory, s.handleInitialHistory),
		tr.On(wire.EventAppendedMessages, s.handleAppended),
		tr.On(wire.EventReceiveMessage, s.handleReceive),
		tr.On(wire.EventReadUpdated, s.handleReadUpdated),
		tr.On(wire.EventTyping, s.handleTyping),
		tr.On(wire.EventPresence, s.handlePresence),
		tr.On(wire.EventProfileUpdated, s.handleProfile),
	}
	return s
}

// Close cancels the event registrations. The transport itself is owned by the
// caller.
func (s *Session) Close() {
	for _, sub := range s.subs {
		sub.Cancel()
	}
	s.subs = nil
}

// Switch makes a conversation active and requests its history. A revisited
// conversation renders its warm timeline immediately while the fresh snapshot
// loads behind. Switching to the already-active conversation is a no-op.
func (s *Session) Switch(kind models.ScopeKind, id string) error {
	s.mu.Lock()
	if id == s.activeID {
		if c := s.reg.get(id); c != nil && c.State != StateIdle {
			s.mu.Unlock()
			return nil
		}
	}

	conv, _ := s.reg.getOrCreate(kind, id, s.opts.TypingTTL, s.opts.OnChange)
	conv.State = StateLoading
	conv.Typing.Reset()
	conv.lastAccess = time.Now()
	s.activeID = id
	s.typingSent = false
	s.reg.evict(id)
	s.mu.Unlock()

	if s.fanout != nil {
		s.fanout.MarkConversationRead(id)
	}
	err := s.tr.Emit(wire.EventConversationChange, wire.ConversationChange{
		ScopeKind: kind,
		ScopeID:   id,
	})
	s.changed()
	return err
}

// Resume re-requests history for the active conversation, used after the
// owner reconnects the transport.
func (s *Session) Resume() error {
	s.mu.Lock()
	conv := s.reg.get(s.activeID)
	if conv == nil {
		s.mu.Unlock()
		return ErrNoActiveConversation
	}
	conv.State = StateLoading
	s.typingSent = false
	kind, id := conv.Kind, conv.ID
	s.mu.Unlock()

	return s.tr.Emit(wire.EventConversationChange, wire.ConversationChange{
		ScopeKind: kind,
		ScopeID:   id,
	})
}

// Send performs the optimistic send: the message appears locally in sending
// state before any network work, attachments upload first, and the failure of
// either step flips the local copy to failed instead of dropping it.
func (s *Session) Send(ctx context.Context, content string, files []storage.File) (models.Message, error) {
	s.mu.Lock()
	conv := s.reg.get(s.activeID)
	if conv == nil || conv.State == StateIdle {
		s.mu.Unlock()
		return models.Message{}, ErrNoActiveConversation
	}
	kind, id := conv.Kind, conv.ID

	placeholders := make([]models.Attachment, 0, len(files))
	for _, f := range files {
		placeholders = append(placeholders, models.Attachment{
			Name:     f.Name,
			Size:     int64(len(f.Data)),
			MimeType: f.MimeType,
		})
	}

	clientID := uuid.NewString()
	local := models.Message{
		ID:          clientID,
		ClientID:    clientID,
		SenderID:    s.opts.ViewerID,
		Content:     content,
		MessageType: messageTypeFor(content, files),
		Status:      models.StatusSending,
		Attachments: placeholders,
		CreatedAt:   time.Now().UTC(),
		Version:     1,
	}
	if kind == models.ScopeChannel {
		local.ChannelID = id
	} else {
		local.ReceiverID = id
	}
	conv.Timeline.Upsert(local)
	s.pendingSends[clientID] = local.ID

	// Sending ends our typing run.
	typingStop := s.typingSent
	s.typingSent = false
	s.mu.Unlock()
	s.changed()

	if typingStop {
		s.emitTyping(kind, id, false)
	}

	var resolved []models.Attachment
	if len(files) > 0 {
		var err error
		resolved, err = s.uploadFiles(ctx, kind, id, files)
		if err != nil {
			s.failSend(id, clientID, local.ID)
			return local, err
		}
		s.mu.Lock()
		if conv := s.reg.get(id); conv != nil {
			if msg, ok := conv.Timeline.Get(local.ID); ok {
				msg.Attachments = resolved
				conv.Timeline.Upsert(msg)
				local = msg
			}
		}
		s.mu.Unlock()
		s.changed()
	}

	err := s.tr.Emit(wire.EventSendMessage, wire.SendMessage{
		ClientID:    clientID,
		ScopeKind:   kind,
		ScopeID:     id,
		Content:     content,
		MessageType: local.MessageType,
		Attachments: resolved,
	})
	if err != nil {
		s.failSend(id, clientID, local.ID)
		return local, err
	}
	return local, nil
}

func (s *Session) uploadFiles(ctx context.Context, kind models.ScopeKind, id string, files []storage.File) ([]models.Attachment, error) {
	if s.opts.Uploader == nil {
		return nil, &storage.UploadError{Name: files[0].Name, Err: ErrNoUploader}
	}
	prepared := make([]storage.File, len(files))
	copy(prepared, files)
	if s.opts.Compressor != nil {
		for i, f := range prepared {
			if !isImage(f.MimeType) {
				continue
			}
			data, mime, err := s.opts.Compressor(f.Data, f.MimeType)
			if err != nil {
				return nil, &storage.UploadError{Name: f.Name, Err: err}
			}
			prepared[i].Data = data
			prepared[i].MimeType = mime
		}
	}
	return s.opts.Uploader.Upload(ctx, scopePath(kind, id), prepared)
}

// failSend flips the local echo to failed and forgets the pending client id.
func (s *Session) failSend(convID, clientID, localID string) {
	s.mu.Lock()
	delete(s.pendingSends, clientID)
	if conv := s.reg.get(convID); conv != nil {
		if msg, ok := conv.Timeline.Get(localID); ok && msg.Status.CanTransition(models.StatusFailed) {
			msg.Status = models.StatusFailed
			conv.Timeline.Upsert(msg)
		}
	}
	s.mu.Unlock()
	s.changed()
}

// MarkRead emits a read signal for a message, deduplicated so a message
// scrolling through the viewport repeatedly signals exactly once.
func (s *Session) MarkRead(messageID string) error {
	s.mu.Lock()
	conv := s.reg.get(s.activeID)
	if conv == nil {
		s.mu.Unlock()
		return ErrNoActiveConversation
	}
	if _, pending := conv.pendingReads[messageID]; pending {
		s.mu.Unlock()
		return nil
	}
	if msg, ok := conv.Timeline.Get(messageID); ok && msg.Status == models.StatusRead {
		s.mu.Unlock()
		return nil
	}
	conv.pendingReads[messageID] = struct{}{}
	s.mu.Unlock()

	return s.tr.Emit(wire.EventReadMessage, wire.ReadMessage{
		MessageID: messageID,
		ViewerID:  s.opts.ViewerID,
	})
}

// SetTyping reports the viewer's typing activity, debounced to one start and
// one stop per run.
func (s *Session) SetTyping(isTyping bool) error {
	s.mu.Lock()
	conv := s.reg.get(s.activeID)
	if conv == nil {
		s.mu.Unlock()
		return ErrNoActiveConversation
	}
	if isTyping == s.typingSent {
		s.mu.Unlock()
		return nil
	}
	s.typingSent = isTyping
	kind, id := conv.Kind, conv.ID
	s.mu.Unlock()

	return s.emitTyping(kind, id, isTyping)
}

func (s *Session) emitTyping(kind models.ScopeKind, id string, isTyping bool) error {
	return s.tr.Emit(wire.EventTyping, wire.Typing{
		ScopeKind:   kind,
		ScopeID:     id,
		SenderID:    s.opts.ViewerID,
		DisplayName: s.opts.DisplayName,
		IsTyping:    isTyping,
	})
}

// RequestOlder asks for the next page of history behind the oldest loaded
// message. Single-flight: a second call before the page lands is a no-op.
func (s *Session) RequestOlder() error {
	s.mu.Lock()
	conv := s.reg.get(s.activeID)
	if conv == nil || conv.State != StateActive {
		s.mu.Unlock()
		return ErrNoActiveConversation
	}
	if !conv.canAppend {
		s.mu.Unlock()
		return nil
	}
	conv.canAppend = false
	kind, id, offset := conv.Kind, conv.ID, conv.Timeline.Len()
	s.mu.Unlock()

	return s.tr.Emit(wire.EventAppendMessages, wire.AppendMessages{
		ScopeKind: kind,
		ScopeID:   id,
		Offset:    offset,
	})
}

// OnVisible is the viewport callback: a message scrolled into view gets its
// read signal, and reaching the oldest loaded message triggers pagination.
func (s *Session) OnVisible(messageID string) {
	s.mu.Lock()
	conv := s.reg.get(s.activeID)
	if conv == nil {
		s.mu.Unlock()
		return
	}
	var markRead, paginate bool
	if msg, ok := conv.Timeline.Get(messageID); ok {
		markRead = msg.SenderID != s.opts.ViewerID && msg.Status != models.StatusRead
	}
	if oldest, ok := conv.Timeline.Oldest(); ok && oldest.ID == messageID {
		paginate = true
	}
	s.mu.Unlock()

	if markRead {
		if err := s.MarkRead(messageID); err != nil {
			s.log.Warn("mark read failed", zap.String("message", messageID), zap.Error(err))
		}
	}
	if paginate {
		if err := s.RequestOlder(); err != nil {
			s.log.Warn("pagination request failed", zap.Error(err))
		}
	}
}

// ActiveID returns the active conversation id, empty when none is open.
func (s *Session) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// ActiveState returns the load state of the active conversation.
func (s *Session) ActiveState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv := s.reg.get(s.activeID); conv != nil {
		return conv.State
	}
	return StateIdle
}

// Groups returns the active conversation's timeline buckets, newest group
// first.
func (s *Session) Groups() []models.MessageGroup {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv := s.reg.get(s.activeID); conv != nil {
		return conv.Timeline.Groups()
	}
	return nil
}

// Messages returns the active timeline flattened newest to oldest.
func (s *Session) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv := s.reg.get(s.activeID); conv != nil {
		return conv.Timeline.Flatten()
	}
	return nil
}

// Unread returns the messages from others newer than the viewer's read
// watermark in the active conversation.
func (s *Session) Unread() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.reg.get(s.activeID)
	if conv == nil {
		return nil
	}
	return unreadIn(conv.Timeline.Flatten(), s.opts.ViewerID, conv.watermark)
}

// FirstUnread returns the oldest unread message, the anchor for the unread
// divider.
func (s *Session) FirstUnread() (models.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.reg.get(s.activeID)
	if conv == nil {
		return models.Message{}, false
	}
	return firstUnread(conv.Timeline.Flatten(), s.opts.ViewerID, conv.watermark)
}

// MembersUnseen lists the members who have not read past the given message,
// excluding its sender.
func (s *Session) MembersUnseen(msg models.Message) []models.Member {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.reg.get(s.activeID)
	if conv == nil {
		return nil
	}
	var out []models.Member
	for _, m := range conv.Members {
		if m.UserID == msg.SenderID {
			continue
		}
		if m.LastReadAt == nil || m.LastReadAt.Before(msg.CreatedAt) {
			out = append(out, m)
		}
	}
	return out
}

// TypingText returns the indicator line for the active conversation.
func (s *Session) TypingText() string {
	s.mu.Lock()
	conv := s.reg.get(s.activeID)
	s.mu.Unlock()
	if conv == nil {
		return ""
	}
	return conv.Typing.IndicatorText()
}

// Summaries returns the conversation list from the fan-out.
func (s *Session) Summaries() []models.Summary {
	if s.fanout == nil {
		return nil
	}
	return s.fanout.Summaries()
}

// AuthToken returns the token last piggybacked on a history load.
func (s *Session) AuthToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authToken
}

// TokenExpired reports whether the piggybacked token has an expiry in the
// past.
func (s *Session) TokenExpired() bool {
	s.mu.Lock()
	token := s.authToken
	s.mu.Unlock()
	return tokenExpired(token, time.Now())
}

func (s *Session) handleInitialHistory(payload json.RawMessage) {
	var p wire.InitialHistory
	if err := (&wire.Envelope{Type: wire.EventInitialHistory, Payload: payload}).Bind(&p); err != nil {
		s.log.Warn("dropping initialHistory", zap.Error(err))
		return
	}

	s.mu.Lock()
	if p.ScopeID != s.activeID {
		s.mu.Unlock()
		s.log.Debug("history for inactive conversation",
			zap.String("scope", p.ScopeID), zap.Error(ErrStaleResponse))
		return
	}
	conv := s.reg.get(p.ScopeID)
	if conv == nil {
		s.mu.Unlock()
		return
	}
	conv.Timeline.Replace(p.Groups)
	conv.Members = p.Members
	if me := conv.member(s.opts.ViewerID); me != nil {
		conv.watermark = me.LastReadAt
	}
	conv.State = StateActive
	conv.canAppend = true
	conv.lastAccess = time.Now()
	if p.AuthToken != "" {
		s.authToken = p.AuthToken
	}
	s.mu.Unlock()

	if s.fanout != nil && p.Summary != nil {
		s.fanout.Upsert(*p.Summary)
		s.fanout.MarkConversationRead(p.ScopeID)
	}
	s.changed()
}

func (s *Session) handleAppended(payload json.RawMessage) {
	var p wire.AppendedMessages
	if err := (&wire.Envelope{Type: wire.EventAppendedMessages, Payload: payload}).Bind(&p); err != nil {
		s.log.Warn("dropping appendedMessages", zap.Error(err))
		return
	}

	s.mu.Lock()
	if p.ScopeID != s.activeID {
		s.mu.Unlock()
		s.log.Debug("page for inactive conversation",
			zap.String("scope", p.ScopeID), zap.Error(ErrStaleResponse))
		return
	}
	conv := s.reg.get(p.ScopeID)
	if conv == nil {
		s.mu.Unlock()
		return
	}
	conv.Timeline.AppendOlder(p.Groups)
	conv.canAppend = true
	s.mu.Unlock()
	s.changed()
}

func (s *Session) handleReceive(payload json.RawMessage) {
	var p wire.ReceiveMessage
	if err := (&wire.Envelope{Type: wire.EventReceiveMessage, Payload: payload}).Bind(&p); err != nil {
		s.log.Warn("dropping receiveMessage", zap.Error(err))
		return
	}
	if len(p.Group.Messages) == 0 {
		return
	}
	msg := p.Group.Messages[0]
	convID := msg.ConversationID(s.opts.ViewerID)

	s.mu.Lock()
	var tracker *typing.Tracker
	if conv := s.reg.get(convID); conv != nil && conv.State == StateActive {
		echoed := false
		if msg.ClientID != "" {
			if localID, ok := s.pendingSends[msg.ClientID]; ok {
				if !conv.Timeline.ReplaceID(localID, msg) {
					// The local placeholder is gone (history snapshot landed
					// in between, or the conversation was evicted and
					// reloaded). The confirmed message still has to land.
					conv.Timeline.Upsert(msg)
				}
				delete(s.pendingSends, msg.ClientID)
				echoed = true
			}
		}
		if !echoed {
			conv.Timeline.Upsert(msg)
		}
		if msg.Status == models.StatusRead {
			delete(conv.pendingReads, msg.ID)
		}
		tracker = conv.Typing
	}
	s.mu.Unlock()

	// The typing tracker and the fan-out lock themselves and may call back
	// into the session, so both run outside s.mu.
	if tracker != nil {
		// A delivered message ends the sender's typing run.
		tracker.Set(msg.SenderID, "", false)
	}
	if s.fanout != nil {
		s.fanout.HandleMessage(msg)
	}
	s.changed()
}

func (s *Session) handleReadUpdated(payload json.RawMessage) {
	var p wire.ReadUpdated
	if err := (&wire.Envelope{Type: wire.EventReadUpdated, Payload: payload}).Bind(&p); err != nil {
		s.log.Warn("dropping readUpdated", zap.Error(err))
		return
	}

	s.mu.Lock()
	conv := s.reg.get(p.ScopeID)
	if conv == nil {
		s.mu.Unlock()
		return
	}
	if m := conv.member(p.UserID); m != nil {
		at := p.LastReadAt
		m.LastReadAt = &at
	}
	if p.UserID == s.opts.ViewerID {
		at := p.LastReadAt
		conv.watermark = &at
		for id := range conv.pendingReads {
			if msg, ok := conv.Timeline.Get(id); ok && !msg.CreatedAt.After(at) {
				delete(conv.pendingReads, id)
			}
		}
	}
	s.mu.Unlock()
	s.changed()
}

func (s *Session) handleTyping(payload json.RawMessage) {
	var p wire.Typing
	if err := (&wire.Envelope{Type: wire.EventTyping, Payload: payload}).Bind(&p); err != nil {
		s.log.Warn("dropping typing", zap.Error(err))
		return
	}
	if p.SenderID == s.opts.ViewerID {
		return
	}

	s.mu.Lock()
	conv := s.reg.get(p.ScopeID)
	if conv == nil {
		s.mu.Unlock()
		return
	}
	name := p.DisplayName
	if name == "" {
		if m := conv.member(p.SenderID); m != nil {
			name = m.DisplayName
		}
	}
	if name == "" {
		name = "Someone"
	}
	s.mu.Unlock()

	// The tracker locks itself; its expiry timers must not run under s.mu.
	conv.Typing.Set(p.SenderID, name, p.IsTyping)
}

func (s *Session) handlePresence(payload json.RawMessage) {
	var p wire.Presence
	if err := (&wire.Envelope{Type: wire.EventPresence, Payload: payload}).Bind(&p); err != nil {
		s.log.Warn("dropping presence", zap.Error(err))
		return
	}
	if s.fanout != nil {
		s.fanout.HandlePresence(p.UserID, p.Online)
	}
	s.changed()
}

func (s *Session) handleProfile(payload json.RawMessage) {
	var p wire.ProfileUpdated
	if err := (&wire.Envelope{Type: wire.EventProfileUpdated, Payload: payload}).Bind(&p); err != nil {
		s.log.Warn("dropping profileUpdated", zap.Error(err))
		return
	}
	if s.fanout != nil {
		s.fanout.HandleProfile(p.UserID, p.DisplayName, p.AvatarURL)
	}
	s.changed()
}

func (s *Session) changed() {
	if s.opts.OnChange != nil {
		s.opts.OnChange()
	}
}

func scopePath(kind models.ScopeKind, id string) string {
	if kind == models.ScopeChannel {
		return "channels/" + id
	}
	return "chats/" + id
}

func isImage(mimeType string) bool {
	return len(mimeType) > 6 && mimeType[:6] == "image/"
}

// messageTypeFor picks the outgoing message type: plain text, a single media
// kind, or mixed when text and files travel together.
func messageTypeFor(content string, files []storage.File) models.MessageType {
	if len(files) == 0 {
		return models.TextMessage
	}
	if content != "" || len(files) > 1 {
		return models.MixedMessage
	}
	switch storage.FileTypeFor(files[0].MimeType) {
	case "image":
		return models.ImageMessage
	case "video":
		return models.VideoMessage
	case "audio":
		return models.AudioMessage
	case "pdf":
		return models.PDFMessage
	default:
		return models.FileMessage
	}
}
