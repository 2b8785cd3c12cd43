// Package notify reacts to global events that are not scoped to the active
// conversation: incoming messages for any conversation, presence changes and
// profile changes. It keeps the conversation summaries current and drives the
// external notification collaborators.
package notify

import (
	"sync"

	"go.uber.org/zap"

	"github.com/Omdevsinh-Zala/chat-session/internal/models"
)

// Notifier is the OS notification collaborator. Tag is an idempotency key so
// repeated delivery of the same event does not stack duplicates.
type Notifier interface {
	Notify(title, body, icon, tag string)
}

// SoundPlayer plays the incoming-message sound.
type SoundPlayer interface {
	Play()
}

// Prefs exposes the durable settings the fan-out consults.
type Prefs interface {
	SoundEnabled() bool
}

type Options struct {
	ViewerID string
	// ActiveConversation reports the conversation id the viewer is looking
	// at right now; evaluated per event, never captured.
	ActiveConversation func() string
	// Foreground reports whether the application tab is focused.
	Foreground func() bool

	Notifier Notifier
	Sound    SoundPlayer
	Prefs    Prefs
	Logger   *zap.Logger
}

// Fanout is safe for concurrent use. The ActiveConversation and Foreground
// callbacks are always invoked outside its lock, so they may consult the
// session freely.
type Fanout struct {
	opts Options

	mu        sync.Mutex
	summaries map[string]*models.Summary
	order     []string
}

func NewFanout(opts Options) *Fanout {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Fanout{
		opts:      opts,
		summaries: make(map[string]*models.Summary),
	}
}

// SetSummaries installs the conversation list, typically from initial load.
func (f *Fanout) SetSummaries(list []models.Summary) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summaries = make(map[string]*models.Summary, len(list))
	f.order = f.order[:0]
	for i := range list {
		s := list[i]
		f.summaries[s.ID] = &s
		f.order = append(f.order, s.ID)
	}
}

// Upsert installs or refreshes a single summary.
func (f *Fanout) Upsert(s models.Summary) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.summaries[s.ID]; !ok {
		f.order = append(f.order, s.ID)
	}
	f.summaries[s.ID] = &s
}

// Summaries returns the conversation list in installation order.
func (f *Fanout) Summaries() []models.Summary {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Summary, 0, len(f.order))
	for _, id := range f.order {
		if s, ok := f.summaries[id]; ok {
			out = append(out, *s)
		}
	}
	return out
}

// Summary looks up one conversation summary by id.
func (f *Fanout) Summary(id string) (models.Summary, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.summaries[id]
	if !ok {
		return models.Summary{}, false
	}
	return *s, true
}

// HandleMessage processes an incoming message for any conversation: updates
// the matching summary and triggers the notification collaborators when the
// viewer is not looking at that conversation.
func (f *Fanout) HandleMessage(msg models.Message) {
	convID := msg.ConversationID(f.opts.ViewerID)
	fromSelf := msg.SenderID == f.opts.ViewerID
	// Callbacks run before the lock; they may reach back into the session.
	suppress := fromSelf || (f.activeID() == convID && f.foreground())

	f.mu.Lock()
	s, ok := f.summaries[convID]
	if !ok {
		s = &models.Summary{ID: convID, Kind: msg.Scope(), Title: convID}
		f.summaries[convID] = s
		f.order = append(f.order, convID)
	}
	at := msg.CreatedAt
	s.LastMessageAt = &at
	s.LastMessagePreview = preview(msg)
	if !suppress {
		s.UnreadCount++
	}
	title, icon := s.Title, s.AvatarURL
	f.mu.Unlock()

	if suppress {
		return
	}

	f.opts.Logger.Debug("notifying",
		zap.String("conversation", convID),
		zap.String("message", msg.ID))

	if f.opts.Notifier != nil {
		f.opts.Notifier.Notify(title, preview(msg), icon, msg.ID)
	}
	if f.opts.Sound != nil && (f.opts.Prefs == nil || f.opts.Prefs.SoundEnabled()) {
		f.opts.Sound.Play()
	}
}

// MarkConversationRead zeroes the unread badge, used when the viewer opens a
// conversation.
func (f *Fanout) MarkConversationRead(convID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.summaries[convID]; ok {
		s.UnreadCount = 0
	}
}

// HandlePresence applies an online/offline change by user id lookup.
func (f *Fanout) HandlePresence(userID string, online bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.summaries[userID]; ok && s.Kind == models.ScopeDirect {
		s.IsActive = online
	}
}

// HandleProfile applies a display-name/avatar change by user id lookup.
func (f *Fanout) HandleProfile(userID, displayName, avatarURL string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.summaries[userID]
	if !ok || s.Kind != models.ScopeDirect {
		return
	}
	if displayName != "" {
		s.Title = displayName
	}
	if avatarURL != "" {
		s.AvatarURL = avatarURL
	}
}

func (f *Fanout) activeID() string {
	if f.opts.ActiveConversation == nil {
		return ""
	}
	return f.opts.ActiveConversation()
}

func (f *Fanout) foreground() bool {
	if f.opts.Foreground == nil {
		return true
	}
	return f.opts.Foreground()
}

func preview(msg models.Message) string {
	if msg.MessageType == models.TextMessage && msg.Content != "" {
		return msg.Content
	}
	return "Sent a file"
}
