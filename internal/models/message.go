package models

import (
	"time"
)

type ScopeKind string

const (
	ScopeDirect  ScopeKind = "direct"
	ScopeChannel ScopeKind = "channel"
)

type MessageType string

const (
	TextMessage   MessageType = "text"
	ImageMessage  MessageType = "image"
	VideoMessage  MessageType = "video"
	FileMessage   MessageType = "file"
	AudioMessage  MessageType = "audio"
	PDFMessage    MessageType = "pdf"
	SystemMessage MessageType = "system"
	MixedMessage  MessageType = "mixed"
)

type MessageStatus string

const (
	StatusSending   MessageStatus = "sending"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusFailed    MessageStatus = "failed"
)

// statusRank orders the delivery pipeline. Failed is terminal from sending,
// read is terminal from delivered.
var statusRank = map[MessageStatus]int{
	StatusSending:   0,
	StatusSent:      1,
	StatusDelivered: 2,
	StatusRead:      3,
}

// CanTransition reports whether a status change moves forward through the
// delivery pipeline. It rejects regressions like read -> delivered.
func (s MessageStatus) CanTransition(to MessageStatus) bool {
	if s == to {
		return true
	}
	if s == StatusFailed || s == StatusRead {
		return false
	}
	if to == StatusFailed {
		return s == StatusSending
	}
	return statusRank[to] > statusRank[s]
}

// Attachment starts as a local placeholder (empty type/url) the moment a file
// is selected and is filled in once the upload resolves.
type Attachment struct {
	FileType string `json:"file_type"`
	URL      string `json:"file_url"`
	Name     string `json:"file_name"`
	Size     int64  `json:"file_size"`
	MimeType string `json:"mime_type"`
}

type Message struct {
	ID       string `json:"id"`
	ClientID string `json:"client_id,omitempty"`

	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id,omitempty"`
	ChannelID  string `json:"channel_id,omitempty"`

	Content     string        `json:"content"`
	MessageType MessageType   `json:"message_type"`
	Status      MessageStatus `json:"status"`
	Attachments []Attachment  `json:"attachments,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	Version   int       `json:"version"`
}

// ConversationID returns the id of the conversation this message belongs to
// from the given viewer's perspective: the channel id for channel messages,
// otherwise the other party of the direct exchange.
func (m *Message) ConversationID(viewerID string) string {
	if m.ChannelID != "" {
		return m.ChannelID
	}
	if m.SenderID == viewerID {
		return m.ReceiverID
	}
	return m.SenderID
}

// Scope returns the conversation kind this message belongs to.
func (m *Message) Scope() ScopeKind {
	if m.ChannelID != "" {
		return ScopeChannel
	}
	return ScopeDirect
}

// MonthYear is the calendar bucket key used to group messages. The key is
// computed once at insertion time and never recomputed afterwards, so an
// amended message keeps its original bucket.
func MonthYear(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// MessageGroup is one calendar-month bucket of a timeline, newest-first
// internally.
type MessageGroup struct {
	MonthYear string    `json:"monthYear"`
	Messages  []Message `json:"messages"`
}

// Member is a channel member with their read watermark.
type Member struct {
	UserID      string     `json:"user_id"`
	DisplayName string     `json:"display_name"`
	AvatarURL   string     `json:"avatar_url,omitempty"`
	Role        string     `json:"role,omitempty"`
	LastReadAt  *time.Time `json:"last_read_at,omitempty"`
}

// Summary is the sidebar view of a conversation: enough to render the list
// entry and its unread badge without the full timeline.
type Summary struct {
	ID                 string     `json:"id"`
	Kind               ScopeKind  `json:"kind"`
	Title              string     `json:"title"`
	AvatarURL          string     `json:"avatar_url,omitempty"`
	LastMessageAt      *time.Time `json:"last_message_at,omitempty"`
	LastMessagePreview string     `json:"last_message_preview,omitempty"`
	UnreadCount        int        `json:"unread_count"`
	IsActive           bool       `json:"is_active"`
}
