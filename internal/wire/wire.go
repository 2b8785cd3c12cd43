// Package wire defines the event vocabulary exchanged over the persistent
// connection and the JSON envelope every event travels in.
package wire

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Omdevsinh-Zala/chat-session/internal/models"
)

// Event names. Direction is from the client's point of view.
const (
	EventConversationChange = "conversationChange" // out
	EventInitialHistory     = "initialHistory"     // in
	EventAppendMessages     = "appendMessages"     // out
	EventAppendedMessages   = "appendedMessages"   // in
	EventSendMessage        = "sendMessage"        // out
	EventReceiveMessage     = "receiveMessage"     // in
	EventReadMessage        = "readMessage"        // out
	EventReadUpdated        = "readUpdated"        // in
	EventTyping             = "typing"             // both
	EventPresence           = "presence"           // in
	EventProfileUpdated     = "profileUpdated"     // in
)

// Envelope is the wire format wrapper for every event.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Encode wraps a payload into an envelope and marshals it.
func Encode(eventType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return json.Marshal(Envelope{Type: eventType, Payload: raw})
}

// Decode parses an envelope from raw bytes.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("decode envelope: missing type")
	}
	return &env, nil
}

// Bind unmarshals the envelope payload into the given event struct.
func (e *Envelope) Bind(v interface{}) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("bind %s payload: %w", e.Type, err)
	}
	return nil
}

type ConversationChange struct {
	ScopeKind models.ScopeKind `json:"scopeKind"`
	ScopeID   string           `json:"scopeId"`
}

type InitialHistory struct {
	ScopeID   string                `json:"scopeId"`
	Groups    []models.MessageGroup `json:"groups"`
	Summary   *models.Summary       `json:"summary,omitempty"`
	Members   []models.Member       `json:"members,omitempty"`
	AuthToken string                `json:"authToken,omitempty"`
}

type AppendMessages struct {
	ScopeKind models.ScopeKind `json:"scopeKind"`
	ScopeID   string           `json:"scopeId"`
	Offset    int              `json:"offset"`
}

type AppendedMessages struct {
	ScopeID string                `json:"scopeId"`
	Groups  []models.MessageGroup `json:"groups"`
}

type SendMessage struct {
	ClientID    string              `json:"clientId"`
	ScopeKind   models.ScopeKind    `json:"scopeKind"`
	ScopeID     string              `json:"scopeId"`
	Content     string              `json:"content"`
	MessageType models.MessageType  `json:"messageType"`
	Attachments []models.Attachment `json:"attachments,omitempty"`
}

type ReceiveMessage struct {
	Group models.MessageGroup `json:"group"`
}

type ReadMessage struct {
	MessageID string `json:"messageId"`
	ViewerID  string `json:"viewerId"`
}

type ReadUpdated struct {
	ScopeID    string    `json:"scopeId"`
	UserID     string    `json:"userId"`
	LastReadAt time.Time `json:"lastReadAt"`
}

type Typing struct {
	ScopeKind   models.ScopeKind `json:"scopeKind"`
	ScopeID     string           `json:"scopeId"`
	SenderID    string           `json:"senderId"`
	DisplayName string           `json:"displayName,omitempty"`
	IsTyping    bool             `json:"isTyping"`
}

type Presence struct {
	UserID string `json:"userId"`
	Online bool   `json:"online"`
}

type ProfileUpdated struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}
