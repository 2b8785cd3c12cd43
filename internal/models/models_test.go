package models

import (
	"testing"
	"time"
)

func TestStatusCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from MessageStatus
		to   MessageStatus
		want bool
	}{
		{"sending to sent", StatusSending, StatusSent, true},
		{"sent to delivered", StatusSent, StatusDelivered, true},
		{"delivered to read", StatusDelivered, StatusRead, true},
		{"sending to failed", StatusSending, StatusFailed, true},
		{"sending skips to delivered", StatusSending, StatusDelivered, true},
		{"same status", StatusSent, StatusSent, true},
		{"read is terminal", StatusRead, StatusDelivered, false},
		{"failed is terminal", StatusFailed, StatusSent, false},
		{"delivered cannot fail", StatusDelivered, StatusFailed, false},
		{"no regression to sending", StatusSent, StatusSending, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Errorf("CanTransition(%q -> %q) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestMonthYear(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want string
	}{
		{"mid month", time.Date(2024, 5, 14, 10, 0, 0, 0, time.UTC), "2024-05"},
		{"month boundary is UTC", time.Date(2024, 6, 1, 0, 30, 0, 0, time.FixedZone("", 3600)), "2024-05"},
		{"december", time.Date(2023, 12, 31, 23, 59, 59, 0, time.UTC), "2023-12"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MonthYear(tt.at); got != tt.want {
				t.Errorf("MonthYear(%v) = %q, want %q", tt.at, got, tt.want)
			}
		})
	}
}

func TestConversationID(t *testing.T) {
	channelMsg := &Message{ID: "m1", SenderID: "alice", ChannelID: "general"}
	if got := channelMsg.ConversationID("bob"); got != "general" {
		t.Errorf("channel message ConversationID = %q, want general", got)
	}
	if channelMsg.Scope() != ScopeChannel {
		t.Errorf("channel message Scope = %q, want channel", channelMsg.Scope())
	}

	direct := &Message{ID: "m2", SenderID: "alice", ReceiverID: "bob"}
	if got := direct.ConversationID("bob"); got != "alice" {
		t.Errorf("incoming direct ConversationID = %q, want alice", got)
	}
	if got := direct.ConversationID("alice"); got != "bob" {
		t.Errorf("outgoing direct ConversationID = %q, want bob", got)
	}
	if direct.Scope() != ScopeDirect {
		t.Errorf("direct message Scope = %q, want direct", direct.Scope())
	}
}
