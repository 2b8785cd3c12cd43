package notify

import (
	"testing"
	"time"

	"github.com/Omdevsinh-Zala/chat-session/internal/models"
)

type fakeNotifier struct {
	calls []notification
}

type notification struct {
	title, body, icon, tag string
}

func (n *fakeNotifier) Notify(title, body, icon, tag string) {
	n.calls = append(n.calls, notification{title, body, icon, tag})
}

type fakeSound struct{ plays int }

func (s *fakeSound) Play() { s.plays++ }

type fakePrefs struct{ sound bool }

func (p *fakePrefs) SoundEnabled() bool { return p.sound }

func newFanout(viewer, active string, foreground bool, n Notifier, s SoundPlayer, p Prefs) *Fanout {
	return NewFanout(Options{
		ViewerID:           viewer,
		ActiveConversation: func() string { return active },
		Foreground:         func() bool { return foreground },
		Notifier:           n,
		Sound:              s,
		Prefs:              p,
	})
}

func incoming(id, sender, receiver, content string, mt models.MessageType) models.Message {
	return models.Message{
		ID:          id,
		SenderID:    sender,
		ReceiverID:  receiver,
		Content:     content,
		MessageType: mt,
		Status:      models.StatusSent,
		CreatedAt:   time.Date(2024, 5, 14, 10, 0, 0, 0, time.UTC),
	}
}

func TestNotificationSuppression(t *testing.T) {
	tests := []struct {
		name       string
		sender     string
		active     string
		foreground bool
		wantNotify bool
	}{
		{"own message suppressed", "me", "", true, false},
		{"active and foregrounded suppressed", "alice", "alice", true, false},
		{"active but backgrounded notifies", "alice", "alice", false, true},
		{"other conversation notifies", "alice", "bob", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &fakeNotifier{}
			f := newFanout("me", tt.active, tt.foreground, n, nil, nil)
			f.HandleMessage(incoming("m1", tt.sender, "me", "hello", models.TextMessage))

			if got := len(n.calls) > 0; got != tt.wantNotify {
				t.Errorf("notified = %v, want %v", got, tt.wantNotify)
			}
		})
	}
}

func TestNotificationBodyAndTag(t *testing.T) {
	n := &fakeNotifier{}
	f := newFanout("me", "", true, n, nil, nil)
	f.SetSummaries([]models.Summary{{ID: "alice", Kind: models.ScopeDirect, Title: "Alice", AvatarURL: "a.png"}})

	f.HandleMessage(incoming("m1", "alice", "me", "hello there", models.TextMessage))
	f.HandleMessage(incoming("m2", "alice", "me", "", models.ImageMessage))

	if len(n.calls) != 2 {
		t.Fatalf("got %d notifications, want 2", len(n.calls))
	}
	if n.calls[0].title != "Alice" || n.calls[0].body != "hello there" || n.calls[0].tag != "m1" {
		t.Errorf("text notification = %+v", n.calls[0])
	}
	if n.calls[1].body != "Sent a file" {
		t.Errorf("attachment body = %q, want placeholder", n.calls[1].body)
	}
	if n.calls[1].icon != "a.png" {
		t.Errorf("icon = %q, want a.png", n.calls[1].icon)
	}
}

func TestSoundHonorsPreference(t *testing.T) {
	sound := &fakeSound{}
	prefs := &fakePrefs{sound: false}
	f := newFanout("me", "", true, nil, sound, prefs)

	f.HandleMessage(incoming("m1", "alice", "me", "hi", models.TextMessage))
	if sound.plays != 0 {
		t.Errorf("sound played %d times with preference off", sound.plays)
	}

	prefs.sound = true
	f.HandleMessage(incoming("m2", "alice", "me", "hi again", models.TextMessage))
	if sound.plays != 1 {
		t.Errorf("sound played %d times, want 1", sound.plays)
	}
}

func TestUnreadBadgeAndSummaryUpdate(t *testing.T) {
	f := newFanout("me", "bob", true, nil, nil, nil)
	f.SetSummaries([]models.Summary{
		{ID: "alice", Kind: models.ScopeDirect, Title: "Alice"},
		{ID: "bob", Kind: models.ScopeDirect, Title: "Bob"},
	})

	f.HandleMessage(incoming("m1", "alice", "me", "one", models.TextMessage))
	f.HandleMessage(incoming("m2", "alice", "me", "two", models.TextMessage))
	f.HandleMessage(incoming("m3", "bob", "me", "looking at you", models.TextMessage))

	s, _ := f.Summary("alice")
	if s.UnreadCount != 2 {
		t.Errorf("alice unread = %d, want 2", s.UnreadCount)
	}
	if s.LastMessagePreview != "two" {
		t.Errorf("alice preview = %q, want two", s.LastMessagePreview)
	}

	s, _ = f.Summary("bob")
	if s.UnreadCount != 0 {
		t.Errorf("bob unread = %d, want 0 while being viewed", s.UnreadCount)
	}

	f.MarkConversationRead("alice")
	s, _ = f.Summary("alice")
	if s.UnreadCount != 0 {
		t.Errorf("alice unread after MarkConversationRead = %d, want 0", s.UnreadCount)
	}
}

func TestUnknownConversationGetsSummary(t *testing.T) {
	f := newFanout("me", "", true, nil, nil, nil)
	f.HandleMessage(incoming("m1", "carol", "me", "hi", models.TextMessage))

	s, ok := f.Summary("carol")
	if !ok {
		t.Fatal("no summary created for unseen conversation")
	}
	if s.UnreadCount != 1 {
		t.Errorf("unread = %d, want 1", s.UnreadCount)
	}
}

func TestPresenceAndProfileApplyByID(t *testing.T) {
	f := newFanout("me", "", true, nil, nil, nil)
	f.SetSummaries([]models.Summary{
		{ID: "alice", Kind: models.ScopeDirect, Title: "Alice"},
		{ID: "general", Kind: models.ScopeChannel, Title: "General"},
	})

	f.HandlePresence("alice", true)
	s, _ := f.Summary("alice")
	if !s.IsActive {
		t.Error("alice not marked active")
	}

	f.HandlePresence("general", true) // channels have no presence
	s, _ = f.Summary("general")
	if s.IsActive {
		t.Error("presence applied to a channel summary")
	}

	f.HandleProfile("alice", "Alice B.", "new.png")
	s, _ = f.Summary("alice")
	if s.Title != "Alice B." || s.AvatarURL != "new.png" {
		t.Errorf("profile not applied: %+v", s)
	}

	f.HandleProfile("missing", "Nobody", "")
	if _, ok := f.Summary("missing"); ok {
		t.Error("profile change created a summary for an unknown user")
	}
}
