package devserver

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Omdevsinh-Zala/chat-session/internal/models"
)

// Store is the in-memory message history backing the development server.
// Messages are held oldest-first per conversation key.
type Store struct {
	mu       sync.Mutex
	seq      int
	messages map[string][]models.Message
	members  map[string][]models.Member
}

func NewStore() *Store {
	return &Store{
		messages: make(map[string][]models.Message),
		members:  make(map[string][]models.Member),
	}
}

// convKey canonicalizes a conversation: channels by id, direct pairs by the
// sorted user ids so both parties land on the same history.
func convKey(kind models.ScopeKind, viewerID, scopeID string) string {
	if kind == models.ScopeChannel {
		return "channel:" + scopeID
	}
	a, b := viewerID, scopeID
	if strings.Compare(a, b) > 0 {
		a, b = b, a
	}
	return "direct:" + a + ":" + b
}

// SeedChannel installs a channel's member list.
func (s *Store) SeedChannel(channelID string, members []models.Member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members["channel:"+channelID] = members
}

// Members returns the membership of a conversation. Direct conversations get
// a synthesized two-member list so read watermarks have a home.
func (s *Store) Members(kind models.ScopeKind, viewerID, scopeID string) []models.Member {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := convKey(kind, viewerID, scopeID)
	if m, ok := s.members[key]; ok {
		out := make([]models.Member, len(m))
		copy(out, m)
		return out
	}
	if kind == models.ScopeDirect {
		m := []models.Member{
			{UserID: viewerID, DisplayName: viewerID},
			{UserID: scopeID, DisplayName: scopeID},
		}
		s.members[key] = m
		out := make([]models.Member, len(m))
		copy(out, m)
		return out
	}
	return nil
}

// Append stores a new message under a server-assigned id and returns it.
func (s *Store) Append(kind models.ScopeKind, senderID, scopeID string, msg models.Message) models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	msg.ID = fmt.Sprintf("srv-%d", s.seq)
	msg.SenderID = senderID
	msg.Status = models.StatusSent
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if msg.Version == 0 {
		msg.Version = 1
	}
	if kind == models.ScopeChannel {
		msg.ChannelID = scopeID
	} else {
		msg.ReceiverID = scopeID
	}
	key := convKey(kind, senderID, scopeID)
	s.messages[key] = append(s.messages[key], msg)
	return msg
}

// Page returns up to limit messages behind offset, grouped by calendar month
// newest-first the way the client timeline expects.
func (s *Store) Page(kind models.ScopeKind, viewerID, scopeID string, offset, limit int) []models.MessageGroup {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.messages[convKey(kind, viewerID, scopeID)]

	// Newest first, then window.
	flat := make([]models.Message, len(all))
	for i, m := range all {
		flat[len(all)-1-i] = m
	}
	if offset >= len(flat) {
		return nil
	}
	flat = flat[offset:]
	if limit > 0 && len(flat) > limit {
		flat = flat[:limit]
	}
	return groupNewestFirst(flat)
}

// FindMessage locates a message by id along with its conversation key.
func (s *Store) FindMessage(id string) (models.Message, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, msgs := range s.messages {
		for _, m := range msgs {
			if m.ID == id {
				return m, key, true
			}
		}
	}
	return models.Message{}, "", false
}

// MarkRead moves a user's watermark in a conversation and flips older
// messages from other senders to read. Returns the new watermark.
func (s *Store) MarkRead(key, userID string, at time.Time) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	members := s.members[key]
	for i := range members {
		if members[i].UserID == userID {
			t := at
			members[i].LastReadAt = &t
		}
	}
	msgs := s.messages[key]
	for i := range msgs {
		if msgs[i].SenderID != userID && !msgs[i].CreatedAt.After(at) && msgs[i].Status.CanTransition(models.StatusRead) {
			msgs[i].Status = models.StatusRead
			msgs[i].Version++
		}
	}
	return at
}

// Participants lists the user ids attached to a conversation key.
func (s *Store) Participants(key string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.HasPrefix(key, "direct:") {
		parts := strings.SplitN(strings.TrimPrefix(key, "direct:"), ":", 2)
		return parts
	}
	members := s.members[key]
	out := make([]string, 0, len(members))
	for _, m := range members {
		out = append(out, m.UserID)
	}
	sort.Strings(out)
	return out
}

// groupNewestFirst buckets an already newest-first message window by calendar
// month, preserving order inside each bucket.
func groupNewestFirst(msgs []models.Message) []models.MessageGroup {
	var groups []models.MessageGroup
	idx := map[string]int{}
	for _, m := range msgs {
		key := models.MonthYear(m.CreatedAt)
		i, ok := idx[key]
		if !ok {
			i = len(groups)
			idx[key] = i
			groups = append(groups, models.MessageGroup{MonthYear: key})
		}
		groups[i].Messages = append(groups[i].Messages, m)
	}
	return groups
}
