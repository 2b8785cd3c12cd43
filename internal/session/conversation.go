package session

import (
	"time"

	"github.com/Omdevsinh-Zala/chat-session/internal/models"
	"github.com/Omdevsinh-Zala/chat-session/internal/timeline"
	"github.com/Omdevsinh-Zala/chat-session/internal/typing"
)

// State tracks a conversation's load lifecycle.
type State int

const (
	// StateIdle means the conversation exists in the registry but no history
	// request is pending for it.
	StateIdle State = iota
	// StateLoading means a history request is in flight.
	StateLoading
	// StateActive means history has landed and the timeline is live.
	StateActive
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateActive:
		return "active"
	default:
		return "idle"
	}
}

// Conversation is the per-conversation warm state: timeline, typing tracker,
// membership and the bookkeeping for reads and pagination. It is owned by the
// session and only ever touched under the session lock.
type Conversation struct {
	Kind  models.ScopeKind
	ID    string
	State State

	Timeline *timeline.Timeline
	Typing   *typing.Tracker
	Members  []models.Member

	// watermark is the viewer's own last-read time; nil means never read.
	watermark *time.Time
	// pendingReads holds message ids with a read signal in flight, so a
	// message scrolling through the viewport repeatedly emits exactly once.
	pendingReads map[string]struct{}
	// canAppend gates backward pagination to one in-flight request.
	canAppend bool

	lastAccess time.Time
}

func newConversation(kind models.ScopeKind, id string, typingTTL time.Duration, onTypingChange func()) *Conversation {
	return &Conversation{
		Kind:         kind,
		ID:           id,
		Timeline:     timeline.New(),
		Typing:       typing.NewTracker(typingTTL, onTypingChange),
		pendingReads: make(map[string]struct{}),
	}
}

// member returns the membership entry for a user id.
func (c *Conversation) member(userID string) *models.Member {
	for i := range c.Members {
		if c.Members[i].UserID == userID {
			return &c.Members[i]
		}
	}
	return nil
}

// DefaultCapacity bounds how many warm conversations the registry keeps.
const DefaultCapacity = 32

// registry holds warm conversations so revisits render instantly from cache
// while fresh history loads behind. Eviction is least-recently-accessed and
// never touches the active conversation.
type registry struct {
	capacity      int
	conversations map[string]*Conversation
}

func newRegistry(capacity int) *registry {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &registry{
		capacity:      capacity,
		conversations: make(map[string]*Conversation),
	}
}

func (r *registry) get(id string) *Conversation {
	return r.conversations[id]
}

func (r *registry) getOrCreate(kind models.ScopeKind, id string, typingTTL time.Duration, onTypingChange func()) (*Conversation, bool) {
	if c, ok := r.conversations[id]; ok {
		return c, false
	}
	c := newConversation(kind, id, typingTTL, onTypingChange)
	r.conversations[id] = c
	return c, true
}

// evict drops least-recently-accessed conversations until the registry fits
// its capacity, skipping the active one.
func (r *registry) evict(activeID string) {
	for len(r.conversations) > r.capacity {
		var victim *Conversation
		for _, c := range r.conversations {
			if c.ID == activeID {
				continue
			}
			if victim == nil || c.lastAccess.Before(victim.lastAccess) {
				victim = c
			}
		}
		if victim == nil {
			return
		}
		victim.Typing.Reset()
		delete(r.conversations, victim.ID)
	}
}

func (r *registry) len() int {
	return len(r.conversations)
}
