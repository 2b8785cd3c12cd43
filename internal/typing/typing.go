// Package typing tracks who is currently typing in a conversation. Entries
// expire on their own timer so the indicator disappears even when a remote
// peer's stop signal is lost.
package typing

import (
	"fmt"
	"sync"
	"time"
)

// DefaultTTL is how long a typing entry survives without a refresh.
const DefaultTTL = 5 * time.Second

// Entry is one typing user, kept in insertion order.
type Entry struct {
	UserID      string
	DisplayName string
}

type Tracker struct {
	mu       sync.Mutex
	ttl      time.Duration
	entries  []Entry
	timers   map[string]*time.Timer
	onChange func()
}

// NewTracker creates a tracker with the given expiry. onChange fires after
// every observable mutation (insert, refresh-removal, explicit stop, reset)
// and may be nil.
func NewTracker(ttl time.Duration, onChange func()) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tracker{
		ttl:      ttl,
		timers:   make(map[string]*time.Timer),
		onChange: onChange,
	}
}

// Set inserts or refreshes a typing entry, or removes it immediately when
// isTyping is false. An explicit stop always wins over the timeout.
func (t *Tracker) Set(userID, displayName string, isTyping bool) {
	t.mu.Lock()
	if !isTyping {
		changed := t.removeLocked(userID)
		t.mu.Unlock()
		if changed {
			t.notify()
		}
		return
	}

	if timer, ok := t.timers[userID]; ok {
		timer.Stop()
	} else {
		t.entries = append(t.entries, Entry{UserID: userID, DisplayName: displayName})
	}
	t.timers[userID] = time.AfterFunc(t.ttl, func() { t.expire(userID) })
	t.mu.Unlock()
	t.notify()
}

func (t *Tracker) expire(userID string) {
	t.mu.Lock()
	changed := t.removeLocked(userID)
	t.mu.Unlock()
	if changed {
		t.notify()
	}
}

func (t *Tracker) removeLocked(userID string) bool {
	timer, ok := t.timers[userID]
	if !ok {
		return false
	}
	timer.Stop()
	delete(t.timers, userID)
	for i := range t.entries {
		if t.entries[i].UserID == userID {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			break
		}
	}
	return true
}

// Reset clears all entries and timers, used on conversation switch.
func (t *Tracker) Reset() {
	t.mu.Lock()
	for id, timer := range t.timers {
		timer.Stop()
		delete(t.timers, id)
	}
	changed := len(t.entries) > 0
	t.entries = nil
	t.mu.Unlock()
	if changed {
		t.notify()
	}
}

// Users returns the current typists in insertion order.
func (t *Tracker) Users() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// IndicatorText composes the user-facing typing line.
func (t *Tracker) IndicatorText() string {
	users := t.Users()
	switch len(users) {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf("%s is typing...", users[0].DisplayName)
	case 2:
		return fmt.Sprintf("%s and %s are typing...", users[0].DisplayName, users[1].DisplayName)
	default:
		return fmt.Sprintf("%s, %s and %d others are typing...", users[0].DisplayName, users[1].DisplayName, len(users)-2)
	}
}

func (t *Tracker) notify() {
	if t.onChange != nil {
		t.onChange()
	}
}
