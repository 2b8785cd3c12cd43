// Package timeline holds the grouped, ordered, deduplicated message history
// of one conversation. Groups are calendar-month buckets ordered newest-first,
// and messages are newest-first within each group.
package timeline

import (
	"github.com/Omdevsinh-Zala/chat-session/internal/models"
)

type position struct {
	group int
	msg   int
}

// Timeline is owned by exactly one conversation and mutated only from the
// session dispatch path, so it carries no locking of its own.
type Timeline struct {
	groups []models.MessageGroup
	// byID maps message id to its slot; maintained alongside every mutation
	// so realtime upserts avoid a full scan.
	byID map[string]position
}

func New() *Timeline {
	return &Timeline{byID: make(map[string]position)}
}

// Replace installs a full history snapshot, discarding anything held. Used on
// initial load.
func (t *Timeline) Replace(groups []models.MessageGroup) {
	t.groups = t.groups[:0]
	t.byID = make(map[string]position)
	for _, g := range groups {
		t.appendGroup(g)
	}
}

// appendGroup adds a group at the end of the timeline, skipping messages whose
// id is already present.
func (t *Timeline) appendGroup(g models.MessageGroup) {
	idx := len(t.groups)
	t.groups = append(t.groups, models.MessageGroup{MonthYear: g.MonthYear})
	for _, m := range g.Messages {
		if _, dup := t.byID[m.ID]; dup {
			continue
		}
		t.byID[m.ID] = position{group: idx, msg: len(t.groups[idx].Messages)}
		t.groups[idx].Messages = append(t.groups[idx].Messages, m)
	}
}

// AppendOlder merges a backward-pagination result. Groups that already exist
// get the older messages appended to the end of their sequence; unseen groups
// are appended to the end of the timeline, since paginated groups are
// chronologically older than everything present. Idempotent under retry:
// already-merged messages are skipped by id.
func (t *Timeline) AppendOlder(groups []models.MessageGroup) {
	for _, g := range groups {
		idx := t.groupIndex(g.MonthYear)
		if idx < 0 {
			t.appendGroup(g)
			continue
		}
		for _, m := range g.Messages {
			if _, dup := t.byID[m.ID]; dup {
				continue
			}
			t.byID[m.ID] = position{group: idx, msg: len(t.groups[idx].Messages)}
			t.groups[idx].Messages = append(t.groups[idx].Messages, m)
		}
	}
}

// Upsert applies a single realtime or echoed message. A known id is replaced
// in place, keeping its timeline position; this is how status transitions
// land without reshuffling. An unknown id is prepended to its month group,
// creating the group at the head of the timeline when needed. A late message
// that arrives out of causal order is not re-sorted within its group.
func (t *Timeline) Upsert(msg models.Message) (replaced bool) {
	if pos, ok := t.byID[msg.ID]; ok {
		cur := &t.groups[pos.group].Messages[pos.msg]
		if msg.Version < cur.Version {
			return true
		}
		// Keep the original bucket even if timestamps were amended.
		t.groups[pos.group].Messages[pos.msg] = msg
		return true
	}

	key := models.MonthYear(msg.CreatedAt)
	idx := t.groupIndex(key)
	if idx < 0 {
		t.groups = append([]models.MessageGroup{{MonthYear: key}}, t.groups...)
		t.reindex()
		idx = 0
	}
	t.groups[idx].Messages = append([]models.Message{msg}, t.groups[idx].Messages...)
	t.reindexGroup(idx)
	return false
}

// ReplaceID swaps a locally-created message for its server echo, which
// arrives under a new server-assigned id. The timeline position is kept.
func (t *Timeline) ReplaceID(oldID string, msg models.Message) bool {
	pos, ok := t.byID[oldID]
	if !ok {
		return false
	}
	delete(t.byID, oldID)
	t.groups[pos.group].Messages[pos.msg] = msg
	t.byID[msg.ID] = pos
	return true
}

// Get returns a message by id.
func (t *Timeline) Get(id string) (models.Message, bool) {
	pos, ok := t.byID[id]
	if !ok {
		return models.Message{}, false
	}
	return t.groups[pos.group].Messages[pos.msg], true
}

// Groups returns the timeline buckets, newest group first. The slice is
// shared; callers must not mutate it.
func (t *Timeline) Groups() []models.MessageGroup {
	return t.groups
}

// Flatten produces the messages newest to oldest across groups. Recomputed on
// every call; the timeline mutates too often for a cache to pay off.
func (t *Timeline) Flatten() []models.Message {
	out := make([]models.Message, 0, len(t.byID))
	for _, g := range t.groups {
		out = append(out, g.Messages...)
	}
	return out
}

// Oldest returns the chronologically last loaded message, the pagination
// anchor.
func (t *Timeline) Oldest() (models.Message, bool) {
	if len(t.groups) == 0 {
		return models.Message{}, false
	}
	last := t.groups[len(t.groups)-1]
	if len(last.Messages) == 0 {
		return models.Message{}, false
	}
	return last.Messages[len(last.Messages)-1], true
}

// Len is the number of messages held.
func (t *Timeline) Len() int {
	return len(t.byID)
}

func (t *Timeline) groupIndex(monthYear string) int {
	for i := range t.groups {
		if t.groups[i].MonthYear == monthYear {
			return i
		}
	}
	return -1
}

func (t *Timeline) reindex() {
	t.byID = make(map[string]position, len(t.byID))
	for gi := range t.groups {
		for mi := range t.groups[gi].Messages {
			t.byID[t.groups[gi].Messages[mi].ID] = position{group: gi, msg: mi}
		}
	}
}

func (t *Timeline) reindexGroup(idx int) {
	for mi := range t.groups[idx].Messages {
		t.byID[t.groups[idx].Messages[mi].ID] = position{group: idx, msg: mi}
	}
}
