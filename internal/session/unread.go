package session

import (
	"time"

	"github.com/Omdevsinh-Zala/chat-session/internal/models"
)

// unreadIn derives the unread set from the loaded messages: everything from
// another sender newer than the viewer's watermark. An unset watermark means
// everything from others is unread.
func unreadIn(msgs []models.Message, viewerID string, watermark *time.Time) []models.Message {
	var out []models.Message
	for _, m := range msgs {
		if m.SenderID == viewerID {
			continue
		}
		if watermark != nil && !m.CreatedAt.After(*watermark) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// firstUnread picks the oldest unread message, the scroll anchor for the
// unread divider. Messages arrive newest-first, so the oldest by timestamp
// wins ties against slice order.
func firstUnread(msgs []models.Message, viewerID string, watermark *time.Time) (models.Message, bool) {
	unread := unreadIn(msgs, viewerID, watermark)
	if len(unread) == 0 {
		return models.Message{}, false
	}
	first := unread[0]
	for _, m := range unread[1:] {
		if m.CreatedAt.Before(first.CreatedAt) {
			first = m
		}
	}
	return first, true
}
