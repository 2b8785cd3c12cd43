// Package prefs persists the small durable client settings: the notification
// sound preference and the last active conversation. Settings are msgpack
// encoded; a nil store degrades to defaults so the session runs without
// Redis.
package prefs

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Settings are the durable per-user knobs.
type Settings struct {
	SoundEnabled       bool   `msgpack:"sound_enabled"`
	ActiveConversation string `msgpack:"active_conversation"`
}

// DefaultSettings is what a user gets before ever saving.
func DefaultSettings() Settings {
	return Settings{SoundEnabled: true}
}

// Store reads and writes settings for users.
type Store struct {
	redis *RedisStore
}

func NewStore(redis *RedisStore) *Store {
	return &Store{redis: redis}
}

func settingsKey(userID string) string {
	return fmt.Sprintf("settings:%s", userID)
}

// Settings loads a user's settings. Returns defaults (and false) when the
// store is absent, the key is missing, or the payload cannot be decoded.
func (s *Store) Settings(userID string) (Settings, bool) {
	if s == nil || s.redis == nil {
		return DefaultSettings(), false
	}
	data, err := s.redis.Get(settingsKey(userID))
	if err != nil || data == nil {
		return DefaultSettings(), false
	}

	var st Settings
	if err := msgpack.Unmarshal(data, &st); err != nil {
		return DefaultSettings(), false
	}
	return st, true
}

// Save persists a user's settings with no expiry.
func (s *Store) Save(userID string, st Settings) error {
	if s == nil || s.redis == nil {
		return nil
	}
	data, err := msgpack.Marshal(st)
	if err != nil {
		return err
	}
	return s.redis.Set(settingsKey(userID), data, 0)
}

// SoundPref adapts a user's settings to the fan-out's Prefs interface,
// re-reading on each check so external updates take effect.
type SoundPref struct {
	store  *Store
	userID string
}

func NewSoundPref(store *Store, userID string) *SoundPref {
	return &SoundPref{store: store, userID: userID}
}

func (p *SoundPref) SoundEnabled() bool {
	st, _ := p.store.Settings(p.userID)
	return st.SoundEnabled
}
