package prefs

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is the thin Redis surface the settings store sits on: get, set,
// and the connection checks the wiring code needs. Settings reads and writes
// are small and rare, so every call runs with a background context.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr, password string, db int) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

// Get returns the raw value for a key, or (nil, nil) when the key does not
// exist.
func (s *RedisStore) Get(key string) ([]byte, error) {
	val, err := s.client.Get(context.Background(), key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	return val, err
}

// Set writes a value; a zero ttl keeps the key forever.
func (s *RedisStore) Set(key string, value []byte, ttl time.Duration) error {
	return s.client.Set(context.Background(), key, value, ttl).Err()
}

func (s *RedisStore) Ping() error {
	return s.client.Ping(context.Background()).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
