// Package cache provides the TTL cache used for per-user distribution
// artifacts.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// TTLs of the cached artifacts.
const (
	MITTTL    = 60 * time.Minute
	SortedTTL = 30 * time.Minute
)

// MITKey is the cache key of a user's most important task.
func MITKey(userID string) string {
	return "potok:distribution:user:" + userID + ":mit"
}

// SortedKey is the cache key of a user's sorted-task list.
func SortedKey(userID string) string {
	return "potok:distribution:user:" + userID + ":tasks:sorted"
}

// Cache stores JSON-encodable values with a TTL.
type Cache interface {
	// Get decodes the value under key into dst. It reports false on a miss.
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Backend is the raw byte storage behind a Store cache.
type Backend interface {
	GetCache(ctx context.Context, key string) ([]byte, bool, error)
	SetCache(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeleteCache(ctx context.Context, key string) error
}

// Store is a Cache over a Backend such as the SQLite store.
type Store struct {
	backend Backend
}

// NewStore wraps backend.
func NewStore(backend Backend) *Store {
	return &Store{backend: backend}
}

// Get implements Cache. An undecodable entry is deleted and reported as a miss.
func (s *Store) Get(ctx context.Context, key string, dst any) (bool, error) {
	raw, ok, err := s.backend.GetCache(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		_ = s.backend.DeleteCache(ctx, key)
		return false, nil
	}
	return true, nil
}

// Set implements Cache.
func (s *Store) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache value: %w", err)
	}
	return s.backend.SetCache(ctx, key, raw, ttl)
}

// Delete implements Cache.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.backend.DeleteCache(ctx, key)
}
