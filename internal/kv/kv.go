// Package kv is the local key-value persistence layer. It holds the fixed
// fallback collections and short-lived records such as session registrations.
package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Fixed keys of the serialized fallback collections.
const (
	UsersKey          = "kaitanna-users"
	MoodEntriesKey    = "kaitanna-mood-entries"
	JournalEntriesKey = "kaitanna-journal-entries"
)

// Store is a byte-oriented key-value store. Get reports ok=false on a miss.
// A ttl of 0 means no expiry.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// LoadCollection reads a JSON array stored under key. A missing key yields an
// empty collection; so does content that cannot be parsed, which is logged.
func LoadCollection[T any](ctx context.Context, s Store, key string, log *zap.Logger) ([]T, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("kv: read %s: %w", key, err)
	}
	if !ok || len(raw) == 0 {
		return []T{}, nil
	}

	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		log.Warn("malformed collection, treating as empty", zap.String("key", key), zap.Error(err))
		return []T{}, nil
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

// SaveCollection replaces the whole collection stored under key.
func SaveCollection[T any](ctx context.Context, s Store, key string, items []T) error {
	if items == nil {
		items = []T{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("kv: encode %s: %w", key, err)
	}
	if err := s.Set(ctx, key, data, 0); err != nil {
		return fmt.Errorf("kv: write %s: %w", key, err)
	}
	return nil
}
