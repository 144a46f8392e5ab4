package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Store scopes. Clearing a scope removes every key written under it; the
// public scope survives logout while user scopes are purged.
const (
	ScopePublic = "public"
	ScopeSync   = "sync"
)

// ScopeUser returns the store scope for one authenticated user.
func ScopeUser(userID int64) string {
	return fmt.Sprintf("user:%d", userID)
}

// Persisted key layout: one durable-store entry per logical collection.
const (
	KeyEventListIDs   = "events:list-ids"
	KeyEventDetailMap = "events:detail-map"
	KeyFavoritesGuest = "favorites:guest"
	KeyGuestIdentity  = "guest:identity"
	KeySessionToken   = "session:token"
	KeyWatermarks     = "sync:watermarks"
)

// KeyFavoritesUser returns the favorites key for an authenticated user.
func KeyFavoritesUser(userID int64) string {
	return fmt.Sprintf("favorites:user:%d", userID)
}

// KeyTickets returns the tickets key for an authenticated user.
func KeyTickets(userID int64) string {
	return fmt.Sprintf("tickets:%d", userID)
}

// KeyMyEvents returns the owned-events key for an authenticated user.
func KeyMyEvents(userID int64) string {
	return fmt.Sprintf("my-events:%d", userID)
}

// LocalStore is the durable key-value store under the cache. Values are
// opaque JSON documents; writes are last-writer-wins per key. A failed or
// corrupt read surfaces as ErrCacheMiss, never as a fatal error, and no
// retry or backoff logic lives at this layer.
type LocalStore interface {
	// Get returns the stored value or ErrCacheMiss.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key within scope.
	Set(ctx context.Context, key, scope string, value []byte) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// Clear removes every key in scope.
	Clear(ctx context.Context, scope string) error
}

// GetJSON reads key from the store and decodes it into v. An absent key
// returns ErrCacheMiss. A value that fails to decode also surfaces as
// ErrCacheMiss after a best-effort delete of the corrupt row; corruption is
// never fatal.
func GetJSON(ctx context.Context, s LocalStore, key string, v any) error {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		_ = s.Delete(ctx, key)
		return fmt.Errorf("corrupt cache entry %q: %v: %w", key, err, ErrCacheMiss)
	}
	return nil
}

// PutJSON encodes v and stores it under key within scope.
func PutJSON(ctx context.Context, s LocalStore, key, scope string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode cache entry %q: %w", key, err)
	}
	return s.Set(ctx, key, scope, raw)
}

// Collection names carried by sync watermarks.
const (
	CollectionEvents    = "events"
	CollectionMyEvents  = "my-events"
	CollectionTickets   = "tickets"
	CollectionFavorites = "favorites"
)

// Watermarks records the last successful sync instant per collection. The
// zero time means the collection has never synced.
type Watermarks map[string]time.Time

// Age reports how long ago the collection last synced relative to now.
// Never-synced collections report a very large age.
func (w Watermarks) Age(collection string, now time.Time) time.Duration {
	t, ok := w[collection]
	if !ok || t.IsZero() {
		return time.Duration(1<<62 - 1)
	}
	return now.Sub(t)
}
