// Package delta keeps the durable cache consistent with the remote side
// without redundant full refetches: watermark-driven delta queries, id-keyed
// merges, and pagination layered on top of a changing remote set.
package delta

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"eventdeck/internal/domain"
)

// WatermarkStore persists the per-collection sync watermarks as one durable
// document. All methods are safe for concurrent use; the document is loaded
// lazily on first access.
type WatermarkStore struct {
	store  domain.LocalStore
	logger *slog.Logger

	mu     sync.Mutex
	marks  domain.Watermarks
	loaded bool
}

func NewWatermarkStore(store domain.LocalStore, logger *slog.Logger) *WatermarkStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &WatermarkStore{store: store, logger: logger}
}

func (w *WatermarkStore) ensureLocked(ctx context.Context) {
	if w.loaded {
		return
	}
	marks := domain.Watermarks{}
	if err := domain.GetJSON(ctx, w.store, domain.KeyWatermarks, &marks); err != nil {
		if !errors.Is(err, domain.ErrCacheMiss) {
			w.logger.Warn("failed to load watermarks", "error", err)
		}
		marks = domain.Watermarks{}
	}
	w.marks = marks
	w.loaded = true
}

// Get returns the collection's watermark, zero when it has never synced.
func (w *WatermarkStore) Get(ctx context.Context, collection string) time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ensureLocked(ctx)
	return w.marks[collection]
}

// Advance moves the collection's watermark to at and persists the document.
// A watermark never moves backwards.
func (w *WatermarkStore) Advance(ctx context.Context, collection string, at time.Time) error {
	w.mu.Lock()
	w.ensureLocked(ctx)
	if current, ok := w.marks[collection]; ok && at.Before(current) {
		w.mu.Unlock()
		return nil
	}
	w.marks[collection] = at.UTC()
	doc := make(domain.Watermarks, len(w.marks))
	for k, v := range w.marks {
		doc[k] = v
	}
	w.mu.Unlock()

	if err := domain.PutJSON(ctx, w.store, domain.KeyWatermarks, domain.ScopeSync, doc); err != nil {
		return fmt.Errorf("persist watermarks: %w", err)
	}
	return nil
}

// Reset forgets the given collections' watermarks, forcing their next sync
// to behave like a first sync. Used on logout for user-scoped collections.
func (w *WatermarkStore) Reset(ctx context.Context, collections ...string) error {
	w.mu.Lock()
	w.ensureLocked(ctx)
	for _, c := range collections {
		delete(w.marks, c)
	}
	doc := make(domain.Watermarks, len(w.marks))
	for k, v := range w.marks {
		doc[k] = v
	}
	w.mu.Unlock()

	if err := domain.PutJSON(ctx, w.store, domain.KeyWatermarks, domain.ScopeSync, doc); err != nil {
		return fmt.Errorf("persist watermarks: %w", err)
	}
	return nil
}

// Stale reports whether the collection's last sync is older than ttl at now.
func (w *WatermarkStore) Stale(ctx context.Context, collection string, ttl time.Duration, now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ensureLocked(ctx)
	return w.marks.Age(collection, now) > ttl
}
