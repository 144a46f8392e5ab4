package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"eventdeck/internal/domain"
)

// MyEvents is the organizer-owned events store. Mutations go through the
// gateway first and are reflected locally on success only: ids are
// server-assigned, so there is nothing sensible to show optimistically.
type MyEvents struct {
	notifier
	store   domain.LocalStore
	gateway domain.RemoteGateway
	events  EventCache
	logger  *slog.Logger

	mu      sync.Mutex
	userID  int64
	owned   []domain.Event
	lastErr error
}

func NewMyEvents(store domain.LocalStore, gateway domain.RemoteGateway, events EventCache, logger *slog.Logger) *MyEvents {
	if logger == nil {
		logger = slog.Default()
	}
	return &MyEvents{
		store:   store,
		gateway: gateway,
		events:  events,
		logger:  logger,
	}
}

// SetUser enters authenticated mode, seeding from the user's cached events.
func (s *MyEvents) SetUser(ctx context.Context, userID int64) {
	var owned []domain.Event
	if err := domain.GetJSON(ctx, s.store, domain.KeyMyEvents(userID), &owned); err != nil && !errors.Is(err, domain.ErrCacheMiss) {
		s.logger.Warn("failed to load cached owned events", "error", err)
	}

	s.mu.Lock()
	s.userID = userID
	s.owned = owned
	domain.SortEventsCanonical(s.owned)
	s.lastErr = nil
	s.mu.Unlock()
	s.notify()
}

// Reset drops the user state at logout.
func (s *MyEvents) Reset() {
	s.mu.Lock()
	s.userID = 0
	s.owned = nil
	s.lastErr = nil
	s.mu.Unlock()
	s.notify()
}

// List returns the cached owned events in canonical order.
func (s *MyEvents) List() []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Event(nil), s.owned...)
}

// LastError returns the most recent mutation or refresh failure.
func (s *MyEvents) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Create submits a new event and, on success, folds the stored row into the
// owned list and the shared feed cache.
func (s *MyEvents) Create(ctx context.Context, draft domain.EventDraft) (domain.Event, error) {
	s.mu.Lock()
	uid := s.userID
	s.mu.Unlock()
	if uid == 0 {
		return domain.Event{}, domain.ErrNoSession
	}

	created, err := s.gateway.CreateEvent(ctx, draft)
	if err != nil {
		s.setLastErr(err)
		return domain.Event{}, fmt.Errorf("create event: %w", err)
	}

	s.events.ApplyLocal(ctx, created)

	s.mu.Lock()
	if s.userID != uid {
		s.mu.Unlock()
		return created, nil
	}
	s.owned = append(s.owned, created)
	domain.SortEventsCanonical(s.owned)
	s.lastErr = nil
	// Persist under the lock so a logout purge cannot interleave.
	s.persist(ctx, uid, s.owned)
	s.mu.Unlock()

	s.notify()
	return created, nil
}

// Update submits changed fields for an owned event. Ownership is the
// server's call; a rejection surfaces as a remote error and nothing local
// changes.
func (s *MyEvents) Update(ctx context.Context, id int64, draft domain.EventDraft) (domain.Event, error) {
	s.mu.Lock()
	uid := s.userID
	s.mu.Unlock()
	if uid == 0 {
		return domain.Event{}, domain.ErrNoSession
	}

	updated, err := s.gateway.UpdateEvent(ctx, id, draft)
	if err != nil {
		s.setLastErr(err)
		return domain.Event{}, fmt.Errorf("update event %d: %w", id, err)
	}

	s.events.ApplyLocal(ctx, updated)

	s.mu.Lock()
	if s.userID != uid {
		s.mu.Unlock()
		return updated, nil
	}
	replaced := false
	for i := range s.owned {
		if s.owned[i].ID == updated.ID {
			s.owned[i] = updated
			replaced = true
			break
		}
	}
	if !replaced {
		s.owned = append(s.owned, updated)
	}
	domain.SortEventsCanonical(s.owned)
	s.lastErr = nil
	s.persist(ctx, uid, s.owned)
	s.mu.Unlock()

	s.notify()
	return updated, nil
}

// Delete removes an owned event remotely, then drops it from the owned list
// and the shared feed cache.
func (s *MyEvents) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	uid := s.userID
	s.mu.Unlock()
	if uid == 0 {
		return domain.ErrNoSession
	}

	if err := s.gateway.DeleteEvent(ctx, id); err != nil {
		s.setLastErr(err)
		return fmt.Errorf("delete event %d: %w", id, err)
	}

	s.events.RemoveLocal(ctx, id)

	s.mu.Lock()
	if s.userID != uid {
		s.mu.Unlock()
		return nil
	}
	kept := s.owned[:0]
	for _, e := range s.owned {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	s.owned = kept
	s.lastErr = nil
	s.persist(ctx, uid, s.owned)
	s.mu.Unlock()

	s.notify()
	return nil
}

// Refresh replaces the owned list with the server's. In guest mode it is a
// no-op so the reconnect resync can call it unconditionally.
func (s *MyEvents) Refresh(ctx context.Context) error {
	s.mu.Lock()
	uid := s.userID
	s.mu.Unlock()
	if uid == 0 {
		return nil
	}

	owned, err := s.gateway.ListMyEvents(ctx)
	if err != nil {
		s.setLastErr(err)
		return fmt.Errorf("refresh my events: %w", err)
	}

	s.mu.Lock()
	if s.userID != uid {
		s.mu.Unlock()
		return nil
	}
	s.owned = owned
	domain.SortEventsCanonical(s.owned)
	s.lastErr = nil
	s.persist(ctx, uid, s.owned)
	s.mu.Unlock()

	s.notify()
	return nil
}

func (s *MyEvents) setLastErr(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	s.notify()
}

func (s *MyEvents) persist(ctx context.Context, userID int64, owned []domain.Event) {
	if err := domain.PutJSON(ctx, s.store, domain.KeyMyEvents(userID), domain.ScopeUser(userID), owned); err != nil {
		s.logger.Warn("failed to persist owned events", "error", err)
	}
}
