package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"eventdeck/internal/domain"
)

const defaultFavoriteDebounce = 2 * time.Second

// Favorites is the favorite-event store. Toggles apply optimistically and
// persist locally right away; in authenticated mode a debounced flush sends
// the net diff against the last server-acknowledged set in one batch call.
// Guest favorites are device-local only and join the account solely through
// the explicit merge flow.
type Favorites struct {
	notifier
	store    domain.LocalStore
	gateway  domain.RemoteGateway
	logger   *slog.Logger
	debounce time.Duration

	mu         sync.Mutex
	userID     int64 // 0 in guest mode
	userCtx    context.Context
	current    domain.FavoriteSet // optimistic state the UI sees
	synced     domain.FavoriteSet // last server-acknowledged state
	timer      *time.Timer
	flushing   bool
	dirty      bool // a flush was requested while one was in flight
	lastErr    error
	onFlushErr func(error)
}

func NewFavorites(store domain.LocalStore, gateway domain.RemoteGateway, debounce time.Duration, logger *slog.Logger) *Favorites {
	if debounce <= 0 {
		debounce = defaultFavoriteDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Favorites{
		store:    store,
		gateway:  gateway,
		logger:   logger,
		debounce: debounce,
		current:  domain.NewFavoriteSet(),
		synced:   domain.NewFavoriteSet(),
	}
}

// OnFlushError registers a hook for background flush failures, which are
// otherwise only logged; the optimistic state has already been rolled back
// by the time it runs.
func (f *Favorites) OnFlushError(fn func(error)) {
	f.mu.Lock()
	f.onFlushErr = fn
	f.mu.Unlock()
}

// LoadGuest enters guest mode and loads the device-local favorite set. It
// also serves as the logout reset.
func (f *Favorites) LoadGuest(ctx context.Context) {
	var ids []int64
	if err := domain.GetJSON(ctx, f.store, domain.KeyFavoritesGuest, &ids); err != nil && !errors.Is(err, domain.ErrCacheMiss) {
		f.logger.Warn("failed to load guest favorites", "error", err)
	}

	f.mu.Lock()
	f.stopTimerLocked()
	f.userID = 0
	f.userCtx = nil
	f.current = domain.NewFavoriteSet(ids...)
	f.synced = domain.NewFavoriteSet()
	f.lastErr = nil
	f.dirty = false
	f.mu.Unlock()
	f.notify()
}

// SetUser enters authenticated mode, seeding from the user's cached set.
// userCtx scopes background flushes and is cancelled at logout, so a flush
// can never outlive the session that scheduled it.
func (f *Favorites) SetUser(ctx context.Context, userID int64, userCtx context.Context) {
	var ids []int64
	if err := domain.GetJSON(ctx, f.store, domain.KeyFavoritesUser(userID), &ids); err != nil && !errors.Is(err, domain.ErrCacheMiss) {
		f.logger.Warn("failed to load cached favorites", "error", err)
	}

	f.mu.Lock()
	f.stopTimerLocked()
	f.userID = userID
	f.userCtx = userCtx
	f.current = domain.NewFavoriteSet(ids...)
	f.synced = domain.NewFavoriteSet(ids...)
	f.lastErr = nil
	f.dirty = false
	f.mu.Unlock()
	f.notify()
}

// IsFavorite reports whether the event is favorited in the active namespace.
func (f *Favorites) IsFavorite(id int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current.Has(id)
}

// IDs returns the favorited event ids in ascending order.
func (f *Favorites) IDs() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current.IDs()
}

// LastError returns the most recent flush failure, nil after a successful
// flush.
func (f *Favorites) LastError() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastErr
}

// Toggle flips the favorite state of one event and reports the new state.
// The change applies and persists immediately; in authenticated mode the
// remote flush is debounced so a burst of taps collapses into one net diff.
func (f *Favorites) Toggle(ctx context.Context, id int64) bool {
	f.mu.Lock()
	nowFavorite := !f.current.Has(id)
	if nowFavorite {
		f.current.Add(id)
	} else {
		f.current.Remove(id)
	}
	// Persisting under the lock keeps the write inside the session guard:
	// a logout cannot purge the user scope between the decision and the
	// store write.
	if f.userID == 0 {
		f.persistGuest(ctx, f.current)
	} else {
		f.persistUser(ctx, f.userID, f.current)
		f.scheduleFlushLocked()
	}
	f.mu.Unlock()

	f.notify()
	return nowFavorite
}

// Flush sends the pending net diff now instead of waiting out the debounce.
// On gateway failure the optimistic state rolls back to the last
// acknowledged set, exactly. A flush already in flight absorbs the request.
func (f *Favorites) Flush(ctx context.Context) error {
	f.mu.Lock()
	uid := f.userID
	if uid == 0 {
		f.mu.Unlock()
		return nil
	}
	if f.flushing {
		f.dirty = true
		f.mu.Unlock()
		return nil
	}
	f.stopTimerLocked()
	add, remove := f.current.Diff(f.synced)
	if len(add) == 0 && len(remove) == 0 {
		f.mu.Unlock()
		return nil
	}
	target := f.current.Clone()
	f.flushing = true
	f.mu.Unlock()

	err := f.gateway.BatchUpdateFavorites(ctx, add, remove)

	f.mu.Lock()
	f.flushing = false
	if f.userID != uid {
		// The session changed mid-flight; the result belongs to nobody now.
		f.mu.Unlock()
		return nil
	}
	if err != nil {
		f.lastErr = err
		f.current = f.synced.Clone()
		f.dirty = false
		f.persistUser(ctx, uid, f.current)
		f.mu.Unlock()
		f.notify()
		return fmt.Errorf("flush favorites: %w", err)
	}
	f.synced = target
	f.lastErr = nil
	redo := f.dirty
	f.dirty = false
	if redo {
		if addMore, removeMore := f.current.Diff(f.synced); len(addMore)+len(removeMore) > 0 {
			f.scheduleFlushLocked()
		}
	}
	f.mu.Unlock()
	f.notify()
	return nil
}

// RefreshRemote replaces the acknowledged set with the server's, keeping
// any unflushed local intent applied on top.
func (f *Favorites) RefreshRemote(ctx context.Context) error {
	f.mu.Lock()
	uid := f.userID
	flushing := f.flushing
	f.mu.Unlock()
	if uid == 0 {
		return nil
	}
	if flushing {
		return domain.ErrSyncInProgress
	}

	ids, err := f.gateway.ListFavoriteIDs(ctx)
	if err != nil {
		return fmt.Errorf("refresh favorites: %w", err)
	}

	f.mu.Lock()
	if f.userID != uid {
		f.mu.Unlock()
		return nil
	}
	pendingAdd, pendingRemove := f.current.Diff(f.synced)
	f.synced = domain.NewFavoriteSet(ids...)
	f.current = f.synced.Clone()
	for _, id := range pendingAdd {
		f.current.Add(id)
	}
	for _, id := range pendingRemove {
		f.current.Remove(id)
	}
	if len(pendingAdd)+len(pendingRemove) > 0 {
		f.scheduleFlushLocked()
	}
	f.persistUser(ctx, uid, f.current)
	f.mu.Unlock()

	f.notify()
	return nil
}

// Sync pushes any pending diff, then pulls the authoritative set. This is
// the reconnect-resync entry point.
func (f *Favorites) Sync(ctx context.Context) error {
	if err := f.Flush(ctx); err != nil {
		return err
	}
	return f.RefreshRemote(ctx)
}

// PendingGuestMerge returns the guest favorites the signed-in user does not
// have yet. A non-empty result is the cue to offer the merge prompt.
func (f *Favorites) PendingGuestMerge(ctx context.Context) []int64 {
	var ids []int64
	if err := domain.GetJSON(ctx, f.store, domain.KeyFavoritesGuest, &ids); err != nil {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.userID == 0 {
		return nil
	}
	add, _ := domain.NewFavoriteSet(ids...).Diff(f.current)
	return add
}

// MergeGuestFavorites folds the guest favorites into the signed-in account:
// guest-only ids go to the server as one batch addition, the local set
// becomes the union, and the guest namespace is cleared. Called only after
// the user confirms the merge prompt.
func (f *Favorites) MergeGuestFavorites(ctx context.Context) ([]int64, error) {
	f.mu.Lock()
	uid := f.userID
	f.mu.Unlock()
	if uid == 0 {
		return nil, domain.ErrNoSession
	}

	additions := f.PendingGuestMerge(ctx)
	if len(additions) == 0 {
		if err := f.store.Delete(ctx, domain.KeyFavoritesGuest); err != nil {
			f.logger.Warn("failed to clear guest favorites", "error", err)
		}
		return nil, nil
	}

	if err := f.gateway.BatchUpdateFavorites(ctx, additions, nil); err != nil {
		return nil, fmt.Errorf("merge guest favorites: %w", err)
	}

	f.mu.Lock()
	if f.userID != uid {
		f.mu.Unlock()
		return nil, nil
	}
	for _, id := range additions {
		f.current.Add(id)
		f.synced.Add(id)
	}
	f.persistUser(ctx, uid, f.current)
	f.mu.Unlock()

	if err := f.store.Delete(ctx, domain.KeyFavoritesGuest); err != nil {
		f.logger.Warn("failed to clear guest favorites", "error", err)
	}
	f.notify()
	return additions, nil
}

func (f *Favorites) scheduleFlushLocked() {
	if f.userID == 0 {
		return
	}
	if f.timer != nil {
		f.timer.Stop()
	}
	ctx := f.userCtx
	if ctx == nil {
		ctx = context.Background()
	}
	f.timer = time.AfterFunc(f.debounce, func() {
		if err := f.Flush(ctx); err != nil {
			f.logger.Warn("favorite flush failed", "error", err)
			f.mu.Lock()
			onErr := f.onFlushErr
			f.mu.Unlock()
			if onErr != nil {
				onErr(err)
			}
		}
	})
}

func (f *Favorites) stopTimerLocked() {
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
}

func (f *Favorites) persistGuest(ctx context.Context, set domain.FavoriteSet) {
	if err := domain.PutJSON(ctx, f.store, domain.KeyFavoritesGuest, domain.ScopePublic, set.IDs()); err != nil {
		f.logger.Warn("failed to persist guest favorites", "error", err)
	}
}

func (f *Favorites) persistUser(ctx context.Context, userID int64, set domain.FavoriteSet) {
	if err := domain.PutJSON(ctx, f.store, domain.KeyFavoritesUser(userID), domain.ScopeUser(userID), set.IDs()); err != nil {
		f.logger.Warn("failed to persist favorites", "error", err)
	}
}
