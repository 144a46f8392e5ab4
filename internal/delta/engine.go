package delta

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"eventdeck/internal/domain"
)

// State is the lifecycle of the cached event collection.
type State string

const (
	// StateEmpty means no cached data and no hydration attempt in flight.
	StateEmpty State = "empty"
	// StateHydrating means the blocking first load is in flight.
	StateHydrating State = "hydrating"
	// StateReady means cached data is serveable.
	StateReady State = "ready"
	// StateSyncing means cached data is serveable and a sync is in flight.
	StateSyncing State = "syncing"
	// StateSyncFailed means cached data is serveable but the last sync
	// failed; the cache is stale until a sync succeeds.
	StateSyncFailed State = "sync_failed"
)

const (
	defaultPageSize = 10
	defaultCacheTTL = time.Hour
)

// Config carries the engine knobs.
type Config struct {
	// PageSize is the remote page size and the local pagination window step.
	PageSize int
	// TTL is how long a successful sync keeps the cache fresh; hydration
	// revalidates in the background once the watermark is older.
	TTL time.Duration
}

// Engine keeps the cached public event collection consistent with the remote
// side. Reads are served from an id-keyed in-memory map mirrored to the
// durable store; writes arrive only through gateway responses and the
// explicit local-apply hooks. A failed sync never erases cached data.
type Engine struct {
	gateway  domain.RemoteGateway
	store    domain.LocalStore
	marks    *WatermarkStore
	logger   *slog.Logger
	pageSize int
	ttl      time.Duration
	now      func() time.Time

	mu     sync.Mutex
	state  State
	events map[int64]domain.Event
	order  []int64 // canonical order over events
	filter domain.EventFilter

	// Pagination window into the filtered view, plus the remote pagination
	// bookkeeping for the current filter generation.
	visible     int
	generation  int64
	remotePages int
	remoteTotal int
	haveTotal   bool
	syncing     bool
	lastErr     error

	subs   map[int]func()
	nextID int
}

func NewEngine(gateway domain.RemoteGateway, store domain.LocalStore, marks *WatermarkStore, cfg Config, logger *slog.Logger) *Engine {
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		gateway:  gateway,
		store:    store,
		marks:    marks,
		logger:   logger,
		pageSize: cfg.PageSize,
		ttl:      cfg.TTL,
		now:      time.Now,
		state:    StateEmpty,
		events:   make(map[int64]domain.Event),
		subs:     make(map[int]func()),
	}
}

// Subscribe registers fn to run after every committed change and returns its
// unsubscribe func. Callbacks run outside the engine lock and must be quick.
func (e *Engine) Subscribe(fn func()) func() {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.subs[id] = fn
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.subs, id)
		e.mu.Unlock()
	}
}

func (e *Engine) notify() {
	e.mu.Lock()
	subs := make([]func(), 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	e.mu.Unlock()
	for _, fn := range subs {
		fn()
	}
}

// State returns the collection lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// LastError returns the most recent sync or load failure, nil after a
// successful sync.
func (e *Engine) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// Get returns one cached event by id.
func (e *Engine) Get(id int64) (domain.Event, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ev, ok := e.events[id]
	return ev, ok
}

// All returns every cached event in canonical order.
func (e *Engine) All() []domain.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.Event, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.events[id])
	}
	return out
}

// Visible returns the current pagination window over the filtered view.
func (e *Engine) Visible() []domain.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	filtered := e.filteredLocked()
	n := min(e.visible, len(filtered))
	out := make([]domain.Event, n)
	copy(out, filtered[:n])
	return out
}

// Total returns the number of events matching the current filter and whether
// that number is authoritative (known from a remote fetch) yet.
func (e *Engine) Total() (int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	filtered := len(e.filteredLocked())
	if !e.haveTotal {
		return filtered, false
	}
	return max(e.remoteTotal, filtered), true
}

// HasMore reports whether LoadMore could grow the visible window. Unknown
// remote totals err on the side of true; the next LoadMore resolves them.
func (e *Engine) HasMore() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	filtered := len(e.filteredLocked())
	if !e.haveTotal {
		return true
	}
	return e.visible < max(e.remoteTotal, filtered)
}

// SetFilter installs a new query/category pair. The view recomputes from the
// local cache immediately; remote pagination restarts lazily on the next
// LoadMore. In-flight responses for the previous filter are discarded.
func (e *Engine) SetFilter(query, category string) {
	if category == domain.FacetAll {
		category = ""
	}
	e.mu.Lock()
	if e.filter.Query == query && e.filter.Category == category {
		e.mu.Unlock()
		return
	}
	e.filter.Query = query
	e.filter.Category = category
	e.generation++
	e.remotePages = 0
	e.remoteTotal = 0
	e.haveTotal = false
	e.visible = min(e.pageSize, len(e.filteredLocked()))
	e.mu.Unlock()
	e.notify()
}

// Hydrate brings the collection out of StateEmpty: cached data is served
// immediately and revalidated in the background when stale; with nothing
// cached a blocking first-page fetch runs, and its transport failure is the
// hard offline case (ErrOffline, state back to StateEmpty).
func (e *Engine) Hydrate(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateEmpty {
		e.mu.Unlock()
		return nil
	}
	e.state = StateHydrating
	e.mu.Unlock()
	e.notify()

	if e.loadCached(ctx) {
		if e.marks.Stale(ctx, domain.CollectionEvents, e.ttl, e.now()) {
			go func() {
				// Revalidation of public data outlives the caller's scope.
				if err := e.Sync(context.Background()); err != nil {
					e.logger.Warn("background revalidation failed", "error", err)
				}
			}()
		}
		return nil
	}

	e.mu.Lock()
	filter := e.filter
	gen := e.generation
	e.mu.Unlock()

	page, err := e.gateway.ListEvents(ctx, 1, e.pageSize, filter)
	if err != nil {
		e.mu.Lock()
		e.state = StateEmpty
		e.lastErr = err
		e.mu.Unlock()
		e.notify()
		if _, ok := domain.AsRemoteError(err); ok {
			return fmt.Errorf("hydrate events: %w", err)
		}
		return fmt.Errorf("hydrate events: %v: %w", err, domain.ErrOffline)
	}

	e.mu.Lock()
	if gen != e.generation {
		e.state = StateEmpty
		e.mu.Unlock()
		e.notify()
		return nil
	}
	for _, ev := range page.Items {
		e.events[ev.ID] = ev
	}
	e.rebuildOrderLocked()
	e.remotePages = 1
	e.remoteTotal = page.TotalCount
	e.haveTotal = true
	e.visible = min(e.pageSize, len(e.filteredLocked()))
	e.state = StateReady
	e.lastErr = nil
	unfiltered := filter.Query == "" && filter.Category == ""
	mark := e.watermarkLocked(page.Items)
	snapshot := e.snapshotLocked()
	e.mu.Unlock()
	e.notify()

	e.persist(ctx, snapshot)
	if unfiltered {
		e.advanceWatermark(ctx, mark)
	}
	return nil
}

// loadCached restores the persisted collection. Returns false when nothing
// usable is stored; corrupt entries degrade to a miss upstream.
func (e *Engine) loadCached(ctx context.Context) bool {
	var ids []int64
	var detail map[int64]domain.Event
	if err := domain.GetJSON(ctx, e.store, domain.KeyEventListIDs, &ids); err != nil {
		return false
	}
	if err := domain.GetJSON(ctx, e.store, domain.KeyEventDetailMap, &detail); err != nil {
		return false
	}

	e.mu.Lock()
	e.events = make(map[int64]domain.Event, len(ids))
	for _, id := range ids {
		if ev, ok := detail[id]; ok {
			e.events[id] = ev
		}
	}
	if len(e.events) == 0 {
		e.state = StateEmpty
		e.mu.Unlock()
		return false
	}
	e.rebuildOrderLocked()
	e.visible = min(e.pageSize, len(e.filteredLocked()))
	e.state = StateReady
	e.mu.Unlock()
	e.notify()
	return true
}

// Sync runs one delta round against the remote side. On an empty collection
// it falls back to Hydrate. At most one sync is in flight at a time;
// concurrent calls no-op with ErrSyncInProgress.
//
// Changed and new rows come from refetching every cached id plus a
// first-page list query bounded by the watermark; cached ids absent from the
// id-batch response are the deletions. The merge is an id-keyed overwrite,
// idempotent by construction.
func (e *Engine) Sync(ctx context.Context) error {
	e.mu.Lock()
	switch {
	case e.state == StateEmpty:
		e.mu.Unlock()
		return e.Hydrate(ctx)
	case e.syncing || e.state == StateHydrating:
		e.mu.Unlock()
		return domain.ErrSyncInProgress
	}
	e.syncing = true
	e.state = StateSyncing
	gen := e.generation
	filter := e.filter
	ids := make([]int64, 0, len(e.events))
	for id := range e.events {
		ids = append(ids, id)
	}
	e.mu.Unlock()
	e.notify()

	batch, err := e.gateway.GetEventsByIDs(ctx, ids)
	if err != nil {
		return e.failSync(err)
	}
	filter.UpdatedSince = e.marks.Get(ctx, domain.CollectionEvents)
	fresh, err := e.gateway.ListEvents(ctx, 1, e.pageSize, filter)
	if err != nil {
		return e.failSync(err)
	}

	e.mu.Lock()
	if gen != e.generation {
		e.syncing = false
		e.state = StateReady
		e.mu.Unlock()
		e.notify()
		return nil
	}
	present := make(map[int64]struct{}, len(batch))
	for _, ev := range batch {
		present[ev.ID] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := present[id]; !ok {
			delete(e.events, id)
		}
	}
	for _, ev := range batch {
		e.events[ev.ID] = ev
	}
	for _, ev := range fresh.Items {
		e.events[ev.ID] = ev
	}
	e.rebuildOrderLocked()
	e.syncing = false
	e.state = StateReady
	e.lastErr = nil
	unfiltered := filter.Query == "" && filter.Category == ""
	mark := e.watermarkLocked(batch, fresh.Items)
	snapshot := e.snapshotLocked()
	e.mu.Unlock()
	e.notify()

	e.persist(ctx, snapshot)
	if unfiltered {
		e.advanceWatermark(ctx, mark)
	}
	return nil
}

// Refresh is the pull-to-refresh path: a forced full first-page fetch for
// the current filter. On success the filter's cached view is rebuilt from
// the fresh page; on failure the cache stays untouched.
func (e *Engine) Refresh(ctx context.Context) error {
	e.mu.Lock()
	switch {
	case e.state == StateEmpty:
		e.mu.Unlock()
		return e.Hydrate(ctx)
	case e.syncing || e.state == StateHydrating:
		e.mu.Unlock()
		return domain.ErrSyncInProgress
	}
	e.syncing = true
	e.state = StateSyncing
	gen := e.generation
	filter := e.filter
	e.mu.Unlock()
	e.notify()

	page, err := e.gateway.ListEvents(ctx, 1, e.pageSize, filter)
	if err != nil {
		return e.failSync(err)
	}

	e.mu.Lock()
	if gen != e.generation {
		e.syncing = false
		e.state = StateReady
		e.mu.Unlock()
		e.notify()
		return nil
	}
	// Evict the refreshed view; events outside the filter keep their cache.
	for id, ev := range e.events {
		if domain.MatchesQuery(ev, filter.Query) && domain.MatchesCategory(ev, filter.Category) {
			delete(e.events, id)
		}
	}
	for _, ev := range page.Items {
		e.events[ev.ID] = ev
	}
	e.rebuildOrderLocked()
	e.remotePages = 1
	e.remoteTotal = page.TotalCount
	e.haveTotal = true
	e.visible = min(e.pageSize, len(e.filteredLocked()))
	e.syncing = false
	e.state = StateReady
	e.lastErr = nil
	unfiltered := filter.Query == "" && filter.Category == ""
	mark := e.watermarkLocked(page.Items)
	snapshot := e.snapshotLocked()
	e.mu.Unlock()
	e.notify()

	e.persist(ctx, snapshot)
	if unfiltered {
		e.advanceWatermark(ctx, mark)
	}
	return nil
}

// LoadMore grows the visible window by one page, from the local cache when
// it already holds enough matching events, otherwise by fetching the next
// remote page and merging it in. When the window already covers the known
// total it returns without any network call.
func (e *Engine) LoadMore(ctx context.Context) error {
	e.mu.Lock()
	if e.state == StateEmpty || e.state == StateHydrating {
		e.mu.Unlock()
		return e.Hydrate(ctx)
	}
	filtered := e.filteredLocked()
	total := max(e.remoteTotal, len(filtered))
	if e.haveTotal && e.visible >= total {
		e.mu.Unlock()
		return nil
	}
	target := e.visible + e.pageSize
	if e.haveTotal {
		target = min(target, total)
	}
	if len(filtered) >= target {
		e.visible = target
		e.mu.Unlock()
		e.notify()
		return nil
	}
	gen := e.generation
	page := e.remotePages + 1
	filter := e.filter
	e.mu.Unlock()

	resp, err := e.gateway.ListEvents(ctx, page, e.pageSize, filter)
	if err != nil {
		e.mu.Lock()
		e.lastErr = err
		e.mu.Unlock()
		e.notify()
		return fmt.Errorf("load more events: %w", err)
	}

	e.mu.Lock()
	if gen != e.generation {
		e.mu.Unlock()
		return nil
	}
	for _, ev := range resp.Items {
		e.events[ev.ID] = ev
	}
	e.rebuildOrderLocked()
	e.remotePages = page
	e.remoteTotal = resp.TotalCount
	e.haveTotal = true
	e.visible = min(target, len(e.filteredLocked()))
	snapshot := e.snapshotLocked()
	e.mu.Unlock()
	e.notify()

	e.persist(ctx, snapshot)
	return nil
}

// ApplyLocal overwrites cached events in place, for optimistic mutations and
// for reflecting confirmed writes without waiting for the next sync.
func (e *Engine) ApplyLocal(ctx context.Context, events ...domain.Event) {
	e.mu.Lock()
	for _, ev := range events {
		if ev.ID > 0 {
			e.events[ev.ID] = ev
		}
	}
	e.rebuildOrderLocked()
	snapshot := e.snapshotLocked()
	e.mu.Unlock()
	e.notify()
	e.persist(ctx, snapshot)
}

// RemoveLocal drops cached events by id.
func (e *Engine) RemoveLocal(ctx context.Context, ids ...int64) {
	e.mu.Lock()
	for _, id := range ids {
		delete(e.events, id)
	}
	e.rebuildOrderLocked()
	snapshot := e.snapshotLocked()
	e.mu.Unlock()
	e.notify()
	e.persist(ctx, snapshot)
}

func (e *Engine) failSync(err error) error {
	e.mu.Lock()
	e.syncing = false
	e.state = StateSyncFailed
	e.lastErr = err
	e.mu.Unlock()
	e.notify()
	return fmt.Errorf("sync events: %w", err)
}

// filteredLocked returns the cached events matching the current filter in
// canonical order.
func (e *Engine) filteredLocked() []domain.Event {
	all := make([]domain.Event, 0, len(e.order))
	for _, id := range e.order {
		all = append(all, e.events[id])
	}
	return domain.FilterEvents(all, e.filter.Query, e.filter.Category)
}

func (e *Engine) rebuildOrderLocked() {
	all := make([]domain.Event, 0, len(e.events))
	for _, ev := range e.events {
		all = append(all, ev)
	}
	domain.SortEventsCanonical(all)
	e.order = e.order[:0]
	for _, ev := range all {
		e.order = append(e.order, ev.ID)
	}
	if n := len(e.filteredLocked()); e.visible > n {
		e.visible = n
	}
}

// watermarkLocked picks the next watermark: now, or the newest server
// updated_at when the server clock runs ahead.
func (e *Engine) watermarkLocked(batches ...[]domain.Event) time.Time {
	mark := e.now()
	for _, batch := range batches {
		for _, ev := range batch {
			if ev.UpdatedAt.After(mark) {
				mark = ev.UpdatedAt
			}
		}
	}
	return mark
}

type persistDoc struct {
	ids    []int64
	detail map[int64]domain.Event
}

func (e *Engine) snapshotLocked() persistDoc {
	doc := persistDoc{
		ids:    make([]int64, len(e.order)),
		detail: make(map[int64]domain.Event, len(e.events)),
	}
	copy(doc.ids, e.order)
	for id, ev := range e.events {
		doc.detail[id] = ev
	}
	return doc
}

// persist mirrors the merged collection to the durable store. Failures are
// logged and buried: the in-memory cache stays authoritative for the session
// and the next successful write repairs the mirror.
func (e *Engine) persist(ctx context.Context, doc persistDoc) {
	if err := domain.PutJSON(ctx, e.store, domain.KeyEventListIDs, domain.ScopePublic, doc.ids); err != nil {
		e.logger.Warn("failed to persist event ids", "error", err)
		return
	}
	if err := domain.PutJSON(ctx, e.store, domain.KeyEventDetailMap, domain.ScopePublic, doc.detail); err != nil {
		e.logger.Warn("failed to persist event details", "error", err)
	}
}

func (e *Engine) advanceWatermark(ctx context.Context, mark time.Time) {
	if err := e.marks.Advance(ctx, domain.CollectionEvents, mark); err != nil {
		e.logger.Warn("failed to advance events watermark", "error", err)
	}
}
