package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"eventdeck/internal/delta"
	"eventdeck/internal/domain"
)

const (
	defaultDetailCacheLen = 128
	defaultDetailCacheTTL = 5 * time.Minute
)

// FeedConfig carries the read-model knobs.
type FeedConfig struct {
	// DetailCacheLen and DetailCacheTTL bound the hot detail cache that keeps
	// recently viewed events renderable after list eviction.
	DetailCacheLen int
	DetailCacheTTL time.Duration
}

// EventFeed is the list and detail read model over the sync engine. Derived
// views (upcoming/past partition, category facets, the filtered window) are
// recomputed from the engine's cache on demand; the feed itself holds only
// the user's filter state and the hot detail cache.
type EventFeed struct {
	notifier
	engine  *delta.Engine
	gateway domain.RemoteGateway
	details *expirable.LRU[int64, domain.Event]
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	query    string
	category string

	stopEngine func()
}

func NewEventFeed(engine *delta.Engine, gateway domain.RemoteGateway, cfg FeedConfig, logger *slog.Logger) *EventFeed {
	if cfg.DetailCacheLen <= 0 {
		cfg.DetailCacheLen = defaultDetailCacheLen
	}
	if cfg.DetailCacheTTL <= 0 {
		cfg.DetailCacheTTL = defaultDetailCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	f := &EventFeed{
		engine:   engine,
		gateway:  gateway,
		details:  expirable.NewLRU[int64, domain.Event](cfg.DetailCacheLen, nil, cfg.DetailCacheTTL),
		logger:   logger,
		now:      time.Now,
		category: domain.FacetAll,
	}
	f.stopEngine = engine.Subscribe(f.notify)
	return f
}

// Close detaches the feed from the engine.
func (f *EventFeed) Close() {
	if f.stopEngine != nil {
		f.stopEngine()
	}
}

// Events returns the current pagination window: cached events matching the
// filter, in canonical order, up to the loaded page depth.
func (f *EventFeed) Events() []domain.Event {
	return f.engine.Visible()
}

// State exposes the engine lifecycle so the UI can distinguish a cold load
// from stale-but-serveable data.
func (f *EventFeed) State() delta.State {
	return f.engine.State()
}

// HasMore reports whether another LoadMore could grow the window.
func (f *EventFeed) HasMore() bool {
	return f.engine.HasMore()
}

// Total returns the match count for the current filter and whether it is
// authoritative yet.
func (f *EventFeed) Total() (int, bool) {
	return f.engine.Total()
}

// Query returns the active search text.
func (f *EventFeed) Query() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.query
}

// Category returns the active category facet.
func (f *EventFeed) Category() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.category
}

// Search installs a new query. Matching is local-first: the window
// recomputes from cache immediately, remote completion arrives with the
// next LoadMore.
func (f *EventFeed) Search(query string) {
	f.mu.Lock()
	f.query = query
	category := f.category
	f.mu.Unlock()
	f.engine.SetFilter(query, category)
}

// SetCategory installs a new category facet.
func (f *EventFeed) SetCategory(category string) {
	if category == "" {
		category = domain.FacetAll
	}
	f.mu.Lock()
	f.category = category
	query := f.query
	f.mu.Unlock()
	f.engine.SetFilter(query, category)
}

// LoadMore grows the window by one page.
func (f *EventFeed) LoadMore(ctx context.Context) error {
	return f.engine.LoadMore(ctx)
}

// Refresh is pull-to-refresh: a forced first-page refetch. The hot detail
// cache drops with it so stale details cannot outlive the refreshed list.
func (f *EventFeed) Refresh(ctx context.Context) error {
	if err := f.engine.Refresh(ctx); err != nil {
		return err
	}
	f.details.Purge()
	return nil
}

// Partition splits the filtered events into upcoming and past relative to
// the current instant. It reads the whole filtered cache, not just the
// visible window.
func (f *EventFeed) Partition() (upcoming, past []domain.Event) {
	f.mu.Lock()
	query, category := f.query, f.category
	f.mu.Unlock()
	filtered := domain.FilterEvents(f.engine.All(), query, category)
	return domain.PartitionByTime(filtered, f.now())
}

// Facets lists the category facets over the full cached snapshot, so the
// facet bar stays stable while a filter is active.
func (f *EventFeed) Facets() []string {
	return domain.CategoryFacets(f.engine.All())
}

// Detail returns one event for the detail screen. Lookup order: the synced
// cache (authoritative while the event is listed), then the hot detail
// cache (keeps recently viewed events alive across list eviction), then the
// gateway. Gateway hits are folded back into the cache.
func (f *EventFeed) Detail(ctx context.Context, id int64) (domain.Event, error) {
	if ev, ok := f.engine.Get(id); ok {
		f.details.Add(id, ev)
		return ev, nil
	}
	if ev, ok := f.details.Get(id); ok {
		return ev, nil
	}

	ev, err := f.gateway.GetEvent(ctx, id)
	if err != nil {
		return domain.Event{}, fmt.Errorf("event detail: %w", err)
	}
	f.details.Add(id, ev)
	f.engine.ApplyLocal(ctx, ev)
	return ev, nil
}

// Forget drops an event from the hot detail cache, for callers that just
// learned it no longer exists.
func (f *EventFeed) Forget(id int64) {
	f.details.Remove(id)
}
