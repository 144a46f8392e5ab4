// Package eventdeck is the offline-first client core for the Eventdeck
// backend: a delta-synced event cache with optimistic mutations, favorites,
// tickets, organizer-owned events, and session scoping, exposed as reactive
// stores a UI shell observes. The package wires the adapters together; all
// behavior lives in the internal packages.
package eventdeck

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"eventdeck/config"
	"eventdeck/internal/adapters/connectivity"
	"eventdeck/internal/adapters/remote"
	"eventdeck/internal/adapters/session"
	"eventdeck/internal/delta"
	"eventdeck/internal/domain"
	"eventdeck/internal/repository/memory"
	"eventdeck/internal/repository/sqlite"
	"eventdeck/internal/services"
)

// Options are the optional integration points a UI shell provides. The zero
// value is a working default: sqlite-or-memory store per config, HTTP
// connectivity probing against the backend, default transport.
type Options struct {
	// OnSlowConnection fires once per failed retry chain, on the first
	// attempt that times out. Hook for a "slow connection" toast.
	OnSlowConnection func()
	// HTTPClient overrides the transport used by the remote client and the
	// connectivity probe.
	HTTPClient *http.Client
	// Store overrides the durable cache.
	Store domain.LocalStore
	// Observer overrides the connectivity prober, for shells that get
	// reachability from the platform instead of polling.
	Observer domain.ConnectivityObserver
}

// App is the assembled client core. The exported stores are safe for
// concurrent use; everything else is plumbing owned by the App.
type App struct {
	Feed      *services.EventFeed
	Favorites *services.Favorites
	Tickets   *services.Tickets
	MyEvents  *services.MyEvents
	Session   *services.Session

	cfg        *config.Config
	logger     *slog.Logger
	store      domain.LocalStore
	closeStore func() error
	client     *remote.Client
	engine     *delta.Engine
	marks      *delta.WatermarkStore
	observer   domain.ConnectivityObserver
	prober     *connectivity.Prober
	monitor    *delta.Monitor
	cancel     context.CancelFunc
}

// New assembles the client core. A nil cfg loads configuration from the
// environment; a nil logger gets the configured default.
func New(cfg *config.Config, logger *slog.Logger, opts Options) (*App, error) {
	if cfg == nil {
		loaded, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if logger == nil {
		logger = config.NewLogger()
	}

	store := opts.Store
	var closeStore func() error
	if store == nil {
		if cfg.CacheDBPath == "" {
			store = memory.NewStore()
		} else {
			dbStore, err := sqlite.Open(cfg.CacheDBPath, logger)
			if err != nil {
				return nil, fmt.Errorf("open local cache: %w", err)
			}
			store = dbStore
			closeStore = dbStore.Close
		}
	}

	client := remote.NewClient(remote.Config{
		BaseURL:          cfg.BackendURL,
		APIKey:           cfg.APIKey,
		HTTPClient:       opts.HTTPClient,
		AttemptTimeout:   cfg.AttemptTimeout,
		RetryAttempts:    cfg.RetryAttempts,
		RetryDelay:       cfg.RetryDelay,
		OnSlowConnection: opts.OnSlowConnection,
	}, logger)

	observer := opts.Observer
	var prober *connectivity.Prober
	if observer == nil {
		probeClient := opts.HTTPClient
		if probeClient == nil {
			probeClient = http.DefaultClient
		}
		prober = connectivity.NewProber(
			connectivity.HTTPCheck(probeClient, cfg.BackendURL, cfg.AttemptTimeout),
			cfg.ProbeInterval,
			logger,
		)
		observer = prober
	}

	marks := delta.NewWatermarkStore(store, logger)
	engine := delta.NewEngine(client, store, marks, delta.Config{
		PageSize: cfg.PageSize,
		TTL:      cfg.CacheTTL,
	}, logger)

	feed := services.NewEventFeed(engine, client, services.FeedConfig{
		DetailCacheLen: cfg.DetailCacheLen,
		DetailCacheTTL: cfg.DetailCacheTTL,
	}, logger)
	favorites := services.NewFavorites(store, client, cfg.FavoriteDebounce, logger)
	tickets := services.NewTickets(store, client, engine, logger)
	myEvents := services.NewMyEvents(store, client, engine, logger)
	sess := services.NewSession(store, client, session.NewJWTInspector(), marks, favorites, tickets, myEvents, logger)

	monitor := delta.NewMonitor(observer, logger,
		engine.Sync,
		favorites.Sync,
		tickets.Refresh,
		myEvents.Refresh,
	)

	return &App{
		Feed:       feed,
		Favorites:  favorites,
		Tickets:    tickets,
		MyEvents:   myEvents,
		Session:    sess,
		cfg:        cfg,
		logger:     logger,
		store:      store,
		closeStore: closeStore,
		client:     client,
		engine:     engine,
		marks:      marks,
		observer:   observer,
		prober:     prober,
		monitor:    monitor,
	}, nil
}

// Start restores any persisted session, begins connectivity monitoring, and
// hydrates the event cache. A cold start with no cached data and no network
// returns an error wrapping domain.ErrOffline; the app keeps running and the
// reconnect resync fills the cache when the network comes back.
func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if err := a.Session.Restore(ctx); err != nil {
		a.logger.Warn("session not restored", "error", err)
	}
	if !a.Session.LoggedIn() {
		a.Favorites.LoadGuest(ctx)
	}

	if a.prober != nil {
		a.prober.Start(runCtx)
	}
	a.monitor.Start(runCtx)

	return a.engine.Hydrate(ctx)
}

// Online reports current network reachability.
func (a *App) Online() bool {
	return a.observer.Online()
}

// UserMessage translates a store error into its user-facing message.
func (a *App) UserMessage(err error) string {
	return services.UserMessage(err)
}

// Close stops background work and releases the cache database. Pending
// favorite flushes are not waited for; the optimistic state is already
// persisted and reconciles on the next session.
func (a *App) Close() error {
	if a.cancel != nil {
		a.cancel()
	}
	a.monitor.Stop()
	a.Feed.Close()
	if a.closeStore != nil {
		return a.closeStore()
	}
	return nil
}
