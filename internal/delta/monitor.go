package delta

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"eventdeck/internal/domain"
)

// SyncTarget is one unit of reconnect work: an engine resync, a store
// refresh, a pending-mutation flush.
type SyncTarget func(ctx context.Context) error

// Monitor turns offline-to-online transitions into one resync pass over its
// targets. Subscribing to the observer rather than polling it guarantees
// exactly one pass per transition. Target errors are logged, never surfaced:
// the user did not initiate this work.
type Monitor struct {
	observer domain.ConnectivityObserver
	targets  []SyncTarget
	logger   *slog.Logger

	mu          sync.Mutex
	unsubscribe func()
}

func NewMonitor(observer domain.ConnectivityObserver, logger *slog.Logger, targets ...SyncTarget) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{observer: observer, targets: targets, logger: logger}
}

// Start subscribes to connectivity transitions. The resync pass runs on its
// own goroutine and stops scheduling when ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unsubscribe != nil {
		return
	}
	m.unsubscribe = m.observer.Subscribe(func(online bool) {
		if !online {
			m.logger.Info("connectivity lost")
			return
		}
		if ctx.Err() != nil {
			return
		}
		m.logger.Info("connectivity restored, resyncing")
		go m.runTargets(ctx)
	})
}

// Stop unsubscribes from the observer. In-flight resync work finishes on its
// own; it is bounded by the gateway retry budget.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
}

func (m *Monitor) runTargets(ctx context.Context) {
	for _, target := range m.targets {
		if ctx.Err() != nil {
			return
		}
		err := target(ctx)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrSyncInProgress):
			// Another path is already syncing; nothing lost.
		default:
			m.logger.Warn("reconnect resync failed", "error", err)
		}
	}
}
