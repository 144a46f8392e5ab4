// Package connectivity tracks backend reachability and notifies subscribers
// on transitions. The cache core keys its reconnect resync on these
// transitions, so subscribers fire once per state change, never once per
// probe.
package connectivity

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"eventdeck/internal/domain"
)

const defaultProbeInterval = 15 * time.Second

// Prober polls a reachability check on a fixed interval and fans out
// online/offline transitions. It starts optimistic: the state is online
// until a probe says otherwise, so startup does not look like a reconnect.
type Prober struct {
	check    func(ctx context.Context) bool
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	online  bool
	started bool
	nextID  int
	subs    map[int]func(online bool)
}

var _ domain.ConnectivityObserver = (*Prober)(nil)

// NewProber builds a prober around the given reachability check.
func NewProber(check func(ctx context.Context) bool, interval time.Duration, logger *slog.Logger) *Prober {
	if interval <= 0 {
		interval = defaultProbeInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{
		check:    check,
		interval: interval,
		logger:   logger,
		online:   true,
		subs:     make(map[int]func(online bool)),
	}
}

// HTTPCheck returns a probe that reports whether url answers over HTTP.
// Any response proves the network path; only transport failure counts as
// unreachable.
func HTTPCheck(client *http.Client, url string, timeout time.Duration) func(ctx context.Context) bool {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context) bool {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
		if err != nil {
			return false
		}
		resp, err := client.Do(req)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return true
	}
}

// Start launches the poll loop. It returns immediately; the loop stops when
// ctx is cancelled. Starting twice is a no-op.
func (p *Prober) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started || p.check == nil {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go p.loop(ctx)
}

func (p *Prober) loop(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.SetOnline(p.check(ctx))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.SetOnline(p.check(ctx))
		}
	}
}

// SetOnline records the reachability state and, on a transition, invokes
// every subscriber outside the lock. Platform code with better signals than
// polling (airplane mode toggles) may call this directly.
func (p *Prober) SetOnline(online bool) {
	p.mu.Lock()
	if p.online == online {
		p.mu.Unlock()
		return
	}
	p.online = online
	subs := make([]func(bool), 0, len(p.subs))
	for _, fn := range p.subs {
		subs = append(subs, fn)
	}
	p.mu.Unlock()

	p.logger.Info("connectivity changed", "online", online)
	for _, fn := range subs {
		fn(online)
	}
}

// Online reports the current reachability state.
func (p *Prober) Online() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online
}

// Subscribe registers fn for transitions and returns its unsubscribe func.
func (p *Prober) Subscribe(fn func(online bool)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}
