package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"eventdeck/internal/domain"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func testEvent(id int64, title, category string, start time.Time) domain.Event {
	return domain.Event{
		ID:                    id,
		Title:                 title,
		Category:              category,
		StartTime:             start,
		Price:                 25,
		Capacity:              100,
		Attendees:             10,
		AvailableSlot:         90,
		Tags:                  []string{},
		UserMaxTicketPurchase: 4,
		Organizer:             domain.CommunityOrganizer,
		UpdatedAt:             start,
	}
}

// fakeGateway stubs the remote procedures the services exercise. The
// embedded interface panics on anything a test forgot to stub, which is
// exactly what we want.
type fakeGateway struct {
	domain.RemoteGateway

	mu  sync.Mutex
	ops []string

	batchCalls   int
	batchAdds    [][]int64
	batchRemoves [][]int64
	batchErr     error
	batchEntered chan struct{}
	batchGate    chan struct{}

	favoriteIDs    []int64
	favoriteIDsErr error
	listFavCalls   int

	purchaseResult domain.PurchaseResult
	purchaseErr    error
	purchaseCalls  int
	purchases      []domain.PurchaseRequest

	tickets     []domain.Ticket
	ticketsErr  error
	ticketCalls int

	myEvents      []domain.Event
	myEventsErr   error
	myEventsCalls int

	created    domain.Event
	createErr  error
	updated    domain.Event
	updateErr  error
	lastDraft  domain.EventDraft
	deleteErr  error
	deletedIDs []int64

	event    domain.Event
	eventErr error
	getCalls int

	pages      map[int]domain.EventPage
	listErr    error
	listCalls  int
	lastFilter domain.EventFilter
	byIDs      []domain.Event
	byIDsErr   error
	byIDsCalls int
}

func (g *fakeGateway) ListEvents(ctx context.Context, page, pageSize int, filter domain.EventFilter) (domain.EventPage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ops = append(g.ops, "list_events")
	g.listCalls++
	g.lastFilter = filter
	if g.listErr != nil {
		return domain.EventPage{}, g.listErr
	}
	return g.pages[page], nil
}

func (g *fakeGateway) GetEventsByIDs(ctx context.Context, ids []int64) ([]domain.Event, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ops = append(g.ops, "events_by_ids")
	g.byIDsCalls++
	if g.byIDsErr != nil {
		return nil, g.byIDsErr
	}
	var out []domain.Event
	for _, e := range g.byIDs {
		for _, id := range ids {
			if e.ID == id {
				out = append(out, e)
				break
			}
		}
	}
	return out, nil
}

func (g *fakeGateway) BatchUpdateFavorites(ctx context.Context, add, remove []int64) error {
	g.mu.Lock()
	g.ops = append(g.ops, "batch_update_favorites")
	g.batchCalls++
	g.batchAdds = append(g.batchAdds, append([]int64(nil), add...))
	g.batchRemoves = append(g.batchRemoves, append([]int64(nil), remove...))
	entered, gate, err := g.batchEntered, g.batchGate, g.batchErr
	g.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (g *fakeGateway) ListFavoriteIDs(ctx context.Context) ([]int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ops = append(g.ops, "list_favorite_ids")
	g.listFavCalls++
	if g.favoriteIDsErr != nil {
		return nil, g.favoriteIDsErr
	}
	return append([]int64(nil), g.favoriteIDs...), nil
}

func (g *fakeGateway) PurchaseTickets(ctx context.Context, req domain.PurchaseRequest) (domain.PurchaseResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ops = append(g.ops, "purchase_tickets")
	g.purchaseCalls++
	g.purchases = append(g.purchases, req)
	if g.purchaseErr != nil {
		return domain.PurchaseResult{}, g.purchaseErr
	}
	return g.purchaseResult, nil
}

func (g *fakeGateway) ListTickets(ctx context.Context) ([]domain.Ticket, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ops = append(g.ops, "list_tickets")
	g.ticketCalls++
	if g.ticketsErr != nil {
		return nil, g.ticketsErr
	}
	return append([]domain.Ticket(nil), g.tickets...), nil
}

func (g *fakeGateway) ListMyEvents(ctx context.Context) ([]domain.Event, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ops = append(g.ops, "list_my_events")
	g.myEventsCalls++
	if g.myEventsErr != nil {
		return nil, g.myEventsErr
	}
	return append([]domain.Event(nil), g.myEvents...), nil
}

func (g *fakeGateway) CreateEvent(ctx context.Context, draft domain.EventDraft) (domain.Event, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ops = append(g.ops, "create_event")
	g.lastDraft = draft
	if g.createErr != nil {
		return domain.Event{}, g.createErr
	}
	return g.created, nil
}

func (g *fakeGateway) UpdateEvent(ctx context.Context, id int64, draft domain.EventDraft) (domain.Event, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ops = append(g.ops, "update_event")
	g.lastDraft = draft
	if g.updateErr != nil {
		return domain.Event{}, g.updateErr
	}
	return g.updated, nil
}

func (g *fakeGateway) DeleteEvent(ctx context.Context, id int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ops = append(g.ops, "delete_event")
	g.deletedIDs = append(g.deletedIDs, id)
	return g.deleteErr
}

func (g *fakeGateway) GetEvent(ctx context.Context, id int64) (domain.Event, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ops = append(g.ops, "get_event")
	g.getCalls++
	if g.eventErr != nil {
		return domain.Event{}, g.eventErr
	}
	return g.event, nil
}

func (g *fakeGateway) opLog() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.ops...)
}

func (g *fakeGateway) batches() (calls int, adds, removes [][]int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.batchCalls, g.batchAdds, g.batchRemoves
}

func (g *fakeGateway) set(fn func(*fakeGateway)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(g)
}

func (g *fakeGateway) purchaseLog() []domain.PurchaseRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]domain.PurchaseRequest(nil), g.purchases...)
}

// fakeTokenSink records every bearer token handed to the remote client.
type fakeTokenSink struct {
	mu     sync.Mutex
	tokens []string
}

func (s *fakeTokenSink) SetAuthToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = append(s.tokens, token)
}

func (s *fakeTokenSink) last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.tokens) == 0 {
		return ""
	}
	return s.tokens[len(s.tokens)-1]
}

// fakeEventCache mirrors the delta engine's local-apply behavior closely
// enough for the user-scoped stores: applied events become visible to Get.
type fakeEventCache struct {
	mu      sync.Mutex
	events  map[int64]domain.Event
	applied [][]domain.Event
	removed [][]int64
}

func newFakeEventCache(events ...domain.Event) *fakeEventCache {
	c := &fakeEventCache{events: make(map[int64]domain.Event)}
	for _, e := range events {
		c.events[e.ID] = e
	}
	return c
}

func (c *fakeEventCache) Get(id int64) (domain.Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.events[id]
	return e, ok
}

func (c *fakeEventCache) ApplyLocal(ctx context.Context, events ...domain.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applied = append(c.applied, append([]domain.Event(nil), events...))
	for _, e := range events {
		c.events[e.ID] = e
	}
}

func (c *fakeEventCache) RemoveLocal(ctx context.Context, ids ...int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removed = append(c.removed, append([]int64(nil), ids...))
	for _, id := range ids {
		delete(c.events, id)
	}
}
