package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"eventdeck/internal/domain"
)

// EventCache is the slice of the event feed the user-scoped stores need:
// read a cached event and reflect an authoritative change back into the
// shared list. Satisfied by the delta engine.
type EventCache interface {
	Get(id int64) (domain.Event, bool)
	ApplyLocal(ctx context.Context, events ...domain.Event)
	RemoveLocal(ctx context.Context, ids ...int64)
}

// Tickets is the purchased-tickets store. Purchases precheck against the
// cached event, adjust its counters optimistically, and reconcile with the
// server's authoritative counters afterwards; the ticket rows themselves are
// a user-scoped cached collection of denormalized snapshots.
type Tickets struct {
	notifier
	store   domain.LocalStore
	gateway domain.RemoteGateway
	events  EventCache
	logger  *slog.Logger

	mu      sync.Mutex
	userID  int64
	tickets []domain.Ticket
	lastErr error
}

func NewTickets(store domain.LocalStore, gateway domain.RemoteGateway, events EventCache, logger *slog.Logger) *Tickets {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tickets{
		store:   store,
		gateway: gateway,
		events:  events,
		logger:  logger,
	}
}

// SetUser enters authenticated mode, seeding from the user's cached tickets.
func (s *Tickets) SetUser(ctx context.Context, userID int64) {
	var tickets []domain.Ticket
	if err := domain.GetJSON(ctx, s.store, domain.KeyTickets(userID), &tickets); err != nil && !errors.Is(err, domain.ErrCacheMiss) {
		s.logger.Warn("failed to load cached tickets", "error", err)
	}

	s.mu.Lock()
	s.userID = userID
	s.tickets = tickets
	s.sortLocked()
	s.lastErr = nil
	s.mu.Unlock()
	s.notify()
}

// Reset drops the user state at logout. Tickets have no guest namespace.
func (s *Tickets) Reset() {
	s.mu.Lock()
	s.userID = 0
	s.tickets = nil
	s.lastErr = nil
	s.mu.Unlock()
	s.notify()
}

// List returns the cached tickets, newest purchase first.
func (s *Tickets) List() []domain.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Ticket(nil), s.tickets...)
}

// QuantityOwned reports how many tickets the user already holds for an
// event, which is what the per-user purchase limit counts against.
func (s *Tickets) QuantityOwned(eventID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ownedLocked(eventID)
}

// LastError returns the most recent purchase or refresh failure.
func (s *Tickets) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Purchase buys quantity tickets for an event. The cached event row is
// prechecked so obviously doomed requests (closed, sold out, over the
// per-user limit) fail locally with the same codes the server would use,
// then its counters are adjusted optimistically while the request is on the
// wire. On success the server's counters replace the guess; on failure the
// pre-purchase snapshot is restored exactly. The idempotency key makes the
// retried chain inside the gateway collapse into a single purchase.
func (s *Tickets) Purchase(ctx context.Context, eventID int64, quantity int) (domain.Ticket, error) {
	s.mu.Lock()
	uid := s.userID
	owned := s.ownedLocked(eventID)
	s.mu.Unlock()
	if uid == 0 {
		return domain.Ticket{}, domain.ErrNoSession
	}
	if quantity < 1 {
		return domain.Ticket{}, fmt.Errorf("purchase quantity %d: must be at least 1", quantity)
	}

	event, cached := s.events.Get(eventID)
	if cached {
		if err := precheckPurchase(event, quantity, owned); err != nil {
			s.setLastErr(err)
			return domain.Ticket{}, err
		}
		adjusted := event
		adjusted.Attendees += quantity
		adjusted.AvailableSlot -= quantity
		s.events.ApplyLocal(ctx, adjusted)
	}

	req := domain.PurchaseRequest{
		EventID:        eventID,
		Quantity:       quantity,
		IdempotencyKey: uuid.NewString(),
	}
	if cached {
		req.UnitPrice = event.Price
		req.EventTitle = event.Title
		req.EventLocation = event.Location
		if !event.StartTime.IsZero() {
			req.EventDate = event.StartTime.Format("Jan 2, 2006")
			req.EventTime = event.StartTime.Format("3:04 PM")
		}
	}

	result, err := s.gateway.PurchaseTickets(ctx, req)
	if err != nil {
		if cached {
			s.events.ApplyLocal(ctx, event)
		}
		s.setLastErr(err)
		return domain.Ticket{}, fmt.Errorf("purchase tickets: %w", err)
	}

	// The server's counters are authoritative; overwrite the guess even if
	// the row moved underneath us meanwhile.
	if current, still := s.events.Get(eventID); still {
		current.Attendees = result.Attendees
		current.AvailableSlot = result.AvailableSlot
		s.events.ApplyLocal(ctx, current)
	}

	s.mu.Lock()
	if s.userID != uid {
		// Logged out mid-purchase: the event counters above are shared state
		// and stay reconciled, but the ticket belongs to the previous user's
		// now-purged collection.
		s.mu.Unlock()
		return result.Ticket, nil
	}
	s.tickets = append(s.tickets, result.Ticket)
	s.sortLocked()
	s.lastErr = nil
	// Persist under the lock so a logout purge cannot interleave.
	s.persist(ctx, uid, s.tickets)
	s.mu.Unlock()

	s.notify()
	return result.Ticket, nil
}

// Refresh replaces the cached tickets with the server's list. In guest mode
// it is a no-op so the reconnect resync can call it unconditionally.
func (s *Tickets) Refresh(ctx context.Context) error {
	s.mu.Lock()
	uid := s.userID
	s.mu.Unlock()
	if uid == 0 {
		return nil
	}

	tickets, err := s.gateway.ListTickets(ctx)
	if err != nil {
		s.setLastErr(err)
		return fmt.Errorf("refresh tickets: %w", err)
	}

	s.mu.Lock()
	if s.userID != uid {
		s.mu.Unlock()
		return nil
	}
	s.tickets = tickets
	s.sortLocked()
	s.lastErr = nil
	s.persist(ctx, uid, s.tickets)
	s.mu.Unlock()

	s.notify()
	return nil
}

// precheckPurchase mirrors the server's business rules against the cached
// row, using the same codes so the user-facing message mapping is uniform.
func precheckPurchase(event domain.Event, quantity, owned int) error {
	switch {
	case event.IsClosed:
		return &domain.RemoteError{Code: domain.CodeEventClosed, Message: "ticket sales are closed"}
	case event.AvailableSlot < quantity:
		return &domain.RemoteError{Code: domain.CodeEventSoldOut, Message: "not enough tickets left"}
	case owned+quantity > event.UserMaxTicketPurchase:
		return &domain.RemoteError{Code: domain.CodeTicketLimitReached, Message: "ticket limit reached for this event"}
	}
	return nil
}

func (s *Tickets) ownedLocked(eventID int64) int {
	n := 0
	for _, t := range s.tickets {
		if t.EventID == eventID {
			n += t.Quantity
		}
	}
	return n
}

func (s *Tickets) sortLocked() {
	sort.SliceStable(s.tickets, func(i, j int) bool {
		if !s.tickets[i].PurchaseDate.Equal(s.tickets[j].PurchaseDate) {
			return s.tickets[i].PurchaseDate.After(s.tickets[j].PurchaseDate)
		}
		return s.tickets[i].ID > s.tickets[j].ID
	})
}

func (s *Tickets) setLastErr(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	s.notify()
}

func (s *Tickets) persist(ctx context.Context, userID int64, tickets []domain.Ticket) {
	if err := domain.PutJSON(ctx, s.store, domain.KeyTickets(userID), domain.ScopeUser(userID), tickets); err != nil {
		s.logger.Warn("failed to persist tickets", "error", err)
	}
}
