package domain

import (
	"context"
	"sort"
	"strings"
	"time"
)

// Organizer is the user summary embedded in an event. When the remote join is
// absent the CommunityOrganizer sentinel is used instead.
type Organizer struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// CommunityOrganizer is the fallback organizer for events whose organizer row
// was not joined by the remote side.
var CommunityOrganizer = Organizer{DisplayName: "Community Event"}

// Event represents a discoverable event. ID is server-assigned and immutable.
// AvailableSlot is derivable from Capacity-Attendees but the server value is
// authoritative and tracked explicitly.
type Event struct {
	ID                    int64     `json:"id"`
	Title                 string    `json:"title"`
	Description           string    `json:"description"`
	ImageURL              string    `json:"image_url"`
	StartTime             time.Time `json:"start_time"` // zero when the source value was absent or unparseable
	Location              string    `json:"location"`
	Address               string    `json:"address"`
	Price                 float64   `json:"price"`
	Category              string    `json:"category"`
	Organizer             Organizer `json:"organizer"`
	Capacity              int       `json:"capacity"`
	Attendees             int       `json:"attendees"`
	AvailableSlot         int       `json:"available_slot"`
	Tags                  []string  `json:"tags"`
	UserMaxTicketPurchase int       `json:"user_max_ticket_purchase"`
	UpdatedAt             time.Time `json:"updated_at"`
	IsClosed              bool      `json:"is_closed"`
	IsApproved            bool      `json:"is_approved"`
}

// SearchText returns the lowercased concatenation of every searchable field.
// Query tokens are matched as substrings against this text.
func (e *Event) SearchText() string {
	parts := []string{e.Title, e.Description, e.Location, e.Category}
	parts = append(parts, e.Tags...)
	return strings.ToLower(strings.Join(parts, " "))
}

// SoldOut reports whether no slots remain.
func (e *Event) SoldOut() bool {
	return e.AvailableSlot <= 0
}

// SortEventsCanonical orders events the way cached event lists are stored:
// start time ascending with id as the tiebreak. Zero start times sort first.
func SortEventsCanonical(events []Event) {
	sort.Slice(events, func(i, j int) bool {
		if !events[i].StartTime.Equal(events[j].StartTime) {
			return events[i].StartTime.Before(events[j].StartTime)
		}
		return events[i].ID < events[j].ID
	})
}

// EventFilter narrows list queries issued against the remote side.
// UpdatedSince and IDs are used by delta sync; Query and Category mirror the
// user-visible filter state.
type EventFilter struct {
	Query        string
	Category     string
	UpdatedSince time.Time
	IDs          []int64
}

// EventPage is one page of a remote list fetch.
type EventPage struct {
	Items      []Event
	TotalCount int
	HasNext    bool
}

// EventDraft carries the organizer-editable fields for create and update
// calls. Server-owned fields (id, attendees, moderation flags) are absent.
type EventDraft struct {
	Title                 string
	Description           string
	ImageURL              string
	StartTime             time.Time
	Location              string
	Address               string
	Price                 float64
	Category              string
	Capacity              int
	Tags                  []string
	UserMaxTicketPurchase int
}

// RemoteGateway is the uniform interface over the remote data service. Every
// operation maps 1:1 to a remote procedure. Implementations wrap each call
// with the per-attempt timeout and retry policy; remote domain errors are
// returned as *RemoteError and are never retried.
type RemoteGateway interface {
	// ListEvents fetches one page of events. Page numbering starts at 1.
	ListEvents(ctx context.Context, page, pageSize int, filter EventFilter) (EventPage, error)
	// GetEventsByIDs fetches the given events. IDs that no longer exist
	// remotely are silently omitted from the result.
	GetEventsByIDs(ctx context.Context, ids []int64) ([]Event, error)
	// GetEvent fetches a single event or ErrNotFound.
	GetEvent(ctx context.Context, id int64) (Event, error)

	// CreateEvent creates an organizer-owned event and returns the stored row.
	CreateEvent(ctx context.Context, draft EventDraft) (Event, error)
	// UpdateEvent updates an organizer-owned event and returns the stored row.
	UpdateEvent(ctx context.Context, id int64, draft EventDraft) (Event, error)
	// DeleteEvent deletes an organizer-owned event.
	DeleteEvent(ctx context.Context, id int64) error
	// ListMyEvents fetches the events owned by the authenticated user.
	ListMyEvents(ctx context.Context) ([]Event, error)

	// AddFavorite and RemoveFavorite mutate a single favorite relation.
	AddFavorite(ctx context.Context, eventID int64) error
	RemoveFavorite(ctx context.Context, eventID int64) error
	// BatchUpdateFavorites applies a net diff in one call.
	BatchUpdateFavorites(ctx context.Context, add, remove []int64) error
	// ListFavoriteIDs fetches the authenticated user's favorite event ids.
	ListFavoriteIDs(ctx context.Context) ([]int64, error)

	// PurchaseTickets buys tickets for an event. The request carries a price
	// snapshot and denormalized event fields so the ticket row is
	// self-contained, plus an idempotency key making retries safe.
	PurchaseTickets(ctx context.Context, req PurchaseRequest) (PurchaseResult, error)
	// ListTickets fetches the authenticated user's tickets.
	ListTickets(ctx context.Context) ([]Ticket, error)
}
