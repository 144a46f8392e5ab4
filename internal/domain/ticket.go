package domain

import "time"

// Ticket is a purchased ticket. The event fields are a denormalized snapshot
// taken at purchase time on purpose: the event row may change or disappear
// afterwards and the ticket must keep rendering as sold.
type Ticket struct {
	ID            int64     `json:"id"`
	EventID       int64     `json:"event_id"` // may reference a since-deleted event
	EventTitle    string    `json:"event_title"`
	EventDate     string    `json:"event_date"`
	EventTime     string    `json:"event_time"`
	EventLocation string    `json:"event_location"`
	Quantity      int       `json:"quantity"`
	TotalPrice    float64   `json:"total_price"`
	PurchaseDate  time.Time `json:"purchase_date"`
	QRCode        string    `json:"qr_code"`
}

// PurchaseRequest is the payload of the purchase procedure. UnitPrice and the
// Event* fields snapshot the event as the buyer saw it; IdempotencyKey lets
// the remote side collapse a retried chain into a single purchase.
type PurchaseRequest struct {
	EventID        int64
	Quantity       int
	UnitPrice      float64
	EventTitle     string
	EventDate      string
	EventTime      string
	EventLocation  string
	IdempotencyKey string
}

// PurchaseResult is the authoritative outcome of a purchase: the created
// ticket plus the server-side counters, which may differ from the optimistic
// guess when other buyers raced the same event.
type PurchaseResult struct {
	Ticket        Ticket
	Attendees     int
	AvailableSlot int
}
