package domain

import "time"

// Wire rows mirror the remote schema: snake_case columns, optional joins.
// Pointer fields distinguish an absent column from a zero value so mapping
// decisions are explicit instead of ad hoc fallbacks at every call site.

// OrganizerRow is the embedded user summary join.
type OrganizerRow struct {
	ID          *int64 `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	AvatarURL   string `json:"avatar_url"`
}

// EventRow is an event as the remote side serializes it.
type EventRow struct {
	ID                    *int64        `json:"id"`
	Title                 *string       `json:"title"`
	Description           string        `json:"description"`
	ImageURL              string        `json:"image_url"`
	StartTime             string        `json:"start_time"`
	Location              string        `json:"location"`
	Address               string        `json:"address"`
	Price                 *float64      `json:"price"`
	Category              string        `json:"category"`
	Organizer             *OrganizerRow `json:"organizer"`
	Capacity              *int          `json:"capacity"`
	Attendees             *int          `json:"attendees"`
	AvailableSlot         *int          `json:"available_slot"`
	Tags                  []string      `json:"tags"`
	UserMaxTicketPurchase *int          `json:"user_max_ticket_purchase"`
	UpdatedAt             string        `json:"updated_at"`
	IsClosed              bool          `json:"is_closed"`
	IsApproved            bool          `json:"is_approved"`
}

// TicketRow is a ticket as the remote side serializes it.
type TicketRow struct {
	ID            *int64   `json:"id"`
	EventID       *int64   `json:"event_id"`
	EventTitle    string   `json:"event_title"`
	EventDate     string   `json:"event_date"`
	EventTime     string   `json:"event_time"`
	EventLocation string   `json:"event_location"`
	Quantity      *int     `json:"quantity"`
	TotalPrice    *float64 `json:"total_price"`
	PurchaseDate  string   `json:"purchase_date"`
	QRCode        string   `json:"qr_code"`
}

// wireTimeLayouts are the accepted remote timestamp encodings, tried in
// order. Anything else maps to the zero time rather than rejecting the row;
// the time partition sorts zero-time events to the tail of "past".
var wireTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseWireTime parses a remote timestamp, returning the zero time when the
// value is absent or unparseable.
func ParseWireTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range wireTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// EventFromRow is the total mapping from the wire schema to Event. Rows
// missing id or title, or carrying negative counters, are rejected with
// *MalformedRowError instead of being admitted half-populated.
func EventFromRow(row EventRow) (Event, error) {
	switch {
	case row.ID == nil || *row.ID <= 0:
		return Event{}, &MalformedRowError{Entity: "event", Field: "id"}
	case row.Title == nil || *row.Title == "":
		return Event{}, &MalformedRowError{Entity: "event", Field: "title"}
	case row.Price != nil && *row.Price < 0:
		return Event{}, &MalformedRowError{Entity: "event", Field: "price"}
	case row.Capacity != nil && *row.Capacity < 0:
		return Event{}, &MalformedRowError{Entity: "event", Field: "capacity"}
	case row.Attendees != nil && *row.Attendees < 0:
		return Event{}, &MalformedRowError{Entity: "event", Field: "attendees"}
	}

	e := Event{
		ID:          *row.ID,
		Title:       *row.Title,
		Description: row.Description,
		ImageURL:    row.ImageURL,
		StartTime:   ParseWireTime(row.StartTime),
		Location:    row.Location,
		Address:     row.Address,
		Category:    row.Category,
		Tags:        row.Tags,
		UpdatedAt:   ParseWireTime(row.UpdatedAt),
		IsClosed:    row.IsClosed,
		IsApproved:  row.IsApproved,
	}
	if row.Price != nil {
		e.Price = *row.Price
	}
	if row.Capacity != nil {
		e.Capacity = *row.Capacity
	}
	if row.Attendees != nil {
		e.Attendees = *row.Attendees
	}
	if row.AvailableSlot != nil {
		e.AvailableSlot = *row.AvailableSlot
	} else {
		// Server omitted the tracked value; fall back to the derivation.
		e.AvailableSlot = e.Capacity - e.Attendees
		if e.AvailableSlot < 0 {
			e.AvailableSlot = 0
		}
	}
	if row.UserMaxTicketPurchase != nil && *row.UserMaxTicketPurchase >= 1 {
		e.UserMaxTicketPurchase = *row.UserMaxTicketPurchase
	} else {
		e.UserMaxTicketPurchase = 1
	}
	if row.Tags == nil {
		e.Tags = []string{}
	}
	e.Organizer = organizerFromRow(row.Organizer)
	return e, nil
}

func organizerFromRow(row *OrganizerRow) Organizer {
	if row == nil || row.ID == nil {
		return CommunityOrganizer
	}
	o := Organizer{
		ID:          *row.ID,
		DisplayName: row.DisplayName,
		Email:       row.Email,
		AvatarURL:   row.AvatarURL,
	}
	if o.DisplayName == "" {
		o.DisplayName = CommunityOrganizer.DisplayName
	}
	return o
}

// EventsFromRows maps a batch of rows, failing on the first malformed one.
func EventsFromRows(rows []EventRow) ([]Event, error) {
	events := make([]Event, 0, len(rows))
	for _, row := range rows {
		e, err := EventFromRow(row)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}

// TicketFromRow is the total mapping from the wire schema to Ticket.
func TicketFromRow(row TicketRow) (Ticket, error) {
	switch {
	case row.ID == nil || *row.ID <= 0:
		return Ticket{}, &MalformedRowError{Entity: "ticket", Field: "id"}
	case row.EventID == nil || *row.EventID <= 0:
		return Ticket{}, &MalformedRowError{Entity: "ticket", Field: "event_id"}
	case row.TotalPrice != nil && *row.TotalPrice < 0:
		return Ticket{}, &MalformedRowError{Entity: "ticket", Field: "total_price"}
	}

	t := Ticket{
		ID:            *row.ID,
		EventID:       *row.EventID,
		EventTitle:    row.EventTitle,
		EventDate:     row.EventDate,
		EventTime:     row.EventTime,
		EventLocation: row.EventLocation,
		Quantity:      1,
		PurchaseDate:  ParseWireTime(row.PurchaseDate),
		QRCode:        row.QRCode,
	}
	if row.Quantity != nil && *row.Quantity >= 1 {
		t.Quantity = *row.Quantity
	}
	if row.TotalPrice != nil {
		t.TotalPrice = *row.TotalPrice
	}
	return t, nil
}

// TicketsFromRows maps a batch of rows, failing on the first malformed one.
func TicketsFromRows(rows []TicketRow) ([]Ticket, error) {
	tickets := make([]Ticket, 0, len(rows))
	for _, row := range rows {
		t, err := TicketFromRow(row)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	return tickets, nil
}
