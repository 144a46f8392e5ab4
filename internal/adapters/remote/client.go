// Package remote implements domain.RemoteGateway over the backend's RPC
// surface: POST {base}/rpc/{op} with a JSON body, responses wrapped in the
// standard {data, error} envelope.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"eventdeck/internal/domain"
)

// Remote procedure names, 1:1 with RemoteGateway operations.
const (
	opListEvents      = "events.list"
	opEventsByIDs     = "events.by_ids"
	opGetEvent        = "events.get"
	opCreateEvent     = "events.create"
	opUpdateEvent     = "events.update"
	opDeleteEvent     = "events.delete"
	opMyEvents        = "events.mine"
	opAddFavorite     = "favorites.add"
	opRemoveFavorite  = "favorites.remove"
	opBatchFavorites  = "favorites.batch_update"
	opListFavorites   = "favorites.list"
	opPurchaseTickets = "tickets.purchase"
	opListTickets     = "tickets.list"
)

const (
	defaultAttemptTimeout = 8 * time.Second
	defaultRetryAttempts  = 3
	defaultRetryDelay     = 2 * time.Second
)

// Config carries the transport knobs for a Client.
type Config struct {
	BaseURL string
	APIKey  string
	// HTTPClient defaults to http.DefaultClient. Per-attempt deadlines come
	// from AttemptTimeout, not from the http.Client's own Timeout.
	HTTPClient *http.Client
	// AttemptTimeout bounds a single network attempt, not the whole call.
	AttemptTimeout time.Duration
	RetryAttempts  int
	RetryDelay     time.Duration
	// OnSlowConnection is invoked at most once per call chain, on the first
	// attempt that times out. Optional.
	OnSlowConnection func()
}

// Client is the HTTP RemoteGateway. Transport failures are retried with a
// fixed delay; remote business rejections (*domain.RemoteError) are terminal
// and returned as-is.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	attemptTimeout time.Duration
	attempts       int
	delay          time.Duration
	onSlow         func()
	logger         *slog.Logger

	mu        sync.RWMutex
	authToken string
}

var _ domain.RemoteGateway = (*Client)(nil)

// NewClient returns a gateway client for the given backend. Zero config
// fields fall back to the default retry policy.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = defaultAttemptTimeout
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = defaultRetryAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient:     cfg.HTTPClient,
		baseURL:        cfg.BaseURL,
		apiKey:         cfg.APIKey,
		attemptTimeout: cfg.AttemptTimeout,
		attempts:       cfg.RetryAttempts,
		delay:          cfg.RetryDelay,
		onSlow:         cfg.OnSlowConnection,
		logger:         logger,
	}
}

// SetAuthToken installs the bearer token sent with subsequent calls. An empty
// token reverts the client to anonymous calls.
func (c *Client) SetAuthToken(token string) {
	c.mu.Lock()
	c.authToken = token
	c.mu.Unlock()
}

func (c *Client) currentToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authToken
}

// apiError mirrors the backend's error envelope member.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// envelope is the backend's standard response wrapper. On success Data is
// set and Error is nil; on rejection Error carries the domain code.
type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *apiError       `json:"error"`
}

// call runs one logical RPC: marshal payload, attempt with a per-attempt
// timeout, retry transport failures up to the attempt budget with a fixed
// delay in between. A *domain.RemoteError ends the chain immediately.
func (c *Client) call(ctx context.Context, op string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", op, err)
	}

	slowSignaled := false
	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: %w", op, ctx.Err())
			case <-time.After(c.delay):
			}
		}

		err := c.attempt(ctx, op, body, out)
		if err == nil {
			return nil
		}
		var remoteErr *domain.RemoteError
		if errors.As(err, &remoteErr) {
			return err
		}
		if ctx.Err() != nil {
			// Caller cancelled; the attempt error is just its echo.
			return fmt.Errorf("%s: %w", op, ctx.Err())
		}
		if !slowSignaled && isTimeout(err) && c.onSlow != nil {
			slowSignaled = true
			c.onSlow()
		}
		lastErr = err
		c.logger.Warn("rpc attempt failed", "op", op, "attempt", attempt, "error", err)
	}
	return fmt.Errorf("%s failed after %d attempts: %w: %w", op, c.attempts, lastErr, domain.ErrConnectivity)
}

func (c *Client) attempt(ctx context.Context, op string, body []byte, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rpc/"+op, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	if token := c.currentToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach backend: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
			return fmt.Errorf("backend returned status %d", resp.StatusCode)
		}
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if env.Error != nil && env.Error.Code != "" {
		return &domain.RemoteError{Code: env.Error.Code, Message: env.Error.Message}
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("backend returned status %d", resp.StatusCode)
	}
	if out != nil && len(env.Data) > 0 && !bytes.Equal(env.Data, []byte("null")) {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to decode response data: %w", err)
		}
	}
	return nil
}

// isTimeout reports whether err is a per-attempt deadline trip rather than
// some other transport failure.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

type listEventsRequest struct {
	Page         int    `json:"page"`
	PageSize     int    `json:"page_size"`
	Query        string `json:"query,omitempty"`
	Category     string `json:"category,omitempty"`
	UpdatedSince string `json:"updated_since,omitempty"`
}

type listEventsResponse struct {
	Items      []domain.EventRow `json:"items"`
	TotalCount int               `json:"total_count"`
	HasNext    bool              `json:"has_next"`
}

func (c *Client) ListEvents(ctx context.Context, page, pageSize int, filter domain.EventFilter) (domain.EventPage, error) {
	req := listEventsRequest{
		Page:     page,
		PageSize: pageSize,
		Query:    filter.Query,
		Category: filter.Category,
	}
	if !filter.UpdatedSince.IsZero() {
		req.UpdatedSince = filter.UpdatedSince.UTC().Format(time.RFC3339Nano)
	}
	var resp listEventsResponse
	if err := c.call(ctx, opListEvents, req, &resp); err != nil {
		return domain.EventPage{}, fmt.Errorf("list events: %w", err)
	}
	items, err := domain.EventsFromRows(resp.Items)
	if err != nil {
		return domain.EventPage{}, fmt.Errorf("list events: %w", err)
	}
	return domain.EventPage{Items: items, TotalCount: resp.TotalCount, HasNext: resp.HasNext}, nil
}

type eventsByIDsRequest struct {
	IDs []int64 `json:"ids"`
}

type eventItemsResponse struct {
	Items []domain.EventRow `json:"items"`
}

// GetEventsByIDs fetches the given events. Ids deleted remotely are simply
// absent from the response; callers treat the omission as the deletion signal.
func (c *Client) GetEventsByIDs(ctx context.Context, ids []int64) ([]domain.Event, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var resp eventItemsResponse
	if err := c.call(ctx, opEventsByIDs, eventsByIDsRequest{IDs: ids}, &resp); err != nil {
		return nil, fmt.Errorf("get events by ids: %w", err)
	}
	events, err := domain.EventsFromRows(resp.Items)
	if err != nil {
		return nil, fmt.Errorf("get events by ids: %w", err)
	}
	return events, nil
}

type eventIDRequest struct {
	ID int64 `json:"id"`
}

func (c *Client) GetEvent(ctx context.Context, id int64) (domain.Event, error) {
	var row domain.EventRow
	if err := c.call(ctx, opGetEvent, eventIDRequest{ID: id}, &row); err != nil {
		if domain.IsRemoteCode(err, domain.CodeEventNotFound) {
			return domain.Event{}, fmt.Errorf("event %d: %w", id, domain.ErrNotFound)
		}
		return domain.Event{}, fmt.Errorf("get event %d: %w", id, err)
	}
	event, err := domain.EventFromRow(row)
	if err != nil {
		return domain.Event{}, fmt.Errorf("get event %d: %w", id, err)
	}
	return event, nil
}

type eventDraftRow struct {
	ID                    int64    `json:"id,omitempty"`
	Title                 string   `json:"title"`
	Description           string   `json:"description"`
	ImageURL              string   `json:"image_url"`
	StartTime             string   `json:"start_time"`
	Location              string   `json:"location"`
	Address               string   `json:"address"`
	Price                 float64  `json:"price"`
	Category              string   `json:"category"`
	Capacity              int      `json:"capacity"`
	Tags                  []string `json:"tags"`
	UserMaxTicketPurchase int      `json:"user_max_ticket_purchase"`
}

func draftRow(id int64, draft domain.EventDraft) eventDraftRow {
	row := eventDraftRow{
		ID:                    id,
		Title:                 draft.Title,
		Description:           draft.Description,
		ImageURL:              draft.ImageURL,
		Location:              draft.Location,
		Address:               draft.Address,
		Price:                 draft.Price,
		Category:              draft.Category,
		Capacity:              draft.Capacity,
		Tags:                  draft.Tags,
		UserMaxTicketPurchase: draft.UserMaxTicketPurchase,
	}
	if !draft.StartTime.IsZero() {
		row.StartTime = draft.StartTime.UTC().Format(time.RFC3339Nano)
	}
	return row
}

func (c *Client) CreateEvent(ctx context.Context, draft domain.EventDraft) (domain.Event, error) {
	var row domain.EventRow
	if err := c.call(ctx, opCreateEvent, draftRow(0, draft), &row); err != nil {
		return domain.Event{}, fmt.Errorf("create event: %w", err)
	}
	event, err := domain.EventFromRow(row)
	if err != nil {
		return domain.Event{}, fmt.Errorf("create event: %w", err)
	}
	return event, nil
}

func (c *Client) UpdateEvent(ctx context.Context, id int64, draft domain.EventDraft) (domain.Event, error) {
	var row domain.EventRow
	if err := c.call(ctx, opUpdateEvent, draftRow(id, draft), &row); err != nil {
		return domain.Event{}, fmt.Errorf("update event %d: %w", id, err)
	}
	event, err := domain.EventFromRow(row)
	if err != nil {
		return domain.Event{}, fmt.Errorf("update event %d: %w", id, err)
	}
	return event, nil
}

func (c *Client) DeleteEvent(ctx context.Context, id int64) error {
	if err := c.call(ctx, opDeleteEvent, eventIDRequest{ID: id}, nil); err != nil {
		return fmt.Errorf("delete event %d: %w", id, err)
	}
	return nil
}

func (c *Client) ListMyEvents(ctx context.Context) ([]domain.Event, error) {
	var resp eventItemsResponse
	if err := c.call(ctx, opMyEvents, struct{}{}, &resp); err != nil {
		return nil, fmt.Errorf("list my events: %w", err)
	}
	events, err := domain.EventsFromRows(resp.Items)
	if err != nil {
		return nil, fmt.Errorf("list my events: %w", err)
	}
	return events, nil
}

type favoriteRequest struct {
	EventID int64 `json:"event_id"`
}

func (c *Client) AddFavorite(ctx context.Context, eventID int64) error {
	if err := c.call(ctx, opAddFavorite, favoriteRequest{EventID: eventID}, nil); err != nil {
		return fmt.Errorf("add favorite %d: %w", eventID, err)
	}
	return nil
}

func (c *Client) RemoveFavorite(ctx context.Context, eventID int64) error {
	if err := c.call(ctx, opRemoveFavorite, favoriteRequest{EventID: eventID}, nil); err != nil {
		return fmt.Errorf("remove favorite %d: %w", eventID, err)
	}
	return nil
}

type batchFavoritesRequest struct {
	Add    []int64 `json:"add"`
	Remove []int64 `json:"remove"`
}

func (c *Client) BatchUpdateFavorites(ctx context.Context, add, remove []int64) error {
	if len(add) == 0 && len(remove) == 0 {
		return nil
	}
	req := batchFavoritesRequest{Add: add, Remove: remove}
	if err := c.call(ctx, opBatchFavorites, req, nil); err != nil {
		return fmt.Errorf("batch update favorites: %w", err)
	}
	return nil
}

type favoriteIDsResponse struct {
	EventIDs []int64 `json:"event_ids"`
}

func (c *Client) ListFavoriteIDs(ctx context.Context) ([]int64, error) {
	var resp favoriteIDsResponse
	if err := c.call(ctx, opListFavorites, struct{}{}, &resp); err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}
	return resp.EventIDs, nil
}

type purchaseRequest struct {
	EventID        int64   `json:"event_id"`
	Quantity       int     `json:"quantity"`
	UnitPrice      float64 `json:"unit_price"`
	EventTitle     string  `json:"event_title"`
	EventDate      string  `json:"event_date"`
	EventTime      string  `json:"event_time"`
	EventLocation  string  `json:"event_location"`
	IdempotencyKey string  `json:"idempotency_key"`
}

type purchaseResponse struct {
	Ticket        domain.TicketRow `json:"ticket"`
	Attendees     *int             `json:"attendees"`
	AvailableSlot *int             `json:"available_slot"`
}

func (c *Client) PurchaseTickets(ctx context.Context, req domain.PurchaseRequest) (domain.PurchaseResult, error) {
	payload := purchaseRequest{
		EventID:        req.EventID,
		Quantity:       req.Quantity,
		UnitPrice:      req.UnitPrice,
		EventTitle:     req.EventTitle,
		EventDate:      req.EventDate,
		EventTime:      req.EventTime,
		EventLocation:  req.EventLocation,
		IdempotencyKey: req.IdempotencyKey,
	}
	var resp purchaseResponse
	if err := c.call(ctx, opPurchaseTickets, payload, &resp); err != nil {
		return domain.PurchaseResult{}, fmt.Errorf("purchase tickets: %w", err)
	}
	ticket, err := domain.TicketFromRow(resp.Ticket)
	if err != nil {
		return domain.PurchaseResult{}, fmt.Errorf("purchase tickets: %w", err)
	}
	// The counters are authoritative; a response without them cannot be
	// reconciled and is rejected like any malformed row.
	if resp.Attendees == nil {
		return domain.PurchaseResult{}, fmt.Errorf("purchase tickets: %w", &domain.MalformedRowError{Entity: "purchase", Field: "attendees"})
	}
	if resp.AvailableSlot == nil {
		return domain.PurchaseResult{}, fmt.Errorf("purchase tickets: %w", &domain.MalformedRowError{Entity: "purchase", Field: "available_slot"})
	}
	return domain.PurchaseResult{
		Ticket:        ticket,
		Attendees:     *resp.Attendees,
		AvailableSlot: *resp.AvailableSlot,
	}, nil
}

type ticketItemsResponse struct {
	Items []domain.TicketRow `json:"items"`
}

func (c *Client) ListTickets(ctx context.Context) ([]domain.Ticket, error) {
	var resp ticketItemsResponse
	if err := c.call(ctx, opListTickets, struct{}{}, &resp); err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	tickets, err := domain.TicketsFromRows(resp.Items)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	return tickets, nil
}
