package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the cache core.
var (
	// ErrNotFound is returned when a requested entity does not exist remotely.
	ErrNotFound = errors.New("not found")
	// ErrCacheMiss is returned by the local store when a key is absent or its
	// value could not be decoded.
	ErrCacheMiss = errors.New("cache miss")
	// ErrOffline signals cold-start hydration with no cached data and no
	// reachable remote: a hard "offline, no data" state, distinct from stale
	// data being served.
	ErrOffline = errors.New("offline and no cached data")
	// ErrConnectivity wraps a transport failure that survived the whole retry
	// chain. Mutation callers map it to the "connection problem" message.
	ErrConnectivity = errors.New("connection problem")
	// ErrSyncInProgress is returned when a sync is requested while another
	// sync of the same collection is still in flight. The request no-ops;
	// it is never queued.
	ErrSyncInProgress = errors.New("sync already in progress")
	// ErrNoSession is returned by user-scoped operations when nobody is
	// logged in.
	ErrNoSession = errors.New("no active session")
	// ErrSessionExpired is returned when the stored session token is past its
	// expiry claim.
	ErrSessionExpired = errors.New("session expired")
)

// Remote domain-error codes. The remote side rejects mutations for business
// reasons with one of these; they are terminal and must never be retried.
const (
	CodeEventSoldOut         = "EVENT_SOLD_OUT"
	CodeTicketLimitReached   = "USER_TICKET_LIMIT_REACHED"
	CodeEventNotFound        = "EVENT_NOT_FOUND"
	CodeEventClosed          = "EVENT_CLOSED"
	CodeFavoriteLimitReached = "FAVORITE_LIMIT_REACHED"
	CodeNotEventOwner        = "NOT_EVENT_OWNER"
)

// RemoteError is a business rejection from the remote side. Transport
// failures are ordinary wrapped errors; a RemoteError means the call reached
// the server and was refused.
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote error %s", e.Code)
	}
	return fmt.Sprintf("remote error %s: %s", e.Code, e.Message)
}

// AsRemoteError unwraps err into a *RemoteError if one is in the chain.
func AsRemoteError(err error) (*RemoteError, bool) {
	var re *RemoteError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// IsRemoteCode reports whether err is a RemoteError carrying the given code.
func IsRemoteCode(err error, code string) bool {
	re, ok := AsRemoteError(err)
	return ok && re.Code == code
}

// MalformedRowError is raised at the wire mapping boundary when a remote row
// is missing required fields. The row is rejected outright rather than
// admitted half-populated into the cache.
type MalformedRowError struct {
	Entity string
	Field  string
}

func (e *MalformedRowError) Error() string {
	return fmt.Sprintf("malformed %s row: missing %s", e.Entity, e.Field)
}
