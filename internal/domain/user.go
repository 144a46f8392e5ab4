package domain

import "time"

// Session is the authenticated identity the cache core scopes user data by.
// The token is an opaque credential issued by the backend; the client only
// reads its claims (subject, expiry), it never verifies signatures.
type Session struct {
	UserID    int64
	Email     string
	Token     string
	ExpiresAt time.Time
}

// Expired reports whether the session token is past its expiry at now.
// Tokens without an expiry claim never expire client-side.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// TokenInspector extracts the session identity from a backend-issued access
// token. Implementations decode claims without signature verification; the
// token is still sent verbatim to the remote side, which does verify.
type TokenInspector interface {
	Inspect(token string) (Session, error)
}
