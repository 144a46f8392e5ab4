// Package session decodes backend-issued access tokens into the session
// identity the cache core scopes user data by.
package session

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"eventdeck/internal/domain"
)

type jwtClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

type jwtInspector struct {
	parser *jwt.Parser
}

// NewJWTInspector returns a TokenInspector that reads JWT claims without
// signature verification. The backend is the verifier; the client only needs
// the subject and expiry to scope and age its cache.
func NewJWTInspector() domain.TokenInspector {
	return &jwtInspector{parser: jwt.NewParser()}
}

func (i *jwtInspector) Inspect(token string) (domain.Session, error) {
	var claims jwtClaims
	if _, _, err := i.parser.ParseUnverified(token, &claims); err != nil {
		return domain.Session{}, fmt.Errorf("failed to parse token: %w", err)
	}
	if claims.Subject == "" {
		return domain.Session{}, fmt.Errorf("token has no subject claim")
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return domain.Session{}, fmt.Errorf("token subject %q is not a user id", claims.Subject)
	}

	session := domain.Session{
		UserID: userID,
		Email:  claims.Email,
		Token:  token,
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	return session, nil
}

// IssueForTest signs a throwaway HS256 token carrying the given identity.
// Production tokens come from the backend; this exists for tests and local
// development against a stub server.
func IssueForTest(userID int64, email string, expiresAt time.Time) (string, error) {
	claims := jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  strconv.FormatInt(userID, 10),
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
		Email: email,
	}
	if !expiresAt.IsZero() {
		claims.ExpiresAt = jwt.NewNumericDate(expiresAt)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("local-development-secret"))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
