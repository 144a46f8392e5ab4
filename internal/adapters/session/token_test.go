package session

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTInspector_Inspect(t *testing.T) {
	expiry := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	token, err := IssueForTest(42, "u@example.com", expiry)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	inspector := NewJWTInspector()
	session, err := inspector.Inspect(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), session.UserID)
	assert.Equal(t, "u@example.com", session.Email)
	assert.Equal(t, token, session.Token)
	assert.True(t, session.ExpiresAt.Equal(expiry))
	assert.False(t, session.Expired(time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)))
	assert.True(t, session.Expired(expiry.Add(time.Second)))
}

func TestJWTInspector_NoExpiryClaim(t *testing.T) {
	token, err := IssueForTest(7, "", time.Time{})
	require.NoError(t, err)

	session, err := NewJWTInspector().Inspect(token)
	require.NoError(t, err)
	assert.True(t, session.ExpiresAt.IsZero())
	assert.False(t, session.Expired(time.Now().Add(100*365*24*time.Hour)))
}

func TestJWTInspector_RejectsBadTokens(t *testing.T) {
	inspector := NewJWTInspector()

	tests := []struct {
		name  string
		token func(t *testing.T) string
	}{
		{
			name:  "not a jwt",
			token: func(t *testing.T) string { return "garbage" },
		},
		{
			name: "missing subject",
			token: func(t *testing.T) string {
				tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{})
				signed, err := tok.SignedString([]byte("secret"))
				require.NoError(t, err)
				return signed
			},
		},
		{
			name: "non-numeric subject",
			token: func(t *testing.T) string {
				tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "user-abc"})
				signed, err := tok.SignedString([]byte("secret"))
				require.NoError(t, err)
				return signed
			},
		},
		{
			name: "non-positive subject",
			token: func(t *testing.T) string {
				tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "0"})
				signed, err := tok.SignedString([]byte("secret"))
				require.NoError(t, err)
				return signed
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := inspector.Inspect(tt.token(t))
			require.Error(t, err)
		})
	}
}
