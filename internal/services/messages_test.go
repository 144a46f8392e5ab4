package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"eventdeck/internal/domain"
)

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil error", nil, ""},
		{
			"exhausted retry chain",
			fmt.Errorf("events.list failed after 3 attempts: %w: %w", errors.New("dial tcp: timeout"), domain.ErrConnectivity),
			MsgConnectionProblem,
		},
		{"offline cold start", fmt.Errorf("hydrate events: %w", domain.ErrOffline), MsgConnectionProblem},
		{"deleted event", fmt.Errorf("event detail: %w", domain.ErrNotFound), MsgEventNotFound},
		{
			"sold out, wrapped by the purchase path",
			fmt.Errorf("purchase tickets: %w", &domain.RemoteError{Code: domain.CodeEventSoldOut, Message: "sold out"}),
			MsgSoldOut,
		},
		{"ticket limit", &domain.RemoteError{Code: domain.CodeTicketLimitReached}, MsgTicketLimit},
		{"sales closed", &domain.RemoteError{Code: domain.CodeEventClosed}, MsgEventClosed},
		{"not the organizer", &domain.RemoteError{Code: domain.CodeNotEventOwner}, MsgNotOwner},
		{"unknown remote code", &domain.RemoteError{Code: "QUOTA_EXCEEDED"}, MsgGenericFailure},
		{"plain failure", errors.New("something odd"), MsgGenericFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UserMessage(tt.err))
		})
	}
}

func TestUserMessage_SoldOutDistinctFromGeneric(t *testing.T) {
	soldOut := UserMessage(&domain.RemoteError{Code: domain.CodeEventSoldOut})
	generic := UserMessage(errors.New("boom"))
	assert.NotEqual(t, generic, soldOut)
}
