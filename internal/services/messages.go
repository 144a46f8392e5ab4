package services

import (
	"errors"

	"eventdeck/internal/domain"
)

// User-facing failure messages. Remote rejection codes map to a specific,
// actionable message; everything unrecognized falls back to the generic one.
const (
	MsgSoldOut           = "This event is sold out."
	MsgTicketLimit       = "You've reached the ticket limit for this event."
	MsgEventNotFound     = "This event is no longer available."
	MsgEventClosed       = "Ticket sales for this event have closed."
	MsgFavoriteLimit     = "You've reached your favorites limit."
	MsgNotOwner          = "Only the event organizer can do that."
	MsgConnectionProblem = "Connection problem. Check your network and try again."
	MsgGenericFailure    = "Something went wrong. Please try again."
)

var messageByCode = map[string]string{
	domain.CodeEventSoldOut:         MsgSoldOut,
	domain.CodeTicketLimitReached:   MsgTicketLimit,
	domain.CodeEventNotFound:        MsgEventNotFound,
	domain.CodeEventClosed:          MsgEventClosed,
	domain.CodeFavoriteLimitReached: MsgFavoriteLimit,
	domain.CodeNotEventOwner:        MsgNotOwner,
}

// UserMessage translates a mutation failure into the message shown to the
// user. Transport failures that exhausted the retry budget become the
// connection message; remote rejections map by code.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, domain.ErrConnectivity) || errors.Is(err, domain.ErrOffline) {
		return MsgConnectionProblem
	}
	if errors.Is(err, domain.ErrNotFound) {
		return MsgEventNotFound
	}
	if remoteErr, ok := domain.AsRemoteError(err); ok {
		if msg, ok := messageByCode[remoteErr.Code]; ok {
			return msg
		}
	}
	return MsgGenericFailure
}
