package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventdeck/internal/adapters/session"
	"eventdeck/internal/delta"
	"eventdeck/internal/domain"
	"eventdeck/internal/repository/memory"
)

type sessionFixture struct {
	sess    *Session
	store   *memory.Store
	gw      *fakeGateway
	sink    *fakeTokenSink
	favs    *Favorites
	tickets *Tickets
	my      *MyEvents
	marks   *delta.WatermarkStore
}

func newSessionFixture(favoriteDebounce time.Duration) *sessionFixture {
	store := memory.NewStore()
	gw := &fakeGateway{}
	cache := newFakeEventCache()
	favs := NewFavorites(store, gw, favoriteDebounce, testLogger)
	tickets := NewTickets(store, gw, cache, testLogger)
	my := NewMyEvents(store, gw, cache, testLogger)
	marks := delta.NewWatermarkStore(store, testLogger)
	sink := &fakeTokenSink{}
	return &sessionFixture{
		sess:    NewSession(store, sink, session.NewJWTInspector(), marks, favs, tickets, my, testLogger),
		store:   store,
		gw:      gw,
		sink:    sink,
		favs:    favs,
		tickets: tickets,
		my:      my,
		marks:   marks,
	}
}

func mustToken(t *testing.T, userID int64, email string, expiresAt time.Time) string {
	t.Helper()
	token, err := session.IssueForTest(userID, email, expiresAt)
	require.NoError(t, err)
	return token
}

func TestSession_LoginActivatesUserScopes(t *testing.T) {
	ctx := context.Background()
	fx := newSessionFixture(time.Hour)

	require.NoError(t, domain.PutJSON(ctx, fx.store, domain.KeyFavoritesGuest, domain.ScopePublic, []int64{1, 2, 3}))
	require.NoError(t, domain.PutJSON(ctx, fx.store, domain.KeyFavoritesUser(7), domain.ScopeUser(7), []int64{2, 4}))
	fx.favs.LoadGuest(ctx)

	token := mustToken(t, 7, "pat@example.com", time.Now().Add(time.Hour))
	sess, err := fx.sess.Login(ctx, token)
	require.NoError(t, err)

	assert.Equal(t, int64(7), sess.UserID)
	assert.Equal(t, "pat@example.com", sess.Email)
	assert.True(t, fx.sess.LoggedIn())
	assert.Equal(t, token, fx.sink.last())

	// The account's cached favorites replace the guest view, but the guest
	// set stays on disk until the user confirms the merge.
	assert.Equal(t, []int64{2, 4}, fx.favs.IDs())
	assert.Equal(t, []int64{1, 3}, fx.favs.PendingGuestMerge(ctx))

	var stored string
	require.NoError(t, domain.GetJSON(ctx, fx.store, domain.KeySessionToken, &stored))
	assert.Equal(t, token, stored)
}

func TestSession_LoginRejectsExpiredToken(t *testing.T) {
	ctx := context.Background()
	fx := newSessionFixture(time.Hour)

	token := mustToken(t, 7, "pat@example.com", time.Now().Add(-time.Minute))
	_, err := fx.sess.Login(ctx, token)
	assert.ErrorIs(t, err, domain.ErrSessionExpired)
	assert.False(t, fx.sess.LoggedIn())
	assert.Empty(t, fx.sink.last())
}

func TestSession_RestoreRevivesPersistedSession(t *testing.T) {
	ctx := context.Background()
	fx := newSessionFixture(time.Hour)

	token := mustToken(t, 7, "pat@example.com", time.Now().Add(time.Hour))
	require.NoError(t, domain.PutJSON(ctx, fx.store, domain.KeySessionToken, domain.ScopePublic, token))

	require.NoError(t, fx.sess.Restore(ctx))
	assert.True(t, fx.sess.LoggedIn())
	assert.Equal(t, int64(7), fx.sess.Current().UserID)
	assert.Equal(t, token, fx.sink.last())
}

func TestSession_RestoreWithoutTokenStaysGuest(t *testing.T) {
	fx := newSessionFixture(time.Hour)
	require.NoError(t, fx.sess.Restore(context.Background()))
	assert.False(t, fx.sess.LoggedIn())
	assert.Empty(t, fx.sink.last())
}

func TestSession_RestoreDropsDeadTokens(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		token string
	}{
		{"expired", ""},
		{"garbage", "not-a-jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newSessionFixture(time.Hour)
			token := tt.token
			if token == "" {
				token = mustToken(t, 7, "pat@example.com", time.Now().Add(-time.Hour))
			}
			require.NoError(t, domain.PutJSON(ctx, fx.store, domain.KeySessionToken, domain.ScopePublic, token))

			err := fx.sess.Restore(ctx)
			require.Error(t, err)
			assert.False(t, fx.sess.LoggedIn())

			// The dead token is gone, so the next start is a clean guest.
			var leftover string
			assert.ErrorIs(t, domain.GetJSON(ctx, fx.store, domain.KeySessionToken, &leftover), domain.ErrCacheMiss)
		})
	}
}

func TestSession_LogoutPurgesUserScopeAndKeepsPublicCache(t *testing.T) {
	ctx := context.Background()
	fx := newSessionFixture(time.Hour)

	// Public-scope data that must survive logout.
	require.NoError(t, domain.PutJSON(ctx, fx.store, domain.KeyEventListIDs, domain.ScopePublic, []int64{1, 2}))
	require.NoError(t, domain.PutJSON(ctx, fx.store, domain.KeyFavoritesGuest, domain.ScopePublic, []int64{8}))
	require.NoError(t, fx.marks.Advance(ctx, domain.CollectionEvents, time.Now()))

	token := mustToken(t, 7, "pat@example.com", time.Now().Add(time.Hour))
	_, err := fx.sess.Login(ctx, token)
	require.NoError(t, err)

	// Accumulate user-scoped state.
	fx.favs.Toggle(ctx, 9)
	fx.gw.set(func(g *fakeGateway) { g.tickets = []domain.Ticket{{ID: 1, EventID: 2, Quantity: 1}} })
	require.NoError(t, fx.tickets.Refresh(ctx))
	require.NoError(t, fx.marks.Advance(ctx, domain.CollectionTickets, time.Now()))

	require.NoError(t, fx.sess.Logout(ctx))

	assert.False(t, fx.sess.LoggedIn())
	assert.Equal(t, domain.Session{}, fx.sess.Current())
	assert.Empty(t, fx.sink.last())

	// Every user-scoped key is gone in one stroke.
	var gone []int64
	assert.ErrorIs(t, domain.GetJSON(ctx, fx.store, domain.KeyFavoritesUser(7), &gone), domain.ErrCacheMiss)
	var goneTickets []domain.Ticket
	assert.ErrorIs(t, domain.GetJSON(ctx, fx.store, domain.KeyTickets(7), &goneTickets), domain.ErrCacheMiss)
	var goneToken string
	assert.ErrorIs(t, domain.GetJSON(ctx, fx.store, domain.KeySessionToken, &goneToken), domain.ErrCacheMiss)

	// Public cache and its watermark survive; user watermarks reset.
	var ids []int64
	require.NoError(t, domain.GetJSON(ctx, fx.store, domain.KeyEventListIDs, &ids))
	assert.Equal(t, []int64{1, 2}, ids)
	assert.False(t, fx.marks.Get(ctx, domain.CollectionEvents).IsZero())
	assert.True(t, fx.marks.Get(ctx, domain.CollectionTickets).IsZero())

	// Stores are back in guest mode.
	assert.Equal(t, []int64{8}, fx.favs.IDs())
	assert.Empty(t, fx.tickets.List())
	assert.Empty(t, fx.my.List())
}

func TestSession_LogoutCancelsInFlightUserWork(t *testing.T) {
	ctx := context.Background()
	fx := newSessionFixture(20 * time.Millisecond)
	fx.gw.set(func(g *fakeGateway) {
		g.batchEntered = make(chan struct{}, 1)
		g.batchGate = make(chan struct{}) // only ctx cancellation releases it
	})

	token := mustToken(t, 7, "pat@example.com", time.Now().Add(time.Hour))
	_, err := fx.sess.Login(ctx, token)
	require.NoError(t, err)

	// The debounced flush runs on the session-scoped context.
	fx.favs.Toggle(ctx, 9)
	<-fx.gw.batchEntered

	require.NoError(t, fx.sess.Logout(ctx))

	// Cancellation unblocked the in-flight call and its result was
	// discarded; guest state is untouched.
	require.Eventually(t, func() bool {
		calls, _, _ := fx.gw.batches()
		return calls == 1 && !fx.sess.LoggedIn()
	}, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, fx.favs.IDs())
	assert.NoError(t, fx.favs.LastError())
}

func TestSession_LoginAsAnotherUserSwapsScopes(t *testing.T) {
	ctx := context.Background()
	fx := newSessionFixture(time.Hour)

	_, err := fx.sess.Login(ctx, mustToken(t, 7, "pat@example.com", time.Now().Add(time.Hour)))
	require.NoError(t, err)
	fx.favs.Toggle(ctx, 9)

	_, err = fx.sess.Login(ctx, mustToken(t, 8, "sam@example.com", time.Now().Add(time.Hour)))
	require.NoError(t, err)

	assert.Equal(t, int64(8), fx.sess.Current().UserID)
	assert.Empty(t, fx.favs.IDs())

	// Switching users is not a logout: the first account's cache stays for
	// its next login.
	var kept []int64
	require.NoError(t, domain.GetJSON(ctx, fx.store, domain.KeyFavoritesUser(7), &kept))
	assert.Equal(t, []int64{9}, kept)
}

func TestSession_GuestIdentityIsStable(t *testing.T) {
	ctx := context.Background()
	fx := newSessionFixture(time.Hour)

	id := fx.sess.GuestID(ctx)
	require.NotEmpty(t, id)
	assert.Equal(t, id, fx.sess.GuestID(ctx))

	// A fresh store instance over the same durable data sees the same id.
	again := NewSession(fx.store, fx.sink, session.NewJWTInspector(), fx.marks, fx.favs, fx.tickets, fx.my, testLogger)
	assert.Equal(t, id, again.GuestID(ctx))
}
