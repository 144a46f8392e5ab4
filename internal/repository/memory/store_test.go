package memory

import (
	"context"
	"testing"

	"eventdeck/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_GetSet(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	_, err := store.Get(ctx, "events:list-ids")
	assert.ErrorIs(t, err, domain.ErrCacheMiss)

	require.NoError(t, store.Set(ctx, "events:list-ids", domain.ScopePublic, []byte(`[1,2]`)))

	got, err := store.Get(ctx, "events:list-ids")
	require.NoError(t, err)
	assert.Equal(t, []byte(`[1,2]`), got)
}

func TestStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	require.NoError(t, store.Set(ctx, "k", domain.ScopePublic, []byte(`abc`)))

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	got[0] = 'z'

	again, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte(`abc`), again)
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	require.NoError(t, store.Set(ctx, "session:token", domain.ScopePublic, []byte(`tok`)))
	require.NoError(t, store.Delete(ctx, "session:token"))

	_, err := store.Get(ctx, "session:token")
	assert.ErrorIs(t, err, domain.ErrCacheMiss)

	// Deleting an absent key is not an error.
	require.NoError(t, store.Delete(ctx, "session:token"))
}

func TestStore_ClearScope(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	userScope := domain.ScopeUser(42)
	require.NoError(t, store.Set(ctx, domain.KeyFavoritesUser(42), userScope, []byte(`[1]`)))
	require.NoError(t, store.Set(ctx, domain.KeyTickets(42), userScope, []byte(`[]`)))
	require.NoError(t, store.Set(ctx, domain.KeyFavoritesGuest, domain.ScopePublic, []byte(`[9]`)))
	require.NoError(t, store.Set(ctx, domain.KeyWatermarks, domain.ScopeSync, []byte(`{}`)))

	require.NoError(t, store.Clear(ctx, userScope))

	_, err := store.Get(ctx, domain.KeyFavoritesUser(42))
	assert.ErrorIs(t, err, domain.ErrCacheMiss)
	_, err = store.Get(ctx, domain.KeyTickets(42))
	assert.ErrorIs(t, err, domain.ErrCacheMiss)

	// Other scopes survive.
	_, err = store.Get(ctx, domain.KeyFavoritesGuest)
	require.NoError(t, err)
	_, err = store.Get(ctx, domain.KeyWatermarks)
	require.NoError(t, err)
	assert.Equal(t, 2, store.Len())
}
