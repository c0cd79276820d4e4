package settings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tung090505/Shop-game-sub000/internal/infra/pgtest"
)

func TestLookupPrefersOverrides(t *testing.T) {
	t.Setenv("CARD_PARTNER_ID", "env-partner")
	ctx := context.Background()
	l := NewLookup(NewMemoryStore())

	v, err := l.Get(ctx, KeyCardPartnerID)
	require.NoError(t, err)
	assert.Equal(t, "env-partner", v)

	url, err := l.Get(ctx, KeyCardPartnerURL)
	require.NoError(t, err)
	assert.Equal(t, defaultCardPartnerURL, url)

	require.NoError(t, l.Set(ctx, KeyCardPartnerID, " db-partner "))
	v, err = l.Get(ctx, KeyCardPartnerID)
	require.NoError(t, err)
	assert.Equal(t, "db-partner", v)
}

func TestLookupRejectsUnknownKeys(t *testing.T) {
	l := NewLookup(NewMemoryStore())
	assert.ErrorIs(t, l.Set(context.Background(), "site_title", "x"), ErrUnknownKey)
}

func TestPostgresStoreUpsert(t *testing.T) {
	pool := pgtest.NewPool(t)
	s := NewPostgresStore(pool)
	ctx := context.Background()

	_, ok, err := s.Get(ctx, KeyCardPartnerKey)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, KeyCardPartnerKey, "k1"))
	require.NoError(t, s.Put(ctx, KeyCardPartnerKey, "k2"))
	v, ok, err := s.Get(ctx, KeyCardPartnerKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "k2", v)
}
