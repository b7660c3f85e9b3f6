package redisstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowhook/internal/session"
	"flowhook/internal/session/redisstore"
	"flowhook/internal/session/sessiontest"
)

func newStore(t *testing.T, opts ...redisstore.Option) (*redisstore.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	store := redisstore.NewFromClient(client, opts...)
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestRedisStore_Contract(t *testing.T) {
	store, _ := newStore(t)
	sessiontest.RunStoreContract(t, store)
}

func TestRedisStore_PrefixAndTTL(t *testing.T) {
	store, mr := newStore(t, redisstore.WithPrefix("test:"), redisstore.WithTTL(time.Minute))
	ctx := context.Background()

	snap := session.MustSnapshot([]session.Variable{{ID: "v1", Name: "protocol"}}, nil)
	require.NoError(t, store.Save(ctx, "abc", snap))

	assert.True(t, mr.Exists("test:s:abc"))
	assert.Equal(t, time.Minute, mr.TTL("test:s:abc"))

	mr.FastForward(2 * time.Minute)
	_, err := store.Load(ctx, "abc")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestRedisStore_Ping(t *testing.T) {
	store, mr := newStore(t)
	require.NoError(t, store.Ping(context.Background()))

	mr.Close()
	assert.Error(t, store.Ping(context.Background()))
}

func TestRedisStore_CorruptPayload(t *testing.T) {
	store, mr := newStore(t)
	require.NoError(t, mr.Set(redisstore.DefaultPrefix+"s:bad", "{not json"))

	_, err := store.Load(context.Background(), "bad")
	require.Error(t, err)
	assert.NotErrorIs(t, err, session.ErrSessionNotFound)
}

func TestRedisStore_ReservedLookingIDs(t *testing.T) {
	store, mr := newStore(t)
	ctx := context.Background()
	snap := session.MustSnapshot([]session.Variable{{ID: "v1", Name: "protocol"}}, nil)

	for _, id := range []string{"a", "b", "index"} {
		require.NoError(t, store.Save(ctx, id, snap))
	}
	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b", "index"}, ids)

	_, err = store.Load(ctx, "index")
	require.NoError(t, err)
	assert.True(t, mr.Exists(redisstore.DefaultPrefix+"index"))
}
