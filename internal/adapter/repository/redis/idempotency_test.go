package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/coinledger/internal/usecase"
)

func TestIdempotencyStore(t *testing.T) {
	ctx := context.Background()

	t.Run("first request reserves the key", func(t *testing.T) {
		client, mr := newTestRedisClient(t)
		store := NewIdempotencyStore(client)

		exists, resp, err := store.CheckAndSet(ctx, "POST /api/v1/transfers k1", nil, time.Minute)
		require.NoError(t, err)
		assert.False(t, exists)
		assert.Nil(t, resp)

		val, err := mr.Get(idempotencyNamespace + "POST /api/v1/transfers k1")
		require.NoError(t, err)
		assert.Equal(t, usecase.IdempotencyPending, val)
		assert.Equal(t, time.Minute, mr.TTL(idempotencyNamespace+"POST /api/v1/transfers k1"))
	})

	t.Run("second request sees the pending marker", func(t *testing.T) {
		client, _ := newTestRedisClient(t)
		store := NewIdempotencyStore(client)

		_, _, err := store.CheckAndSet(ctx, "k", nil, time.Minute)
		require.NoError(t, err)

		exists, resp, err := store.CheckAndSet(ctx, "k", nil, time.Minute)
		require.NoError(t, err)
		assert.True(t, exists)
		assert.Equal(t, usecase.IdempotencyPending, string(resp))
	})

	t.Run("completed response is replayed", func(t *testing.T) {
		client, _ := newTestRedisClient(t)
		store := NewIdempotencyStore(client)

		_, _, err := store.CheckAndSet(ctx, "k", nil, time.Minute)
		require.NoError(t, err)
		require.NoError(t, store.Update(ctx, "k", []byte(`{"status":201}`), time.Hour))

		exists, resp, err := store.CheckAndSet(ctx, "k", nil, time.Minute)
		require.NoError(t, err)
		assert.True(t, exists)
		assert.Equal(t, `{"status":201}`, string(resp))
	})

	t.Run("release frees a pending key", func(t *testing.T) {
		client, mr := newTestRedisClient(t)
		store := NewIdempotencyStore(client)

		_, _, err := store.CheckAndSet(ctx, "k", nil, time.Minute)
		require.NoError(t, err)
		require.NoError(t, store.Release(ctx, "k"))
		assert.False(t, mr.Exists(idempotencyNamespace+"k"))

		exists, _, err := store.CheckAndSet(ctx, "k", nil, time.Minute)
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("release keeps a completed response", func(t *testing.T) {
		client, mr := newTestRedisClient(t)
		store := NewIdempotencyStore(client)

		require.NoError(t, store.Update(ctx, "k", []byte("done"), time.Minute))
		require.NoError(t, store.Release(ctx, "k"))

		val, err := mr.Get(idempotencyNamespace + "k")
		require.NoError(t, err)
		assert.Equal(t, "done", val)
	})

	t.Run("zero ttl uses the default", func(t *testing.T) {
		client, mr := newTestRedisClient(t)
		store := NewIdempotencyStore(client)

		_, _, err := store.CheckAndSet(ctx, "k", nil, 0)
		require.NoError(t, err)
		assert.Equal(t, usecase.IdempotencyKeyTTL, mr.TTL(idempotencyNamespace+"k"))
	})
}
