package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iho/coinledger/internal/usecase"
)

const idempotencyNamespace = "coinledger:idempotency:"

// KEYS[1] key. ARGV[1] value, ARGV[2] ttl in ms. Returns the existing value,
// or nil after reserving the key.
var reserveScript = redis.NewScript(`
local existing = redis.call('GET', KEYS[1])
if existing then
	return existing
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
return false
`)

// KEYS[1] key. ARGV[1] pending marker.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// IdempotencyStore implements usecase.IdempotencyStore. A key holds
// usecase.IdempotencyPending while its first request runs and the stored
// response afterwards.
type IdempotencyStore struct {
	client redis.Cmdable
}

// NewIdempotencyStore creates a new IdempotencyStore.
func NewIdempotencyStore(client redis.Cmdable) *IdempotencyStore {
	return &IdempotencyStore{client: client}
}

func (s *IdempotencyStore) key(name string) string {
	return idempotencyNamespace + name
}

// CheckAndSet reserves key, storing response or the pending marker when
// response is nil. If the key is already taken it reports true and the value
// held under it. Check and reservation are one atomic step.
func (s *IdempotencyStore) CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error) {
	var value any = usecase.IdempotencyPending
	if response != nil {
		value = response
	}

	existing, err := reserveScript.Run(ctx, s.client, []string{s.key(key)}, value, ttlMillis(ttl)).Text()
	switch {
	case errors.Is(err, redis.Nil):
		return false, nil, nil
	case err != nil:
		return false, nil, err
	}

	return true, []byte(existing), nil
}

// Update stores the final response under key.
func (s *IdempotencyStore) Update(ctx context.Context, key string, response []byte, ttl time.Duration) error {
	return s.client.Set(ctx, s.key(key), response, time.Duration(ttlMillis(ttl))*time.Millisecond).Err()
}

// Release frees a key whose request did not complete so the client can retry.
// A key that already holds a response is left alone.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	return releaseScript.Run(ctx, s.client, []string{s.key(key)}, usecase.IdempotencyPending).Err()
}

func ttlMillis(ttl time.Duration) int64 {
	if ttl <= 0 {
		ttl = usecase.IdempotencyKeyTTL
	}

	return ttl.Milliseconds()
}
