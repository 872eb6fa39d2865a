package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheNamespace = "coinledger:cache:"

// Cache implements usecase.Cache on Redis strings. Entries live under their
// own namespace so they never collide with wallet store keys, and every entry
// carries a TTL.
type Cache struct {
	client redis.Cmdable
}

// NewCache creates a new Cache.
func NewCache(client redis.Cmdable) *Cache {
	return &Cache{client: client}
}

func (c *Cache) key(name string) string {
	return cacheNamespace + name
}

// Get returns the cached value, or nil without error on a miss.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, c.key(key)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, nil
	case err != nil:
		return nil, err
	}

	return val, nil
}

// Set stores value for ttl. A non-positive ttl is rejected so entries cannot
// outlive the data they were computed from.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("cache entries need a positive ttl")
	}

	return c.client.Set(ctx, c.key(key), value, ttl).Err()
}

// Delete evicts an entry. Deleting a missing entry is not an error.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.key(key)).Err()
}
