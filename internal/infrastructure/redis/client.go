package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ClientConfig configures the Redis connection. Zero values keep the
// go-redis defaults or whatever the URL carries.
type ClientConfig struct {
	URL      string
	PoolSize int
	// Timeout bounds dialing and every read and write.
	Timeout time.Duration
}

func (c ClientConfig) options() (*redis.Options, error) {
	opts, err := redis.ParseURL(c.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	if c.PoolSize > 0 {
		opts.PoolSize = c.PoolSize
	}
	if c.Timeout > 0 {
		opts.DialTimeout = c.Timeout
		opts.ReadTimeout = c.Timeout
		opts.WriteTimeout = c.Timeout
	}

	return opts, nil
}

// NewClient connects to Redis and pings it once before returning.
func NewClient(ctx context.Context, cfg ClientConfig) (*redis.Client, error) {
	opts, err := cfg.options()
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opts.Addr, err)
	}

	return client, nil
}

// Pinger exposes a client as a readiness check.
type Pinger struct {
	client redis.Cmdable
}

func NewPinger(client redis.Cmdable) *Pinger {
	return &Pinger{client: client}
}

func (p *Pinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
