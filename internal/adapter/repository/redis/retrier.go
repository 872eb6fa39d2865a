package redis

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Server replies that reject a command before it runs.
var retryablePrefixes = []string{"LOADING", "BUSY", "TRYAGAIN", "MASTERDOWN", "CLUSTERDOWN"}

// Retrier implements usecase.Retrier for the Redis backend. Only failures
// where the command cannot have run are retried: no pooled connection, a
// failed dial, or a server that refused the command. A timeout after the
// command was written is ambiguous and returned as is.
type Retrier struct {
	maxRetries int
	newBackOff func() backoff.BackOff
	logger     zerolog.Logger
}

// NewRetrier creates a Retrier. maxRetries <= 0 uses the default of 3.
func NewRetrier(maxRetries int, logger zerolog.Logger) *Retrier {
	if maxRetries <= 0 {
		maxRetries = 3
	}

	return &Retrier{
		maxRetries: maxRetries,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 25 * time.Millisecond
			b.MaxInterval = 500 * time.Millisecond
			b.MaxElapsedTime = 5 * time.Second
			return b
		},
		logger: logger,
	}
}

func (r *Retrier) Retry(ctx context.Context, operation func() error) error {
	b := backoff.WithContext(backoff.WithMaxRetries(r.newBackOff(), uint64(r.maxRetries)), ctx)

	attempt := 0

	return backoff.RetryNotify(func() error {
		attempt++

		err := operation()
		if err != nil && !isRetryableError(err) {
			return backoff.Permanent(err)
		}

		return err
	}, b, func(err error, wait time.Duration) {
		r.logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("redis command not executed, retrying")
	})
}

func isRetryableError(err error) bool {
	if errors.Is(err, redis.ErrPoolTimeout) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}

	var redisErr redis.Error
	if errors.As(err, &redisErr) {
		msg := redisErr.Error()
		for _, prefix := range retryablePrefixes {
			if strings.HasPrefix(msg, prefix) {
				return true
			}
		}
	}

	return false
}
