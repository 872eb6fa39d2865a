package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

// Postgres error codes that abort the statement without leaving a trace.
const (
	pgErrSerializationFailure = "40001"
	pgErrDeadlock             = "40P01"
	pgErrLockNotAvailable     = "55P03"
)

// Retrier implements usecase.Retrier. It re-runs transfers that lost a lock
// race and log appends that never reached the server.
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
			b.InitialInterval = 50 * time.Millisecond
			b.MaxInterval = time.Second
			b.MaxElapsedTime = 10 * time.Second
			return b
		},
		logger: logger,
	}
}

// Retry runs operation, retrying with exponential backoff while it fails with
// a retryable error and at most maxRetries times.
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
			Str("pg_code", pgCode(err)).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("retryable database error, retrying")
	})
}

// isRetryableError reports whether err left no trace in the database.
// Serialization failures, deadlocks and lock timeouts abort the whole
// transaction. pgconn marks errors raised before anything reached the server.
func isRetryableError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgErrSerializationFailure, pgErrDeadlock, pgErrLockNotAvailable:
			return true
		}
		return false
	}

	return pgconn.SafeToRetry(err)
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}

	return ""
}
