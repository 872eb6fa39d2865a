package usecase

import "time"

const (
	// DefaultTransactionTimeout bounds a transfer once it has started touching storage.
	// The caller's cancellation no longer applies past that point.
	DefaultTransactionTimeout = 10 * time.Second

	// IdempotencyKeyTTL is how long idempotency keys are cached
	IdempotencyKeyTTL = 24 * time.Hour

	// IdempotencyPending is stored under a key while its first request runs.
	IdempotencyPending = "processing"

	// DefaultLeaderboardSize matches the top-100 board.
	DefaultLeaderboardSize = 100

	DefaultListLimit = 20
	MaxListLimit     = 100
)
