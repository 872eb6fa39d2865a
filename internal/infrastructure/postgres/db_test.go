package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewPoolWithConfig(t *testing.T) {
	t.Run("rejects an unparsable url", func(t *testing.T) {
		_, err := NewPoolWithConfig(context.Background(), PoolConfig{DatabaseURL: "not-a-url"})
		assert.ErrorContains(t, err, "failed to parse database URL")
	})

	t.Run("fails when the database is unreachable", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		_, err := NewPoolWithConfig(ctx, PoolConfig{
			DatabaseURL:    "postgres://invalid:5432/db?sslmode=disable",
			MaxConns:       1,
			ConnectTimeout: time.Second,
		})
		assert.ErrorContains(t, err, "failed to ping database")
	})
}
