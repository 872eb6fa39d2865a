package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()

	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return pool
}

func assertExpectations(t *testing.T, pool pgxmock.PgxPoolIface) {
	t.Helper()

	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestTxManager(t *testing.T) {
	ctx := context.Background()

	t.Run("sets the lock timeout and commits", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectBeginTx(transferTxOptions)
		mock.ExpectExec("SET LOCAL lock_timeout = 250").
			WillReturnResult(pgxmock.NewResult("SET", 0))
		mock.ExpectCommit()

		tx, err := newTxManagerWithPool(mock, 250*time.Millisecond).Begin(ctx)
		require.NoError(t, err)
		require.NoError(t, tx.Commit(ctx))

		assertExpectations(t, mock)
	})

	t.Run("zero lock timeout skips SET", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectBeginTx(transferTxOptions)
		mock.ExpectRollback()

		tx, err := newTxManagerWithPool(mock, 0).Begin(ctx)
		require.NoError(t, err)
		require.NoError(t, tx.Rollback(ctx))

		assertExpectations(t, mock)
	})

	t.Run("begin error", func(t *testing.T) {
		mock := newMockPool(t)
		beginErr := errors.New("too many connections")
		mock.ExpectBeginTx(transferTxOptions).WillReturnError(beginErr)

		tx, err := newTxManagerWithPool(mock, 0).Begin(ctx)
		assert.ErrorIs(t, err, beginErr)
		assert.Nil(t, tx)
	})

	t.Run("failed SET rolls back", func(t *testing.T) {
		mock := newMockPool(t)
		setErr := errors.New("permission denied")
		mock.ExpectBeginTx(transferTxOptions)
		mock.ExpectExec("SET LOCAL lock_timeout").WillReturnError(setErr)
		mock.ExpectRollback()

		tx, err := newTxManagerWithPool(mock, time.Second).Begin(ctx)
		assert.ErrorIs(t, err, setErr)
		assert.Nil(t, tx)

		assertExpectations(t, mock)
	})
}
