package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/coinledger/internal/usecase"
)

// DefaultLockTimeout bounds how long a transfer waits for a wallet row lock.
const DefaultLockTimeout = 5 * time.Second

// transferTxOptions: wallet rows are locked explicitly with SELECT ... FOR
// UPDATE, so read committed is enough.
var transferTxOptions = pgx.TxOptions{IsoLevel: pgx.ReadCommitted}

type pgxPool interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// TxManager implements usecase.TransactionManager.
type TxManager struct {
	pool        pgxPool
	lockTimeout time.Duration
}

// NewTxManager creates a TxManager using DefaultLockTimeout.
func NewTxManager(pool *pgxpool.Pool) *TxManager {
	return newTxManagerWithPool(pool, DefaultLockTimeout)
}

// lockTimeout <= 0 leaves the server setting alone.
func newTxManagerWithPool(pool pgxPool, lockTimeout time.Duration) *TxManager {
	return &TxManager{pool: pool, lockTimeout: lockTimeout}
}

// Begin starts a transaction for a transfer. A lock wait past the lock
// timeout fails with lock_not_available, which the Retrier retries.
func (m *TxManager) Begin(ctx context.Context) (usecase.Transaction, error) {
	tx, err := m.pool.BeginTx(ctx, transferTxOptions)
	if err != nil {
		return nil, err
	}

	if m.lockTimeout > 0 {
		// SET does not take bind parameters.
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = %d", m.lockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, stmt); err != nil {
			_ = tx.Rollback(ctx)
			return nil, err
		}
	}

	return &Tx{tx: tx}, nil
}

// Tx is a transfer's pgx transaction. Repositories reach it through conn.
type Tx struct {
	tx pgx.Tx
}

// Commit commits the transaction.
func (t *Tx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

// Rollback rolls back the transaction. Rolling back after Commit is a no-op,
// so callers can always defer it.
func (t *Tx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}

	return err
}

// PgxTx returns the underlying pgx.Tx.
func (t *Tx) PgxTx() pgx.Tx {
	return t.tx
}
