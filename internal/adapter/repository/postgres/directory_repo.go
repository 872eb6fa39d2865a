package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/coinledger/internal/domain"
)

const pgErrForeignKeyViolation = "23503"

// DirectoryRepository implements usecase.Directory over the users table.
type DirectoryRepository struct {
	db   querier
	pool pgxPool
}

// NewDirectoryRepository creates a new DirectoryRepository.
func NewDirectoryRepository(pool *pgxpool.Pool) *DirectoryRepository {
	return &DirectoryRepository{db: pool, pool: pool}
}

// DefaultWallet returns the owner's default wallet id.
func (r *DirectoryRepository) DefaultWallet(ctx context.Context, ownerID int64) (int64, error) {
	var walletID int64

	err := r.db.QueryRow(ctx, `SELECT default_wallet_id FROM users WHERE id = $1`, ownerID).Scan(&walletID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrDefaultWalletNotSet
	}

	return walletID, err
}

// SetDefaultWallet creates or updates the owner's directory entry.
func (r *DirectoryRepository) SetDefaultWallet(ctx context.Context, ownerID, walletID int64) error {
	query := `
		INSERT INTO users (id, default_wallet_id)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET default_wallet_id = EXCLUDED.default_wallet_id
	`

	_, err := r.db.Exec(ctx, query, ownerID, walletID)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgErrForeignKeyViolation {
		return domain.ErrWalletNotFound
	}

	return err
}

// ProvisionDefaultWallet inserts wallet and claims it as the owner's default
// in one transaction. A concurrent insert of the same users row blocks until
// the first commits, so only one caller wins; the losers roll back their
// wallet and get the winner's id.
func (r *DirectoryRepository) ProvisionDefaultWallet(ctx context.Context, wallet *domain.Wallet) (int64, bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return 0, false, err
	}

	var walletID int64
	err = tx.QueryRow(ctx, insertWalletSQL,
		wallet.OwnerID,
		wallet.Balance,
		wallet.CreatedAt,
		wallet.UpdatedAt,
	).Scan(&walletID)
	if err != nil {
		_ = tx.Rollback(ctx)
		return 0, false, fmt.Errorf("insert wallet: %w", err)
	}

	claim := `
		INSERT INTO users (id, default_wallet_id)
		VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING
		RETURNING default_wallet_id
	`

	var claimed int64
	err = tx.QueryRow(ctx, claim, wallet.OwnerID, walletID).Scan(&claimed)
	if errors.Is(err, pgx.ErrNoRows) {
		if err := tx.Rollback(ctx); err != nil {
			return 0, false, err
		}

		existing, err := r.DefaultWallet(ctx, wallet.OwnerID)
		return existing, false, err
	}
	if err != nil {
		_ = tx.Rollback(ctx)
		return 0, false, fmt.Errorf("claim default wallet: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, false, err
	}

	wallet.ID = walletID

	return walletID, true, nil
}
