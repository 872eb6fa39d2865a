package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/coinledger/internal/domain"
	"github.com/iho/coinledger/internal/usecase"
)

const walletColumns = `id, owner_id, coins, created_at, updated_at`

const insertWalletSQL = `
	INSERT INTO wallets (owner_id, coins, created_at, updated_at)
	VALUES ($1, $2, $3, $4)
	RETURNING id
`

// WalletRepository implements usecase.WalletRepository and usecase.WalletLocker.
type WalletRepository struct {
	db  querier
	now func() time.Time
}

// NewWalletRepository creates a new WalletRepository.
func NewWalletRepository(pool *pgxpool.Pool) *WalletRepository {
	return newWalletRepository(pool)
}

func newWalletRepository(db querier) *WalletRepository {
	return &WalletRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Create inserts a wallet and sets its generated id.
func (r *WalletRepository) Create(ctx context.Context, wallet *domain.Wallet) error {
	return r.db.QueryRow(ctx, insertWalletSQL,
		wallet.OwnerID,
		wallet.Balance,
		wallet.CreatedAt,
		wallet.UpdatedAt,
	).Scan(&wallet.ID)
}

// GetByID retrieves a wallet by id.
func (r *WalletRepository) GetByID(ctx context.Context, id int64) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE id = $1`

	wallet, err := scanWallet(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrWalletNotFound
		}

		return nil, err
	}

	return wallet, nil
}

// ListByOwner lists the owner's wallets ordered by id.
func (r *WalletRepository) ListByOwner(ctx context.Context, ownerID int64) ([]*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE owner_id = $1 ORDER BY id`

	rows, err := r.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}

	return collectWallets(rows)
}

// LockForUpdate locks the given wallet rows for the lifetime of tx.
func (r *WalletRepository) LockForUpdate(ctx context.Context, tx usecase.Transaction, ids []int64) ([]*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE id = ANY($1) ORDER BY id FOR UPDATE`

	rows, err := conn(r.db, tx).Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}

	return collectWallets(rows)
}

// ConditionalAdjust adds delta to the balance in a single conditional UPDATE.
func (r *WalletRepository) ConditionalAdjust(ctx context.Context, tx usecase.Transaction, id int64, delta int64) (int64, error) {
	db := conn(r.db, tx)

	query := `
		UPDATE wallets
		SET coins = coins + $2, updated_at = $3
		WHERE id = $1 AND coins + $2 >= 0
		RETURNING coins
	`

	var balance int64
	err := db.QueryRow(ctx, query, id, delta, r.now()).Scan(&balance)
	if err == nil {
		return balance, nil
	}

	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}

	// No row updated: either the wallet is missing or the debit was too large.
	var exists bool
	if err := db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM wallets WHERE id = $1)`, id).Scan(&exists); err != nil {
		return 0, err
	}

	if !exists {
		return 0, domain.ErrWalletNotFound
	}

	return 0, domain.ErrInsufficientFunds
}

func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	var w domain.Wallet
	if err := row.Scan(&w.ID, &w.OwnerID, &w.Balance, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}

	return &w, nil
}

func collectWallets(rows pgx.Rows) ([]*domain.Wallet, error) {
	defer rows.Close()

	wallets := make([]*domain.Wallet, 0)
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}

		wallets = append(wallets, w)
	}

	return wallets, rows.Err()
}
