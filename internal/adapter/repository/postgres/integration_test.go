package postgres

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/coinledger/internal/domain"
	infrapg "github.com/iho/coinledger/internal/infrastructure/postgres"
	"github.com/iho/coinledger/internal/usecase"
)

// setupTestDB connects to DATABASE_URL and migrates it. Tests using it are
// skipped in -short mode or when the variable is unset.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set")
	}

	require.NoError(t, infrapg.RunMigrations(dbURL, "../../../infrastructure/postgres/migrations", zerolog.Nop()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	require.NoError(t, err)
	require.NoError(t, pool.Ping(ctx))
	t.Cleanup(pool.Close)

	return pool
}

func truncateAll(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	_, err := pool.Exec(context.Background(), `TRUNCATE TABLE users, transactions, wallets RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
}

func createTestWallet(t *testing.T, repo *WalletRepository, ownerID, balance int64) *domain.Wallet {
	t.Helper()

	now := time.Now().UTC()
	wallet := &domain.Wallet{OwnerID: ownerID, Balance: balance, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, repo.Create(context.Background(), wallet))

	return wallet
}

func TestIntegrationConcurrentTransfers(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()

	wallets := NewWalletRepository(pool)
	txLog := NewTransactionLogRepository(pool)
	ledger := usecase.NewLedgerUseCase(usecase.LedgerConfig{
		TxManager:  NewTxManager(pool),
		Locker:     wallets,
		WalletRepo: wallets,
		TxLog:      txLog,
		IDGen:      NewULIDGenerator(),
		Retrier:    NewRetrier(5, zerolog.Nop()),
		Logger:     zerolog.Nop(),
	})

	run := func(n int, sender, recipient, amount int64) (succeeded, insufficient int32) {
		var (
			wg           sync.WaitGroup
			successCount atomic.Int32
			rejectCount  atomic.Int32
		)

		wg.Add(n)

		for range n {
			go func() {
				defer wg.Done()

				_, err := ledger.Transfer(ctx, usecase.TransferInput{
					SenderWalletID:    sender,
					RecipientWalletID: recipient,
					Amount:            amount,
				})
				switch {
				case err == nil:
					successCount.Add(1)
				case errors.Is(err, domain.ErrInsufficientFunds):
					rejectCount.Add(1)
				default:
					t.Errorf("unexpected transfer error: %v", err)
				}
			}()
		}

		wg.Wait()

		return successCount.Load(), rejectCount.Load()
	}

	t.Run("100 concurrent transfers drain the sender exactly", func(t *testing.T) {
		truncateAll(t, pool)

		sender := createTestWallet(t, wallets, 1, 1000)
		recipient := createTestWallet(t, wallets, 2, 0)

		succeeded, rejected := run(100, sender.ID, recipient.ID, 10)
		assert.Equal(t, int32(100), succeeded)
		assert.Zero(t, rejected)

		s, err := wallets.GetByID(ctx, sender.ID)
		require.NoError(t, err)
		r, err := wallets.GetByID(ctx, recipient.ID)
		require.NoError(t, err)
		assert.Zero(t, s.Balance)
		assert.Equal(t, int64(1000), r.Balance)

		records, err := txLog.Query(ctx, domain.TransactionFilter{WalletID: &sender.ID})
		require.NoError(t, err)
		assert.Len(t, records, 100)
	})

	t.Run("concurrent transfers never overdraw", func(t *testing.T) {
		truncateAll(t, pool)

		sender := createTestWallet(t, wallets, 1, 100)
		recipient := createTestWallet(t, wallets, 2, 0)

		succeeded, rejected := run(20, sender.ID, recipient.ID, 10)
		assert.Equal(t, int32(10), succeeded)
		assert.Equal(t, int32(10), rejected)

		s, err := wallets.GetByID(ctx, sender.ID)
		require.NoError(t, err)
		r, err := wallets.GetByID(ctx, recipient.ID)
		require.NoError(t, err)
		assert.Zero(t, s.Balance)
		assert.Equal(t, int64(100), r.Balance)
	})

	t.Run("opposing transfers do not deadlock", func(t *testing.T) {
		truncateAll(t, pool)

		a := createTestWallet(t, wallets, 1, 500)
		b := createTestWallet(t, wallets, 2, 500)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() { defer wg.Done(); run(25, a.ID, b.ID, 1) }()
		go func() { defer wg.Done(); run(25, b.ID, a.ID, 1) }()
		wg.Wait()

		wa, err := wallets.GetByID(ctx, a.ID)
		require.NoError(t, err)
		wb, err := wallets.GetByID(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1000), wa.Balance+wb.Balance)
	})
}

func TestIntegrationDirectoryAndLeaderboard(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	truncateAll(t, pool)

	wallets := NewWalletRepository(pool)
	directory := NewDirectoryRepository(pool)
	leaderboard := NewLeaderboardRepository(pool)

	_, err := directory.DefaultWallet(ctx, 7)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	w1 := createTestWallet(t, wallets, 7, 30)
	createTestWallet(t, wallets, 7, 5)
	createTestWallet(t, wallets, 8, 20)

	require.NoError(t, directory.SetDefaultWallet(ctx, 7, w1.ID))
	id, err := directory.DefaultWallet(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, w1.ID, id)

	top, err := leaderboard.TopOwners(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []domain.OwnerTotal{{OwnerID: 7, TotalCoins: 35}, {OwnerID: 8, TotalCoins: 20}}, top)
}
