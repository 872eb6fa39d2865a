package usecase

import (
	"context"
	"time"

	"github.com/iho/coinledger/internal/domain"
)

//go:generate mockgen -source=interfaces.go -destination=mocks/mock_interfaces.go -package=mocks

// WalletRepository defines data access for wallets.
type WalletRepository interface {
	// Create allocates a new wallet id and stores the wallet, setting wallet.ID.
	Create(ctx context.Context, wallet *domain.Wallet) error
	GetByID(ctx context.Context, id int64) (*domain.Wallet, error)
	// ListByOwner returns the owner's wallets ordered by id.
	ListByOwner(ctx context.Context, ownerID int64) ([]*domain.Wallet, error)
	// ConditionalAdjust applies balance += delta only if the result is non-negative.
	// A nil tx runs the adjustment on its own. Returns domain.ErrInsufficientFunds
	// or domain.ErrWalletNotFound when rejected.
	ConditionalAdjust(ctx context.Context, tx Transaction, id int64, delta int64) (int64, error)
}

// WalletLocker is implemented by stores with multi-row transactions.
type WalletLocker interface {
	// LockForUpdate locks the wallets for the lifetime of tx. ids must be sorted ascending.
	// Missing wallets are omitted from the result.
	LockForUpdate(ctx context.Context, tx Transaction, ids []int64) ([]*domain.Wallet, error)
}

// WalletTransferer is implemented by stores without a TransactionManager that
// can still move coins between two wallets in one atomic step.
type WalletTransferer interface {
	// Transfer debits sender and credits recipient, or changes nothing and
	// returns domain.ErrWalletNotFound or domain.ErrInsufficientFunds.
	Transfer(ctx context.Context, senderID, recipientID, amount int64) error
}

// TransactionLog is the append-only record of completed transfers.
type TransactionLog interface {
	// Append stores the record. Appending a record whose ID already exists is a no-op.
	Append(ctx context.Context, record *domain.Transaction) error
	// Query returns matching records in insertion order.
	Query(ctx context.Context, filter domain.TransactionFilter) ([]*domain.Transaction, error)
}

// LeaderboardRepository aggregates balances per owner.
type LeaderboardRepository interface {
	TopOwners(ctx context.Context, n int) ([]domain.OwnerTotal, error)
}

// Directory maps owners to their default wallet.
type Directory interface {
	DefaultWallet(ctx context.Context, ownerID int64) (int64, error)
	SetDefaultWallet(ctx context.Context, ownerID, walletID int64) error
	// ProvisionDefaultWallet creates wallet and makes it the owner's default in
	// one atomic step unless the owner already has a default. It returns the
	// owner's default wallet id and whether wallet was created.
	ProvisionDefaultWallet(ctx context.Context, wallet *domain.Wallet) (int64, bool, error)
}

// Transaction represents a storage transaction.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TransactionManager handles transaction lifecycle.
type TransactionManager interface {
	Begin(ctx context.Context) (Transaction, error)
}

// IDGenerator generates unique IDs.
type IDGenerator interface {
	Generate() string
}

// Retrier re-runs an operation while it fails with a transient error.
type Retrier interface {
	Retry(ctx context.Context, operation func() error) error
}

// Cache defines caching operations.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// IdempotencyStore handles idempotency key storage.
type IdempotencyStore interface {
	// CheckAndSet atomically checks if key exists, sets if not.
	// Returns (exists, existingValue, error).
	CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error)
	// Update updates an existing key with the final response.
	Update(ctx context.Context, key string, response []byte, ttl time.Duration) error
	// Release removes a key whose request did not succeed.
	Release(ctx context.Context, key string) error
}

// Metrics records ledger activity.
type Metrics interface {
	WalletCreated()
	Incremented(amount int64)
	TransferCompleted(amount int64, duration time.Duration)
	TransferFailed(reason string)
	TransferCompensated()
	AuditWriteFailed()
}
