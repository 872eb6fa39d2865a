package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/coinledger/internal/domain"
)

// WalletUseCase handles wallet creation and lookup.
type WalletUseCase struct {
	walletRepo      WalletRepository
	directory       Directory
	metrics         Metrics
	logger          zerolog.Logger
	startingBalance int64
}

// NewWalletUseCase creates a new WalletUseCase. directory may be nil when
// default-wallet resolution is handled elsewhere.
func NewWalletUseCase(walletRepo WalletRepository, directory Directory, metrics Metrics, logger zerolog.Logger, startingBalance int64) *WalletUseCase {
	if metrics == nil {
		metrics = NopMetrics
	}

	return &WalletUseCase{
		walletRepo:      walletRepo,
		directory:       directory,
		metrics:         metrics,
		logger:          logger,
		startingBalance: startingBalance,
	}
}

// CreateWalletInput represents input for creating a wallet.
type CreateWalletInput struct {
	OwnerID int64
	// StartingBalance overrides the configured starting balance when set.
	StartingBalance *int64
}

// CreateWallet creates a new wallet for an owner.
func (uc *WalletUseCase) CreateWallet(ctx context.Context, input CreateWalletInput) (*domain.Wallet, error) {
	if err := domain.ValidateOwnerID(input.OwnerID); err != nil {
		return nil, err
	}

	balance := uc.startingBalance
	if input.StartingBalance != nil {
		balance = *input.StartingBalance
	}

	if err := domain.ValidateStartingBalance(balance); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	wallet := &domain.Wallet{
		OwnerID:   input.OwnerID,
		Balance:   balance,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := uc.walletRepo.Create(ctx, wallet); err != nil {
		return nil, storageError(err)
	}

	uc.metrics.WalletCreated()
	uc.logger.Info().
		Int64("wallet_id", wallet.ID).
		Int64("owner_id", wallet.OwnerID).
		Int64("balance", wallet.Balance).
		Msg("wallet created")

	return wallet, nil
}

// GetWallet retrieves a wallet by ID.
func (uc *WalletUseCase) GetWallet(ctx context.Context, id int64) (*domain.Wallet, error) {
	if err := domain.ValidateWalletID(id); err != nil {
		return nil, err
	}

	wallet, err := uc.walletRepo.GetByID(ctx, id)
	if err != nil {
		return nil, storageError(err)
	}

	return wallet, nil
}

// GetBalance returns the coins held by a wallet.
func (uc *WalletUseCase) GetBalance(ctx context.Context, id int64) (int64, error) {
	wallet, err := uc.GetWallet(ctx, id)
	if err != nil {
		return 0, err
	}

	return wallet.Balance, nil
}

// ListWallets lists all wallets of an owner ordered by id.
func (uc *WalletUseCase) ListWallets(ctx context.Context, ownerID int64) ([]*domain.Wallet, error) {
	if err := domain.ValidateOwnerID(ownerID); err != nil {
		return nil, err
	}

	wallets, err := uc.walletRepo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, storageError(err)
	}

	return wallets, nil
}

// DefaultWallet resolves the owner's default wallet through the directory.
func (uc *WalletUseCase) DefaultWallet(ctx context.Context, ownerID int64) (*domain.Wallet, error) {
	if err := domain.ValidateOwnerID(ownerID); err != nil {
		return nil, err
	}

	if uc.directory == nil {
		return nil, domain.ErrDefaultWalletNotSet
	}

	walletID, err := uc.directory.DefaultWallet(ctx, ownerID)
	if err != nil {
		return nil, storageError(err)
	}

	return uc.GetWallet(ctx, walletID)
}

// ProvisionOwner gives an owner a default wallet. Owners that already have one
// get their existing default wallet back. Concurrent calls for a new owner
// create exactly one wallet.
func (uc *WalletUseCase) ProvisionOwner(ctx context.Context, ownerID int64) (*domain.Wallet, error) {
	existing, err := uc.DefaultWallet(ctx, ownerID)
	if err == nil {
		return existing, nil
	}

	if !errors.Is(err, domain.ErrNotFound) || uc.directory == nil {
		return nil, err
	}

	if err := domain.ValidateStartingBalance(uc.startingBalance); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	wallet := &domain.Wallet{
		OwnerID:   ownerID,
		Balance:   uc.startingBalance,
		CreatedAt: now,
		UpdatedAt: now,
	}

	walletID, created, err := uc.directory.ProvisionDefaultWallet(ctx, wallet)
	if err != nil {
		return nil, storageError(err)
	}

	if !created {
		return uc.GetWallet(ctx, walletID)
	}

	uc.metrics.WalletCreated()
	uc.logger.Info().
		Int64("wallet_id", wallet.ID).
		Int64("owner_id", ownerID).
		Int64("balance", wallet.Balance).
		Msg("owner provisioned")

	return wallet, nil
}
