package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/coinledger/internal/domain"
)

// LedgerUseCase is the only component allowed to mutate wallet balances.
type LedgerUseCase struct {
	txManager  TransactionManager
	locker     WalletLocker
	transferer WalletTransferer
	walletRepo WalletRepository
	txLog      TransactionLog
	idGen      IDGenerator
	retrier    Retrier
	metrics    Metrics
	logger     zerolog.Logger
	timeout    time.Duration
	now        func() time.Time
}

// LedgerConfig holds the dependencies of a LedgerUseCase.
type LedgerConfig struct {
	// TxManager and Locker are optional and go together. Stores without them
	// should set Transferer. With neither, transfers fall back to a debit
	// followed by a credit, compensating the debit when the credit fails.
	TxManager  TransactionManager
	Locker     WalletLocker
	Transferer WalletTransferer
	WalletRepo WalletRepository
	TxLog      TransactionLog
	IDGen      IDGenerator
	Retrier    Retrier
	Metrics    Metrics
	Logger     zerolog.Logger
	Timeout    time.Duration
	Clock      func() time.Time
}

// NewLedgerUseCase creates a new LedgerUseCase.
func NewLedgerUseCase(cfg LedgerConfig) *LedgerUseCase {
	if cfg.Retrier == nil {
		cfg.Retrier = NoRetry
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NopMetrics
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTransactionTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = func() time.Time { return time.Now().UTC() }
	}

	return &LedgerUseCase{
		txManager:  cfg.TxManager,
		locker:     cfg.Locker,
		transferer: cfg.Transferer,
		walletRepo: cfg.WalletRepo,
		txLog:      cfg.TxLog,
		idGen:      cfg.IDGen,
		retrier:    cfg.Retrier,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
		timeout:    cfg.Timeout,
		now:        cfg.Clock,
	}
}

// Increment mints amount coins into a wallet and returns the new balance.
// Increments are not recorded in the transaction log.
func (uc *LedgerUseCase) Increment(ctx context.Context, walletID, amount int64) (int64, error) {
	if err := domain.ValidateWalletID(walletID); err != nil {
		return 0, err
	}

	if err := domain.ValidateAmount(amount); err != nil {
		return 0, err
	}

	var balance int64
	err := uc.retrier.Retry(ctx, func() error {
		var err error
		balance, err = uc.walletRepo.ConditionalAdjust(ctx, nil, walletID, amount)
		return err
	})
	if err != nil {
		return 0, storageError(err)
	}

	uc.metrics.Incremented(amount)

	return balance, nil
}

// TransferInput represents input for a transfer.
type TransferInput struct {
	SenderWalletID    int64
	RecipientWalletID int64
	Amount            int64
}

// Transfer moves coins between two wallets and records the transfer.
//
// The returned record is non-nil whenever balances were changed. If the record
// could not be logged the error is a *domain.AuditWriteError and the transfer
// still stands.
func (uc *LedgerUseCase) Transfer(ctx context.Context, input TransferInput) (*domain.Transaction, error) {
	if err := domain.ValidateTransfer(input.SenderWalletID, input.RecipientWalletID, input.Amount); err != nil {
		uc.metrics.TransferFailed(failureReason(err))
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()

	// From here on the engine owns the outcome.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uc.timeout)
	defer cancel()

	var err error
	switch {
	case uc.txManager != nil && uc.locker != nil:
		err = uc.retrier.Retry(ctx, func() error {
			return uc.transferInTx(ctx, input)
		})
	case uc.transferer != nil:
		err = uc.retrier.Retry(ctx, func() error {
			return uc.transferer.Transfer(ctx, input.SenderWalletID, input.RecipientWalletID, input.Amount)
		})
	default:
		err = uc.transferWithCompensation(ctx, input)
	}

	if err != nil {
		err = storageError(err)
		uc.metrics.TransferFailed(failureReason(err))

		return nil, err
	}

	record := &domain.Transaction{
		ID:                uc.idGen.Generate(),
		SenderWalletID:    input.SenderWalletID,
		RecipientWalletID: input.RecipientWalletID,
		Amount:            input.Amount,
		CreatedAt:         uc.now(),
	}

	err = uc.retrier.Retry(ctx, func() error {
		return uc.txLog.Append(ctx, record)
	})
	if err != nil {
		uc.metrics.AuditWriteFailed()
		uc.logger.Error().
			Err(err).
			Str("transaction_id", record.ID).
			Int64("sender_wallet_id", record.SenderWalletID).
			Int64("recipient_wallet_id", record.RecipientWalletID).
			Int64("amount", record.Amount).
			Msg("transfer committed but transaction log append failed")

		return record, &domain.AuditWriteError{Transaction: record, Err: storageError(err)}
	}

	uc.metrics.TransferCompleted(input.Amount, time.Since(start))
	uc.logger.Debug().
		Str("transaction_id", record.ID).
		Int64("sender_wallet_id", record.SenderWalletID).
		Int64("recipient_wallet_id", record.RecipientWalletID).
		Int64("amount", record.Amount).
		Msg("transfer completed")

	return record, nil
}

// transferInTx debits and credits inside a single storage transaction.
func (uc *LedgerUseCase) transferInTx(ctx context.Context, input TransferInput) error {
	// Lock in ascending id order so swapped sender/recipient pairs cannot deadlock.
	ids := []int64{input.SenderWalletID, input.RecipientWalletID}
	if ids[0] > ids[1] {
		ids[0], ids[1] = ids[1], ids[0]
	}

	tx, err := uc.txManager.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	wallets, err := uc.locker.LockForUpdate(ctx, tx, ids)
	if err != nil {
		return err
	}

	if len(wallets) != len(ids) {
		return domain.ErrWalletNotFound
	}

	if _, err := uc.walletRepo.ConditionalAdjust(ctx, tx, input.SenderWalletID, -input.Amount); err != nil {
		return err
	}

	if _, err := uc.walletRepo.ConditionalAdjust(ctx, tx, input.RecipientWalletID, input.Amount); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// transferWithCompensation is used when the store can neither lock rows nor
// transfer atomically.
func (uc *LedgerUseCase) transferWithCompensation(ctx context.Context, input TransferInput) error {
	if _, err := uc.walletRepo.ConditionalAdjust(ctx, nil, input.SenderWalletID, -input.Amount); err != nil {
		return err
	}

	_, creditErr := uc.walletRepo.ConditionalAdjust(ctx, nil, input.RecipientWalletID, input.Amount)
	if creditErr == nil {
		return nil
	}

	err := uc.retrier.Retry(ctx, func() error {
		_, err := uc.walletRepo.ConditionalAdjust(ctx, nil, input.SenderWalletID, input.Amount)
		return err
	})
	if err != nil {
		uc.logger.Error().
			Err(err).
			AnErr("credit_error", creditErr).
			Int64("sender_wallet_id", input.SenderWalletID).
			Int64("amount", input.Amount).
			Msg("failed to compensate debit")

		return errors.Join(creditErr, storageError(err))
	}

	uc.metrics.TransferCompensated()
	uc.logger.Warn().
		Err(creditErr).
		Int64("sender_wallet_id", input.SenderWalletID).
		Int64("recipient_wallet_id", input.RecipientWalletID).
		Int64("amount", input.Amount).
		Msg("credit failed, debit compensated")

	return creditErr
}

// ListTransactionsInput represents input for querying the transaction log.
type ListTransactionsInput struct {
	WalletID *int64
	Since    *time.Time
	Until    *time.Time
	Limit    int
	Offset   int
}

// ListTransactions queries the transaction log.
func (uc *LedgerUseCase) ListTransactions(ctx context.Context, input ListTransactionsInput) ([]*domain.Transaction, error) {
	if input.WalletID != nil {
		if err := domain.ValidateWalletID(*input.WalletID); err != nil {
			return nil, err
		}
	}

	if input.Limit <= 0 {
		input.Limit = DefaultListLimit
	}

	if input.Limit > MaxListLimit {
		input.Limit = MaxListLimit
	}

	if input.Offset < 0 {
		input.Offset = 0
	}

	records, err := uc.txLog.Query(ctx, domain.TransactionFilter{
		WalletID: input.WalletID,
		Since:    input.Since,
		Until:    input.Until,
		Limit:    input.Limit,
		Offset:   input.Offset,
	})
	if err != nil {
		return nil, storageError(err)
	}

	return records, nil
}
