package domain

import (
	"errors"
	"fmt"
)

// Error classes. Specific errors wrap one of these so callers can use errors.Is.
var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrStorage           = errors.New("storage unavailable")
	ErrAuditWrite        = errors.New("transaction log write failed")
)

var (
	// Wallet errors
	ErrWalletNotFound       = fmt.Errorf("wallet %w", ErrNotFound)
	ErrDefaultWalletNotSet  = fmt.Errorf("default wallet %w", ErrNotFound)
	ErrInvalidOwnerID       = fmt.Errorf("%w: owner id must be positive", ErrValidation)
	ErrInvalidWalletID      = fmt.Errorf("%w: wallet id must be positive", ErrValidation)
	ErrNegativeStartBalance = fmt.Errorf("%w: starting balance cannot be negative", ErrValidation)

	// Transfer errors
	ErrSameWallet     = fmt.Errorf("%w: cannot transfer to same wallet", ErrValidation)
	ErrInvalidAmount  = fmt.Errorf("%w: amount must be positive", ErrValidation)
	ErrAmountTooLarge = fmt.Errorf("%w: amount exceeds maximum allowed", ErrValidation)
	ErrInvalidLimit   = fmt.Errorf("%w: limit must be positive", ErrValidation)
)

// AuditWriteError reports a transfer whose balances were committed but whose
// transaction record could not be appended to the log.
type AuditWriteError struct {
	Transaction *Transaction
	Err         error
}

func (e *AuditWriteError) Error() string {
	return fmt.Sprintf("transfer %s committed but not logged: %v", e.Transaction.ID, e.Err)
}

func (e *AuditWriteError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrAuditWrite) true for any AuditWriteError.
func (e *AuditWriteError) Is(target error) bool {
	return target == ErrAuditWrite
}
