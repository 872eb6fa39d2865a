package domain

import "fmt"

// Validation constants
const (
	MaxAmount              = int64(1_000_000_000)
	DefaultStartingBalance = int64(10)
	DefaultIncrement       = int64(1)
)

// ValidateAmount validates a transfer or increment amount.
func ValidateAmount(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	if amount > MaxAmount {
		return fmt.Errorf("%w: maximum amount is %d", ErrAmountTooLarge, MaxAmount)
	}

	return nil
}

// ValidateWalletID validates a wallet identifier.
func ValidateWalletID(id int64) error {
	if id <= 0 {
		return ErrInvalidWalletID
	}
	return nil
}

// ValidateOwnerID validates an owner identifier.
func ValidateOwnerID(id int64) error {
	if id <= 0 {
		return ErrInvalidOwnerID
	}
	return nil
}

// ValidateTransfer checks a transfer request before any storage is touched.
func ValidateTransfer(senderID, recipientID, amount int64) error {
	if err := ValidateWalletID(senderID); err != nil {
		return err
	}

	if err := ValidateWalletID(recipientID); err != nil {
		return err
	}

	if senderID == recipientID {
		return ErrSameWallet
	}

	return ValidateAmount(amount)
}

// ValidateStartingBalance validates the initial coins of a new wallet.
func ValidateStartingBalance(balance int64) error {
	if balance < 0 {
		return ErrNegativeStartBalance
	}

	if balance > MaxAmount {
		return fmt.Errorf("%w: maximum starting balance is %d", ErrAmountTooLarge, MaxAmount)
	}

	return nil
}
