package dto

import (
	"github.com/iho/coinledger/internal/usecase"
)

// CreateWalletRequest represents a request to create a wallet.
type CreateWalletRequest struct {
	OwnerID         int64  `json:"owner_id"`
	StartingBalance *int64 `json:"starting_balance,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *CreateWalletRequest) ToUseCaseInput() usecase.CreateWalletInput {
	return usecase.CreateWalletInput{
		OwnerID:         r.OwnerID,
		StartingBalance: r.StartingBalance,
	}
}

// IncrementRequest represents a request to add coins to a wallet.
// A missing amount adds a single coin.
type IncrementRequest struct {
	Amount *int64 `json:"amount,omitempty"`
}

// AmountOrDefault returns the requested amount, or 1.
func (r *IncrementRequest) AmountOrDefault() int64 {
	if r.Amount == nil {
		return 1
	}
	return *r.Amount
}

// CreateTransferRequest represents a request to move coins between wallets.
type CreateTransferRequest struct {
	SenderWalletID    int64 `json:"sender_wallet_id"`
	RecipientWalletID int64 `json:"recipient_wallet_id"`
	Amount            int64 `json:"amount"`
}

// ToUseCaseInput converts to use case input.
func (r *CreateTransferRequest) ToUseCaseInput() usecase.TransferInput {
	return usecase.TransferInput{
		SenderWalletID:    r.SenderWalletID,
		RecipientWalletID: r.RecipientWalletID,
		Amount:            r.Amount,
	}
}

// OwnerTransferRequest sends coins from the caller's default wallet to the
// recipient owner's default wallet.
type OwnerTransferRequest struct {
	RecipientOwnerID int64 `json:"recipient_owner_id"`
	Amount           int64 `json:"amount"`
}

