package dto

import (
	"time"

	"github.com/iho/coinledger/internal/domain"
)

// WalletResponse represents a wallet in API responses.
type WalletResponse struct {
	ID        int64     `json:"id"`
	OwnerID   int64     `json:"owner_id"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WalletFromDomain converts domain wallet to response.
func WalletFromDomain(w *domain.Wallet) *WalletResponse {
	return &WalletResponse{
		ID:        w.ID,
		OwnerID:   w.OwnerID,
		Balance:   w.Balance,
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
	}
}

// WalletsFromDomain converts domain wallets to responses.
func WalletsFromDomain(wallets []*domain.Wallet) []*WalletResponse {
	result := make([]*WalletResponse, len(wallets))
	for i, w := range wallets {
		result[i] = WalletFromDomain(w)
	}
	return result
}

// BalanceResponse reports a wallet balance.
type BalanceResponse struct {
	WalletID int64 `json:"wallet_id"`
	Balance  int64 `json:"balance"`
}

// TransactionResponse represents a transaction log record in API responses.
type TransactionResponse struct {
	ID                string    `json:"id"`
	SenderWalletID    int64     `json:"sender_wallet_id"`
	RecipientWalletID int64     `json:"recipient_wallet_id"`
	Amount            int64     `json:"amount"`
	CreatedAt         time.Time `json:"created_at"`
	AuditError        string    `json:"audit_error,omitempty"`
}

// TransactionFromDomain converts domain transaction to response.
func TransactionFromDomain(t *domain.Transaction) *TransactionResponse {
	return &TransactionResponse{
		ID:                t.ID,
		SenderWalletID:    t.SenderWalletID,
		RecipientWalletID: t.RecipientWalletID,
		Amount:            t.Amount,
		CreatedAt:         t.CreatedAt,
	}
}

// TransactionsFromDomain converts domain transactions to responses.
func TransactionsFromDomain(records []*domain.Transaction) []*TransactionResponse {
	result := make([]*TransactionResponse, len(records))
	for i, t := range records {
		result[i] = TransactionFromDomain(t)
	}
	return result
}

// LeaderboardEntry is one row of the leaderboard.
type LeaderboardEntry struct {
	Rank       int   `json:"rank"`
	OwnerID    int64 `json:"owner_id"`
	TotalCoins int64 `json:"total_coins"`
}

// LeaderboardFromDomain numbers the rows starting at 1.
func LeaderboardFromDomain(rows []domain.OwnerTotal) []LeaderboardEntry {
	result := make([]LeaderboardEntry, len(rows))
	for i, r := range rows {
		result[i] = LeaderboardEntry{Rank: i + 1, OwnerID: r.OwnerID, TotalCoins: r.TotalCoins}
	}
	return result
}

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
