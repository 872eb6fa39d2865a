package domain

import "time"

// Transaction is an immutable record of a completed transfer.
type Transaction struct {
	ID                string
	SenderWalletID    int64
	RecipientWalletID int64
	Amount            int64
	CreatedAt         time.Time
}

// Involves reports whether the wallet is either side of the transaction.
func (t *Transaction) Involves(walletID int64) bool {
	return t.SenderWalletID == walletID || t.RecipientWalletID == walletID
}

// TransactionFilter selects transaction log records.
type TransactionFilter struct {
	WalletID *int64
	Since    *time.Time
	Until    *time.Time
	Limit    int
	Offset   int
}

// Matches reports whether a record passes the wallet and time predicates.
// Limit and Offset are applied by the caller.
func (f TransactionFilter) Matches(t *Transaction) bool {
	if f.WalletID != nil && !t.Involves(*f.WalletID) {
		return false
	}
	if f.Since != nil && t.CreatedAt.Before(*f.Since) {
		return false
	}
	if f.Until != nil && !t.CreatedAt.Before(*f.Until) {
		return false
	}
	return true
}
