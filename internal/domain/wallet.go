package domain

import "time"

// Wallet holds an owner's coins.
type Wallet struct {
	ID        int64
	OwnerID   int64
	Balance   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ApplyDelta returns the balance after delta and whether it is allowed.
func (w *Wallet) ApplyDelta(delta int64) (int64, bool) {
	next := w.Balance + delta
	if next < 0 {
		return w.Balance, false
	}
	return next, true
}
