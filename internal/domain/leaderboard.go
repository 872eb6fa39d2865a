package domain

import "sort"

// OwnerTotal is one leaderboard row.
type OwnerTotal struct {
	OwnerID    int64 `json:"owner_id"`
	TotalCoins int64 `json:"total_coins"`
}

// RankOwners sums wallet balances per owner and returns the top n rows.
func RankOwners(wallets []*Wallet, n int) []OwnerTotal {
	totals := make(map[int64]int64)
	for _, w := range wallets {
		totals[w.OwnerID] += w.Balance
	}

	rows := make([]OwnerTotal, 0, len(totals))
	for owner, total := range totals {
		rows = append(rows, OwnerTotal{OwnerID: owner, TotalCoins: total})
	}

	return SortOwnerTotals(rows, n)
}

// SortOwnerTotals orders rows by total descending and owner id ascending,
// then keeps the first n. A negative n keeps nothing.
func SortOwnerTotals(rows []OwnerTotal, n int) []OwnerTotal {
	n = max(n, 0)

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].TotalCoins != rows[j].TotalCoins {
			return rows[i].TotalCoins > rows[j].TotalCoins
		}
		return rows[i].OwnerID < rows[j].OwnerID
	})

	if n < len(rows) {
		rows = rows[:n]
	}

	return rows
}
