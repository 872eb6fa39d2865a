package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/coinledger/internal/domain"
)

// LeaderboardRepository implements usecase.LeaderboardRepository.
type LeaderboardRepository struct {
	db querier
}

// NewLeaderboardRepository creates a new LeaderboardRepository.
func NewLeaderboardRepository(pool *pgxpool.Pool) *LeaderboardRepository {
	return &LeaderboardRepository{db: pool}
}

// TopOwners sums balances per owner and returns the n richest owners.
func (r *LeaderboardRepository) TopOwners(ctx context.Context, n int) ([]domain.OwnerTotal, error) {
	query := `
		SELECT owner_id, SUM(coins)::BIGINT AS total
		FROM wallets
		GROUP BY owner_id
		ORDER BY total DESC, owner_id ASC
		LIMIT $1
	`

	rows, err := r.db.Query(ctx, query, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := make([]domain.OwnerTotal, 0)
	for rows.Next() {
		var row domain.OwnerTotal
		if err := rows.Scan(&row.OwnerID, &row.TotalCoins); err != nil {
			return nil, err
		}

		totals = append(totals, row)
	}

	return totals, rows.Err()
}
