package postgres

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/coinledger/internal/domain"
)

func TestLeaderboardRepository_TopOwners(t *testing.T) {
	mock := newMockPool(t)
	repo := &LeaderboardRepository{db: mock}

	mock.ExpectQuery("SELECT owner_id, SUM\\(coins\\)(.+) GROUP BY owner_id ORDER BY total DESC, owner_id ASC LIMIT").
		WithArgs(2).
		WillReturnRows(pgxmock.NewRows([]string{"owner_id", "total"}).
			AddRow(int64(1), int64(30)).
			AddRow(int64(2), int64(30)))

	top, err := repo.TopOwners(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []domain.OwnerTotal{
		{OwnerID: 1, TotalCoins: 30},
		{OwnerID: 2, TotalCoins: 30},
	}, top)

	assertExpectations(t, mock)
}
