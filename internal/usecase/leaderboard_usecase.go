package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/coinledger/internal/domain"
)

// LeaderboardUseCase ranks owners by their total coins.
type LeaderboardUseCase struct {
	repo     LeaderboardRepository
	cache    Cache
	cacheTTL time.Duration
	logger   zerolog.Logger
}

// NewLeaderboardUseCase creates a new LeaderboardUseCase. cache may be nil;
// a zero ttl disables caching.
func NewLeaderboardUseCase(repo LeaderboardRepository, cache Cache, cacheTTL time.Duration, logger zerolog.Logger) *LeaderboardUseCase {
	return &LeaderboardUseCase{
		repo:     repo,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

// TopOwners returns at most n owners ordered by total coins descending, then
// owner id ascending.
func (uc *LeaderboardUseCase) TopOwners(ctx context.Context, n int) ([]domain.OwnerTotal, error) {
	if n <= 0 {
		return nil, domain.ErrInvalidLimit
	}

	key := fmt.Sprintf("leaderboard:%d", n)

	if rows, ok := uc.cached(ctx, key); ok {
		return rows, nil
	}

	rows, err := uc.repo.TopOwners(ctx, n)
	if err != nil {
		return nil, storageError(err)
	}

	uc.store(ctx, key, rows)

	return rows, nil
}

func (uc *LeaderboardUseCase) cacheEnabled() bool {
	return uc.cache != nil && uc.cacheTTL > 0
}

// Cache failures only cost a trip to the repository.
func (uc *LeaderboardUseCase) cached(ctx context.Context, key string) ([]domain.OwnerTotal, bool) {
	if !uc.cacheEnabled() {
		return nil, false
	}

	data, err := uc.cache.Get(ctx, key)
	if err != nil || data == nil {
		return nil, false
	}

	var rows []domain.OwnerTotal
	if err := json.Unmarshal(data, &rows); err != nil {
		uc.logger.Warn().Err(err).Str("key", key).Msg("discarding corrupt leaderboard cache entry")
		if err := uc.cache.Delete(ctx, key); err != nil {
			uc.logger.Warn().Err(err).Str("key", key).Msg("failed to evict leaderboard cache entry")
		}
		return nil, false
	}

	return rows, true
}

func (uc *LeaderboardUseCase) store(ctx context.Context, key string, rows []domain.OwnerTotal) {
	if !uc.cacheEnabled() {
		return
	}

	data, err := json.Marshal(rows)
	if err != nil {
		return
	}

	if err := uc.cache.Set(ctx, key, data, uc.cacheTTL); err != nil {
		uc.logger.Warn().Err(err).Str("key", key).Msg("failed to cache leaderboard")
	}
}
