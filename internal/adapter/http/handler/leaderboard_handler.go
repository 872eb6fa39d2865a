package handler

import (
	"context"
	"net/http"

	"github.com/iho/coinledger/internal/adapter/http/dto"
	"github.com/iho/coinledger/internal/domain"
)

type leaderboardService interface {
	TopOwners(ctx context.Context, n int) ([]domain.OwnerTotal, error)
}

// LeaderboardHandler serves the owner ranking.
type LeaderboardHandler struct {
	leaderboardUC leaderboardService
	defaultSize   int
}

// NewLeaderboardHandler creates a new LeaderboardHandler. defaultSize is used
// when the request has no n parameter.
func NewLeaderboardHandler(leaderboardUC leaderboardService, defaultSize int) *LeaderboardHandler {
	return &LeaderboardHandler{leaderboardUC: leaderboardUC, defaultSize: defaultSize}
}

// Top returns the n richest owners.
func (h *LeaderboardHandler) Top(w http.ResponseWriter, r *http.Request) {
	n := parseIntQuery(r, "n", h.defaultSize)

	rows, err := h.leaderboardUC.TopOwners(r.Context(), n)
	if err != nil {
		writeDomainError(w, r, "failed to load leaderboard", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.LeaderboardFromDomain(rows))
}
