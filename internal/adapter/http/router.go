package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/iho/coinledger/internal/adapter/http/handler"
	"github.com/iho/coinledger/internal/adapter/http/middleware"
	"github.com/iho/coinledger/internal/infrastructure/auth"
	"github.com/iho/coinledger/internal/infrastructure/metrics"
	"github.com/iho/coinledger/internal/usecase"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	WalletHandler      *handler.WalletHandler
	TransferHandler    *handler.TransferHandler
	LeaderboardHandler *handler.LeaderboardHandler
	HealthHandler      *handler.HealthHandler

	// MeHandler and JWTManager enable the /me routes when both are set.
	MeHandler  *handler.MeHandler
	JWTManager *auth.JWTManager

	IdempotencyStore usecase.IdempotencyStore
	IdempotencyTTL   time.Duration
	RateLimiter      *middleware.RateLimiter
	Metrics          *metrics.Metrics
	MetricsHandler   http.Handler
	Logger           zerolog.Logger
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewLoggingMiddleware(cfg.Logger).Wrap)
	r.Use(middleware.Recovery)

	if cfg.Metrics != nil {
		r.Use(middleware.NewMetricsMiddleware(cfg.Metrics).Wrap)
	}

	if cfg.RateLimiter != nil {
		r.Use(cfg.RateLimiter.Limit)
	}

	// Health endpoints
	r.Get("/health", cfg.HealthHandler.Liveness)
	r.Get("/ready", cfg.HealthHandler.Readiness)

	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		// Idempotency middleware for mutating requests
		if cfg.IdempotencyStore != nil {
			idempotencyMiddleware := middleware.NewIdempotencyMiddleware(cfg.IdempotencyStore, cfg.IdempotencyTTL)
			r.Use(idempotencyMiddleware.Wrap)
		}

		// Wallets
		r.Route("/wallets", func(r chi.Router) {
			r.Post("/", cfg.WalletHandler.Create)
			r.Get("/{id}", cfg.WalletHandler.Get)
			r.Post("/{id}/increment", cfg.WalletHandler.Increment)
			r.Get("/{id}/transactions", cfg.WalletHandler.ListTransactions)
		})

		// Owners
		r.Route("/owners/{ownerID}", func(r chi.Router) {
			r.Get("/wallets", cfg.WalletHandler.ListByOwner)
			r.Post("/provision", cfg.WalletHandler.Provision)
		})

		// Transfers
		r.Route("/transfers", func(r chi.Router) {
			r.Post("/", cfg.TransferHandler.Create)
			r.Get("/", cfg.TransferHandler.List)
		})

		r.Get("/leaderboard", cfg.LeaderboardHandler.Top)

		if cfg.MeHandler != nil && cfg.JWTManager != nil {
			r.Route("/me", func(r chi.Router) {
				r.Use(middleware.AuthMiddleware(cfg.JWTManager))
				r.Get("/coins", cfg.MeHandler.Coins)
				r.Post("/click", cfg.MeHandler.Click)
				r.Post("/transfer", cfg.MeHandler.Transfer)
			})
		}
	})

	return r
}
