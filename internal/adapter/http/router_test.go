package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/iho/coinledger/internal/adapter/http/handler"
	apimiddleware "github.com/iho/coinledger/internal/adapter/http/middleware"
	"github.com/iho/coinledger/internal/adapter/repository/memory"
	"github.com/iho/coinledger/internal/infrastructure/auth"
	"github.com/iho/coinledger/internal/infrastructure/metrics"
	"github.com/iho/coinledger/internal/usecase"
)

func TestNewRouter_HealthEndpointAvailable(t *testing.T) {
	router := NewRouter(newRouterConfig())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected /health to return 200, got %d", rec.Code)
	}
}

func TestNewRouter_RateLimiterBlocksExcessRequests(t *testing.T) {
	rl := apimiddleware.NewRateLimiter(1, 1)
	router := NewRouter(newRouterConfig(func(cfg *RouterConfig) {
		cfg.RateLimiter = rl
	}))

	req1 := httptest.NewRequest(http.MethodGet, "/health", nil)
	req1.RemoteAddr = "1.2.3.4:1234"
	rec1 := httptest.NewRecorder()
	router.ServeHTTP(rec1, req1)
	if rec1.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", rec1.Code)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/health", nil)
	req2.RemoteAddr = "1.2.3.4:1234"
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be throttled, got %d", rec2.Code)
	}
}

func TestNewRouter_IdempotencyMiddlewareInvokesStore(t *testing.T) {
	store := &stubIdempotencyStore{}
	router := NewRouter(newRouterConfig(func(cfg *RouterConfig) {
		cfg.IdempotencyStore = store
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/wallets/", strings.NewReader(`{"owner_id": 1}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(apimiddleware.IdempotencyKeyHeader, "key-123")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if !store.checkCalled || !store.updateCalled {
		t.Fatalf("expected idempotency store to be used")
	}
}

func TestNewRouter_RegistersKeyRoutes(t *testing.T) {
	router := NewRouter(newRouterConfig(withAuth("secret")))

	chiRoutes, ok := router.(chi.Router)
	if !ok {
		t.Fatal("router does not implement chi.Routes")
	}

	seen := map[string]bool{}
	if err := chi.Walk(chiRoutes, func(method string, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		seen[method+" "+route] = true
		return nil
	}); err != nil {
		t.Fatalf("walk failed: %v", err)
	}

	expected := []string{
		"GET /health",
		"GET /ready",
		"POST /api/v1/wallets/",
		"GET /api/v1/wallets/{id}",
		"POST /api/v1/wallets/{id}/increment",
		"GET /api/v1/wallets/{id}/transactions",
		"GET /api/v1/owners/{ownerID}/wallets",
		"POST /api/v1/owners/{ownerID}/provision",
		"POST /api/v1/transfers/",
		"GET /api/v1/transfers/",
		"GET /api/v1/leaderboard",
		"GET /api/v1/me/coins",
		"POST /api/v1/me/click",
		"POST /api/v1/me/transfer",
	}

	for _, route := range expected {
		if !seen[route] {
			t.Fatalf("expected route %s to be registered", route)
		}
	}
}

func TestNewRouter_MeRoutesDisabledWithoutAuth(t *testing.T) {
	router := NewRouter(newRouterConfig())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/me/coins", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without auth, got %d", rec.Code)
	}
}

func TestNewRouter_EndToEnd(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	router := NewRouter(newRouterConfig(func(cfg *RouterConfig) {
		cfg.Metrics = m
		cfg.MetricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}))

	do := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	for _, owner := range []int{1, 2} {
		if rec := do(http.MethodPost, "/api/v1/wallets", fmt.Sprintf(`{"owner_id": %d}`, owner)); rec.Code != http.StatusCreated {
			t.Fatalf("create wallet: %d %s", rec.Code, rec.Body.String())
		}
	}

	rec := do(http.MethodPost, "/api/v1/transfers", `{"sender_wallet_id": 1, "recipient_wallet_id": 2, "amount": 7}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("transfer: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(http.MethodGet, "/api/v1/leaderboard?n=1", "")
	var board []struct {
		Rank       int   `json:"rank"`
		OwnerID    int64 `json:"owner_id"`
		TotalCoins int64 `json:"total_coins"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &board); err != nil {
		t.Fatalf("decode leaderboard: %v", err)
	}
	if len(board) != 1 || board[0].OwnerID != 2 || board[0].TotalCoins != 17 {
		t.Fatalf("unexpected leaderboard: %+v", board)
	}

	rec = do(http.MethodGet, "/metrics", "")
	if !strings.Contains(rec.Body.String(), "coinledger_transfers_completed_total 1") {
		t.Fatalf("expected transfer counter in metrics output")
	}
	if !strings.Contains(rec.Body.String(), `path="/api/v1/transfers`) {
		t.Fatalf("expected route-labelled http metrics")
	}
}

func TestNewRouter_MeRoutesUseBearerOwner(t *testing.T) {
	manager := auth.NewJWTManager("secret", time.Hour)
	router := NewRouter(newRouterConfig(withAuth("secret")))

	token, err := manager.Generate(9)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/me/click", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Balance int64 `json:"balance"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Balance != 11 {
		t.Fatalf("expected provisioned wallet plus one click, got %d", resp.Balance)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/me/click", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

type seqIDGen struct {
	n atomic.Int64
}

func (g *seqIDGen) Generate() string {
	return fmt.Sprintf("tx-%06d", g.n.Add(1))
}

func newRouterConfig(opts ...func(*RouterConfig)) RouterConfig {
	store := memory.New()
	walletUC := usecase.NewWalletUseCase(store, store, nil, zerolog.Nop(), 10)
	ledgerUC := usecase.NewLedgerUseCase(usecase.LedgerConfig{
		TxManager:  store,
		Locker:     store,
		WalletRepo: store,
		TxLog:      store,
		IDGen:      &seqIDGen{},
		Logger:     zerolog.Nop(),
	})
	leaderboardUC := usecase.NewLeaderboardUseCase(store, nil, 0, zerolog.Nop())

	cfg := RouterConfig{
		HealthHandler:      handler.NewHealthHandler(),
		WalletHandler:      handler.NewWalletHandler(walletUC, ledgerUC),
		TransferHandler:    handler.NewTransferHandler(ledgerUC),
		LeaderboardHandler: handler.NewLeaderboardHandler(leaderboardUC, usecase.DefaultLeaderboardSize),
		MeHandler:          handler.NewMeHandler(walletUC, ledgerUC),
		Logger:             zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	return cfg
}

func withAuth(secret string) func(*RouterConfig) {
	return func(cfg *RouterConfig) {
		cfg.JWTManager = auth.NewJWTManager(secret, time.Hour)
	}
}

type stubIdempotencyStore struct {
	checkCalled  bool
	updateCalled bool
}

func (s *stubIdempotencyStore) CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error) {
	s.checkCalled = true
	return false, nil, nil
}

func (s *stubIdempotencyStore) Update(ctx context.Context, key string, response []byte, ttl time.Duration) error {
	s.updateCalled = true
	return nil
}

func (s *stubIdempotencyStore) Release(ctx context.Context, key string) error {
	return nil
}
