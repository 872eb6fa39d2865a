package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	httpAdapter "github.com/iho/coinledger/internal/adapter/http"
	"github.com/iho/coinledger/internal/adapter/http/handler"
	"github.com/iho/coinledger/internal/adapter/http/middleware"
	"github.com/iho/coinledger/internal/adapter/repository/memory"
	postgresRepo "github.com/iho/coinledger/internal/adapter/repository/postgres"
	redisRepo "github.com/iho/coinledger/internal/adapter/repository/redis"
	"github.com/iho/coinledger/internal/infrastructure/auth"
	"github.com/iho/coinledger/internal/infrastructure/config"
	"github.com/iho/coinledger/internal/infrastructure/logger"
	"github.com/iho/coinledger/internal/infrastructure/metrics"
	"github.com/iho/coinledger/internal/infrastructure/postgres"
	"github.com/iho/coinledger/internal/infrastructure/redis"
	"github.com/iho/coinledger/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLog := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	log.Logger = appLog

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, appLog); err != nil {
		appLog.Fatal().Err(err).Msg("server failed")
	}
}

// storage is the set of repositories behind one STORAGE_BACKEND.
type storage struct {
	txManager   usecase.TransactionManager
	locker      usecase.WalletLocker
	transferer  usecase.WalletTransferer
	wallets     usecase.WalletRepository
	txLog       usecase.TransactionLog
	leaderboard usecase.LeaderboardRepository
	directory   usecase.Directory
	retrier     usecase.Retrier
	checks      []handler.HealthCheck
	closers     []func()
}

func (s *storage) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// openStorage connects the configured backend. redisClient may be nil unless
// the backend is redis.
func openStorage(ctx context.Context, cfg *config.Config, redisClient *goredis.Client, appLog zerolog.Logger) (*storage, error) {
	switch cfg.StorageBackend {
	case config.BackendPostgres:
		if cfg.MigrateOnStart {
			if err := postgres.RunMigrations(cfg.DatabaseURL, cfg.MigrationsPath, appLog); err != nil {
				return nil, fmt.Errorf("run migrations: %w", err)
			}
		}

		pool, err := postgres.NewPoolWithConfig(ctx, postgres.PoolConfig{
			DatabaseURL:    cfg.DatabaseURL,
			MaxConns:       cfg.DatabaseMaxConns,
			MinConns:       cfg.DatabaseMinConns,
			ConnectTimeout: cfg.DatabaseTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		appLog.Info().Msg("connected to postgres")

		wallets := postgresRepo.NewWalletRepository(pool)

		return &storage{
			txManager:   postgresRepo.NewTxManager(pool),
			locker:      wallets,
			wallets:     wallets,
			txLog:       postgresRepo.NewTransactionLogRepository(pool),
			leaderboard: postgresRepo.NewLeaderboardRepository(pool),
			directory:   postgresRepo.NewDirectoryRepository(pool),
			retrier:     postgresRepo.NewRetrier(cfg.RetryMaxAttempts, appLog),
			checks:      []handler.HealthCheck{{Name: "postgres", Pinger: pool}},
			closers:     []func(){pool.Close},
		}, nil

	case config.BackendRedis:
		if redisClient == nil {
			return nil, errors.New("redis backend needs a redis client")
		}

		store := redisRepo.NewWalletStore(redisClient)

		// Transfers run as one Lua script instead of a locked transaction.
		return &storage{
			transferer:  store,
			wallets:     store,
			txLog:       store,
			leaderboard: store,
			directory:   store,
			retrier:     redisRepo.NewRetrier(cfg.RetryMaxAttempts, appLog),
		}, nil

	case config.BackendMemory:
		appLog.Warn().Msg("using in-memory storage, data is lost on restart")
		store := memory.New()

		return &storage{
			txManager:   store,
			locker:      store,
			wallets:     store,
			txLog:       store,
			leaderboard: store,
			directory:   store,
		}, nil
	}

	return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
}

func run(ctx context.Context, cfg *config.Config, appLog zerolog.Logger) error {
	var redisClient *goredis.Client
	if cfg.RedisURL != "" {
		client, err := redis.NewClient(ctx, redis.ClientConfig{
			URL:      cfg.RedisURL,
			PoolSize: cfg.RedisPoolSize,
			Timeout:  cfg.RedisTimeout,
		})
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer client.Close()

		redisClient = client
		appLog.Info().Msg("connected to redis")
	}

	store, err := openStorage(ctx, cfg, redisClient, appLog)
	if err != nil {
		return err
	}
	defer store.close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var (
		cache            usecase.Cache
		idempotencyStore usecase.IdempotencyStore
		checks           = store.checks
	)
	if redisClient != nil {
		cache = redisRepo.NewCache(redisClient)
		idempotencyStore = redisRepo.NewIdempotencyStore(redisClient)
		checks = append(checks, handler.HealthCheck{Name: "redis", Pinger: redis.NewPinger(redisClient)})
	}

	// Initialize use cases
	walletUC := usecase.NewWalletUseCase(store.wallets, store.directory, m, appLog, cfg.DefaultStartingBalance)
	ledgerUC := usecase.NewLedgerUseCase(usecase.LedgerConfig{
		TxManager:  store.txManager,
		Locker:     store.locker,
		Transferer: store.transferer,
		WalletRepo: store.wallets,
		TxLog:      store.txLog,
		IDGen:      postgresRepo.NewULIDGenerator(),
		Retrier:    store.retrier,
		Metrics:    m,
		Logger:     appLog,
		Timeout:    cfg.TransferTimeout,
	})
	leaderboardUC := usecase.NewLeaderboardUseCase(store.leaderboard, cache, cfg.LeaderboardCacheTTL, appLog)

	routerCfg := httpAdapter.RouterConfig{
		WalletHandler:      handler.NewWalletHandler(walletUC, ledgerUC),
		TransferHandler:    handler.NewTransferHandler(ledgerUC),
		LeaderboardHandler: handler.NewLeaderboardHandler(leaderboardUC, cfg.LeaderboardDefaultSize),
		HealthHandler:      handler.NewHealthHandler(checks...),
		IdempotencyStore:   idempotencyStore,
		IdempotencyTTL:     cfg.IdempotencyTTL,
		Metrics:            m,
		MetricsHandler:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		Logger:             appLog,
	}

	if cfg.AuthEnabled {
		routerCfg.MeHandler = handler.NewMeHandler(walletUC, ledgerUC)
		routerCfg.JWTManager = auth.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiration)
		appLog.Info().Msg("bearer authentication enabled for /api/v1/me")
	}

	if cfg.RateLimitRPS > 0 {
		rl := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst).CountRejections(m.RateLimitHits)
		go rl.RunCleanup(ctx, time.Hour)
		routerCfg.RateLimiter = rl
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:      httpAdapter.NewRouter(routerCfg),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info().
			Str("port", cfg.HTTPPort).
			Str("storage", cfg.StorageBackend).
			Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	appLog.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	appLog.Info().Msg("server stopped")

	return nil
}
