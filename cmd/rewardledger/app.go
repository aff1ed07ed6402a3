package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nkiryanov/rewardledger/internal/db"
	"github.com/nkiryanov/rewardledger/internal/handlers"
	"github.com/nkiryanov/rewardledger/internal/lock"
	"github.com/nkiryanov/rewardledger/internal/logger"
	"github.com/nkiryanov/rewardledger/internal/metrics"
	"github.com/nkiryanov/rewardledger/internal/repository/postgres"
	"github.com/nkiryanov/rewardledger/internal/retry"
	"github.com/nkiryanov/rewardledger/internal/service/account"
	"github.com/nkiryanov/rewardledger/internal/service/deposit"
	"github.com/nkiryanov/rewardledger/internal/service/membership"
	"github.com/nkiryanov/rewardledger/internal/service/referral"
	"github.com/nkiryanov/rewardledger/internal/service/reward"
	"github.com/nkiryanov/rewardledger/internal/service/tokenmanager"
	"github.com/nkiryanov/rewardledger/internal/service/withdrawal"
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	logger logger.Logger
	pool   *pgxpool.Pool
	redis  *redis.Client
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	minWithdrawal, _ := c.minWithdrawal()

	// Initialize logger
	log, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	tokens, err := tokenmanager.New(tokenmanager.Config{SecretKey: c.SecretKey})
	if err != nil {
		return nil, fmt.Errorf("error while creating token manager. Err: %w", err)
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}
	app := &ServerApp{ListenAddr: c.ListenAddr, logger: log, pool: pool}

	var locker lock.Locker = lock.NewLocalLocker()
	if c.RedisAddr != "" {
		app.redis = redis.NewClient(&redis.Options{Addr: c.RedisAddr})
		if err := app.redis.Ping(ctx).Err(); err != nil {
			app.Close()
			return nil, fmt.Errorf("error while connecting to redis. Err: %w", err)
		}
		locker = lock.NewRedisLocker(app.redis, lock.RedisConfig{})
	} else {
		log.Warn("redis address is not set, account locks are in-process only")
	}

	storage := postgres.NewStorage(pool)
	m := metrics.New()
	retrier := retry.New(retry.Config{
		Attempts: c.StoreRetryAttempts,
		OnRetry: func(attempt int, err error) {
			m.RecordConflictRetry()
			log.Debug("store conflict, retrying", "attempt", attempt, "error", err)
		},
	})

	// Initialize services
	membershipService := membership.NewService(membership.Config{AllowDemotion: c.AllowTierDemotion}, storage, retrier, log, m)
	referralService := referral.NewService(storage, retrier, membershipService, log, m)
	tiers := membershipService.Policy()

	services := handlers.Services{
		Account:    account.NewService(account.Config{Tiers: tiers}, storage, retrier, log),
		Reward:     reward.NewService(reward.Config{PrimaryCurrency: c.PrimaryCurrency, Tiers: tiers}, storage, retrier, log, m),
		Withdrawal: withdrawal.NewService(withdrawal.Config{MinWithdrawal: minWithdrawal}, storage, retrier, locker, log, m),
		Deposit:    deposit.NewService(storage, retrier, referralService, log, m),
		Membership: membershipService,
		Referral:   referralService,
	}

	app.Handler = handlers.NewRouter(services, tokens, m, log)
	return app, nil
}

// Run starts http server and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	defer s.Close()

	httpServer := &http.Server{
		Addr:              s.ListenAddr,
		Handler:           s.Handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("Starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *ServerApp) Close() {
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}
