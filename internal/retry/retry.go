// Package retry re-runs store transactions that lost an optimistic concurrency race.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"github.com/nkiryanov/rewardledger/internal/apperrors"
	"github.com/nkiryanov/rewardledger/internal/repository"
)

const (
	DefaultAttempts = 4
	DefaultMinDelay = 10 * time.Millisecond
	DefaultMaxDelay = 200 * time.Millisecond
)

type Config struct {
	Attempts int
	MinDelay time.Duration
	MaxDelay time.Duration

	// Called before every repeated attempt
	OnRetry func(attempt int, err error)
}

type Retrier struct {
	executor failsafe.Executor[any]
}

// New builds retrier that handles apperrors.ErrStoreConflict only; other errors are returned at once
func New(cfg Config) *Retrier {
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultAttempts
	}
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = DefaultMinDelay
	}
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = max(DefaultMaxDelay, cfg.MinDelay)
	}

	builder := retrypolicy.NewBuilder[any]().
		HandleIf(func(_ any, err error) bool {
			return errors.Is(err, apperrors.ErrStoreConflict)
		}).
		WithMaxAttempts(cfg.Attempts).
		WithBackoff(cfg.MinDelay, cfg.MaxDelay).
		WithJitterFactor(0.1).
		ReturnLastFailure()

	if cfg.OnRetry != nil {
		builder = builder.OnRetry(func(e failsafe.ExecutionEvent[any]) {
			cfg.OnRetry(e.Attempts(), e.LastError())
		})
	}

	return &Retrier{executor: failsafe.With[any](builder.Build())}
}

// Do runs fn until it succeeds, fails with non conflict error or attempts are exhausted
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.executor.WithContext(ctx).Run(func() error {
		return fn(ctx)
	})
}

// InTx runs fn in a store transaction and repeats the whole transaction on conflict
func (r *Retrier) InTx(ctx context.Context, storage repository.Storage, fn func(repository.Storage) error) error {
	return r.Do(ctx, func(ctx context.Context) error {
		return storage.InTx(ctx, fn)
	})
}
