// Package reward settles daily task rewards.
package reward

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/rewardledger/internal/apperrors"
	"github.com/nkiryanov/rewardledger/internal/logger"
	"github.com/nkiryanov/rewardledger/internal/metrics"
	"github.com/nkiryanov/rewardledger/internal/models"
	"github.com/nkiryanov/rewardledger/internal/repository"
	"github.com/nkiryanov/rewardledger/internal/retry"
	"github.com/nkiryanov/rewardledger/internal/service/balance"
	"github.com/nkiryanov/rewardledger/internal/service/membership"
)

type Config struct {
	// Balance in this currency unlocks tasks and is the reward base
	PrimaryCurrency string

	// If nil rate is drawn uniformly
	Rates RateSource

	// How stored and computed tiers combine; take it from membership service
	Tiers membership.Policy
}

type Result struct {
	Reward         decimal.Decimal
	Rate           decimal.Decimal
	Tier           models.Tier
	RemainingTasks int
	Transaction    models.Transaction
}

type Service struct {
	storage  repository.Storage
	retrier  *retry.Retrier
	logger   logger.Logger
	metrics  *metrics.Metrics
	currency string
	rates    RateSource
	tiers    membership.Policy
	now      func() time.Time
}

func NewService(cfg Config, storage repository.Storage, retrier *retry.Retrier, log logger.Logger, m *metrics.Metrics) *Service {
	if cfg.PrimaryCurrency == "" {
		cfg.PrimaryCurrency = "USDT"
	}
	if cfg.Rates == nil {
		cfg.Rates = NewUniformRate(uint64(time.Now().UnixNano()))
	}
	if retrier == nil {
		retrier = retry.New(retry.Config{})
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	return &Service{
		storage:  storage,
		retrier:  retrier,
		logger:   log,
		metrics:  m,
		currency: cfg.PrimaryCurrency,
		rates:    cfg.Rates,
		tiers:    cfg.Tiers,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CompleteTask credits reward for one more task of today
// Counter update, account credit and reward transaction are written in one store transaction,
// so concurrent calls never complete more than tier daily task count
func (s *Service) CompleteTask(ctx context.Context, accountID uuid.UUID) (Result, error) {
	var result Result

	err := s.retrier.InTx(ctx, s.storage, func(tx repository.Storage) error {
		now := s.now()

		account, counter, tier, err := s.today(ctx, tx, accountID, now)
		if err != nil {
			return err
		}
		if account.IsBlocked {
			return apperrors.ErrAccountBlocked
		}
		if counter.RemainingTasks() <= 0 {
			return fmt.Errorf("%w: %d of %d tasks completed", apperrors.ErrTasksExhausted, counter.CompletedTasks, counter.TotalTasks)
		}

		params := tier.Params()
		base := account.Balance(s.currency)
		if base.LessThan(params.MinBalance) {
			return fmt.Errorf("%w: %s tier requires %s %s", apperrors.ErrBelowMinimumBalance, tier, params.MinBalance, s.currency)
		}

		rate := s.rates.Rate(params.MinRate, params.MaxRate)
		reward := base.Mul(rate).Round(models.AmountScale)

		completed := counter.CompletedTasks
		counter.CompletedTasks++
		counter.TotalReward = counter.TotalReward.Add(reward)
		counter, err = tx.Task().UpdateCounter(ctx, counter, completed)
		if err != nil {
			return err
		}

		_, err = balance.Credit(ctx, tx, balance.Mutation{
			AccountID: accountID,
			Currency:  s.currency,
			Amount:    reward,
			Kind:      models.KindTaskReward,
		}, now)
		if err != nil {
			return err
		}

		transaction, err := tx.Transaction().CreateTransaction(ctx, models.Transaction{
			ID:        uuid.New(),
			AccountID: accountID,
			Kind:      models.KindTaskReward,
			Amount:    reward,
			Currency:  s.currency,
			Status:    models.StatusCompleted,
			CreatedAt: now,
			Meta: models.TaskRewardMeta{
				Rate:          rate,
				BalanceBefore: base,
				Tier:          tier,
				Day:           counter.Day.Format(time.DateOnly),
				TaskNumber:    counter.CompletedTasks,
			},
		})
		if err != nil {
			return err
		}

		result = Result{
			Reward:         reward,
			Rate:           rate,
			Tier:           tier,
			RemainingTasks: counter.RemainingTasks(),
			Transaction:    transaction,
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	s.metrics.RecordTask(result.Tier.String())
	s.metrics.RecordLedger(string(models.KindTaskReward), balance.OpCredit, result.Reward.InexactFloat64())
	s.logger.Info("task completed",
		"account_id", accountID,
		"tier", result.Tier.String(),
		"rate", result.Rate,
		"reward", result.Reward,
		"remaining", result.RemainingTasks,
	)

	return result, nil
}

// TodayCounter returns today's counter, creating it on first access
func (s *Service) TodayCounter(ctx context.Context, accountID uuid.UUID) (models.DailyTaskCounter, error) {
	var counter models.DailyTaskCounter

	err := s.retrier.InTx(ctx, s.storage, func(tx repository.Storage) error {
		var err error
		_, counter, _, err = s.today(ctx, tx, accountID, s.now())
		return err
	})

	return counter, err
}

// Counter total tasks is fixed by the tier on the first access of the day
func (s *Service) today(ctx context.Context, tx repository.Storage, accountID uuid.UUID, now time.Time) (models.Account, models.DailyTaskCounter, models.Tier, error) {
	var counter models.DailyTaskCounter

	account, err := tx.Account().GetAccount(ctx, accountID)
	if err != nil {
		return account, counter, 0, err
	}

	tier, _, err := s.tiers.Resolve(ctx, tx, account)
	if err != nil {
		return account, counter, 0, err
	}

	counter, err = tx.Task().GetOrCreateCounter(ctx, accountID, models.Day(now), tier.Params().DailyTasks)
	return account, counter, tier, err
}
