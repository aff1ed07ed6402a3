// Package balance owns per-currency balances and aggregate counters of an account.
package balance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/rewardledger/internal/apperrors"
	"github.com/nkiryanov/rewardledger/internal/logger"
	"github.com/nkiryanov/rewardledger/internal/metrics"
	"github.com/nkiryanov/rewardledger/internal/models"
	"github.com/nkiryanov/rewardledger/internal/repository"
	"github.com/nkiryanov/rewardledger/internal/retry"
)

const (
	OpCredit = "credit"
	OpDebit  = "debit"
)

// Mutation describes a single credit or debit of an account
type Mutation struct {
	AccountID uuid.UUID
	Currency  string
	Amount    decimal.Decimal
	Kind      models.TransactionKind
}

func (m Mutation) validate() (Mutation, error) {
	m.Currency = strings.ToUpper(strings.TrimSpace(m.Currency))
	m.Amount = m.Amount.Round(models.AmountScale)

	switch {
	case m.Currency == "":
		return m, apperrors.Validation("currency is required")
	case !m.Amount.IsPositive():
		return m, apperrors.Validation("amount must be positive, got %s", m.Amount)
	case m.Amount.GreaterThan(models.MaxAmount):
		return m, apperrors.Validation("amount is too large, maximum is %s", models.MaxAmount)
	}
	return m, nil
}

// Credit adds amount to the account within storage transaction
//
// Aggregate updated depends on kind:
//   - deposit: totalDeposited
//   - task_reward: totalProfit
//   - referral_commission: totalProfit and totalReferralEarnings
//   - withdrawal: refund of rejected withdrawal, totalWithdrawn decreases
func Credit(ctx context.Context, storage repository.Storage, m Mutation, now time.Time) (models.Account, error) {
	m, err := m.validate()
	if err != nil {
		return models.Account{}, err
	}

	account, err := storage.Account().GetAccount(ctx, m.AccountID)
	if err != nil {
		return account, err
	}

	account.Balances[m.Currency] = account.Balance(m.Currency).Add(m.Amount)

	switch m.Kind {
	case models.KindDeposit:
		account.TotalDeposited = account.TotalDeposited.Add(m.Amount)
	case models.KindTaskReward:
		account.TotalProfit = account.TotalProfit.Add(m.Amount)
	case models.KindReferralCommission:
		account.TotalProfit = account.TotalProfit.Add(m.Amount)
		account.TotalReferralEarnings = account.TotalReferralEarnings.Add(m.Amount)
	case models.KindWithdrawal:
		account.TotalWithdrawn = decimal.Max(decimal.Zero, account.TotalWithdrawn.Sub(m.Amount))
	default:
		return account, apperrors.Validation("unknown transaction kind %q", m.Kind)
	}

	account.UpdatedAt = now
	return storage.Account().UpdateAccount(ctx, account)
}

// Debit subtracts amount from the account within storage transaction
// Fails with apperrors.ErrInsufficientBalance and changes nothing if balance is lower than amount
func Debit(ctx context.Context, storage repository.Storage, m Mutation, now time.Time) (models.Account, error) {
	m, err := m.validate()
	if err != nil {
		return models.Account{}, err
	}

	account, err := storage.Account().GetAccount(ctx, m.AccountID)
	if err != nil {
		return account, err
	}

	current := account.Balance(m.Currency)
	if current.LessThan(m.Amount) {
		return account, fmt.Errorf("%w: %s %s available, %s requested", apperrors.ErrInsufficientBalance, current, m.Currency, m.Amount)
	}

	account.Balances[m.Currency] = current.Sub(m.Amount)
	if m.Kind == models.KindWithdrawal {
		account.TotalWithdrawn = account.TotalWithdrawn.Add(m.Amount)
	}

	account.UpdatedAt = now
	return storage.Account().UpdateAccount(ctx, account)
}

type Service struct {
	storage repository.Storage
	retrier *retry.Retrier
	logger  logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewService(storage repository.Storage, retrier *retry.Retrier, log logger.Logger, m *metrics.Metrics) *Service {
	if retrier == nil {
		retrier = retry.New(retry.Config{})
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	return &Service{
		storage: storage,
		retrier: retrier,
		logger:  log,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Credit runs standalone credit in its own transaction and returns new balance
func (s *Service) Credit(ctx context.Context, m Mutation) (decimal.Decimal, error) {
	return s.apply(ctx, m, OpCredit, Credit)
}

// Debit runs standalone debit in its own transaction and returns new balance
func (s *Service) Debit(ctx context.Context, m Mutation) (decimal.Decimal, error) {
	return s.apply(ctx, m, OpDebit, Debit)
}

type applyFunc func(context.Context, repository.Storage, Mutation, time.Time) (models.Account, error)

func (s *Service) apply(ctx context.Context, m Mutation, op string, fn applyFunc) (decimal.Decimal, error) {
	var account models.Account

	err := s.retrier.InTx(ctx, s.storage, func(tx repository.Storage) error {
		var err error
		account, err = fn(ctx, tx, m, s.now())
		return err
	})
	if err != nil {
		return decimal.Zero, err
	}

	s.Observe(op, m)
	s.logger.Debug("balance changed", "account_id", m.AccountID, "op", op, "kind", m.Kind, "amount", m.Amount)

	return account.Balance(strings.ToUpper(m.Currency)), nil
}

// Observe records committed mutation in metrics
func (s *Service) Observe(op string, m Mutation) {
	s.metrics.RecordLedger(string(m.Kind), op, m.Amount.InexactFloat64())
}
