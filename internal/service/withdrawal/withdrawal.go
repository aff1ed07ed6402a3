// Package withdrawal validates withdrawal requests and runs their review lifecycle.
//
//	pending -> processing -> approved
//	pending | processing -> rejected (amount is credited back)
package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/rewardledger/internal/apperrors"
	"github.com/nkiryanov/rewardledger/internal/lock"
	"github.com/nkiryanov/rewardledger/internal/logger"
	"github.com/nkiryanov/rewardledger/internal/metrics"
	"github.com/nkiryanov/rewardledger/internal/models"
	"github.com/nkiryanov/rewardledger/internal/repository"
	"github.com/nkiryanov/rewardledger/internal/retry"
	"github.com/nkiryanov/rewardledger/internal/service/balance"
)

var DefaultMinWithdrawal = decimal.NewFromInt(10)

type Config struct {
	MinWithdrawal decimal.Decimal
}

type Request struct {
	AccountID uuid.UUID
	Amount    decimal.Decimal
	Currency  string
	Network   string
	Address   string
}

type Service struct {
	storage repository.Storage
	retrier *retry.Retrier
	locker  lock.Locker
	logger  logger.Logger
	metrics *metrics.Metrics
	minimum decimal.Decimal
	now     func() time.Time
}

func NewService(
	cfg Config,
	storage repository.Storage,
	retrier *retry.Retrier,
	locker lock.Locker,
	log logger.Logger,
	m *metrics.Metrics,
) *Service {
	if !cfg.MinWithdrawal.IsPositive() {
		cfg.MinWithdrawal = DefaultMinWithdrawal
	}
	if retrier == nil {
		retrier = retry.New(retry.Config{})
	}
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	return &Service{
		storage: storage,
		retrier: retrier,
		locker:  locker,
		logger:  log,
		metrics: m,
		minimum: cfg.MinWithdrawal,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (req Request) validate() (Request, error) {
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	req.Address = strings.TrimSpace(req.Address)
	req.Network = strings.TrimSpace(req.Network)
	req.Amount = req.Amount.Round(models.AmountScale)

	switch {
	case !req.Amount.IsPositive():
		return req, apperrors.Validation("amount must be positive, got %s", req.Amount)
	case req.Amount.GreaterThan(models.MaxAmount):
		return req, apperrors.Validation("amount is too large, maximum is %s", models.MaxAmount)
	case req.Currency == "":
		return req, apperrors.Validation("currency is required")
	case req.Address == "":
		return req, apperrors.Validation("destination address is required")
	}
	return req, nil
}

// RequestWithdrawal debits the account and creates pending withdrawal in one store transaction
// Requests of the same account are serialized by the account lock
func (s *Service) RequestWithdrawal(ctx context.Context, req Request) (models.Transaction, error) {
	req, err := req.validate()
	if err != nil {
		return models.Transaction{}, err
	}

	unlock, err := s.locker.Lock(ctx, lock.AccountKey(req.AccountID))
	if err != nil {
		return models.Transaction{}, err
	}
	defer unlock()

	var withdrawal models.Transaction

	err = s.retrier.InTx(ctx, s.storage, func(tx repository.Storage) error {
		now := s.now()

		account, err := tx.Account().GetAccount(ctx, req.AccountID)
		if err != nil {
			return err
		}
		if account.IsBlocked {
			return apperrors.ErrAccountBlocked
		}

		open, err := tx.Transaction().ListTransactions(ctx, repository.ListTransactionsOpts{
			AccountID: &req.AccountID,
			Kinds:     []models.TransactionKind{models.KindWithdrawal},
			Statuses:  []models.TransactionStatus{models.StatusPending, models.StatusProcessing},
			Limit:     1,
		})
		if err != nil {
			return err
		}
		if len(open) > 0 {
			return apperrors.ErrAnotherWithdrawalPending
		}

		available := account.AvailableProfit()
		switch {
		case req.Amount.LessThan(s.minimum):
			return fmt.Errorf("%w: minimum is %s", apperrors.ErrBelowMinimumWithdrawal, s.minimum)
		case req.Amount.GreaterThan(available):
			return fmt.Errorf("%w: %s available", apperrors.ErrExceedsAvailableProfit, available)
		case req.Amount.GreaterThan(account.Balance(req.Currency)):
			return fmt.Errorf("%w: %s %s on balance", apperrors.ErrInsufficientBalance, account.Balance(req.Currency), req.Currency)
		}

		_, err = balance.Debit(ctx, tx, balance.Mutation{
			AccountID: req.AccountID,
			Currency:  req.Currency,
			Amount:    req.Amount,
			Kind:      models.KindWithdrawal,
		}, now)
		if err != nil {
			return err
		}

		withdrawal, err = tx.Transaction().CreateTransaction(ctx, models.Transaction{
			ID:        uuid.New(),
			AccountID: req.AccountID,
			Kind:      models.KindWithdrawal,
			Amount:    req.Amount,
			Currency:  req.Currency,
			Status:    models.StatusPending,
			CreatedAt: now,
			Meta:      models.WithdrawalMeta{Network: req.Network, Address: req.Address},
		})
		return err
	})
	switch {
	case err == nil:
	case IsBusinessError(err):
		s.metrics.RecordWithdrawal("declined")
		s.logger.Info("withdrawal declined", "account_id", req.AccountID, "amount", req.Amount, "reason", apperrors.Code(err))
		return models.Transaction{}, err
	default:
		s.logger.Error("withdrawal request failed", "account_id", req.AccountID, "error", err)
		return models.Transaction{}, err
	}

	s.metrics.RecordWithdrawal("requested")
	s.metrics.RecordLedger(string(models.KindWithdrawal), balance.OpDebit, req.Amount.InexactFloat64())
	s.logger.Info("withdrawal requested", "account_id", req.AccountID, "transaction_id", withdrawal.ID, "amount", req.Amount)

	return withdrawal, nil
}

// MarkProcessing moves pending withdrawal to processing
func (s *Service) MarkProcessing(ctx context.Context, id uuid.UUID, reviewerID uuid.UUID) (models.Transaction, error) {
	return s.transition(ctx, id, reviewerID, models.StatusProcessing, func(_ repository.Storage, t *models.Transaction, _ time.Time) error {
		if t.Status != models.StatusPending {
			return invalidTransition(*t, models.StatusProcessing)
		}
		return nil
	})
}

// Approve finalizes withdrawal; balance was debited at request time already
func (s *Service) Approve(ctx context.Context, id uuid.UUID, reviewerID uuid.UUID, externalRef string) (models.Transaction, error) {
	return s.transition(ctx, id, reviewerID, models.StatusApproved, func(_ repository.Storage, t *models.Transaction, _ time.Time) error {
		if !t.Status.Open() {
			return invalidTransition(*t, models.StatusApproved)
		}
		meta, _ := t.Meta.(models.WithdrawalMeta)
		meta.ExternalRef = strings.TrimSpace(externalRef)
		t.Meta = meta
		return nil
	})
}

// Reject finalizes withdrawal and credits amount back exactly once
func (s *Service) Reject(ctx context.Context, id uuid.UUID, reviewerID uuid.UUID, reason string) (models.Transaction, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return models.Transaction{}, apperrors.Validation("reject reason is required")
	}

	return s.transition(ctx, id, reviewerID, models.StatusRejected, func(tx repository.Storage, t *models.Transaction, now time.Time) error {
		if !t.Status.Open() {
			return invalidTransition(*t, models.StatusRejected)
		}
		meta, _ := t.Meta.(models.WithdrawalMeta)
		meta.RejectReason = reason
		t.Meta = meta

		_, err := balance.Credit(ctx, tx, balance.Mutation{
			AccountID: t.AccountID,
			Currency:  t.Currency,
			Amount:    t.Amount,
			Kind:      models.KindWithdrawal,
		}, now)
		return err
	})
}

type transitionFunc func(tx repository.Storage, t *models.Transaction, now time.Time) error

func (s *Service) transition(ctx context.Context, id uuid.UUID, reviewerID uuid.UUID, to models.TransactionStatus, fn transitionFunc) (models.Transaction, error) {
	var updated models.Transaction

	err := s.retrier.InTx(ctx, s.storage, func(tx repository.Storage) error {
		now := s.now()

		t, err := tx.Transaction().GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		if t.Kind != models.KindWithdrawal {
			return fmt.Errorf("%w: %s is a %s", apperrors.ErrTransactionNotFound, id, t.Kind)
		}

		from := t.Status
		if err := fn(tx, &t, now); err != nil {
			return err
		}

		t.Status = to
		t.ReviewedBy = &reviewerID
		t.ReviewedAt = &now

		updated, err = tx.Transaction().UpdateTransaction(ctx, t, from)
		return err
	})
	if err != nil {
		return updated, err
	}

	s.metrics.RecordWithdrawal(string(to))
	if to == models.StatusRejected {
		s.metrics.RecordLedger(string(models.KindWithdrawal), balance.OpCredit, updated.Amount.InexactFloat64())
	}
	s.logger.Info("withdrawal reviewed", "transaction_id", id, "status", to, "reviewer_id", reviewerID)

	return updated, nil
}

func invalidTransition(t models.Transaction, to models.TransactionStatus) error {
	return fmt.Errorf("%w: withdrawal %s is %s, can't become %s", apperrors.ErrInvalidStateTransition, t.ID, t.Status, to)
}

func (s *Service) ListWithdrawals(ctx context.Context, accountID uuid.UUID) ([]models.Transaction, error) {
	if _, err := s.storage.Account().GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return s.storage.Transaction().ListTransactions(ctx, repository.ListTransactionsOpts{
		AccountID: &accountID,
		Kinds:     []models.TransactionKind{models.KindWithdrawal},
	})
}

// ListPending returns withdrawals waiting for review of all accounts
func (s *Service) ListPending(ctx context.Context) ([]models.Transaction, error) {
	return s.storage.Transaction().ListTransactions(ctx, repository.ListTransactionsOpts{
		Kinds:    []models.TransactionKind{models.KindWithdrawal},
		Statuses: []models.TransactionStatus{models.StatusPending, models.StatusProcessing},
	})
}

// IsBusinessError reports whether err is a rule violation rather than a failure
func IsBusinessError(err error) bool {
	for _, target := range []error{
		apperrors.ErrAccountBlocked,
		apperrors.ErrAnotherWithdrawalPending,
		apperrors.ErrBelowMinimumWithdrawal,
		apperrors.ErrExceedsAvailableProfit,
		apperrors.ErrInsufficientBalance,
		apperrors.ErrInvalidStateTransition,
		apperrors.ErrValidation,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
