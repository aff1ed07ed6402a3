// Package deposit runs deposit review and triggers referral commission for approved deposits.
package deposit

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
	"github.com/nkiryanov/rewardledger/internal/service/balance"
	"github.com/nkiryanov/rewardledger/internal/service/referral"
)

type Request struct {
	AccountID uuid.UUID
	Amount    decimal.Decimal
	Currency  string
	Network   string
	TxHash    string
}

// Result of an approved deposit
// Commission failures of single levels are in Commission.Failed(), deposit itself is committed anyway
type Result struct {
	Deposit    models.Transaction
	Commission referral.Report
}

type Service struct {
	storage  repository.Storage
	retrier  *retry.Retrier
	referral *referral.Service
	logger   logger.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewService(
	storage repository.Storage,
	retrier *retry.Retrier,
	referralService *referral.Service,
	log logger.Logger,
	m *metrics.Metrics,
) *Service {
	if retrier == nil {
		retrier = retry.New(retry.Config{})
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	return &Service{
		storage:  storage,
		retrier:  retrier,
		referral: referralService,
		logger:   log,
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (req Request) validate() (Request, error) {
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	req.Network = strings.TrimSpace(req.Network)
	req.TxHash = strings.TrimSpace(req.TxHash)
	req.Amount = req.Amount.Round(models.AmountScale)

	switch {
	case !req.Amount.IsPositive():
		return req, apperrors.Validation("amount must be positive, got %s", req.Amount)
	case req.Amount.GreaterThan(models.MaxAmount):
		return req, apperrors.Validation("amount is too large, maximum is %s", models.MaxAmount)
	case req.Currency == "":
		return req, apperrors.Validation("currency is required")
	}
	return req, nil
}

func (req Request) transaction(status models.TransactionStatus, now time.Time) models.Transaction {
	return models.Transaction{
		ID:        uuid.New(),
		AccountID: req.AccountID,
		Kind:      models.KindDeposit,
		Amount:    req.Amount,
		Currency:  req.Currency,
		Status:    status,
		CreatedAt: now,
		Meta:      models.DepositMeta{Network: req.Network, TxHash: req.TxHash},
	}
}

// CreateDeposit records deposit waiting for review, balance is untouched
func (s *Service) CreateDeposit(ctx context.Context, req Request) (models.Transaction, error) {
	req, err := req.validate()
	if err != nil {
		return models.Transaction{}, err
	}

	var deposit models.Transaction

	err = s.retrier.InTx(ctx, s.storage, func(tx repository.Storage) error {
		account, err := tx.Account().GetAccount(ctx, req.AccountID)
		if err != nil {
			return err
		}
		if account.IsBlocked {
			return apperrors.ErrAccountBlocked
		}

		deposit, err = tx.Transaction().CreateTransaction(ctx, req.transaction(models.StatusPending, s.now()))
		return err
	})
	if err != nil {
		return models.Transaction{}, err
	}

	s.logger.Info("deposit created", "account_id", req.AccountID, "transaction_id", deposit.ID, "amount", req.Amount, "currency", req.Currency)
	return deposit, nil
}

// ApproveDeposit credits the account and distributes referral commission
func (s *Service) ApproveDeposit(ctx context.Context, id uuid.UUID, reviewerID uuid.UUID) (Result, error) {
	var deposit models.Transaction

	err := s.retrier.InTx(ctx, s.storage, func(tx repository.Storage) error {
		now := s.now()

		t, err := s.review(ctx, tx, id, reviewerID, models.StatusApproved, now)
		if err != nil {
			return err
		}
		if _, err := balance.Credit(ctx, tx, depositMutation(t), now); err != nil {
			return err
		}

		deposit, err = tx.Transaction().UpdateTransaction(ctx, t, models.StatusPending)
		return err
	})
	if err != nil {
		return Result{}, err
	}

	s.logger.Info("deposit approved", "transaction_id", id, "account_id", deposit.AccountID, "reviewer_id", reviewerID)
	return s.settle(ctx, deposit)
}

// RejectDeposit closes pending deposit without any balance change
func (s *Service) RejectDeposit(ctx context.Context, id uuid.UUID, reviewerID uuid.UUID, reason string) (models.Transaction, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return models.Transaction{}, apperrors.Validation("reject reason is required")
	}

	var deposit models.Transaction

	err := s.retrier.InTx(ctx, s.storage, func(tx repository.Storage) error {
		t, err := s.review(ctx, tx, id, reviewerID, models.StatusRejected, s.now())
		if err != nil {
			return err
		}
		meta, _ := t.Meta.(models.DepositMeta)
		meta.RejectReason = reason
		t.Meta = meta

		deposit, err = tx.Transaction().UpdateTransaction(ctx, t, models.StatusPending)
		return err
	})
	if err != nil {
		return models.Transaction{}, err
	}

	s.logger.Info("deposit rejected", "transaction_id", id, "reviewer_id", reviewerID, "reason", reason)
	return deposit, nil
}

// RecordApprovedDeposit handles deposit approved outside of the service:
// approved deposit is recorded and credited at once, then commission is distributed
func (s *Service) RecordApprovedDeposit(ctx context.Context, req Request) (Result, error) {
	req, err := req.validate()
	if err != nil {
		return Result{}, err
	}

	var deposit models.Transaction

	err = s.retrier.InTx(ctx, s.storage, func(tx repository.Storage) error {
		now := s.now()
		t := req.transaction(models.StatusApproved, now)

		if _, err := balance.Credit(ctx, tx, depositMutation(t), now); err != nil {
			return err
		}

		deposit, err = tx.Transaction().CreateTransaction(ctx, t)
		return err
	})
	if err != nil {
		return Result{}, err
	}

	s.logger.Info("approved deposit recorded", "transaction_id", deposit.ID, "account_id", deposit.AccountID, "amount", deposit.Amount)
	return s.settle(ctx, deposit)
}

func (s *Service) ListDeposits(ctx context.Context, accountID uuid.UUID) ([]models.Transaction, error) {
	if _, err := s.storage.Account().GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return s.storage.Transaction().ListTransactions(ctx, repository.ListTransactionsOpts{
		AccountID: &accountID,
		Kinds:     []models.TransactionKind{models.KindDeposit},
	})
}

// review loads pending deposit and stamps it with the new status
func (s *Service) review(
	ctx context.Context,
	tx repository.Storage,
	id uuid.UUID,
	reviewerID uuid.UUID,
	to models.TransactionStatus,
	now time.Time,
) (models.Transaction, error) {
	t, err := tx.Transaction().GetTransaction(ctx, id)
	if err != nil {
		return t, err
	}
	if t.Kind != models.KindDeposit {
		return t, fmt.Errorf("%w: %s is a %s", apperrors.ErrTransactionNotFound, id, t.Kind)
	}
	if t.Status != models.StatusPending {
		return t, fmt.Errorf("%w: deposit %s is %s, can't become %s", apperrors.ErrInvalidStateTransition, id, t.Status, to)
	}

	t.Status = to
	t.ReviewedBy = &reviewerID
	t.ReviewedAt = &now
	return t, nil
}

// settle runs after the deposit is committed
func (s *Service) settle(ctx context.Context, deposit models.Transaction) (Result, error) {
	s.metrics.RecordLedger(string(models.KindDeposit), balance.OpCredit, deposit.Amount.InexactFloat64())

	depositID := deposit.ID
	report, err := s.referral.DistributeCommission(ctx, referral.CommissionRequest{
		AccountID:     deposit.AccountID,
		DepositAmount: deposit.Amount,
		Currency:      deposit.Currency,
		DepositID:     &depositID,
	})
	if err != nil {
		return Result{Deposit: deposit, Commission: report}, fmt.Errorf("deposit %s is credited, commission failed: %w", deposit.ID, err)
	}
	if failed := report.Failed(); len(failed) > 0 {
		s.logger.Warn("commission partially failed", "transaction_id", deposit.ID, "failed_levels", len(failed))
	}

	return Result{Deposit: deposit, Commission: report}, nil
}

func depositMutation(t models.Transaction) balance.Mutation {
	return balance.Mutation{
		AccountID: t.AccountID,
		Currency:  t.Currency,
		Amount:    t.Amount,
		Kind:      models.KindDeposit,
	}
}
