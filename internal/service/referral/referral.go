// Package referral distributes deposit commissions to the ancestors of the depositor.
package referral

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/nkiryanov/rewardledger/internal/apperrors"
	"github.com/nkiryanov/rewardledger/internal/logger"
	"github.com/nkiryanov/rewardledger/internal/metrics"
	"github.com/nkiryanov/rewardledger/internal/models"
	"github.com/nkiryanov/rewardledger/internal/repository"
	"github.com/nkiryanov/rewardledger/internal/retry"
	"github.com/nkiryanov/rewardledger/internal/service/balance"
	"github.com/nkiryanov/rewardledger/internal/service/membership"
)

type CommissionRequest struct {
	AccountID     uuid.UUID
	DepositAmount decimal.Decimal
	Currency      string

	// Approved deposit that triggered distribution, if any
	DepositID *uuid.UUID
}

// LevelResult is the outcome of crediting one ancestor
type LevelResult struct {
	Level      int
	ReferrerID uuid.UUID
	Tier       models.Tier
	Rate       decimal.Decimal
	Amount     decimal.Decimal

	// Rate is zero for the level, nothing credited
	Skipped bool

	Transaction *models.Transaction
	Err         error
}

type Report struct {
	AccountID     uuid.UUID
	DepositAmount decimal.Decimal
	Currency      string
	Levels        []LevelResult
}

// Credited returns sum of commissions actually paid
func (r Report) Credited() decimal.Decimal {
	total := decimal.Zero
	for _, l := range r.Levels {
		if l.Err == nil && !l.Skipped {
			total = total.Add(l.Amount)
		}
	}
	return total
}

func (r Report) Failed() []LevelResult {
	var failed []LevelResult
	for _, l := range r.Levels {
		if l.Err != nil {
			failed = append(failed, l)
		}
	}
	return failed
}

type Service struct {
	storage    repository.Storage
	retrier    *retry.Retrier
	membership *membership.Service
	tiers      membership.Policy
	logger     logger.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

func NewService(
	storage repository.Storage,
	retrier *retry.Retrier,
	membershipService *membership.Service,
	log logger.Logger,
	m *metrics.Metrics,
) *Service {
	if retrier == nil {
		retrier = retry.New(retry.Config{})
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	var tiers membership.Policy
	if membershipService != nil {
		tiers = membershipService.Policy()
	}

	return &Service{
		storage:    storage,
		retrier:    retrier,
		membership: membershipService,
		tiers:      tiers,
		logger:     log,
		metrics:    m,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// DistributeCommission credits every ancestor of the depositor (at most 6 levels) in parallel
//
// Each ancestor is credited in its own store transaction; a failure of one level is reported in
// the returned Report and never stops other levels. Error is returned only if ancestors could not be listed.
func (s *Service) DistributeCommission(ctx context.Context, req CommissionRequest) (Report, error) {
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	report := Report{AccountID: req.AccountID, DepositAmount: req.DepositAmount, Currency: req.Currency}

	if !req.DepositAmount.IsPositive() {
		return report, apperrors.Validation("deposit amount must be positive, got %s", req.DepositAmount)
	}
	if req.DepositAmount.GreaterThan(models.MaxAmount) {
		return report, apperrors.Validation("deposit amount is too large, maximum is %s", models.MaxAmount)
	}
	if req.Currency == "" {
		return report, apperrors.Validation("currency is required")
	}

	if _, err := s.storage.Account().GetAccount(ctx, req.AccountID); err != nil {
		return report, err
	}

	edges, err := s.storage.Referral().ListAncestors(ctx, req.AccountID)
	if err != nil {
		return report, err
	}

	levels := make([]models.ReferralEdge, 0, models.MaxReferralLevel)
	for _, e := range edges {
		if e.Level >= 1 && e.Level <= models.MaxReferralLevel {
			levels = append(levels, e)
		}
	}

	report.Levels = make([]LevelResult, len(levels))

	// Ancestors are distinct accounts, so levels do not contend with each other
	var g errgroup.Group
	g.SetLimit(models.MaxReferralLevel)
	for i, edge := range levels {
		g.Go(func() error {
			report.Levels[i] = s.creditLevel(ctx, req, edge)
			return nil
		})
	}
	_ = g.Wait()

	for _, l := range report.Levels {
		switch {
		case l.Err != nil:
			s.metrics.RecordCommissionFailure()
			s.logger.Error("referral commission failed",
				"account_id", req.AccountID,
				"referrer_id", l.ReferrerID,
				"level", l.Level,
				"error", l.Err,
			)
		case l.Skipped:
			continue
		default:
			s.metrics.RecordCommission(l.Level)
			s.metrics.RecordLedger(string(models.KindReferralCommission), balance.OpCredit, l.Amount.InexactFloat64())
			s.promote(ctx, l.ReferrerID)
		}
	}

	s.logger.Info("referral commission distributed",
		"account_id", req.AccountID,
		"deposit", req.DepositAmount,
		"levels", len(report.Levels),
		"failed", len(report.Failed()),
		"credited", report.Credited(),
	)

	return report, nil
}

func (s *Service) creditLevel(ctx context.Context, req CommissionRequest, edge models.ReferralEdge) LevelResult {
	result := LevelResult{Level: edge.Level, ReferrerID: edge.ReferrerID}

	err := s.retrier.InTx(ctx, s.storage, func(tx repository.Storage) error {
		now := s.now()
		result.Transaction = nil

		referrer, err := tx.Account().GetAccount(ctx, edge.ReferrerID)
		if err != nil {
			return err
		}

		result.Tier, _, err = s.tiers.Resolve(ctx, tx, referrer)
		if err != nil {
			return err
		}

		result.Rate = result.Tier.Params().CommissionRate(edge.Level)
		result.Amount = req.DepositAmount.Mul(result.Rate).Round(models.AmountScale)
		result.Skipped = !result.Amount.IsPositive()
		if result.Skipped {
			return nil
		}

		_, err = balance.Credit(ctx, tx, balance.Mutation{
			AccountID: edge.ReferrerID,
			Currency:  req.Currency,
			Amount:    result.Amount,
			Kind:      models.KindReferralCommission,
		}, now)
		if err != nil {
			return err
		}

		if _, err = tx.Referral().AddCommission(ctx, edge.ID, result.Amount); err != nil {
			return err
		}

		transaction, err := tx.Transaction().CreateTransaction(ctx, models.Transaction{
			ID:        uuid.New(),
			AccountID: edge.ReferrerID,
			Kind:      models.KindReferralCommission,
			Amount:    result.Amount,
			Currency:  req.Currency,
			Status:    models.StatusCompleted,
			CreatedAt: now,
			Meta: models.CommissionMeta{
				Level:         edge.Level,
				Rate:          result.Rate,
				DepositAmount: req.DepositAmount,
				FromAccountID: req.AccountID,
				DepositID:     req.DepositID,
			},
		})
		if err != nil {
			return err
		}

		result.Transaction = &transaction
		return nil
	})

	result.Err = err
	return result
}

// Commission may activate the edge and push referrer over tier threshold
func (s *Service) promote(ctx context.Context, referrerID uuid.UUID) {
	if s.membership == nil {
		return
	}
	if _, _, err := s.membership.AutoPromote(ctx, referrerID); err != nil {
		s.logger.Warn("tier recomputation after commission failed", "referrer_id", referrerID, "error", err)
	}
}
