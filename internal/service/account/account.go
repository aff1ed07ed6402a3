// Package account registers accounts and materializes their referral chains.
package account

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/rewardledger/internal/apperrors"
	"github.com/nkiryanov/rewardledger/internal/logger"
	"github.com/nkiryanov/rewardledger/internal/models"
	"github.com/nkiryanov/rewardledger/internal/repository"
	"github.com/nkiryanov/rewardledger/internal/retry"
	"github.com/nkiryanov/rewardledger/internal/service/membership"
)

type RegisterRequest struct {
	// Account id issued by the external auth service; generated if nil
	ID         *uuid.UUID
	ReferrerID *uuid.UUID
}

// Overview is everything the account owner sees on the dashboard
type Overview struct {
	Account         models.Account
	AvailableProfit decimal.Decimal
	Tier            models.TierParams
	ActiveReferrals int
	Today           models.DailyTaskCounter
}

type Config struct {
	// How stored and computed tiers combine; take it from membership service
	Tiers membership.Policy
}

type Service struct {
	storage repository.Storage
	retrier *retry.Retrier
	logger  logger.Logger
	tiers   membership.Policy
	now     func() time.Time
}

func NewService(cfg Config, storage repository.Storage, retrier *retry.Retrier, log logger.Logger) *Service {
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
		tiers:   cfg.Tiers,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Register creates account and, if referrer is given, edges to the referrer and its ancestors
// The chain is copied from referrer's own edges, so it is never walked again at commission time
func (s *Service) Register(ctx context.Context, req RegisterRequest) (models.Account, error) {
	id := uuid.New()
	if req.ID != nil {
		id = *req.ID
	}
	if req.ReferrerID != nil && *req.ReferrerID == id {
		return models.Account{}, apperrors.Validation("account can't refer itself")
	}

	var account models.Account
	var edges []models.ReferralEdge

	err := s.retrier.InTx(ctx, s.storage, func(tx repository.Storage) error {
		now := s.now()

		var err error
		account, err = tx.Account().CreateAccount(ctx, models.NewAccount(id, now))
		if err != nil {
			return err
		}

		if req.ReferrerID == nil {
			return nil
		}

		edges, err = s.chain(ctx, tx, *req.ReferrerID, id, now)
		if err != nil {
			return err
		}
		return tx.Referral().CreateEdges(ctx, edges)
	})
	if err != nil {
		return account, err
	}

	s.logger.Info("account registered", "account_id", account.ID, "referral_levels", len(edges))
	return account, nil
}

func (s *Service) chain(ctx context.Context, tx repository.Storage, referrerID, referredID uuid.UUID, now time.Time) ([]models.ReferralEdge, error) {
	_, err := tx.Account().GetAccount(ctx, referrerID)
	switch {
	case errors.Is(err, apperrors.ErrAccountNotFound):
		return nil, apperrors.ErrReferrerNotFound
	case err != nil:
		return nil, err
	}

	ancestors, err := tx.Referral().ListAncestors(ctx, referrerID)
	if err != nil {
		return nil, err
	}

	newEdge := func(referrer uuid.UUID, level int) models.ReferralEdge {
		return models.ReferralEdge{
			ID:         uuid.New(),
			ReferrerID: referrer,
			ReferredID: referredID,
			Level:      level,
			Status:     models.ReferralPending,
			Commission: decimal.Zero,
			CreatedAt:  now,
		}
	}

	edges := []models.ReferralEdge{newEdge(referrerID, 1)}
	for _, a := range ancestors {
		if a.Level+1 > models.MaxReferralLevel {
			continue
		}
		edges = append(edges, newEdge(a.ReferrerID, a.Level+1))
	}
	return edges, nil
}

func (s *Service) GetAccount(ctx context.Context, id uuid.UUID) (models.Account, error) {
	return s.storage.Account().GetAccount(ctx, id)
}

func (s *Service) Overview(ctx context.Context, id uuid.UUID) (Overview, error) {
	var o Overview

	err := s.retrier.InTx(ctx, s.storage, func(tx repository.Storage) error {
		account, err := tx.Account().GetAccount(ctx, id)
		if err != nil {
			return err
		}

		tier, active, err := s.tiers.Resolve(ctx, tx, account)
		if err != nil {
			return err
		}
		if account.TierAssigned {
			if active, err = tx.Referral().CountActiveDirect(ctx, id); err != nil {
				return err
			}
		}

		today, err := tx.Task().GetOrCreateCounter(ctx, id, models.Day(s.now()), tier.Params().DailyTasks)
		if err != nil {
			return err
		}

		o = Overview{
			Account:         account,
			AvailableProfit: account.AvailableProfit(),
			Tier:            tier.Params(),
			ActiveReferrals: active,
			Today:           today,
		}
		return nil
	})

	return o, err
}

// ListReferrals returns every edge where the account is the referrer
func (s *Service) ListReferrals(ctx context.Context, id uuid.UUID) ([]models.ReferralEdge, error) {
	if _, err := s.storage.Account().GetAccount(ctx, id); err != nil {
		return nil, err
	}
	return s.storage.Referral().ListReferrals(ctx, id)
}

func (s *Service) SetBlocked(ctx context.Context, id uuid.UUID, blocked bool) (models.Account, error) {
	var account models.Account

	err := s.retrier.InTx(ctx, s.storage, func(tx repository.Storage) error {
		var err error
		account, err = tx.Account().GetAccount(ctx, id)
		if err != nil {
			return err
		}
		if account.IsBlocked == blocked {
			return nil
		}

		account.IsBlocked = blocked
		account.UpdatedAt = s.now()
		account, err = tx.Account().UpdateAccount(ctx, account)
		return err
	})
	if err != nil {
		return account, err
	}

	s.logger.Info("account block state changed", "account_id", id, "blocked", blocked)
	return account, nil
}
