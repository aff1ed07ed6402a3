// Package membership resolves membership tiers and keeps the audit trail of every tier change.
package membership

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/rewardledger/internal/logger"
	"github.com/nkiryanov/rewardledger/internal/metrics"
	"github.com/nkiryanov/rewardledger/internal/models"
	"github.com/nkiryanov/rewardledger/internal/repository"
	"github.com/nkiryanov/rewardledger/internal/retry"
)

type Config struct {
	// When false automatic recomputation never lowers stored tier
	AllowDemotion bool
}

type Service struct {
	storage       repository.Storage
	retrier       *retry.Retrier
	logger        logger.Logger
	metrics       *metrics.Metrics
	policy        Policy
	now           func() time.Time
}

func NewService(cfg Config, storage repository.Storage, retrier *retry.Retrier, log logger.Logger, m *metrics.Metrics) *Service {
	if retrier == nil {
		retrier = retry.New(retry.Config{})
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	return &Service{
		storage:       storage,
		retrier:       retrier,
		logger:        log,
		metrics:       m,
		policy:        Policy{PreventDemotion: !cfg.AllowDemotion},
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Policy combines stored tier with the one derived from active direct referrals.
// Zero value lets computed tier go below stored one.
type Policy struct {
	// Computed tier below stored one is ignored
	PreventDemotion bool
}

// Resolve returns admin assigned tier or the one derived from active direct referrals
func (p Policy) Resolve(ctx context.Context, storage repository.Storage, account models.Account) (models.Tier, int, error) {
	if account.TierAssigned && account.MembershipTier.Valid() {
		return account.MembershipTier, 0, nil
	}

	active, err := storage.Referral().CountActiveDirect(ctx, account.ID)
	if err != nil {
		return 0, 0, err
	}

	tier := models.TierForReferrals(active)
	if p.PreventDemotion && account.MembershipTier.Valid() && account.MembershipTier > tier {
		tier = account.MembershipTier
	}
	return tier, active, nil
}

// Policy the service applies; engines use it to read the tier in their own transactions
func (s *Service) Policy() Policy {
	return s.policy
}

func (s *Service) ResolveTier(ctx context.Context, accountID uuid.UUID) (models.Tier, error) {
	account, err := s.storage.Account().GetAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}

	tier, _, err := s.policy.Resolve(ctx, s.storage, account)
	return tier, err
}

func (s *Service) TierParams(tier models.Tier) models.TierParams {
	return tier.Params()
}

// AutoPromote stores recomputed tier if it differs from stored one and appends TierEvent
// Returns resulting tier and whether it was changed
func (s *Service) AutoPromote(ctx context.Context, accountID uuid.UUID) (models.Tier, bool, error) {
	var event *models.TierEvent
	var tier models.Tier

	err := s.retrier.InTx(ctx, s.storage, func(tx repository.Storage) error {
		event = nil

		account, err := tx.Account().GetAccount(ctx, accountID)
		if err != nil {
			return err
		}

		resolved, active, err := s.policy.Resolve(ctx, tx, account)
		if err != nil {
			return err
		}

		tier = account.MembershipTier
		if account.TierAssigned || resolved == account.MembershipTier {
			return nil
		}

		event, err = s.changeTier(ctx, tx, account, resolved, models.TierReasonAuto, active, nil)
		if err != nil {
			return err
		}
		tier = resolved
		return nil
	})
	if err != nil {
		return 0, false, err
	}

	if event != nil {
		s.observe(*event)
	}
	return tier, event != nil, nil
}

// AssignTier sets explicit tier chosen by admin; nil tier clears assignment and returns to computed one
func (s *Service) AssignTier(ctx context.Context, accountID uuid.UUID, tier *models.Tier, adminID uuid.UUID) (models.Account, error) {
	var event *models.TierEvent
	var account models.Account

	err := s.retrier.InTx(ctx, s.storage, func(tx repository.Storage) error {
		event = nil

		var err error
		account, err = tx.Account().GetAccount(ctx, accountID)
		if err != nil {
			return err
		}

		target, reason, active := account.MembershipTier, models.TierReasonAssigned, 0
		if tier != nil {
			target = *tier
			account.TierAssigned = true
		} else {
			account.TierAssigned = false
			reason = models.TierReasonCleared
			if target, active, err = s.policy.Resolve(ctx, tx, account); err != nil {
				return err
			}
		}

		if target == account.MembershipTier {
			account.UpdatedAt = s.now()
			account, err = tx.Account().UpdateAccount(ctx, account)
			return err
		}

		event, err = s.changeTier(ctx, tx, account, target, reason, active, &adminID)
		if err != nil {
			return err
		}
		account, err = tx.Account().GetAccount(ctx, accountID)
		return err
	})
	if err != nil {
		return account, err
	}

	if event != nil {
		s.observe(*event)
	}
	return account, nil
}

func (s *Service) History(ctx context.Context, accountID uuid.UUID) ([]models.TierEvent, error) {
	if _, err := s.storage.Account().GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return s.storage.TierEvent().ListTierEvents(ctx, accountID)
}

func (s *Service) changeTier(
	ctx context.Context,
	tx repository.Storage,
	account models.Account,
	to models.Tier,
	reason string,
	active int,
	actor *uuid.UUID,
) (*models.TierEvent, error) {
	now := s.now()
	event := models.TierEvent{
		ID:              uuid.New(),
		AccountID:       account.ID,
		From:            account.MembershipTier,
		To:              to,
		Reason:          reason,
		ActiveReferrals: active,
		ActorID:         actor,
		CreatedAt:       now,
	}

	account.MembershipTier = to
	account.UpdatedAt = now
	if _, err := tx.Account().UpdateAccount(ctx, account); err != nil {
		return nil, err
	}
	if err := tx.TierEvent().CreateTierEvent(ctx, event); err != nil {
		return nil, err
	}

	return &event, nil
}

func (s *Service) observe(e models.TierEvent) {
	s.metrics.RecordTierChange(e.Reason, e.To.String())
	s.logger.Info("membership tier changed",
		"account_id", e.AccountID,
		"from", e.From.String(),
		"to", e.To.String(),
		"reason", e.Reason,
		"active_referrals", e.ActiveReferrals,
	)
}
