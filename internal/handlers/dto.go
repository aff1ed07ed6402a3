package handlers

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/rewardledger/internal/apperrors"
	"github.com/nkiryanov/rewardledger/internal/models"
	"github.com/nkiryanov/rewardledger/internal/service/account"
	"github.com/nkiryanov/rewardledger/internal/service/deposit"
	"github.com/nkiryanov/rewardledger/internal/service/referral"
	"github.com/nkiryanov/rewardledger/internal/service/reward"
)

type accountResponse struct {
	ID                    uuid.UUID                  `json:"id"`
	Balances              map[string]decimal.Decimal `json:"balances"`
	TotalDeposited        decimal.Decimal            `json:"total_deposited"`
	TotalWithdrawn        decimal.Decimal            `json:"total_withdrawn"`
	TotalProfit           decimal.Decimal            `json:"total_profit"`
	TotalReferralEarnings decimal.Decimal            `json:"total_referral_earnings"`
	AvailableProfit       decimal.Decimal            `json:"available_profit"`
	Tier                  models.Tier                `json:"tier"`
	TierAssigned          bool                       `json:"tier_assigned"`
	Blocked               bool                       `json:"blocked"`
	CreatedAt             time.Time                  `json:"created_at"`
}

func newAccountResponse(a models.Account) accountResponse {
	return accountResponse{
		ID:                    a.ID,
		Balances:              a.Balances,
		TotalDeposited:        a.TotalDeposited,
		TotalWithdrawn:        a.TotalWithdrawn,
		TotalProfit:           a.TotalProfit,
		TotalReferralEarnings: a.TotalReferralEarnings,
		AvailableProfit:       a.AvailableProfit(),
		Tier:                  a.MembershipTier,
		TierAssigned:          a.TierAssigned,
		Blocked:               a.IsBlocked,
		CreatedAt:             a.CreatedAt,
	}
}

type tierParamsResponse struct {
	Tier              models.Tier       `json:"tier"`
	RequiredReferrals int               `json:"required_referrals"`
	DailyTasks        int               `json:"daily_tasks"`
	MinRate           decimal.Decimal   `json:"min_rate"`
	MaxRate           decimal.Decimal   `json:"max_rate"`
	MinBalance        decimal.Decimal   `json:"min_balance"`
	UnlockDays        int               `json:"unlock_days"`
	CommissionRates   []decimal.Decimal `json:"commission_rates"`
}

func newTierParamsResponse(p models.TierParams) tierParamsResponse {
	return tierParamsResponse{
		Tier:              p.Tier,
		RequiredReferrals: p.RequiredReferrals,
		DailyTasks:        p.DailyTasks,
		MinRate:           p.MinRate,
		MaxRate:           p.MaxRate,
		MinBalance:        p.MinBalance,
		UnlockDays:        p.UnlockDays,
		CommissionRates:   p.CommissionRates[:],
	}
}

type counterResponse struct {
	Day            string          `json:"day"`
	TotalTasks     int             `json:"total_tasks"`
	CompletedTasks int             `json:"completed_tasks"`
	RemainingTasks int             `json:"remaining_tasks"`
	TotalReward    decimal.Decimal `json:"total_reward"`
}

func newCounterResponse(c models.DailyTaskCounter) counterResponse {
	return counterResponse{
		Day:            c.Day.Format(time.DateOnly),
		TotalTasks:     c.TotalTasks,
		CompletedTasks: c.CompletedTasks,
		RemainingTasks: c.RemainingTasks(),
		TotalReward:    c.TotalReward,
	}
}

type overviewResponse struct {
	Account         accountResponse    `json:"account"`
	Tier            tierParamsResponse `json:"tier"`
	ActiveReferrals int                `json:"active_referrals"`
	Today           counterResponse    `json:"today"`
}

func newOverviewResponse(o account.Overview) overviewResponse {
	return overviewResponse{
		Account:         newAccountResponse(o.Account),
		Tier:            newTierParamsResponse(o.Tier),
		ActiveReferrals: o.ActiveReferrals,
		Today:           newCounterResponse(o.Today),
	}
}

type transactionResponse struct {
	ID         uuid.UUID                `json:"id"`
	AccountID  uuid.UUID                `json:"account_id"`
	Kind       models.TransactionKind   `json:"kind"`
	Amount     decimal.Decimal          `json:"amount"`
	Currency   string                   `json:"currency"`
	Status     models.TransactionStatus `json:"status"`
	CreatedAt  time.Time                `json:"created_at"`
	ReviewedBy *uuid.UUID               `json:"reviewed_by,omitempty"`
	ReviewedAt *time.Time               `json:"reviewed_at,omitempty"`
	Meta       models.TransactionMeta   `json:"meta,omitempty"`
}

func newTransactionResponse(t models.Transaction) transactionResponse {
	return transactionResponse{
		ID:         t.ID,
		AccountID:  t.AccountID,
		Kind:       t.Kind,
		Amount:     t.Amount,
		Currency:   t.Currency,
		Status:     t.Status,
		CreatedAt:  t.CreatedAt,
		ReviewedBy: t.ReviewedBy,
		ReviewedAt: t.ReviewedAt,
		Meta:       t.Meta,
	}
}

func newTransactionsResponse(ts []models.Transaction) []transactionResponse {
	res := make([]transactionResponse, 0, len(ts))
	for _, t := range ts {
		res = append(res, newTransactionResponse(t))
	}
	return res
}

type taskResponse struct {
	Reward         decimal.Decimal `json:"reward"`
	Rate           decimal.Decimal `json:"rate"`
	Tier           models.Tier     `json:"tier"`
	RemainingTasks int             `json:"remaining_tasks"`
	TransactionID  uuid.UUID       `json:"transaction_id"`
}

func newTaskResponse(r reward.Result) taskResponse {
	return taskResponse{
		Reward:         r.Reward,
		Rate:           r.Rate,
		Tier:           r.Tier,
		RemainingTasks: r.RemainingTasks,
		TransactionID:  r.Transaction.ID,
	}
}

type edgeResponse struct {
	ReferrerID uuid.UUID             `json:"referrer_id"`
	ReferredID uuid.UUID             `json:"referred_id"`
	Level      int                   `json:"level"`
	Status     models.ReferralStatus `json:"status"`
	Commission decimal.Decimal       `json:"commission"`
	CreatedAt  time.Time             `json:"created_at"`
}

func newEdgesResponse(edges []models.ReferralEdge) []edgeResponse {
	res := make([]edgeResponse, 0, len(edges))
	for _, e := range edges {
		res = append(res, edgeResponse{
			ReferrerID: e.ReferrerID,
			ReferredID: e.ReferredID,
			Level:      e.Level,
			Status:     e.Status,
			Commission: e.Commission,
			CreatedAt:  e.CreatedAt,
		})
	}
	return res
}

type tierEventResponse struct {
	From            models.Tier `json:"from"`
	To              models.Tier `json:"to"`
	Reason          string      `json:"reason"`
	ActiveReferrals int         `json:"active_referrals"`
	ActorID         *uuid.UUID  `json:"actor_id,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
}

type tierResponse struct {
	Params  tierParamsResponse  `json:"params"`
	History []tierEventResponse `json:"history"`
}

func newTierResponse(p models.TierParams, events []models.TierEvent) tierResponse {
	history := make([]tierEventResponse, 0, len(events))
	for _, e := range events {
		history = append(history, tierEventResponse{
			From:            e.From,
			To:              e.To,
			Reason:          e.Reason,
			ActiveReferrals: e.ActiveReferrals,
			ActorID:         e.ActorID,
			CreatedAt:       e.CreatedAt,
		})
	}
	return tierResponse{Params: newTierParamsResponse(p), History: history}
}

type levelResponse struct {
	Level         int             `json:"level"`
	ReferrerID    uuid.UUID       `json:"referrer_id"`
	Tier          *models.Tier    `json:"tier,omitempty"`
	Rate          decimal.Decimal `json:"rate"`
	Amount        decimal.Decimal `json:"amount"`
	Skipped       bool            `json:"skipped,omitempty"`
	TransactionID *uuid.UUID      `json:"transaction_id,omitempty"`

	// Only error code: level failures must not leak internals
	Error string `json:"error,omitempty"`
}

type commissionResponse struct {
	AccountID     uuid.UUID       `json:"account_id"`
	DepositAmount decimal.Decimal `json:"deposit_amount"`
	Currency      string          `json:"currency"`
	Credited      decimal.Decimal `json:"credited"`
	Levels        []levelResponse `json:"levels"`
}

func newCommissionResponse(r referral.Report) commissionResponse {
	levels := make([]levelResponse, 0, len(r.Levels))
	for _, l := range r.Levels {
		level := levelResponse{
			Level:      l.Level,
			ReferrerID: l.ReferrerID,
			Rate:       l.Rate,
			Amount:     l.Amount,
			Skipped:    l.Skipped,
		}
		if l.Tier.Valid() {
			tier := l.Tier
			level.Tier = &tier
		}
		if l.Transaction != nil {
			level.TransactionID = &l.Transaction.ID
		}
		if l.Err != nil {
			level.Error = apperrors.Code(l.Err)
		}
		levels = append(levels, level)
	}

	return commissionResponse{
		AccountID:     r.AccountID,
		DepositAmount: r.DepositAmount,
		Currency:      r.Currency,
		Credited:      r.Credited(),
		Levels:        levels,
	}
}

type depositResultResponse struct {
	Deposit    transactionResponse `json:"deposit"`
	Commission commissionResponse  `json:"commission"`
}

func newDepositResultResponse(r deposit.Result) depositResultResponse {
	return depositResultResponse{
		Deposit:    newTransactionResponse(r.Deposit),
		Commission: newCommissionResponse(r.Commission),
	}
}
