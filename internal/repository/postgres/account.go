package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/rewardledger/internal/apperrors"
	"github.com/nkiryanov/rewardledger/internal/models"
)

type AccountRepo struct {
	DB DBTX
}

const accountColumns = `id, created_at, updated_at, balances, total_deposited, total_withdrawn, total_profit,
	total_referral_earnings, membership_tier, tier_assigned, is_blocked, version`

const createAccount = `-- name: CreateAccount
INSERT INTO accounts (` + accountColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1)
RETURNING ` + accountColumns

func (r *AccountRepo) CreateAccount(ctx context.Context, a models.Account) (models.Account, error) {
	if a.Balances == nil {
		a.Balances = map[string]decimal.Decimal{}
	}

	rows, _ := r.DB.Query(ctx, createAccount,
		a.ID, a.CreatedAt, a.UpdatedAt, a.Balances,
		a.TotalDeposited, a.TotalWithdrawn, a.TotalProfit, a.TotalReferralEarnings,
		a.MembershipTier.String(), a.TierAssigned, a.IsBlocked,
	)
	account, err := pgx.CollectOneRow(rows, rowToAccount)

	switch {
	case err == nil:
		return account, nil
	case isUniqueViolation(err, ""):
		return account, apperrors.ErrAccountAlreadyExists
	default:
		return account, fmt.Errorf("db error: %w", err)
	}
}

const getAccount = `-- name: GetAccount
SELECT ` + accountColumns + ` FROM accounts
WHERE id = $1
`

func (r *AccountRepo) GetAccount(ctx context.Context, id uuid.UUID) (models.Account, error) {
	rows, _ := r.DB.Query(ctx, getAccount, id)
	account, err := pgx.CollectOneRow(rows, rowToAccount)

	switch {
	case err == nil:
		return account, nil
	case errors.Is(err, pgx.ErrNoRows):
		return account, apperrors.ErrAccountNotFound
	default:
		return account, fmt.Errorf("db error: %w", err)
	}
}

// Compare-and-swap on version column
const updateAccount = `-- name: UpdateAccount
UPDATE accounts
SET updated_at = $3,
	balances = $4,
	total_deposited = $5,
	total_withdrawn = $6,
	total_profit = $7,
	total_referral_earnings = $8,
	membership_tier = $9,
	tier_assigned = $10,
	is_blocked = $11,
	version = version + 1
WHERE id = $1 AND version = $2
RETURNING ` + accountColumns

func (r *AccountRepo) UpdateAccount(ctx context.Context, a models.Account) (models.Account, error) {
	rows, _ := r.DB.Query(ctx, updateAccount,
		a.ID, a.Version, a.UpdatedAt, a.Balances,
		a.TotalDeposited, a.TotalWithdrawn, a.TotalProfit, a.TotalReferralEarnings,
		a.MembershipTier.String(), a.TierAssigned, a.IsBlocked,
	)
	account, err := pgx.CollectOneRow(rows, rowToAccount)

	switch {
	case err == nil:
		return account, nil
	case errors.Is(err, pgx.ErrNoRows):
		// Either account deleted or changed since read; both are conflicts for the caller
		return account, fmt.Errorf("account %s version %d: %w", a.ID, a.Version, apperrors.ErrStoreConflict)
	default:
		return account, fmt.Errorf("db error: %w", err)
	}
}

func rowToAccount(row pgx.CollectableRow) (models.Account, error) {
	var a models.Account
	var tier string
	err := row.Scan(
		&a.ID, &a.CreatedAt, &a.UpdatedAt, &a.Balances,
		&a.TotalDeposited, &a.TotalWithdrawn, &a.TotalProfit, &a.TotalReferralEarnings,
		&tier, &a.TierAssigned, &a.IsBlocked, &a.Version,
	)
	if err != nil {
		return a, err
	}

	a.MembershipTier, err = models.ParseTier(tier)
	if a.Balances == nil {
		a.Balances = map[string]decimal.Decimal{}
	}
	return a, err
}
