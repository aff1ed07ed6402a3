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

type ReferralRepo struct {
	DB DBTX
}

const referralColumns = `id, referrer_id, referred_id, level, status, commission, created_at`

const createEdge = `-- name: CreateEdge
INSERT INTO referral_edges (` + referralColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`

// CreateEdges inserts whole ancestor chain in one round trip
func (r *ReferralRepo) CreateEdges(ctx context.Context, edges []models.ReferralEdge) error {
	if len(edges) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range edges {
		batch.Queue(createEdge, e.ID, e.ReferrerID, e.ReferredID, e.Level, string(e.Status), e.Commission, e.CreatedAt)
	}

	err := r.DB.SendBatch(ctx, batch).Close()

	switch {
	case err == nil:
		return nil
	case isForeignKeyViolation(err):
		return apperrors.ErrAccountNotFound
	default:
		return fmt.Errorf("db error: %w", err)
	}
}

const listAncestors = `-- name: ListAncestors
SELECT ` + referralColumns + ` FROM referral_edges
WHERE referred_id = $1
ORDER BY level
`

func (r *ReferralRepo) ListAncestors(ctx context.Context, referredID uuid.UUID) ([]models.ReferralEdge, error) {
	rows, _ := r.DB.Query(ctx, listAncestors, referredID)
	edges, err := pgx.CollectRows(rows, rowToReferralEdge)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return edges, nil
}

const listReferrals = `-- name: ListReferrals
SELECT ` + referralColumns + ` FROM referral_edges
WHERE referrer_id = $1
ORDER BY level, created_at
`

func (r *ReferralRepo) ListReferrals(ctx context.Context, referrerID uuid.UUID) ([]models.ReferralEdge, error) {
	rows, _ := r.DB.Query(ctx, listReferrals, referrerID)
	edges, err := pgx.CollectRows(rows, rowToReferralEdge)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return edges, nil
}

const countActiveDirect = `-- name: CountActiveDirect
SELECT count(*) FROM referral_edges
WHERE referrer_id = $1 AND level = 1 AND status = 'active'
`

func (r *ReferralRepo) CountActiveDirect(ctx context.Context, referrerID uuid.UUID) (int, error) {
	rows, _ := r.DB.Query(ctx, countActiveDirect, referrerID)
	count, err := pgx.CollectOneRow(rows, pgx.RowTo[int])
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return count, nil
}

const addCommission = `-- name: AddCommission
UPDATE referral_edges
SET commission = commission + $2, status = 'active'
WHERE id = $1
RETURNING ` + referralColumns

func (r *ReferralRepo) AddCommission(ctx context.Context, edgeID uuid.UUID, amount decimal.Decimal) (models.ReferralEdge, error) {
	rows, _ := r.DB.Query(ctx, addCommission, edgeID, amount)
	edge, err := pgx.CollectOneRow(rows, rowToReferralEdge)

	switch {
	case err == nil:
		return edge, nil
	case errors.Is(err, pgx.ErrNoRows):
		return edge, fmt.Errorf("referral edge %s: %w", edgeID, apperrors.ErrAccountNotFound)
	default:
		return edge, fmt.Errorf("db error: %w", err)
	}
}

func rowToReferralEdge(row pgx.CollectableRow) (models.ReferralEdge, error) {
	var e models.ReferralEdge
	var status string
	err := row.Scan(&e.ID, &e.ReferrerID, &e.ReferredID, &e.Level, &status, &e.Commission, &e.CreatedAt)
	e.Status = models.ReferralStatus(status)
	return e, err
}
