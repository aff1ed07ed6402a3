package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/rewardledger/internal/models"
)

type TierEventRepo struct {
	DB DBTX
}

const createTierEvent = `-- name: CreateTierEvent
INSERT INTO tier_events (id, account_id, from_tier, to_tier, reason, active_referrals, actor_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`

func (r *TierEventRepo) CreateTierEvent(ctx context.Context, e models.TierEvent) error {
	_, err := r.DB.Exec(ctx, createTierEvent,
		e.ID, e.AccountID, e.From.String(), e.To.String(), e.Reason, e.ActiveReferrals, e.ActorID, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const listTierEvents = `-- name: ListTierEvents
SELECT id, account_id, from_tier, to_tier, reason, active_referrals, actor_id, created_at
FROM tier_events
WHERE account_id = $1
ORDER BY created_at, id
`

func (r *TierEventRepo) ListTierEvents(ctx context.Context, accountID uuid.UUID) ([]models.TierEvent, error) {
	rows, _ := r.DB.Query(ctx, listTierEvents, accountID)
	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.TierEvent, error) {
		var e models.TierEvent
		var from, to string
		err := row.Scan(&e.ID, &e.AccountID, &from, &to, &e.Reason, &e.ActiveReferrals, &e.ActorID, &e.CreatedAt)
		if err != nil {
			return e, err
		}
		if e.From, err = models.ParseTier(from); err != nil {
			return e, err
		}
		e.To, err = models.ParseTier(to)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return events, nil
}
