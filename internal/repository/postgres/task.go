package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/rewardledger/internal/apperrors"
	"github.com/nkiryanov/rewardledger/internal/models"
)

type TaskRepo struct {
	DB DBTX
}

const counterColumns = `account_id, day, total_tasks, completed_tasks, total_reward`

// Insert is a no-op when counter exists already, so the select always returns the stored one
const createCounter = `-- name: CreateCounter
INSERT INTO daily_task_counters (account_id, day, total_tasks, completed_tasks, total_reward)
VALUES ($1, $2, $3, 0, 0)
ON CONFLICT (account_id, day) DO NOTHING
`

const getCounter = `-- name: GetCounter
SELECT ` + counterColumns + ` FROM daily_task_counters
WHERE account_id = $1 AND day = $2
`

func (r *TaskRepo) GetOrCreateCounter(ctx context.Context, accountID uuid.UUID, day time.Time, totalTasks int) (models.DailyTaskCounter, error) {
	day = models.Day(day)

	_, err := r.DB.Exec(ctx, createCounter, accountID, day, totalTasks)
	switch {
	case err == nil:
	case isForeignKeyViolation(err):
		return models.DailyTaskCounter{}, apperrors.ErrAccountNotFound
	default:
		return models.DailyTaskCounter{}, fmt.Errorf("db error: %w", err)
	}

	rows, _ := r.DB.Query(ctx, getCounter, accountID, day)
	counter, err := pgx.CollectOneRow(rows, rowToCounter)
	if err != nil {
		return counter, fmt.Errorf("db error: %w", err)
	}

	return counter, nil
}

const updateCounter = `-- name: UpdateCounter
UPDATE daily_task_counters
SET completed_tasks = $4, total_reward = $5
WHERE account_id = $1 AND day = $2 AND completed_tasks = $3
RETURNING ` + counterColumns

func (r *TaskRepo) UpdateCounter(ctx context.Context, c models.DailyTaskCounter, expectedCompleted int) (models.DailyTaskCounter, error) {
	rows, _ := r.DB.Query(ctx, updateCounter, c.AccountID, models.Day(c.Day), expectedCompleted, c.CompletedTasks, c.TotalReward)
	counter, err := pgx.CollectOneRow(rows, rowToCounter)

	switch {
	case err == nil:
		return counter, nil
	case errors.Is(err, pgx.ErrNoRows):
		return counter, fmt.Errorf("task counter %s/%s: %w", c.AccountID, c.Day.Format(time.DateOnly), apperrors.ErrStoreConflict)
	default:
		return counter, fmt.Errorf("db error: %w", err)
	}
}

func rowToCounter(row pgx.CollectableRow) (models.DailyTaskCounter, error) {
	var c models.DailyTaskCounter
	err := row.Scan(&c.AccountID, &c.Day, &c.TotalTasks, &c.CompletedTasks, &c.TotalReward)
	c.Day = models.Day(c.Day)
	return c, err
}
