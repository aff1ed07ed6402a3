package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DailyTaskCounter is created lazily on the first access per (account, day)
type DailyTaskCounter struct {
	AccountID      uuid.UUID
	Day            time.Time // UTC midnight
	TotalTasks     int
	CompletedTasks int
	TotalReward    decimal.Decimal
}

func (c DailyTaskCounter) RemainingTasks() int {
	return c.TotalTasks - c.CompletedTasks
}

// Day truncates time to UTC calendar day
func Day(t time.Time) time.Time {
	y, m, dd := t.UTC().Date()
	return time.Date(y, m, dd, 0, 0, 0, 0, time.UTC)
}
