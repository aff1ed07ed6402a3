package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ReferralStatus string

const (
	ReferralPending ReferralStatus = "pending"
	ReferralActive  ReferralStatus = "active"
)

// ReferralEdge links an ancestor (referrer) with a referred account
// Level is fixed at registration: 1 is a direct referral
type ReferralEdge struct {
	ID         uuid.UUID
	ReferrerID uuid.UUID
	ReferredID uuid.UUID
	Level      int
	Status     ReferralStatus
	Commission decimal.Decimal
	CreatedAt  time.Time
}
