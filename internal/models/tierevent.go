package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	TierReasonAuto     = "auto"
	TierReasonAssigned = "assigned"
	TierReasonCleared  = "assignment_cleared"
)

// TierEvent is the audit record appended on every tier change
type TierEvent struct {
	ID              uuid.UUID
	AccountID       uuid.UUID
	From            Tier
	To              Tier
	Reason          string
	ActiveReferrals int
	ActorID         *uuid.UUID // nil for automatic changes
	CreatedAt       time.Time
}
