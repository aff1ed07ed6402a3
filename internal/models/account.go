package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Amounts are stored with this number of decimal places
const AmountScale = 8

// MaxAmount is the largest amount numeric(30, 8) columns hold
var MaxAmount = decimal.New(1, 30-AmountScale).Sub(decimal.New(1, -AmountScale))

type Account struct {
	ID        uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time

	// Per currency balance, never negative
	Balances map[string]decimal.Decimal

	TotalDeposited        decimal.Decimal
	TotalWithdrawn        decimal.Decimal
	TotalProfit           decimal.Decimal
	TotalReferralEarnings decimal.Decimal

	MembershipTier Tier

	// Tier was set by an admin and must not be recomputed from referral activity
	TierAssigned bool

	IsBlocked bool

	// Incremented on every write; used for optimistic concurrency
	Version int64
}

func NewAccount(id uuid.UUID, now time.Time) Account {
	return Account{
		ID:                    id,
		CreatedAt:             now,
		UpdatedAt:             now,
		Balances:              map[string]decimal.Decimal{},
		TotalDeposited:        decimal.Zero,
		TotalWithdrawn:        decimal.Zero,
		TotalProfit:           decimal.Zero,
		TotalReferralEarnings: decimal.Zero,
		MembershipTier:        TierBasic,
	}
}

// Balance returns zero for currencies the account never held
func (a *Account) Balance(currency string) decimal.Decimal {
	if b, ok := a.Balances[currency]; ok {
		return b
	}
	return decimal.Zero
}

// AvailableProfit is the only money a user may withdraw: max(0, totalProfit - totalWithdrawn)
func (a *Account) AvailableProfit() decimal.Decimal {
	available := a.TotalProfit.Sub(a.TotalWithdrawn)
	if available.IsNegative() {
		return decimal.Zero
	}
	return available
}

// Clone returns deep copy, so the balances map may be changed safely
func (a Account) Clone() Account {
	balances := make(map[string]decimal.Decimal, len(a.Balances))
	for c, b := range a.Balances {
		balances[c] = b
	}
	a.Balances = balances
	return a
}
