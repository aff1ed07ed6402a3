package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Tier is an ordered membership level. Zero value is not a valid tier.
type Tier int

const (
	TierBasic Tier = iota + 1
	TierSilver
	TierGold
	TierPlatinum
	TierDiamond
	TierElite
)

// Number of ancestor levels that may receive a referral commission
const MaxReferralLevel = 6

var tierNames = map[Tier]string{
	TierBasic:    "basic",
	TierSilver:   "silver",
	TierGold:     "gold",
	TierPlatinum: "platinum",
	TierDiamond:  "diamond",
	TierElite:    "elite",
}

func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return fmt.Sprintf("tier(%d)", int(t))
}

func (t Tier) Valid() bool {
	_, ok := tierNames[t]
	return ok
}

func ParseTier(s string) (Tier, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for t, name := range tierNames {
		if name == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown tier %q", s)
}

// TierParams holds everything derived from a membership tier
type TierParams struct {
	Tier Tier

	// Count of active direct referrals required to reach the tier
	RequiredReferrals int

	DailyTasks int

	// Per task profit rate range, as fractions (0.01 == 1%)
	MinRate decimal.Decimal
	MaxRate decimal.Decimal

	// Primary currency balance required to unlock tasks
	MinBalance decimal.Decimal

	UnlockDays int

	// Commission rate per referral level, index 0 is level 1
	CommissionRates [MaxReferralLevel]decimal.Decimal
}

// CommissionRate returns zero for levels the tier does not support
func (p TierParams) CommissionRate(level int) decimal.Decimal {
	if level < 1 || level > MaxReferralLevel {
		return decimal.Zero
	}
	return p.CommissionRates[level-1]
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func rates(values ...string) [MaxReferralLevel]decimal.Decimal {
	var r [MaxReferralLevel]decimal.Decimal
	for i := range r {
		r[i] = decimal.Zero
		if i < len(values) {
			r[i] = d(values[i])
		}
	}
	return r
}

// Ordered from the lowest tier to the highest one
var tierTable = []TierParams{
	{
		Tier:              TierBasic,
		RequiredReferrals: 0,
		DailyTasks:        3,
		MinRate:           d("0.005"),
		MaxRate:           d("0.01"),
		MinBalance:        d("50"),
		UnlockDays:        0,
		CommissionRates:   rates("0.05", "0.02", "0.01"),
	},
	{
		Tier:              TierSilver,
		RequiredReferrals: 3,
		DailyTasks:        5,
		MinRate:           d("0.01"),
		MaxRate:           d("0.015"),
		MinBalance:        d("200"),
		UnlockDays:        7,
		CommissionRates:   rates("0.06", "0.03", "0.02", "0.01"),
	},
	{
		Tier:              TierGold,
		RequiredReferrals: 8,
		DailyTasks:        8,
		MinRate:           d("0.015"),
		MaxRate:           d("0.02"),
		MinBalance:        d("500"),
		UnlockDays:        15,
		CommissionRates:   rates("0.07", "0.04", "0.02", "0.01", "0.005"),
	},
	{
		Tier:              TierPlatinum,
		RequiredReferrals: 15,
		DailyTasks:        10,
		MinRate:           d("0.02"),
		MaxRate:           d("0.025"),
		MinBalance:        d("1000"),
		UnlockDays:        30,
		CommissionRates:   rates("0.08", "0.04", "0.03", "0.02", "0.01", "0.005"),
	},
	{
		Tier:              TierDiamond,
		RequiredReferrals: 25,
		DailyTasks:        12,
		MinRate:           d("0.025"),
		MaxRate:           d("0.03"),
		MinBalance:        d("3000"),
		UnlockDays:        45,
		CommissionRates:   rates("0.09", "0.05", "0.03", "0.02", "0.01", "0.01"),
	},
	{
		Tier:              TierElite,
		RequiredReferrals: 40,
		DailyTasks:        15,
		MinRate:           d("0.03"),
		MaxRate:           d("0.035"),
		MinBalance:        d("5000"),
		UnlockDays:        60,
		CommissionRates:   rates("0.10", "0.05", "0.04", "0.03", "0.02", "0.01"),
	},
}

// Params returns parameters of the tier; unknown tiers fall back to the lowest one
func (t Tier) Params() TierParams {
	for _, p := range tierTable {
		if p.Tier == t {
			return p
		}
	}
	return tierTable[0]
}

// TierForReferrals maps count of active direct referrals to the highest tier whose threshold is met
func TierForReferrals(activeDirect int) Tier {
	tier := tierTable[0].Tier
	for _, p := range tierTable {
		if activeDirect >= p.RequiredReferrals {
			tier = p.Tier
		}
	}
	return tier
}

// AllTiers returns parameters of every tier from the lowest to the highest
func AllTiers() []TierParams {
	out := make([]TierParams, len(tierTable))
	copy(out, tierTable)
	return out
}

func (t Tier) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid tier %d", int(t))
	}
	return []byte(t.String()), nil
}

func (t *Tier) UnmarshalText(text []byte) error {
	parsed, err := ParseTier(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
