package reward

import (
	"math/rand/v2"
	"sync"

	"github.com/shopspring/decimal"
)

// Profit rates are fractions with this number of decimal places
const RateScale = 6

// RateSource draws per task profit rate from the tier range
type RateSource interface {
	Rate(lo, hi decimal.Decimal) decimal.Decimal
}

// UniformRate draws rate uniformly from [lo, hi]
type UniformRate struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewUniformRate(seed uint64) *UniformRate {
	return &UniformRate{rnd: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (u *UniformRate) Rate(lo, hi decimal.Decimal) decimal.Decimal {
	u.mu.Lock()
	f := u.rnd.Float64()
	u.mu.Unlock()

	rate := lo.Add(hi.Sub(lo).Mul(decimal.NewFromFloat(f))).Round(RateScale)
	return decimal.Min(decimal.Max(rate, lo), hi)
}

// FixedRate always returns the same rate clamped into the range
type FixedRate decimal.Decimal

func (r FixedRate) Rate(lo, hi decimal.Decimal) decimal.Decimal {
	return decimal.Min(decimal.Max(decimal.Decimal(r), lo), hi)
}
