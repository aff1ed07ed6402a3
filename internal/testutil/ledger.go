package testutil

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/rewardledger/internal/models"
	"github.com/nkiryanov/rewardledger/internal/repository"
)

// AccountOpts presets account state bypassing engines
type AccountOpts struct {
	Balance        string // primary currency USDT
	TotalProfit    string
	TotalWithdrawn string
	Tier           models.Tier
	TierAssigned   bool
	Blocked        bool
}

func CreateAccount(t *testing.T, storage repository.Storage, opts AccountOpts) models.Account {
	t.Helper()

	account := models.NewAccount(uuid.New(), time.Now().UTC())
	if opts.Balance != "" {
		account.Balances["USDT"] = decimal.RequireFromString(opts.Balance)
	}
	if opts.TotalProfit != "" {
		account.TotalProfit = decimal.RequireFromString(opts.TotalProfit)
	}
	if opts.TotalWithdrawn != "" {
		account.TotalWithdrawn = decimal.RequireFromString(opts.TotalWithdrawn)
	}
	if opts.Tier != 0 {
		account.MembershipTier = opts.Tier
	}
	account.TierAssigned = opts.TierAssigned
	account.IsBlocked = opts.Blocked

	created, err := storage.Account().CreateAccount(t.Context(), account)
	require.NoError(t, err)
	return created
}

// CreateChain creates accounts linked by registration chain and returns them from the root to the leaf
// Every account gets edges to up to 6 nearest ancestors
func CreateChain(t *testing.T, storage repository.Storage, length int) []models.Account {
	t.Helper()

	chain := make([]models.Account, 0, length)
	for i := range length {
		account := CreateAccount(t, storage, AccountOpts{})

		edges := []models.ReferralEdge{}
		for level := 1; level <= models.MaxReferralLevel && i-level >= 0; level++ {
			edges = append(edges, NewEdge(chain[i-level].ID, account.ID, level, false))
		}
		require.NoError(t, storage.Referral().CreateEdges(t.Context(), edges))

		chain = append(chain, account)
	}
	return chain
}

// CreateActiveReferrals gives referrer count direct referrals with active edges
func CreateActiveReferrals(t *testing.T, storage repository.Storage, referrerID uuid.UUID, count int) {
	t.Helper()

	for range count {
		referred := CreateAccount(t, storage, AccountOpts{})
		edge := NewEdge(referrerID, referred.ID, 1, true)
		require.NoError(t, storage.Referral().CreateEdges(t.Context(), []models.ReferralEdge{edge}))
	}
}

func NewEdge(referrerID, referredID uuid.UUID, level int, active bool) models.ReferralEdge {
	status := models.ReferralPending
	if active {
		status = models.ReferralActive
	}
	return models.ReferralEdge{
		ID:         uuid.New(),
		ReferrerID: referrerID,
		ReferredID: referredID,
		Level:      level,
		Status:     status,
		Commission: decimal.Zero,
		CreatedAt:  time.Now().UTC(),
	}
}

func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
