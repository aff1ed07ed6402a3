package membership

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/rewardledger/internal/apperrors"
	"github.com/nkiryanov/rewardledger/internal/models"
	"github.com/nkiryanov/rewardledger/internal/repository/memory"
	"github.com/nkiryanov/rewardledger/internal/testutil"
)

func TestMembership(t *testing.T) {
	setup := func(allowDemotion bool) (*Service, *memory.Storage) {
		storage := memory.NewStorage()
		return NewService(Config{AllowDemotion: allowDemotion}, storage, nil, nil, nil), storage
	}

	t.Run("ResolveTier", func(t *testing.T) {
		tests := []struct {
			name   string
			active int
			want   models.Tier
		}{
			{"no referrals", 0, models.TierBasic},
			{"below silver", 2, models.TierBasic},
			{"silver threshold", 3, models.TierSilver},
			{"gold", 9, models.TierGold},
			{"elite", 40, models.TierElite},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				s, storage := setup(true)
				account := testutil.CreateAccount(t, storage, testutil.AccountOpts{})
				testutil.CreateActiveReferrals(t, storage, account.ID, tt.active)

				tier, err := s.ResolveTier(t.Context(), account.ID)

				require.NoError(t, err)
				require.Equal(t, tt.want, tier)
			})
		}

		t.Run("pending and deeper edges not counted", func(t *testing.T) {
			s, storage := setup(true)
			chain := testutil.CreateChain(t, storage, 5)

			tier, err := s.ResolveTier(t.Context(), chain[0].ID)

			require.NoError(t, err)
			require.Equal(t, models.TierBasic, tier)
		})

		t.Run("assigned tier wins", func(t *testing.T) {
			s, storage := setup(true)
			account := testutil.CreateAccount(t, storage, testutil.AccountOpts{Tier: models.TierDiamond, TierAssigned: true})

			tier, err := s.ResolveTier(t.Context(), account.ID)

			require.NoError(t, err)
			require.Equal(t, models.TierDiamond, tier)
		})

		t.Run("stored tier kept without demotion", func(t *testing.T) {
			tests := []struct {
				allowDemotion bool
				want          models.Tier
			}{
				{false, models.TierGold},
				{true, models.TierSilver},
			}

			for _, tt := range tests {
				s, storage := setup(tt.allowDemotion)
				account := testutil.CreateAccount(t, storage, testutil.AccountOpts{Tier: models.TierGold})
				testutil.CreateActiveReferrals(t, storage, account.ID, 3)

				tier, err := s.ResolveTier(t.Context(), account.ID)

				require.NoError(t, err)
				require.Equalf(t, tt.want, tier, "allow demotion: %v", tt.allowDemotion)
			}
		})

		t.Run("promotion above stored tier without demotion", func(t *testing.T) {
			s, storage := setup(false)
			account := testutil.CreateAccount(t, storage, testutil.AccountOpts{Tier: models.TierSilver})
			testutil.CreateActiveReferrals(t, storage, account.ID, 8)

			tier, err := s.ResolveTier(t.Context(), account.ID)

			require.NoError(t, err)
			require.Equal(t, models.TierGold, tier)
		})

		t.Run("unknown account", func(t *testing.T) {
			s, _ := setup(true)

			_, err := s.ResolveTier(t.Context(), uuid.New())

			require.ErrorIs(t, err, apperrors.ErrAccountNotFound)
		})
	})

	t.Run("AutoPromote", func(t *testing.T) {
		t.Run("promote appends event", func(t *testing.T) {
			s, storage := setup(true)
			account := testutil.CreateAccount(t, storage, testutil.AccountOpts{})
			testutil.CreateActiveReferrals(t, storage, account.ID, 3)

			tier, changed, err := s.AutoPromote(t.Context(), account.ID)

			require.NoError(t, err)
			require.True(t, changed)
			require.Equal(t, models.TierSilver, tier)

			stored, err := storage.Account().GetAccount(t.Context(), account.ID)
			require.NoError(t, err)
			require.Equal(t, models.TierSilver, stored.MembershipTier)

			events, err := s.History(t.Context(), account.ID)
			require.NoError(t, err)
			require.Len(t, events, 1)
			require.Equal(t, models.TierBasic, events[0].From)
			require.Equal(t, models.TierSilver, events[0].To)
			require.Equal(t, models.TierReasonAuto, events[0].Reason)
			require.Equal(t, 3, events[0].ActiveReferrals)
			require.Nil(t, events[0].ActorID)
		})

		t.Run("unchanged tier has no event", func(t *testing.T) {
			s, storage := setup(true)
			account := testutil.CreateAccount(t, storage, testutil.AccountOpts{})

			tier, changed, err := s.AutoPromote(t.Context(), account.ID)

			require.NoError(t, err)
			require.False(t, changed)
			require.Equal(t, models.TierBasic, tier)
			events, err := s.History(t.Context(), account.ID)
			require.NoError(t, err)
			require.Empty(t, events)
		})

		t.Run("demotion allowed", func(t *testing.T) {
			s, storage := setup(true)
			account := testutil.CreateAccount(t, storage, testutil.AccountOpts{Tier: models.TierGold})

			tier, changed, err := s.AutoPromote(t.Context(), account.ID)

			require.NoError(t, err)
			require.True(t, changed)
			require.Equal(t, models.TierBasic, tier)
		})

		t.Run("demotion disabled", func(t *testing.T) {
			s, storage := setup(false)
			account := testutil.CreateAccount(t, storage, testutil.AccountOpts{Tier: models.TierGold})

			tier, changed, err := s.AutoPromote(t.Context(), account.ID)

			require.NoError(t, err)
			require.False(t, changed)
			require.Equal(t, models.TierGold, tier)
		})

		t.Run("assigned tier kept", func(t *testing.T) {
			s, storage := setup(true)
			account := testutil.CreateAccount(t, storage, testutil.AccountOpts{Tier: models.TierPlatinum, TierAssigned: true})

			tier, changed, err := s.AutoPromote(t.Context(), account.ID)

			require.NoError(t, err)
			require.False(t, changed)
			require.Equal(t, models.TierPlatinum, tier)
		})
	})

	t.Run("AssignTier", func(t *testing.T) {
		t.Run("assign and clear", func(t *testing.T) {
			s, storage := setup(true)
			account := testutil.CreateAccount(t, storage, testutil.AccountOpts{})
			testutil.CreateActiveReferrals(t, storage, account.ID, 3)
			admin := uuid.New()
			elite := models.TierElite

			assigned, err := s.AssignTier(t.Context(), account.ID, &elite, admin)
			require.NoError(t, err)
			require.Equal(t, models.TierElite, assigned.MembershipTier)
			require.True(t, assigned.TierAssigned)

			cleared, err := s.AssignTier(t.Context(), account.ID, nil, admin)
			require.NoError(t, err)
			require.Equal(t, models.TierSilver, cleared.MembershipTier, "cleared tier is computed from referrals")
			require.False(t, cleared.TierAssigned)

			events, err := s.History(t.Context(), account.ID)
			require.NoError(t, err)
			require.Len(t, events, 2)
			require.Equal(t, models.TierReasonAssigned, events[0].Reason)
			require.Equal(t, &admin, events[0].ActorID)
			require.Equal(t, models.TierReasonCleared, events[1].Reason)
		})

		t.Run("assign same tier only pins it", func(t *testing.T) {
			s, storage := setup(true)
			account := testutil.CreateAccount(t, storage, testutil.AccountOpts{})
			basic := models.TierBasic

			assigned, err := s.AssignTier(t.Context(), account.ID, &basic, uuid.New())

			require.NoError(t, err)
			require.True(t, assigned.TierAssigned)
			events, err := s.History(t.Context(), account.ID)
			require.NoError(t, err)
			require.Empty(t, events)
		})
	})
}
