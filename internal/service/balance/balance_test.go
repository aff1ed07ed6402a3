package balance

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/rewardledger/internal/apperrors"
	"github.com/nkiryanov/rewardledger/internal/models"
	"github.com/nkiryanov/rewardledger/internal/repository/memory"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestBalance(t *testing.T) {
	setup := func(t *testing.T) (*Service, *memory.Storage, models.Account) {
		storage := memory.NewStorage()
		account, err := storage.Account().CreateAccount(t.Context(), models.NewAccount(uuid.New(), time.Now()))
		require.NoError(t, err)
		return NewService(storage, nil, nil, nil), storage, account
	}

	t.Run("credit updates kind aggregate", func(t *testing.T) {
		tests := []struct {
			kind      models.TransactionKind
			deposited string
			profit    string
			referral  string
		}{
			{models.KindDeposit, "10", "0", "0"},
			{models.KindTaskReward, "0", "10", "0"},
			{models.KindReferralCommission, "0", "10", "10"},
		}

		for _, tt := range tests {
			t.Run(string(tt.kind), func(t *testing.T) {
				s, storage, account := setup(t)

				got, err := s.Credit(t.Context(), Mutation{AccountID: account.ID, Currency: "usdt", Amount: dec("10"), Kind: tt.kind})
				require.NoError(t, err)
				require.True(t, got.Equal(dec("10")))

				stored, err := storage.Account().GetAccount(t.Context(), account.ID)
				require.NoError(t, err)
				require.True(t, stored.Balance("USDT").Equal(dec("10")), "currency is normalized to upper case")
				require.True(t, stored.TotalDeposited.Equal(dec(tt.deposited)))
				require.True(t, stored.TotalProfit.Equal(dec(tt.profit)))
				require.True(t, stored.TotalReferralEarnings.Equal(dec(tt.referral)))
			})
		}
	})

	t.Run("debit insufficient balance", func(t *testing.T) {
		s, storage, account := setup(t)
		_, err := s.Credit(t.Context(), Mutation{AccountID: account.ID, Currency: "USDT", Amount: dec("5"), Kind: models.KindDeposit})
		require.NoError(t, err)

		_, err = s.Debit(t.Context(), Mutation{AccountID: account.ID, Currency: "USDT", Amount: dec("5.00000001"), Kind: models.KindWithdrawal})

		require.ErrorIs(t, err, apperrors.ErrInsufficientBalance)
		stored, err := storage.Account().GetAccount(t.Context(), account.ID)
		require.NoError(t, err)
		require.True(t, stored.Balance("USDT").Equal(dec("5")), "balance must stay unchanged")
		require.True(t, stored.TotalWithdrawn.IsZero())
	})

	t.Run("debit withdrawal then refund", func(t *testing.T) {
		s, storage, account := setup(t)
		_, err := s.Credit(t.Context(), Mutation{AccountID: account.ID, Currency: "USDT", Amount: dec("30"), Kind: models.KindTaskReward})
		require.NoError(t, err)

		left, err := s.Debit(t.Context(), Mutation{AccountID: account.ID, Currency: "USDT", Amount: dec("12"), Kind: models.KindWithdrawal})
		require.NoError(t, err)
		require.True(t, left.Equal(dec("18")))

		back, err := s.Credit(t.Context(), Mutation{AccountID: account.ID, Currency: "USDT", Amount: dec("12"), Kind: models.KindWithdrawal})
		require.NoError(t, err)
		require.True(t, back.Equal(dec("30")))

		stored, err := storage.Account().GetAccount(t.Context(), account.ID)
		require.NoError(t, err)
		require.True(t, stored.TotalWithdrawn.IsZero())
		require.True(t, stored.TotalProfit.Equal(dec("30")), "refund is not a profit")
	})

	t.Run("validation", func(t *testing.T) {
		s, _, account := setup(t)

		tests := []struct {
			name string
			m    Mutation
		}{
			{"zero amount", Mutation{AccountID: account.ID, Currency: "USDT", Amount: decimal.Zero, Kind: models.KindDeposit}},
			{"negative amount", Mutation{AccountID: account.ID, Currency: "USDT", Amount: dec("-1"), Kind: models.KindDeposit}},
			{"dust rounded to zero", Mutation{AccountID: account.ID, Currency: "USDT", Amount: dec("0.000000001"), Kind: models.KindDeposit}},
			{"no currency", Mutation{AccountID: account.ID, Currency: " ", Amount: dec("1"), Kind: models.KindDeposit}},
			{"amount beyond storage", Mutation{AccountID: account.ID, Currency: "USDT", Amount: models.MaxAmount.Add(dec("0.00000001")), Kind: models.KindDeposit}},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := s.Credit(t.Context(), tt.m)

				require.ErrorIs(t, err, apperrors.ErrValidation)
			})
		}
	})

	t.Run("unknown account", func(t *testing.T) {
		s, _, _ := setup(t)

		_, err := s.Credit(t.Context(), Mutation{AccountID: uuid.New(), Currency: "USDT", Amount: dec("1"), Kind: models.KindDeposit})

		require.ErrorIs(t, err, apperrors.ErrAccountNotFound)
	})

	t.Run("never negative under concurrent debits", func(t *testing.T) {
		s, storage, account := setup(t)
		_, err := s.Credit(t.Context(), Mutation{AccountID: account.ID, Currency: "USDT", Amount: dec("10"), Kind: models.KindDeposit})
		require.NoError(t, err)

		var wg sync.WaitGroup
		var mu sync.Mutex
		succeeded := 0
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.Debit(t.Context(), Mutation{AccountID: account.ID, Currency: "USDT", Amount: dec("3"), Kind: models.KindWithdrawal})
				if err == nil {
					mu.Lock()
					succeeded++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		stored, err := storage.Account().GetAccount(t.Context(), account.ID)
		require.NoError(t, err)
		require.Equal(t, 3, succeeded)
		require.True(t, stored.Balance("USDT").Equal(dec("1")))
		require.False(t, stored.Balance("USDT").IsNegative())
	})
}
