package memory

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/rewardledger/internal/apperrors"
	"github.com/nkiryanov/rewardledger/internal/models"
	"github.com/nkiryanov/rewardledger/internal/repository"
)

var _ repository.Storage = (*Storage)(nil)

func createAccount(t *testing.T, storage repository.Storage) models.Account {
	t.Helper()
	account, err := storage.Account().CreateAccount(t.Context(), models.NewAccount(uuid.New(), time.Now().UTC()))
	require.NoError(t, err)
	return account
}

func TestStorage(t *testing.T) {
	t.Run("InTx commit", func(t *testing.T) {
		storage := NewStorage()

		var id uuid.UUID
		err := storage.InTx(t.Context(), func(s repository.Storage) error {
			id = createAccount(t, s).ID
			return nil
		})

		require.NoError(t, err)
		_, err = storage.Account().GetAccount(t.Context(), id)
		require.NoError(t, err)
	})

	t.Run("InTx rollback", func(t *testing.T) {
		storage := NewStorage()
		account := createAccount(t, storage)
		boom := errors.New("boom")

		err := storage.InTx(t.Context(), func(s repository.Storage) error {
			account.Balances["USDT"] = decimal.NewFromInt(100)
			_, err := s.Account().UpdateAccount(t.Context(), account)
			require.NoError(t, err)
			return boom
		})

		require.ErrorIs(t, err, boom)
		stored, err := storage.Account().GetAccount(t.Context(), account.ID)
		require.NoError(t, err)
		require.True(t, stored.Balance("USDT").IsZero(), "balance change must be rolled back")
		require.Equal(t, int64(1), stored.Version)
	})

	t.Run("nested InTx rollback keeps outer changes", func(t *testing.T) {
		storage := NewStorage()

		var outer, inner uuid.UUID
		err := storage.InTx(t.Context(), func(s repository.Storage) error {
			outer = createAccount(t, s).ID
			_ = s.InTx(t.Context(), func(s repository.Storage) error {
				inner = createAccount(t, s).ID
				return errors.New("savepoint")
			})
			return nil
		})

		require.NoError(t, err)
		_, err = storage.Account().GetAccount(t.Context(), outer)
		require.NoError(t, err)
		_, err = storage.Account().GetAccount(t.Context(), inner)
		require.ErrorIs(t, err, apperrors.ErrAccountNotFound)
	})

	t.Run("account version conflict", func(t *testing.T) {
		storage := NewStorage()
		account := createAccount(t, storage)

		_, err := storage.Account().UpdateAccount(t.Context(), account)
		require.NoError(t, err)
		_, err = storage.Account().UpdateAccount(t.Context(), account)

		require.ErrorIs(t, err, apperrors.ErrStoreConflict)
	})

	t.Run("returned account is a copy", func(t *testing.T) {
		storage := NewStorage()
		account := createAccount(t, storage)

		account.Balances["USDT"] = decimal.NewFromInt(5)

		stored, err := storage.Account().GetAccount(t.Context(), account.ID)
		require.NoError(t, err)
		require.True(t, stored.Balance("USDT").IsZero())
	})

	t.Run("one open withdrawal", func(t *testing.T) {
		storage := NewStorage()
		account := createAccount(t, storage)
		withdrawal := func() models.Transaction {
			return models.Transaction{
				ID:        uuid.New(),
				AccountID: account.ID,
				Kind:      models.KindWithdrawal,
				Amount:    decimal.NewFromInt(10),
				Currency:  "USDT",
				Status:    models.StatusPending,
				CreatedAt: time.Now(),
			}
		}

		first, err := storage.Transaction().CreateTransaction(t.Context(), withdrawal())
		require.NoError(t, err)

		_, err = storage.Transaction().CreateTransaction(t.Context(), withdrawal())
		require.ErrorIs(t, err, apperrors.ErrAnotherWithdrawalPending)

		first.Status = models.StatusRejected
		_, err = storage.Transaction().UpdateTransaction(t.Context(), first, models.StatusPending)
		require.NoError(t, err)

		_, err = storage.Transaction().CreateTransaction(t.Context(), withdrawal())
		require.NoError(t, err, "new withdrawal allowed when previous one is closed")
	})

	t.Run("list newest first with limit", func(t *testing.T) {
		storage := NewStorage()
		account := createAccount(t, storage)

		ids := []uuid.UUID{}
		for range 3 {
			tx, err := storage.Transaction().CreateTransaction(t.Context(), models.Transaction{
				ID: uuid.New(), AccountID: account.ID, Kind: models.KindTaskReward,
				Amount: decimal.NewFromInt(1), Currency: "USDT", Status: models.StatusCompleted,
			})
			require.NoError(t, err)
			ids = append(ids, tx.ID)
		}

		list, err := storage.Transaction().ListTransactions(t.Context(), repository.ListTransactionsOpts{AccountID: &account.ID, Limit: 2})

		require.NoError(t, err)
		require.Len(t, list, 2)
		require.Equal(t, ids[2], list[0].ID)
		require.Equal(t, ids[1], list[1].ID)
	})

	t.Run("task counter compare and swap", func(t *testing.T) {
		storage := NewStorage()
		account := createAccount(t, storage)
		day := time.Date(2024, 5, 1, 15, 0, 0, 0, time.UTC)

		counter, err := storage.Task().GetOrCreateCounter(t.Context(), account.ID, day, 3)
		require.NoError(t, err)
		require.Equal(t, models.Day(day), counter.Day)

		counter.CompletedTasks = 1
		_, err = storage.Task().UpdateCounter(t.Context(), counter, 0)
		require.NoError(t, err)

		_, err = storage.Task().UpdateCounter(t.Context(), counter, 0)
		require.ErrorIs(t, err, apperrors.ErrStoreConflict)

		again, err := storage.Task().GetOrCreateCounter(t.Context(), account.ID, day.Add(time.Hour), 10)
		require.NoError(t, err)
		require.Equal(t, 3, again.TotalTasks)
		require.Equal(t, 1, again.CompletedTasks)
	})

	t.Run("referral edges", func(t *testing.T) {
		storage := NewStorage()
		root := createAccount(t, storage)
		leaf := createAccount(t, storage)
		edge := models.ReferralEdge{ID: uuid.New(), ReferrerID: root.ID, ReferredID: leaf.ID, Level: 1, Status: models.ReferralPending}

		require.NoError(t, storage.Referral().CreateEdges(t.Context(), []models.ReferralEdge{edge}))
		require.Error(t, storage.Referral().CreateEdges(t.Context(), []models.ReferralEdge{edge}), "duplicate edge")

		updated, err := storage.Referral().AddCommission(t.Context(), edge.ID, decimal.NewFromInt(2))
		require.NoError(t, err)
		require.Equal(t, models.ReferralActive, updated.Status)

		count, err := storage.Referral().CountActiveDirect(t.Context(), root.ID)
		require.NoError(t, err)
		require.Equal(t, 1, count)
	})
}
