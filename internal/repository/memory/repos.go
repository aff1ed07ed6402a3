package memory

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/rewardledger/internal/apperrors"
	"github.com/nkiryanov/rewardledger/internal/models"
	"github.com/nkiryanov/rewardledger/internal/repository"
)

type AccountRepo struct {
	s *Storage
}

func (r *AccountRepo) CreateAccount(_ context.Context, a models.Account) (models.Account, error) {
	defer r.s.lock()()

	if _, ok := r.s.state.accounts[a.ID]; ok {
		return models.Account{}, apperrors.ErrAccountAlreadyExists
	}

	a = a.Clone()
	a.Version = 1
	r.s.state.accounts[a.ID] = a
	return a.Clone(), nil
}

func (r *AccountRepo) GetAccount(_ context.Context, id uuid.UUID) (models.Account, error) {
	defer r.s.lock()()

	a, ok := r.s.state.accounts[id]
	if !ok {
		return models.Account{}, apperrors.ErrAccountNotFound
	}
	return a.Clone(), nil
}

func (r *AccountRepo) UpdateAccount(_ context.Context, a models.Account) (models.Account, error) {
	defer r.s.lock()()

	stored, ok := r.s.state.accounts[a.ID]
	if !ok || stored.Version != a.Version {
		return models.Account{}, fmt.Errorf("account %s version %d: %w", a.ID, a.Version, apperrors.ErrStoreConflict)
	}

	a = a.Clone()
	a.CreatedAt = stored.CreatedAt
	a.Version++
	r.s.state.accounts[a.ID] = a
	return a.Clone(), nil
}

type TransactionRepo struct {
	s *Storage
}

func (r *TransactionRepo) hasOpenWithdrawal(accountID, except uuid.UUID) bool {
	for id, t := range r.s.state.transactions {
		if id != except && t.AccountID == accountID && t.Kind == models.KindWithdrawal && t.Status.Open() {
			return true
		}
	}
	return false
}

// Rejected deposits release their hash
func (r *TransactionRepo) hasDepositHash(hash string) bool {
	for _, t := range r.s.state.transactions {
		meta, ok := t.Meta.(models.DepositMeta)
		if ok && t.Kind == models.KindDeposit && t.Status != models.StatusRejected && meta.TxHash == hash {
			return true
		}
	}
	return false
}

func (r *TransactionRepo) CreateTransaction(_ context.Context, t models.Transaction) (models.Transaction, error) {
	defer r.s.lock()()

	if _, ok := r.s.state.accounts[t.AccountID]; !ok {
		return t, apperrors.ErrAccountNotFound
	}
	if t.Kind == models.KindWithdrawal && t.Status.Open() && r.hasOpenWithdrawal(t.AccountID, t.ID) {
		return t, apperrors.ErrAnotherWithdrawalPending
	}
	if meta, ok := t.Meta.(models.DepositMeta); ok && meta.TxHash != "" && r.hasDepositHash(meta.TxHash) {
		return t, apperrors.ErrDuplicateDeposit
	}

	r.s.state.transactions[t.ID] = t
	r.s.state.txOrder = append(r.s.state.txOrder, t.ID)
	return t, nil
}

func (r *TransactionRepo) GetTransaction(_ context.Context, id uuid.UUID) (models.Transaction, error) {
	defer r.s.lock()()

	t, ok := r.s.state.transactions[id]
	if !ok {
		return t, apperrors.ErrTransactionNotFound
	}
	return t, nil
}

func (r *TransactionRepo) UpdateTransaction(_ context.Context, t models.Transaction, expected models.TransactionStatus) (models.Transaction, error) {
	defer r.s.lock()()

	stored, ok := r.s.state.transactions[t.ID]
	if !ok || stored.Status != expected {
		return t, fmt.Errorf("transaction %s not in status %s: %w", t.ID, expected, apperrors.ErrStoreConflict)
	}
	if stored.Kind == models.KindWithdrawal && t.Status.Open() && r.hasOpenWithdrawal(stored.AccountID, t.ID) {
		return t, apperrors.ErrAnotherWithdrawalPending
	}

	stored.Status = t.Status
	stored.ReviewedBy = t.ReviewedBy
	stored.ReviewedAt = t.ReviewedAt
	stored.Meta = t.Meta
	r.s.state.transactions[t.ID] = stored
	return stored, nil
}

func (r *TransactionRepo) ListTransactions(_ context.Context, opts repository.ListTransactionsOpts) ([]models.Transaction, error) {
	defer r.s.lock()()

	result := []models.Transaction{}
	// Newest first: walk insertion order backwards
	for i := len(r.s.state.txOrder) - 1; i >= 0; i-- {
		t := r.s.state.transactions[r.s.state.txOrder[i]]

		if opts.AccountID != nil && t.AccountID != *opts.AccountID {
			continue
		}
		if len(opts.Kinds) > 0 && !slices.Contains(opts.Kinds, t.Kind) {
			continue
		}
		if len(opts.Statuses) > 0 && !slices.Contains(opts.Statuses, t.Status) {
			continue
		}

		result = append(result, t)
		if opts.Limit > 0 && len(result) == opts.Limit {
			break
		}
	}
	return result, nil
}

type ReferralRepo struct {
	s *Storage
}

func (r *ReferralRepo) CreateEdges(_ context.Context, edges []models.ReferralEdge) error {
	defer r.s.lock()()

	for i, e := range edges {
		_, okReferrer := r.s.state.accounts[e.ReferrerID]
		_, okReferred := r.s.state.accounts[e.ReferredID]
		if !okReferrer || !okReferred {
			return apperrors.ErrAccountNotFound
		}
		for _, stored := range slices.Concat(r.s.state.edges, edges[:i]) {
			if stored.ReferredID == e.ReferredID && (stored.Level == e.Level || stored.ReferrerID == e.ReferrerID) {
				return fmt.Errorf("referral edge %s -> %s level %d exists already", e.ReferrerID, e.ReferredID, e.Level)
			}
		}
	}

	r.s.state.edges = append(r.s.state.edges, edges...)
	return nil
}

func (r *ReferralRepo) ListAncestors(_ context.Context, referredID uuid.UUID) ([]models.ReferralEdge, error) {
	defer r.s.lock()()

	result := []models.ReferralEdge{}
	for _, e := range r.s.state.edges {
		if e.ReferredID == referredID {
			result = append(result, e)
		}
	}
	slices.SortStableFunc(result, func(a, b models.ReferralEdge) int { return a.Level - b.Level })
	return result, nil
}

func (r *ReferralRepo) ListReferrals(_ context.Context, referrerID uuid.UUID) ([]models.ReferralEdge, error) {
	defer r.s.lock()()

	result := []models.ReferralEdge{}
	for _, e := range r.s.state.edges {
		if e.ReferrerID == referrerID {
			result = append(result, e)
		}
	}
	slices.SortStableFunc(result, func(a, b models.ReferralEdge) int {
		if a.Level != b.Level {
			return a.Level - b.Level
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return result, nil
}

func (r *ReferralRepo) CountActiveDirect(_ context.Context, referrerID uuid.UUID) (int, error) {
	defer r.s.lock()()

	count := 0
	for _, e := range r.s.state.edges {
		if e.ReferrerID == referrerID && e.Level == 1 && e.Status == models.ReferralActive {
			count++
		}
	}
	return count, nil
}

func (r *ReferralRepo) AddCommission(_ context.Context, edgeID uuid.UUID, amount decimal.Decimal) (models.ReferralEdge, error) {
	defer r.s.lock()()

	for i, e := range r.s.state.edges {
		if e.ID == edgeID {
			e.Commission = e.Commission.Add(amount)
			e.Status = models.ReferralActive
			r.s.state.edges[i] = e
			return e, nil
		}
	}
	return models.ReferralEdge{}, fmt.Errorf("referral edge %s: %w", edgeID, apperrors.ErrAccountNotFound)
}

type TaskRepo struct {
	s *Storage
}

func (r *TaskRepo) GetOrCreateCounter(_ context.Context, accountID uuid.UUID, day time.Time, totalTasks int) (models.DailyTaskCounter, error) {
	defer r.s.lock()()

	if _, ok := r.s.state.accounts[accountID]; !ok {
		return models.DailyTaskCounter{}, apperrors.ErrAccountNotFound
	}

	key := counterKey{accountID: accountID, day: models.Day(day)}
	if c, ok := r.s.state.counters[key]; ok {
		return c, nil
	}

	c := models.DailyTaskCounter{AccountID: accountID, Day: key.day, TotalTasks: totalTasks, TotalReward: decimal.Zero}
	r.s.state.counters[key] = c
	return c, nil
}

func (r *TaskRepo) UpdateCounter(_ context.Context, c models.DailyTaskCounter, expectedCompleted int) (models.DailyTaskCounter, error) {
	defer r.s.lock()()

	key := counterKey{accountID: c.AccountID, day: models.Day(c.Day)}
	stored, ok := r.s.state.counters[key]
	if !ok || stored.CompletedTasks != expectedCompleted {
		return c, fmt.Errorf("task counter %s/%s: %w", c.AccountID, key.day.Format(time.DateOnly), apperrors.ErrStoreConflict)
	}
	if c.CompletedTasks > stored.TotalTasks {
		return c, fmt.Errorf("task counter %s: completed tasks exceed total", c.AccountID)
	}

	stored.CompletedTasks = c.CompletedTasks
	stored.TotalReward = c.TotalReward
	r.s.state.counters[key] = stored
	return stored, nil
}

type TierEventRepo struct {
	s *Storage
}

func (r *TierEventRepo) CreateTierEvent(_ context.Context, e models.TierEvent) error {
	defer r.s.lock()()

	if _, ok := r.s.state.accounts[e.AccountID]; !ok {
		return apperrors.ErrAccountNotFound
	}
	r.s.state.tierEvents = append(r.s.state.tierEvents, e)
	return nil
}

func (r *TierEventRepo) ListTierEvents(_ context.Context, accountID uuid.UUID) ([]models.TierEvent, error) {
	defer r.s.lock()()

	result := []models.TierEvent{}
	for _, e := range r.s.state.tierEvents {
		if e.AccountID == accountID {
			result = append(result, e)
		}
	}
	return result, nil
}
