// Package memory keeps ledger state in process memory.
// Transactions are serialized: InTx holds the store lock and works on a copy
// that replaces the state only when fn succeeds.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/rewardledger/internal/models"
	"github.com/nkiryanov/rewardledger/internal/repository"
)

type counterKey struct {
	accountID uuid.UUID
	day       time.Time
}

type state struct {
	accounts     map[uuid.UUID]models.Account
	transactions map[uuid.UUID]models.Transaction
	txOrder      []uuid.UUID
	edges        []models.ReferralEdge
	counters     map[counterKey]models.DailyTaskCounter
	tierEvents   []models.TierEvent
}

func newState() *state {
	return &state{
		accounts:     map[uuid.UUID]models.Account{},
		transactions: map[uuid.UUID]models.Transaction{},
		counters:     map[counterKey]models.DailyTaskCounter{},
	}
}

func (s *state) clone() *state {
	c := &state{
		accounts:     make(map[uuid.UUID]models.Account, len(s.accounts)),
		transactions: make(map[uuid.UUID]models.Transaction, len(s.transactions)),
		txOrder:      append([]uuid.UUID(nil), s.txOrder...),
		edges:        append([]models.ReferralEdge(nil), s.edges...),
		counters:     make(map[counterKey]models.DailyTaskCounter, len(s.counters)),
		tierEvents:   append([]models.TierEvent(nil), s.tierEvents...),
	}
	for id, a := range s.accounts {
		c.accounts[id] = a.Clone()
	}
	for id, t := range s.transactions {
		c.transactions[id] = t
	}
	for k, v := range s.counters {
		c.counters[k] = v
	}
	return c
}

type Storage struct {
	mu    *sync.Mutex
	state *state
	inTx  bool
}

func NewStorage() *Storage {
	return &Storage{mu: &sync.Mutex{}, state: newState()}
}

// lock is a no-op inside transaction: the lock is held by InTx already
func (s *Storage) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Storage) Account() repository.AccountRepo {
	return &AccountRepo{s: s}
}

func (s *Storage) Transaction() repository.TransactionRepo {
	return &TransactionRepo{s: s}
}

func (s *Storage) Referral() repository.ReferralRepo {
	return &ReferralRepo{s: s}
}

func (s *Storage) Task() repository.TaskRepo {
	return &TaskRepo{s: s}
}

func (s *Storage) TierEvent() repository.TierEventRepo {
	return &TierEventRepo{s: s}
}

func (s *Storage) InTx(ctx context.Context, fn func(repository.Storage) error) error {
	unlock := s.lock()
	defer unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &Storage{mu: s.mu, state: s.state.clone(), inTx: true}
	if err := fn(tx); err != nil {
		return err
	}

	*s.state = *tx.state
	return nil
}
