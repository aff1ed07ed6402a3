package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/rewardledger/internal/models"
)

// Account repository interface
type AccountRepo interface {
	// Create account
	// If account with the id exists already has to return apperrors.ErrAccountAlreadyExists
	CreateAccount(ctx context.Context, account models.Account) (models.Account, error)

	// If account not found must return apperrors.ErrAccountNotFound
	GetAccount(ctx context.Context, id uuid.UUID) (models.Account, error)

	// Write account back only if stored version equals account.Version
	// Returns stored account with incremented version
	// If the document was changed since read must return apperrors.ErrStoreConflict
	UpdateAccount(ctx context.Context, account models.Account) (models.Account, error)
}

type ListTransactionsOpts struct {
	AccountID *uuid.UUID
	Kinds     []models.TransactionKind
	Statuses  []models.TransactionStatus
	Limit     int // zero means no limit
}

// Transaction repository interface
type TransactionRepo interface {
	// Create transaction
	// At most one open (pending|processing) withdrawal per account may exist:
	// on violation must return apperrors.ErrAnotherWithdrawalPending
	// Non empty deposit tx hash is unique among not rejected deposits, otherwise apperrors.ErrDuplicateDeposit
	CreateTransaction(ctx context.Context, t models.Transaction) (models.Transaction, error)

	// If transaction not found must return apperrors.ErrTransactionNotFound
	GetTransaction(ctx context.Context, id uuid.UUID) (models.Transaction, error)

	// Write status, review stamp and metadata only if stored status equals expected
	// Otherwise must return apperrors.ErrStoreConflict
	UpdateTransaction(ctx context.Context, t models.Transaction, expected models.TransactionStatus) (models.Transaction, error)

	// Ordered by creation time, newest first
	ListTransactions(ctx context.Context, opts ListTransactionsOpts) ([]models.Transaction, error)
}

// ReferralEdge repository interface
type ReferralRepo interface {
	CreateEdges(ctx context.Context, edges []models.ReferralEdge) error

	// Edges where account is the referred one, ordered by level
	ListAncestors(ctx context.Context, referredID uuid.UUID) ([]models.ReferralEdge, error)

	// Edges where account is the referrer, ordered by level then creation time
	ListReferrals(ctx context.Context, referrerID uuid.UUID) ([]models.ReferralEdge, error)

	CountActiveDirect(ctx context.Context, referrerID uuid.UUID) (int, error)

	// Add amount to edge commission and mark it active
	AddCommission(ctx context.Context, edgeID uuid.UUID, amount decimal.Decimal) (models.ReferralEdge, error)
}

// DailyTaskCounter repository interface
type TaskRepo interface {
	// Return counter for the day, create it with totalTasks if it not exists
	GetOrCreateCounter(ctx context.Context, accountID uuid.UUID, day time.Time, totalTasks int) (models.DailyTaskCounter, error)

	// Write counter only if stored completed tasks equals expectedCompleted
	// Otherwise must return apperrors.ErrStoreConflict
	UpdateCounter(ctx context.Context, counter models.DailyTaskCounter, expectedCompleted int) (models.DailyTaskCounter, error)
}

// TierEvent repository interface
type TierEventRepo interface {
	CreateTierEvent(ctx context.Context, event models.TierEvent) error

	// Ordered by creation time, oldest first
	ListTierEvents(ctx context.Context, accountID uuid.UUID) ([]models.TierEvent, error)
}

// Storage gives access to all repositories bound to the same connection or transaction
type Storage interface {
	Account() AccountRepo
	Transaction() TransactionRepo
	Referral() ReferralRepo
	Task() TaskRepo
	TierEvent() TierEventRepo

	// Run fn in a transaction: commit if fn returns nil, rollback otherwise
	InTx(ctx context.Context, fn func(Storage) error) error
}
