package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/rewardledger/internal/apperrors"
	"github.com/nkiryanov/rewardledger/internal/models"
	"github.com/nkiryanov/rewardledger/internal/repository"
)

type TransactionRepo struct {
	DB DBTX
}

const (
	openWithdrawalIndex = "transactions_open_withdrawal_uidx"
	depositHashIndex    = "transactions_deposit_tx_hash_uidx"
)

const transactionColumns = `id, account_id, kind, amount, currency, status, created_at, reviewed_by, reviewed_at, metadata`

const createTransaction = `-- name: CreateTransaction
INSERT INTO transactions (` + transactionColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING ` + transactionColumns

func (r *TransactionRepo) CreateTransaction(ctx context.Context, t models.Transaction) (models.Transaction, error) {
	meta, err := models.EncodeMeta(t.Meta)
	if err != nil {
		return t, fmt.Errorf("encode metadata: %w", err)
	}

	rows, _ := r.DB.Query(ctx, createTransaction,
		t.ID, t.AccountID, string(t.Kind), t.Amount, t.Currency, string(t.Status),
		t.CreatedAt, t.ReviewedBy, t.ReviewedAt, meta,
	)
	created, err := pgx.CollectOneRow(rows, rowToTransaction)

	switch {
	case err == nil:
		return created, nil
	case isUniqueViolation(err, openWithdrawalIndex):
		return created, apperrors.ErrAnotherWithdrawalPending
	case isUniqueViolation(err, depositHashIndex):
		return created, apperrors.ErrDuplicateDeposit
	case isForeignKeyViolation(err):
		return created, apperrors.ErrAccountNotFound
	default:
		return created, fmt.Errorf("db error: %w", err)
	}
}

const getTransaction = `-- name: GetTransaction
SELECT ` + transactionColumns + ` FROM transactions
WHERE id = $1
`

func (r *TransactionRepo) GetTransaction(ctx context.Context, id uuid.UUID) (models.Transaction, error) {
	rows, _ := r.DB.Query(ctx, getTransaction, id)
	t, err := pgx.CollectOneRow(rows, rowToTransaction)

	switch {
	case err == nil:
		return t, nil
	case errors.Is(err, pgx.ErrNoRows):
		return t, apperrors.ErrTransactionNotFound
	default:
		return t, fmt.Errorf("db error: %w", err)
	}
}

// Status works as compare-and-swap token
const updateTransaction = `-- name: UpdateTransaction
UPDATE transactions
SET status = $3, reviewed_by = $4, reviewed_at = $5, metadata = $6
WHERE id = $1 AND status = $2
RETURNING ` + transactionColumns

func (r *TransactionRepo) UpdateTransaction(ctx context.Context, t models.Transaction, expected models.TransactionStatus) (models.Transaction, error) {
	meta, err := models.EncodeMeta(t.Meta)
	if err != nil {
		return t, fmt.Errorf("encode metadata: %w", err)
	}

	rows, _ := r.DB.Query(ctx, updateTransaction, t.ID, string(expected), string(t.Status), t.ReviewedBy, t.ReviewedAt, meta)
	updated, err := pgx.CollectOneRow(rows, rowToTransaction)

	switch {
	case err == nil:
		return updated, nil
	case errors.Is(err, pgx.ErrNoRows):
		return updated, fmt.Errorf("transaction %s not in status %s: %w", t.ID, expected, apperrors.ErrStoreConflict)
	case isUniqueViolation(err, openWithdrawalIndex):
		return updated, apperrors.ErrAnotherWithdrawalPending
	default:
		return updated, fmt.Errorf("db error: %w", err)
	}
}

// Nullable filters: empty arrays mean "any"
const listTransactions = `-- name: ListTransactions
SELECT ` + transactionColumns + ` FROM transactions
WHERE ($1::uuid IS NULL OR account_id = $1)
	AND (cardinality($2::text[]) = 0 OR kind = ANY($2))
	AND (cardinality($3::text[]) = 0 OR status = ANY($3))
ORDER BY created_at DESC, id
LIMIT NULLIF($4, 0)
`

func (r *TransactionRepo) ListTransactions(ctx context.Context, opts repository.ListTransactionsOpts) ([]models.Transaction, error) {
	kinds := make([]string, 0, len(opts.Kinds))
	for _, k := range opts.Kinds {
		kinds = append(kinds, string(k))
	}
	statuses := make([]string, 0, len(opts.Statuses))
	for _, s := range opts.Statuses {
		statuses = append(statuses, string(s))
	}

	rows, _ := r.DB.Query(ctx, listTransactions, opts.AccountID, kinds, statuses, opts.Limit)
	transactions, err := pgx.CollectRows(rows, rowToTransaction)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return transactions, nil
}

func rowToTransaction(row pgx.CollectableRow) (models.Transaction, error) {
	var t models.Transaction
	var kind, status string
	var meta []byte

	err := row.Scan(&t.ID, &t.AccountID, &kind, &t.Amount, &t.Currency, &status, &t.CreatedAt, &t.ReviewedBy, &t.ReviewedAt, &meta)
	if err != nil {
		return t, err
	}

	t.Kind = models.TransactionKind(kind)
	t.Status = models.TransactionStatus(status)
	t.Meta, err = models.DecodeMeta(t.Kind, meta)

	return t, err
}
