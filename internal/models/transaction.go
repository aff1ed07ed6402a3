package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionKind string

const (
	KindDeposit            TransactionKind = "deposit"
	KindWithdrawal         TransactionKind = "withdrawal"
	KindTaskReward         TransactionKind = "task_reward"
	KindReferralCommission TransactionKind = "referral_commission"
)

type TransactionStatus string

const (
	StatusPending    TransactionStatus = "pending"
	StatusProcessing TransactionStatus = "processing"
	StatusApproved   TransactionStatus = "approved"
	StatusCompleted  TransactionStatus = "completed"
	StatusRejected   TransactionStatus = "rejected"
	StatusFailed     TransactionStatus = "failed"
)

// Terminal statuses are never changed
func (s TransactionStatus) Terminal() bool {
	switch s {
	case StatusApproved, StatusCompleted, StatusRejected, StatusFailed:
		return true
	default:
		return false
	}
}

// Open statuses of a transaction that still waits for review
func (s TransactionStatus) Open() bool {
	return s == StatusPending || s == StatusProcessing
}

type Transaction struct {
	ID        uuid.UUID
	AccountID uuid.UUID
	Kind      TransactionKind
	Amount    decimal.Decimal
	Currency  string
	Status    TransactionStatus
	CreatedAt time.Time

	ReviewedBy *uuid.UUID
	ReviewedAt *time.Time

	// Kind specific data; concrete type always matches Kind
	Meta TransactionMeta
}

// TransactionMeta is implemented by WithdrawalMeta, DepositMeta, CommissionMeta and TaskRewardMeta
type TransactionMeta interface {
	Kind() TransactionKind
}

type WithdrawalMeta struct {
	Network      string `json:"network"`
	Address      string `json:"address"`
	ExternalRef  string `json:"external_ref,omitempty"`
	RejectReason string `json:"reject_reason,omitempty"`
}

func (WithdrawalMeta) Kind() TransactionKind { return KindWithdrawal }

type DepositMeta struct {
	Network      string `json:"network,omitempty"`
	TxHash       string `json:"tx_hash,omitempty"`
	RejectReason string `json:"reject_reason,omitempty"`
}

func (DepositMeta) Kind() TransactionKind { return KindDeposit }

type CommissionMeta struct {
	Level         int             `json:"level"`
	Rate          decimal.Decimal `json:"rate"`
	DepositAmount decimal.Decimal `json:"deposit_amount"`
	FromAccountID uuid.UUID       `json:"from_account_id"`
	DepositID     *uuid.UUID      `json:"deposit_id,omitempty"`
}

func (CommissionMeta) Kind() TransactionKind { return KindReferralCommission }

type TaskRewardMeta struct {
	Rate          decimal.Decimal `json:"rate"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	Tier          Tier            `json:"tier"`
	Day           string          `json:"day"`
	TaskNumber    int             `json:"task_number"`
}

func (TaskRewardMeta) Kind() TransactionKind { return KindTaskReward }

// EncodeMeta serializes metadata for storage
func EncodeMeta(meta TransactionMeta) ([]byte, error) {
	if meta == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(meta)
}

// DecodeMeta restores metadata of the given kind
func DecodeMeta(kind TransactionKind, raw []byte) (TransactionMeta, error) {
	if len(raw) == 0 {
		raw = []byte("{}")
	}

	var err error
	switch kind {
	case KindWithdrawal:
		var m WithdrawalMeta
		err = json.Unmarshal(raw, &m)
		return m, err
	case KindDeposit:
		var m DepositMeta
		err = json.Unmarshal(raw, &m)
		return m, err
	case KindReferralCommission:
		var m CommissionMeta
		err = json.Unmarshal(raw, &m)
		return m, err
	case KindTaskReward:
		var m TaskRewardMeta
		err = json.Unmarshal(raw, &m)
		return m, err
	default:
		return nil, fmt.Errorf("unknown transaction kind %q", kind)
	}
}
