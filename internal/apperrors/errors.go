package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrAccountNotFound      = errors.New("account not found")
	ErrAccountAlreadyExists = errors.New("account already exists")
	ErrAccountBlocked       = errors.New("account is blocked")
	ErrReferrerNotFound     = errors.New("referrer not found")

	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrInvalidStateTransition = errors.New("invalid state transition")

	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrTasksExhausted      = errors.New("daily tasks exhausted")
	ErrBelowMinimumBalance = errors.New("balance is below tier minimum")

	ErrBelowMinimumWithdrawal   = errors.New("amount is below minimum withdrawal")
	ErrExceedsAvailableProfit   = errors.New("amount exceeds available profit")
	ErrAnotherWithdrawalPending = errors.New("another withdrawal is pending")

	// Chain transaction hash is recorded for another deposit already
	ErrDuplicateDeposit = errors.New("deposit with this transaction hash exists")

	// Optimistic concurrency retry budget is exhausted
	ErrStoreConflict = errors.New("store conflict")

	ErrValidation = errors.New("validation error")
)

type validationError struct {
	reason string
}

func (e *validationError) Error() string {
	return ErrValidation.Error() + ": " + e.reason
}

func (e *validationError) Unwrap() error {
	return ErrValidation
}

// Validation returns ErrValidation with a human readable reason
func Validation(format string, args ...any) error {
	return &validationError{reason: fmt.Sprintf(format, args...)}
}

// Stable error codes exposed to callers
const (
	CodeInsufficientBalance      = "INSUFFICIENT_BALANCE"
	CodeTasksExhausted           = "TASKS_EXHAUSTED"
	CodeBelowMinimumBalance      = "BELOW_MINIMUM_BALANCE"
	CodeBelowMinimumWithdrawal   = "BELOW_MINIMUM_WITHDRAWAL"
	CodeExceedsAvailableProfit   = "EXCEEDS_AVAILABLE_PROFIT"
	CodeAnotherWithdrawalPending = "ANOTHER_WITHDRAWAL_PENDING"
	CodeDuplicateDeposit         = "DUPLICATE_DEPOSIT"
	CodeInvalidStateTransition   = "INVALID_STATE_TRANSITION"
	CodeAccountNotFound          = "ACCOUNT_NOT_FOUND"
	CodeAccountAlreadyExists     = "ACCOUNT_ALREADY_EXISTS"
	CodeAccountBlocked           = "ACCOUNT_BLOCKED"
	CodeReferrerNotFound         = "REFERRER_NOT_FOUND"
	CodeTransactionNotFound      = "TRANSACTION_NOT_FOUND"
	CodeStoreConflict            = "STORE_CONFLICT"
	CodeValidationError          = "VALIDATION_ERROR"
	CodeInternal                 = "INTERNAL"
)

var codes = []struct {
	err  error
	code string
}{
	{ErrInsufficientBalance, CodeInsufficientBalance},
	{ErrTasksExhausted, CodeTasksExhausted},
	{ErrBelowMinimumBalance, CodeBelowMinimumBalance},
	{ErrBelowMinimumWithdrawal, CodeBelowMinimumWithdrawal},
	{ErrExceedsAvailableProfit, CodeExceedsAvailableProfit},
	{ErrAnotherWithdrawalPending, CodeAnotherWithdrawalPending},
	{ErrDuplicateDeposit, CodeDuplicateDeposit},
	{ErrInvalidStateTransition, CodeInvalidStateTransition},
	{ErrAccountNotFound, CodeAccountNotFound},
	{ErrAccountAlreadyExists, CodeAccountAlreadyExists},
	{ErrAccountBlocked, CodeAccountBlocked},
	{ErrReferrerNotFound, CodeReferrerNotFound},
	{ErrTransactionNotFound, CodeTransactionNotFound},
	{ErrStoreConflict, CodeStoreConflict},
	{ErrValidation, CodeValidationError},
}

// Code returns stable code for the error or CodeInternal if error is not well known
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}

// Reason returns description safe to show to caller: the sentinel text or the validation reason.
// Context added by wrapping (ids, versions, driver messages) is never included.
func Reason(err error) string {
	var v *validationError
	if errors.As(err, &v) {
		return v.reason
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.err.Error()
		}
	}
	return "internal error"
}
