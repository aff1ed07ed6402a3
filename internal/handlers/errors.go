package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/nkiryanov/rewardledger/internal/apperrors"
	"github.com/nkiryanov/rewardledger/internal/handlers/callerctx"
	"github.com/nkiryanov/rewardledger/internal/handlers/render"
	"github.com/nkiryanov/rewardledger/internal/logger"
	"github.com/nkiryanov/rewardledger/internal/models"
)

var statusByCode = map[string]int{
	apperrors.CodeInsufficientBalance:      http.StatusPaymentRequired,
	apperrors.CodeTasksExhausted:           http.StatusTooManyRequests,
	apperrors.CodeBelowMinimumBalance:      http.StatusUnprocessableEntity,
	apperrors.CodeBelowMinimumWithdrawal:   http.StatusUnprocessableEntity,
	apperrors.CodeExceedsAvailableProfit:   http.StatusUnprocessableEntity,
	apperrors.CodeAnotherWithdrawalPending: http.StatusConflict,
	apperrors.CodeDuplicateDeposit:         http.StatusConflict,
	apperrors.CodeInvalidStateTransition:   http.StatusConflict,
	apperrors.CodeAccountNotFound:          http.StatusNotFound,
	apperrors.CodeAccountAlreadyExists:     http.StatusConflict,
	apperrors.CodeAccountBlocked:           http.StatusForbidden,
	apperrors.CodeReferrerNotFound:         http.StatusUnprocessableEntity,
	apperrors.CodeTransactionNotFound:      http.StatusNotFound,
	apperrors.CodeStoreConflict:            http.StatusServiceUnavailable,
	apperrors.CodeValidationError:          http.StatusBadRequest,
}

// serviceError renders known errors with their code and fixed reason, full error goes to log only
// Anything else is logged and rendered without details
func serviceError(w http.ResponseWriter, err error, l logger.Logger) {
	code := apperrors.Code(err)

	status, ok := statusByCode[code]
	if !ok {
		l.Error("request failed", "error", err)
		render.CodedError(w, apperrors.CodeInternal, "Internal server error", http.StatusInternalServerError)
		return
	}

	if code == apperrors.CodeStoreConflict {
		l.Warn("request failed on store conflict", "error", err)
	} else {
		l.Debug("request declined", "code", code, "error", err)
	}
	render.CodedError(w, code, apperrors.Reason(err), status)
}

func callerFrom(w http.ResponseWriter, r *http.Request) (models.Caller, bool) {
	caller, ok := callerctx.FromContext(r.Context())
	if !ok {
		render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
	}
	return caller, ok
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		render.CodedError(w, apperrors.CodeValidationError, "Invalid id in path", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}
