package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/rewardledger/internal/handlers/render"
	"github.com/nkiryanov/rewardledger/internal/logger"
	"github.com/nkiryanov/rewardledger/internal/service/deposit"
	"github.com/nkiryanov/rewardledger/internal/service/referral"
)

func handleCreateDeposit(depositService depositService, l logger.Logger) http.Handler {
	type request struct {
		Amount   decimal.Decimal `json:"amount" validate:"gt=0"`
		Currency string          `json:"currency" validate:"required"`
		Network  string          `json:"network"`
		TxHash   string          `json:"tx_hash"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerFrom(w, r)
		if !ok {
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		created, err := depositService.CreateDeposit(r.Context(), deposit.Request{
			AccountID: caller.AccountID,
			Amount:    data.Amount,
			Currency:  data.Currency,
			Network:   data.Network,
			TxHash:    data.TxHash,
		})
		if err != nil {
			serviceError(w, err, l)
			return
		}

		render.JSONWithStatus(w, newTransactionResponse(created), http.StatusCreated)
	})
}

func handleListDeposits(depositService depositService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerFrom(w, r)
		if !ok {
			return
		}

		deposits, err := depositService.ListDeposits(r.Context(), caller.AccountID)
		if err != nil {
			serviceError(w, err, l)
			return
		}

		render.JSON(w, newTransactionsResponse(deposits))
	})
}

// handleDepositEvent accepts deposit already approved by an operator or an automated check
func handleDepositEvent(depositService depositService, l logger.Logger) http.Handler {
	type request struct {
		AccountID uuid.UUID       `json:"account_id" validate:"required"`
		Amount    decimal.Decimal `json:"amount" validate:"gt=0"`
		Currency  string          `json:"currency" validate:"required"`
		Network   string          `json:"network"`
		TxHash    string          `json:"tx_hash"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		result, err := depositService.RecordApprovedDeposit(r.Context(), deposit.Request{
			AccountID: data.AccountID,
			Amount:    data.Amount,
			Currency:  data.Currency,
			Network:   data.Network,
			TxHash:    data.TxHash,
		})
		if err != nil {
			serviceError(w, err, l)
			return
		}

		render.JSONWithStatus(w, newDepositResultResponse(result), http.StatusCreated)
	})
}

func handleApproveDeposit(depositService depositService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerFrom(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		result, err := depositService.ApproveDeposit(r.Context(), id, caller.AccountID)
		if err != nil {
			serviceError(w, err, l)
			return
		}

		render.JSON(w, newDepositResultResponse(result))
	})
}

func handleRejectDeposit(depositService depositService, l logger.Logger) http.Handler {
	type request struct {
		Reason string `json:"reason" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerFrom(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		rejected, err := depositService.RejectDeposit(r.Context(), id, caller.AccountID, data.Reason)
		if err != nil {
			serviceError(w, err, l)
			return
		}

		render.JSON(w, newTransactionResponse(rejected))
	})
}

// handleDistributeCommission re-runs commission fan-out for a deposit amount
func handleDistributeCommission(referralService referralService, l logger.Logger) http.Handler {
	type request struct {
		Amount    decimal.Decimal `json:"amount" validate:"gt=0"`
		Currency  string          `json:"currency" validate:"required"`
		DepositID *uuid.UUID      `json:"deposit_id"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		report, err := referralService.DistributeCommission(r.Context(), referral.CommissionRequest{
			AccountID:     id,
			DepositAmount: data.Amount,
			Currency:      data.Currency,
			DepositID:     data.DepositID,
		})
		if err != nil {
			serviceError(w, err, l)
			return
		}

		render.JSON(w, newCommissionResponse(report))
	})
}
