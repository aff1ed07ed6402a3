package handlers

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/nkiryanov/rewardledger/internal/handlers/render"
	"github.com/nkiryanov/rewardledger/internal/logger"
	"github.com/nkiryanov/rewardledger/internal/service/withdrawal"
)

func handleRequestWithdrawal(withdrawalService withdrawalService, l logger.Logger) http.Handler {
	type request struct {
		Amount   decimal.Decimal `json:"amount" validate:"gt=0"`
		Currency string          `json:"currency" validate:"required"`
		Network  string          `json:"network"`
		Address  string          `json:"address" validate:"required"`
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

		created, err := withdrawalService.RequestWithdrawal(r.Context(), withdrawal.Request{
			AccountID: caller.AccountID,
			Amount:    data.Amount,
			Currency:  data.Currency,
			Network:   data.Network,
			Address:   data.Address,
		})
		if err != nil {
			serviceError(w, err, l)
			return
		}

		render.JSONWithStatus(w, newTransactionResponse(created), http.StatusCreated)
	})
}

func handleListWithdrawals(withdrawalService withdrawalService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerFrom(w, r)
		if !ok {
			return
		}

		withdrawals, err := withdrawalService.ListWithdrawals(r.Context(), caller.AccountID)
		if err != nil {
			serviceError(w, err, l)
			return
		}

		render.JSON(w, newTransactionsResponse(withdrawals))
	})
}

func handleListPendingWithdrawals(withdrawalService withdrawalService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pending, err := withdrawalService.ListPending(r.Context())
		if err != nil {
			serviceError(w, err, l)
			return
		}

		render.JSON(w, newTransactionsResponse(pending))
	})
}

func handleMarkProcessing(withdrawalService withdrawalService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerFrom(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		updated, err := withdrawalService.MarkProcessing(r.Context(), id, caller.AccountID)
		if err != nil {
			serviceError(w, err, l)
			return
		}

		render.JSON(w, newTransactionResponse(updated))
	})
}

func handleApproveWithdrawal(withdrawalService withdrawalService, l logger.Logger) http.Handler {
	type request struct {
		ExternalRef string `json:"external_ref"`
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

		updated, err := withdrawalService.Approve(r.Context(), id, caller.AccountID, data.ExternalRef)
		if err != nil {
			serviceError(w, err, l)
			return
		}

		render.JSON(w, newTransactionResponse(updated))
	})
}

func handleRejectWithdrawal(withdrawalService withdrawalService, l logger.Logger) http.Handler {
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

		updated, err := withdrawalService.Reject(r.Context(), id, caller.AccountID, data.Reason)
		if err != nil {
			serviceError(w, err, l)
			return
		}

		render.JSON(w, newTransactionResponse(updated))
	})
}
