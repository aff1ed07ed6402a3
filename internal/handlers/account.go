package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/nkiryanov/rewardledger/internal/handlers/render"
	"github.com/nkiryanov/rewardledger/internal/logger"
	"github.com/nkiryanov/rewardledger/internal/service/account"
)

func handleOverview(accountService accountService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerFrom(w, r)
		if !ok {
			return
		}

		overview, err := accountService.Overview(r.Context(), caller.AccountID)
		if err != nil {
			serviceError(w, err, l)
			return
		}

		render.JSON(w, newOverviewResponse(overview))
	})
}

// handleOpenAccount creates ledger account for already authenticated caller
func handleOpenAccount(accountService accountService, l logger.Logger) http.Handler {
	type request struct {
		ReferrerID *uuid.UUID `json:"referrer_id"`
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

		created, err := accountService.Register(r.Context(), account.RegisterRequest{
			ID:         &caller.AccountID,
			ReferrerID: data.ReferrerID,
		})
		if err != nil {
			serviceError(w, err, l)
			return
		}

		render.JSONWithStatus(w, newAccountResponse(created), http.StatusCreated)
	})
}

func handleListReferrals(accountService accountService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerFrom(w, r)
		if !ok {
			return
		}

		edges, err := accountService.ListReferrals(r.Context(), caller.AccountID)
		if err != nil {
			serviceError(w, err, l)
			return
		}

		render.JSON(w, newEdgesResponse(edges))
	})
}

func handleRegister(accountService accountService, l logger.Logger) http.Handler {
	type request struct {
		ID         *uuid.UUID `json:"id"`
		ReferrerID *uuid.UUID `json:"referrer_id"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		created, err := accountService.Register(r.Context(), account.RegisterRequest{
			ID:         data.ID,
			ReferrerID: data.ReferrerID,
		})
		if err != nil {
			serviceError(w, err, l)
			return
		}

		render.JSONWithStatus(w, newAccountResponse(created), http.StatusCreated)
	})
}

func handleAccountOverview(accountService accountService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		overview, err := accountService.Overview(r.Context(), id)
		if err != nil {
			serviceError(w, err, l)
			return
		}

		render.JSON(w, newOverviewResponse(overview))
	})
}

func handleSetBlocked(accountService accountService, l logger.Logger) http.Handler {
	type request struct {
		Blocked *bool `json:"blocked" validate:"required"`
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

		updated, err := accountService.SetBlocked(r.Context(), id, *data.Blocked)
		if err != nil {
			serviceError(w, err, l)
			return
		}

		l.Info("account blocked flag changed", "account_id", id, "blocked", updated.IsBlocked)
		render.JSON(w, newAccountResponse(updated))
	})
}
