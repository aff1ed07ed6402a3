package handlers

import (
	"net/http"

	"github.com/nkiryanov/rewardledger/internal/handlers/render"
	"github.com/nkiryanov/rewardledger/internal/logger"
	"github.com/nkiryanov/rewardledger/internal/models"
)

func handleTier(membershipService membershipService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerFrom(w, r)
		if !ok {
			return
		}

		tier, err := membershipService.ResolveTier(r.Context(), caller.AccountID)
		if err != nil {
			serviceError(w, err, l)
			return
		}

		history, err := membershipService.History(r.Context(), caller.AccountID)
		if err != nil {
			serviceError(w, err, l)
			return
		}

		render.JSON(w, newTierResponse(membershipService.TierParams(tier), history))
	})
}

func handleAssignTier(membershipService membershipService, l logger.Logger) http.Handler {
	type request struct {
		// null clears assignment and tier is derived from referrals again
		Tier *models.Tier `json:"tier"`
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

		updated, err := membershipService.AssignTier(r.Context(), id, data.Tier, caller.AccountID)
		if err != nil {
			serviceError(w, err, l)
			return
		}

		render.JSON(w, newAccountResponse(updated))
	})
}

func handleResolveTier(membershipService membershipService, l logger.Logger) http.Handler {
	type response struct {
		Tier    models.Tier `json:"tier"`
		Changed bool        `json:"changed"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		tier, changed, err := membershipService.AutoPromote(r.Context(), id)
		if err != nil {
			serviceError(w, err, l)
			return
		}

		render.JSON(w, response{Tier: tier, Changed: changed})
	})
}
