package handlers

import (
	"net/http"

	"github.com/nkiryanov/rewardledger/internal/handlers/render"
	"github.com/nkiryanov/rewardledger/internal/logger"
)

func handleCompleteTask(rewardService rewardService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerFrom(w, r)
		if !ok {
			return
		}

		result, err := rewardService.CompleteTask(r.Context(), caller.AccountID)
		if err != nil {
			serviceError(w, err, l)
			return
		}

		render.JSON(w, newTaskResponse(result))
	})
}

func handleTodayTasks(rewardService rewardService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerFrom(w, r)
		if !ok {
			return
		}

		counter, err := rewardService.TodayCounter(r.Context(), caller.AccountID)
		if err != nil {
			serviceError(w, err, l)
			return
		}

		render.JSON(w, newCounterResponse(counter))
	})
}
