package middleware

import (
	"net/http"
	"strings"

	"github.com/nkiryanov/rewardledger/internal/handlers/callerctx"
	"github.com/nkiryanov/rewardledger/internal/handlers/render"
	"github.com/nkiryanov/rewardledger/internal/models"
)

type tokenParser interface {
	Parse(access string) (models.Caller, error)
}

// AuthMiddleware reads bearer token and puts the caller into request context
func AuthMiddleware(tokens tokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			access, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || access == "" {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			caller, err := tokens.Parse(access)
			if err != nil {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := callerctx.New(r.Context(), caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminOnly must run after AuthMiddleware
func AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		if !caller.IsAdmin() {
			render.ServiceError(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
