package handler

import (
	"net/http"

	"github.com/Endika/participacion/internal/auth"
	"github.com/Endika/participacion/internal/service"
)

// RequireAdmin is middleware for the moderation endpoints. It runs after
// RequireAuth, loads the caller's account, and rejects anyone without the
// administrator role.
//
// It lives in the handler package (not auth) because checking a role needs
// a database lookup — the auth package only knows about tokens.
func RequireAdmin(accounts *service.AccountService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			accountID, ok := auth.AccountIDFromContext(r.Context())
			if !ok {
				writeJSON(w, http.StatusUnauthorized, ErrorResponse{
					Error: "unauthorized", Message: "authentication required",
				})
				return
			}

			account, err := accounts.GetByID(r.Context(), accountID)
			if err != nil {
				writeError(w, err)
				return
			}
			if !account.IsAdministrator() {
				writeJSON(w, http.StatusForbidden, ErrorResponse{
					Error: "forbidden", Message: "administrator role required",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
