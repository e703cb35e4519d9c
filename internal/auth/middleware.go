package auth

import (
	"context"
	"net/http"
	"strings"
)

// contextKey is an unexported type used for context keys in this package.
//
// context.WithValue uses any as the key type. A plain string key like
// "accountID" could be read or shadowed by any package that knows the
// string; a package-private type makes collisions impossible — only this
// package can create a key of type contextKey.
type contextKey int

const accountIDKey contextKey = iota

// RequireAuth returns middleware that rejects requests without a valid JWT.
//
// The token is read from the "token" cookie (set at login) or from an
// "Authorization: Bearer ..." header for non-browser clients. On success the
// accountID is stored in the request context for handlers downstream.
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			accountID, err := extractAccountID(r, tokens)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"unauthorized","message":"authentication required"}`))
				return
			}

			ctx := context.WithValue(r.Context(), accountIDKey, accountID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth returns middleware that sets the accountID in the context
// when a valid token is present but lets the request through either way.
// Handlers can then vary their response for signed-in visitors.
func OptionalAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if accountID, err := extractAccountID(r, tokens); err == nil {
				r = r.WithContext(context.WithValue(r.Context(), accountIDKey, accountID))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AccountIDFromContext returns the authenticated account's ID, if any.
// The second return value is false when the request was not authenticated.
func AccountIDFromContext(ctx context.Context) (string, bool) {
	accountID, ok := ctx.Value(accountIDKey).(string)
	return accountID, ok && accountID != ""
}

// extractAccountID pulls the JWT from the request and validates it.
// Cookie first (browser clients), then the Authorization header.
func extractAccountID(r *http.Request, tokens *TokenService) (string, error) {
	tokenStr := ""

	if cookie, err := r.Cookie("token"); err == nil && cookie.Value != "" {
		tokenStr = cookie.Value
	} else if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		tokenStr = strings.TrimPrefix(h, "Bearer ")
	}

	if tokenStr == "" {
		return "", http.ErrNoCookie
	}

	return tokens.Validate(tokenStr)
}
