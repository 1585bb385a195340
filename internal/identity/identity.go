// Package identity provides the trusted-identity middleware and the
// identifier guard that protects store and session lookups.
package identity

import (
	"context"
	"net/http"
	"strings"
)

// TokenCookieName is the cookie carrying the access token.
const TokenCookieName = "jwt"

type contextKey int

const (
	userIDKey contextKey = iota
	usernameKey
)

// UserIDFromContext extracts the authenticated user ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// UsernameFromContext extracts the authenticated username from the request context.
func UsernameFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(usernameKey).(string); ok {
		return v
	}
	return ""
}

// WithUser returns ctx annotated with the given identity. Exposed for tests
// and for the push handler, which authenticates during the HTTP upgrade.
func WithUser(ctx context.Context, userID, username string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, usernameKey, username)
}

func tokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(TokenCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	// WebSocket upgrades from browsers cannot set headers; allow a query
	// parameter fallback on those requests.
	return r.URL.Query().Get("token")
}

// Middleware authenticates every request via the access token and injects
// the resulting identity into the request context. Requests without a valid
// token are rejected with 401 before any handler or identifier guard runs.
func Middleware(issuer *TokenIssuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := tokenFromRequest(r)
			if tokenString == "" {
				unauthorized(w, "authentication required")
				return
			}
			claims, err := issuer.Validate(tokenString)
			if err != nil {
				unauthorized(w, "invalid or expired token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), claims.UserID, claims.Username)))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"message":"` + msg + `"}`))
}
