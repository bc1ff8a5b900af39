package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"pulsegate/internal/httputil"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	// AccountIDKey is the context key for the authenticated account's ID
	AccountIDKey contextKey = "account_id"
)

// AuthMiddleware creates a middleware that validates JWT tokens.
// Checks the Authorization header first, then falls back to the access_token
// query parameter. Browser WebSocket clients cannot set custom headers during
// the upgrade request, so the query fallback keeps them usable.
func AuthMiddleware(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var tokenString string

			authHeader := r.Header.Get("Authorization")
			if authHeader != "" {
				// Expected format: "Bearer <token>"
				parts := strings.SplitN(authHeader, " ", 2)
				if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
					tokenString = parts[1]
				}
			}

			if tokenString == "" {
				tokenString = r.URL.Query().Get("access_token")
			}

			if tokenString == "" {
				httputil.WriteUnauthorized(w, "Missing authentication token")
				return
			}

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(jwtSecret), nil
			})

			if err != nil {
				if strings.Contains(err.Error(), "expired") {
					httputil.WriteUnauthorized(w, "Access token has expired")
					return
				}
				httputil.WriteUnauthorized(w, "Invalid authentication token")
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok || !token.Valid {
				httputil.WriteUnauthorized(w, "Invalid authentication token")
				return
			}

			accountIDFloat, ok := claims["account_id"].(float64)
			if !ok {
				httputil.WriteUnauthorized(w, "Invalid token claims")
				return
			}
			accountID := int64(accountIDFloat)

			ctx := context.WithValue(r.Context(), AccountIDKey, accountID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetAccountIDFromContext extracts the account ID from the request context.
// Returns the account ID and true if found, or 0 and false if not found.
func GetAccountIDFromContext(ctx context.Context) (int64, bool) {
	accountID, ok := ctx.Value(AccountIDKey).(int64)
	return accountID, ok
}

// WithAccountID returns a context carrying the given account ID. Used by
// internal entry points that act on behalf of an account without a token.
func WithAccountID(ctx context.Context, accountID int64) context.Context {
	return context.WithValue(ctx, AccountIDKey, accountID)
}
