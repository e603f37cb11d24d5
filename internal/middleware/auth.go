package middleware

import (
	"context"
	"net/http"
	"strings"

	"mailseller-api/internal/service"
	"mailseller-api/pkg/apierror"
)

// UserIDKey is the context key for the authenticated user id.
const UserIDKey contextKey = "user_id"

// NewAuth creates the user authentication middleware. Requests carry
// either a long-lived API token or a session token in X-Token; the
// prefix decides which lookup runs. Routes outside this middleware's
// group (purchase, payment webhook, admin) do their own checks.
func NewAuth(tokens *service.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get("X-Token")
			if token == "" {
				writeError(w, apierror.Unauthorized("X-Token header is required"))
				return
			}

			var userID int64
			var err error
			if strings.HasPrefix(token, service.SessionPrefix) {
				userID, err = tokens.ResolveSession(r.Context(), token)
			} else {
				userID, err = tokens.ResolveToken(r.Context(), token)
			}
			if err != nil {
				writeError(w, apierror.Unauthorized("Invalid or expired token"))
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewAdminAuth creates the admin guard. A static bearer token from
// configuration; an empty configured token disables the whole admin
// surface.
func NewAdminAuth(adminToken string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if adminToken == "" {
				writeError(w, apierror.Forbidden("Admin API is disabled"))
				return
			}

			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") || auth[len("Bearer "):] != adminToken {
				writeError(w, apierror.Unauthorized("Invalid admin token"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GetUserID retrieves the authenticated user id from context.
func GetUserID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(UserIDKey).(int64)
	return id, ok
}

func writeError(w http.ResponseWriter, err *apierror.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.StatusCode)
	w.Write(err.ToJSON())
}
