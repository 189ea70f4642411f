package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/responseable/onboarding/internal/api/response"
	"github.com/responseable/onboarding/internal/models"
)

type contextKey string

// AdminContextKey holds the authenticated *models.AdminUser.
const AdminContextKey contextKey = "admin"

// SessionValidator resolves a session token to its admin.
type SessionValidator interface {
	ValidateSession(ctx context.Context, token string) (*models.AdminUser, error)
}

// SessionAuth validates the Bearer session token from the Authorization
// header and stores the authenticated admin in the request context.
func SessionAuth(sessions SessionValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				response.RespondUnauthorized(w, "Missing or malformed Authorization header. Expected: Bearer <token>")
				return
			}

			admin, err := sessions.ValidateSession(r.Context(), token)
			if err != nil {
				response.RespondUnauthorized(w, "Invalid or expired session")
				return
			}

			ctx := context.WithValue(r.Context(), AdminContextKey, admin)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermission guards a handler behind a single admin permission.
// It must run inside SessionAuth.
func RequirePermission(perm models.AdminPermission, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		admin := AdminFromContext(r.Context())
		if admin == nil {
			response.RespondUnauthorized(w, "Not authenticated")
			return
		}
		if !admin.HasPermission(perm) {
			response.RespondForbidden(w, "Missing permission: "+string(perm))
			return
		}

		next(w, r)
	}
}

// AdminFromContext returns the authenticated admin, or nil outside SessionAuth.
func AdminFromContext(ctx context.Context) *models.AdminUser {
	admin, _ := ctx.Value(AdminContextKey).(*models.AdminUser)
	return admin
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header, returning "" when absent or malformed.
func BearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
