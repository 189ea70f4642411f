package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/responseable/onboarding/internal/errors"
	"github.com/responseable/onboarding/internal/models"
)

type mockSessionValidator struct {
	admin *models.AdminUser
	token string
}

func (m *mockSessionValidator) ValidateSession(_ context.Context, token string) (*models.AdminUser, error) {
	if m.admin != nil && token == m.token {
		return m.admin, nil
	}
	return nil, apperrors.NewUnauthorizedError("invalid session token")
}

func TestSessionAuth(t *testing.T) {
	admin := &models.AdminUser{ID: "admin-1", Email: "ops@example.com", Role: models.RoleOperations}
	validator := &mockSessionValidator{admin: admin, token: "tok-1"}

	var seen *models.AdminUser
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = AdminFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := SessionAuth(validator)(next)

	t.Run("valid token passes the admin through", func(t *testing.T) {
		seen = nil
		req := httptest.NewRequest(http.MethodGet, "/v1/drivers", nil)
		req.Header.Set("Authorization", "Bearer tok-1")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, admin, seen)
	})

	t.Run("missing header is rejected", func(t *testing.T) {
		seen = nil
		req := httptest.NewRequest(http.MethodGet, "/v1/drivers", nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Nil(t, seen)
	})

	t.Run("unknown token is rejected", func(t *testing.T) {
		seen = nil
		req := httptest.NewRequest(http.MethodGet, "/v1/drivers", nil)
		req.Header.Set("Authorization", "Bearer wrong")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Nil(t, seen)
	})

	t.Run("non-bearer scheme is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/drivers", nil)
		req.Header.Set("Authorization", "Basic dXNlcjpwdw==")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRequirePermission(t *testing.T) {
	next := func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }
	guarded := RequirePermission(models.PermManageAdmins, next)

	t.Run("admin with the permission passes", func(t *testing.T) {
		admin := &models.AdminUser{Role: models.RoleSuperAdmin}
		req := httptest.NewRequest(http.MethodGet, "/v1/admins", nil)
		req = req.WithContext(context.WithValue(req.Context(), AdminContextKey, admin))
		rec := httptest.NewRecorder()

		guarded(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("admin without the permission gets 403", func(t *testing.T) {
		admin := &models.AdminUser{Role: models.RoleViewer}
		req := httptest.NewRequest(http.MethodGet, "/v1/admins", nil)
		req = req.WithContext(context.WithValue(req.Context(), AdminContextKey, admin))
		rec := httptest.NewRecorder()

		guarded(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("no admin in context gets 401", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/admins", nil)
		rec := httptest.NewRecorder()

		guarded(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
