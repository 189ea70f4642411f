package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/responseable/onboarding/internal/errors"
	"github.com/responseable/onboarding/internal/models"
)

// mockAdminsStore is an in-memory AdminsStore.
type mockAdminsStore struct {
	admins   map[string]*models.AdminUser
	sessions map[string]*models.Session
}

func newMockAdminsStore() *mockAdminsStore {
	return &mockAdminsStore{
		admins:   map[string]*models.AdminUser{},
		sessions: map[string]*models.Session{},
	}
}

func (m *mockAdminsStore) Create(_ context.Context, admin *models.AdminUser) (*models.AdminUser, error) {
	for _, a := range m.admins {
		if a.Email == admin.Email {
			return nil, apperrors.NewConflictError("admin", "an admin with this email already exists")
		}
	}
	if admin.ID == "" {
		admin.ID = "admin-" + admin.Email
	}
	admin.CreatedAt = time.Now()
	m.admins[admin.ID] = admin
	return admin, nil
}

func (m *mockAdminsStore) GetByID(_ context.Context, id string) (*models.AdminUser, error) {
	if a, ok := m.admins[id]; ok {
		copied := *a
		return &copied, nil
	}
	return nil, apperrors.NewNotFoundError("admin", "admin not found")
}

func (m *mockAdminsStore) GetByEmail(_ context.Context, email string) (*models.AdminUser, error) {
	for _, a := range m.admins {
		if a.Email == email {
			copied := *a
			return &copied, nil
		}
	}
	return nil, apperrors.NewNotFoundError("admin", "admin not found")
}

func (m *mockAdminsStore) List(_ context.Context) ([]models.AdminUser, error) {
	out := []models.AdminUser{}
	for _, a := range m.admins {
		out = append(out, *a)
	}
	return out, nil
}

func (m *mockAdminsStore) Count(_ context.Context) (int64, error) {
	return int64(len(m.admins)), nil
}

func (m *mockAdminsStore) UpdateAccess(_ context.Context, id string, role models.AdminRole, permissions []models.AdminPermission) (*models.AdminUser, error) {
	a, ok := m.admins[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("admin", "admin not found")
	}
	a.Role = role
	a.Permissions = permissions
	copied := *a
	return &copied, nil
}

func (m *mockAdminsStore) Delete(_ context.Context, id string) error {
	if _, ok := m.admins[id]; !ok {
		return apperrors.NewNotFoundError("admin", "admin not found")
	}
	delete(m.admins, id)
	return nil
}

func (m *mockAdminsStore) CreateSession(_ context.Context, session *models.Session) error {
	session.CreatedAt = time.Now()
	m.sessions[session.Token] = session
	return nil
}

func (m *mockAdminsStore) GetSession(_ context.Context, token string) (*models.Session, error) {
	if s, ok := m.sessions[token]; ok {
		copied := *s
		return &copied, nil
	}
	return nil, apperrors.NewNotFoundError("session", "session not found")
}

func (m *mockAdminsStore) DeleteSession(_ context.Context, token string) error {
	delete(m.sessions, token)
	return nil
}

func (m *mockAdminsStore) DeleteExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for token, s := range m.sessions {
		if s.ExpiresAt.Before(now) {
			delete(m.sessions, token)
			n++
		}
	}
	return n, nil
}

func newTestAdmin(t *testing.T, s *AdminsService) *models.AdminUser {
	t.Helper()
	admin, err := s.CreateAdmin(context.Background(), &models.CreateAdminRequest{
		Email:    "ops@example.com",
		Name:     "Ops Person",
		Role:     string(models.RoleOperations),
		Password: "correct horse battery",
	})
	require.NoError(t, err)
	return admin
}

func TestAdminsService_LoginAndValidate(t *testing.T) {
	store := newMockAdminsStore()
	s := NewAdminsService(store, 24*time.Hour)
	newTestAdmin(t, s)

	t.Run("valid credentials issue a session", func(t *testing.T) {
		resp, err := s.Login(context.Background(), &models.LoginRequest{
			Email:    "ops@example.com",
			Password: "correct horse battery",
		})

		require.NoError(t, err)
		assert.NotEmpty(t, resp.Token)
		assert.Equal(t, "ops@example.com", resp.Admin.Email)
		assert.Empty(t, resp.Admin.PasswordHash, "hash must not be echoed")

		admin, err := s.ValidateSession(context.Background(), resp.Token)
		require.NoError(t, err)
		assert.Equal(t, "ops@example.com", admin.Email)
	})

	t.Run("wrong password is rejected", func(t *testing.T) {
		_, err := s.Login(context.Background(), &models.LoginRequest{
			Email:    "ops@example.com",
			Password: "wrong",
		})

		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	})

	t.Run("unknown email gets the same error as a wrong password", func(t *testing.T) {
		_, err := s.Login(context.Background(), &models.LoginRequest{
			Email:    "nobody@example.com",
			Password: "whatever",
		})

		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	})
}

func TestAdminsService_SessionExpiry(t *testing.T) {
	store := newMockAdminsStore()
	s := NewAdminsService(store, time.Hour)
	newTestAdmin(t, s)

	resp, err := s.Login(context.Background(), &models.LoginRequest{
		Email:    "ops@example.com",
		Password: "correct horse battery",
	})
	require.NoError(t, err)

	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	_, err = s.ValidateSession(context.Background(), resp.Token)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	// Expired sessions are deleted on first use.
	_, ok := store.sessions[resp.Token]
	assert.False(t, ok)
}

func TestAdminsService_Logout(t *testing.T) {
	store := newMockAdminsStore()
	s := NewAdminsService(store, time.Hour)
	newTestAdmin(t, s)

	resp, err := s.Login(context.Background(), &models.LoginRequest{
		Email:    "ops@example.com",
		Password: "correct horse battery",
	})
	require.NoError(t, err)

	require.NoError(t, s.Logout(context.Background(), resp.Token))

	_, err = s.ValidateSession(context.Background(), resp.Token)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	// Logging out twice is fine.
	require.NoError(t, s.Logout(context.Background(), resp.Token))
}

func TestAdminsService_CreateAdmin(t *testing.T) {
	store := newMockAdminsStore()
	s := NewAdminsService(store, time.Hour)

	t.Run("role defaults fill an empty permission list", func(t *testing.T) {
		admin, err := s.CreateAdmin(context.Background(), &models.CreateAdminRequest{
			Email:    "viewer@example.com",
			Name:     "Viewer",
			Role:     string(models.RoleViewer),
			Password: "long enough pw",
		})

		require.NoError(t, err)
		assert.ElementsMatch(t, models.DefaultPermissionsForRole(models.RoleViewer), admin.Permissions)
		assert.NotEmpty(t, admin.PasswordHash)
		assert.NotEqual(t, "long enough pw", admin.PasswordHash)
	})

	t.Run("unknown role is rejected", func(t *testing.T) {
		_, err := s.CreateAdmin(context.Background(), &models.CreateAdminRequest{
			Email:    "x@example.com",
			Name:     "X",
			Role:     "WIZARD",
			Password: "long enough pw",
		})

		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrValidation)
	})

	t.Run("duplicate email conflicts", func(t *testing.T) {
		_, err := s.CreateAdmin(context.Background(), &models.CreateAdminRequest{
			Email:    "viewer@example.com",
			Name:     "Viewer Again",
			Role:     string(models.RoleViewer),
			Password: "long enough pw",
		})

		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrConflict)
	})
}

func TestAdminsService_UpdateAdminAccess(t *testing.T) {
	store := newMockAdminsStore()
	s := NewAdminsService(store, time.Hour)
	admin := newTestAdmin(t, s)

	t.Run("role change resets permissions to the new defaults", func(t *testing.T) {
		role := string(models.RoleViewer)
		updated, err := s.UpdateAdminAccess(context.Background(), admin.ID, &models.UpdateAdminAccessRequest{Role: &role})

		require.NoError(t, err)
		assert.Equal(t, models.RoleViewer, updated.Role)
		assert.ElementsMatch(t, models.DefaultPermissionsForRole(models.RoleViewer), updated.Permissions)
	})

	t.Run("explicit permissions win over defaults", func(t *testing.T) {
		perms := []string{string(models.PermViewDrivers)}
		updated, err := s.UpdateAdminAccess(context.Background(), admin.ID, &models.UpdateAdminAccessRequest{Perms: &perms})

		require.NoError(t, err)
		assert.Equal(t, []models.AdminPermission{models.PermViewDrivers}, updated.Permissions)
	})

	t.Run("access change invalidates cached sessions", func(t *testing.T) {
		resp, err := s.Login(context.Background(), &models.LoginRequest{
			Email:    "ops@example.com",
			Password: "correct horse battery",
		})
		require.NoError(t, err)

		role := string(models.RoleSuperAdmin)
		_, err = s.UpdateAdminAccess(context.Background(), admin.ID, &models.UpdateAdminAccessRequest{Role: &role})
		require.NoError(t, err)

		refreshed, err := s.ValidateSession(context.Background(), resp.Token)
		require.NoError(t, err)
		assert.Equal(t, models.RoleSuperAdmin, refreshed.Role)
	})
}

func TestAdminsService_EnsureBootstrapAdmin(t *testing.T) {
	t.Run("creates the first super admin", func(t *testing.T) {
		store := newMockAdminsStore()
		s := NewAdminsService(store, time.Hour)

		require.NoError(t, s.EnsureBootstrapAdmin(context.Background(), "root@example.com", "bootstrap pw"))

		admin, err := s.admins.GetByEmail(context.Background(), "root@example.com")
		require.NoError(t, err)
		assert.Equal(t, models.RoleSuperAdmin, admin.Role)
	})

	t.Run("does nothing when admins exist", func(t *testing.T) {
		store := newMockAdminsStore()
		s := NewAdminsService(store, time.Hour)
		newTestAdmin(t, s)

		require.NoError(t, s.EnsureBootstrapAdmin(context.Background(), "root@example.com", "bootstrap pw"))

		_, err := s.admins.GetByEmail(context.Background(), "root@example.com")
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("does nothing without a configured email", func(t *testing.T) {
		store := newMockAdminsStore()
		s := NewAdminsService(store, time.Hour)

		require.NoError(t, s.EnsureBootstrapAdmin(context.Background(), "", ""))
		count, _ := store.Count(context.Background())
		assert.Zero(t, count)
	})
}

func TestVerifyPassword(t *testing.T) {
	salt, hash, err := hashPassword("secret pw")
	require.NoError(t, err)

	assert.True(t, verifyPassword("secret pw", salt, hash))
	assert.False(t, verifyPassword("other pw", salt, hash))
	assert.False(t, verifyPassword("secret pw", "not-hex", hash))
}
