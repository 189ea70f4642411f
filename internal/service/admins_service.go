package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/crypto/scrypt"

	apperrors "github.com/responseable/onboarding/internal/errors"
	"github.com/responseable/onboarding/internal/models"
)

const (
	sessionTokenBytes = 24
	passwordSaltBytes = 16
	passwordHashBytes = 64

	// scrypt cost parameters.
	scryptN = 16384
	scryptR = 8
	scryptP = 1

	sessionCacheSize = 1024
)

// AdminsStore is the repository surface the admins service depends on.
type AdminsStore interface {
	Create(ctx context.Context, admin *models.AdminUser) (*models.AdminUser, error)
	GetByID(ctx context.Context, id string) (*models.AdminUser, error)
	GetByEmail(ctx context.Context, email string) (*models.AdminUser, error)
	List(ctx context.Context) ([]models.AdminUser, error)
	Count(ctx context.Context) (int64, error)
	UpdateAccess(ctx context.Context, id string, role models.AdminRole, permissions []models.AdminPermission) (*models.AdminUser, error)
	Delete(ctx context.Context, id string) error
	CreateSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, token string) (*models.Session, error)
	DeleteSession(ctx context.Context, token string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

type cachedSession struct {
	session models.Session
	admin   models.AdminUser
}

// AdminsService implements admin account management and session auth.
type AdminsService struct {
	admins     AdminsStore
	sessionTTL time.Duration
	sessions   *lru.Cache[string, cachedSession]
	now        func() time.Time
}

// NewAdminsService creates an admins service. sessionTTL bounds how long a
// login stays valid.
func NewAdminsService(admins AdminsStore, sessionTTL time.Duration) *AdminsService {
	cache, _ := lru.New[string, cachedSession](sessionCacheSize)
	return &AdminsService{
		admins:     admins,
		sessionTTL: sessionTTL,
		sessions:   cache,
		now:        time.Now,
	}
}

// Login verifies credentials and issues a new session token.
func (s *AdminsService) Login(ctx context.Context, req *models.LoginRequest) (*models.LoginResponse, error) {
	admin, err := s.admins.GetByEmail(ctx, strings.TrimSpace(req.Email))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NewUnauthorizedError("invalid email or password")
		}
		return nil, fmt.Errorf("failed to look up admin: %w", err)
	}

	if !verifyPassword(req.Password, admin.PasswordSalt, admin.PasswordHash) {
		return nil, apperrors.NewUnauthorizedError("invalid email or password")
	}

	token, err := randomToken(sessionTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}

	session := &models.Session{
		Token:     token,
		AdminID:   admin.ID,
		ExpiresAt: s.now().Add(s.sessionTTL),
	}
	if err := s.admins.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	s.sessions.Add(token, cachedSession{session: *session, admin: *admin})

	sanitized := *admin
	sanitized.PasswordHash = ""
	sanitized.PasswordSalt = ""

	return &models.LoginResponse{Token: token, ExpiresAt: session.ExpiresAt, Admin: sanitized}, nil
}

// Logout revokes a session token. Unknown tokens are revoked silently.
func (s *AdminsService) Logout(ctx context.Context, token string) error {
	s.sessions.Remove(token)
	return s.admins.DeleteSession(ctx, token)
}

// ValidateSession resolves a token to its admin, rejecting expired sessions.
func (s *AdminsService) ValidateSession(ctx context.Context, token string) (*models.AdminUser, error) {
	if token == "" {
		return nil, apperrors.NewUnauthorizedError("missing session token")
	}

	if cached, ok := s.sessions.Get(token); ok {
		if !cached.session.Expired(s.now()) {
			admin := cached.admin
			return &admin, nil
		}
		s.sessions.Remove(token)
	}

	session, err := s.admins.GetSession(ctx, token)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NewUnauthorizedError("invalid session token")
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if session.Expired(s.now()) {
		_ = s.admins.DeleteSession(ctx, token)
		return nil, apperrors.NewUnauthorizedError("session expired")
	}

	admin, err := s.admins.GetByID(ctx, session.AdminID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NewUnauthorizedError("invalid session token")
		}
		return nil, fmt.Errorf("failed to get session admin: %w", err)
	}

	s.sessions.Add(token, cachedSession{session: *session, admin: *admin})

	return admin, nil
}

// CreateAdmin registers a new admin account.
func (s *AdminsService) CreateAdmin(ctx context.Context, req *models.CreateAdminRequest) (*models.AdminUser, error) {
	role := models.AdminRole(req.Role)
	if !models.IsValidAdminRole(req.Role) {
		return nil, apperrors.NewValidationError("role", "unknown admin role")
	}

	perms := make([]models.AdminPermission, 0, len(req.Perms))
	for _, p := range req.Perms {
		perms = append(perms, models.AdminPermission(p))
	}
	if len(perms) == 0 {
		perms = models.DefaultPermissionsForRole(role)
	}

	salt, hash, err := hashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	admin := &models.AdminUser{
		Email:        strings.TrimSpace(req.Email),
		Name:         strings.TrimSpace(req.Name),
		Role:         role,
		Permissions:  perms,
		PasswordHash: hash,
		PasswordSalt: salt,
	}

	return s.admins.Create(ctx, admin)
}

// GetAdmin returns one admin account.
func (s *AdminsService) GetAdmin(ctx context.Context, id string) (*models.AdminUser, error) {
	return s.admins.GetByID(ctx, id)
}

// ListAdmins returns all admin accounts.
func (s *AdminsService) ListAdmins(ctx context.Context) ([]models.AdminUser, error) {
	return s.admins.List(ctx)
}

// UpdateAdminAccess changes an admin's role and/or permission list. Cached
// sessions are purged so the new access applies on the next request.
func (s *AdminsService) UpdateAdminAccess(ctx context.Context, id string, req *models.UpdateAdminAccessRequest) (*models.AdminUser, error) {
	current, err := s.admins.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	role := current.Role
	if req.Role != nil {
		if !models.IsValidAdminRole(*req.Role) {
			return nil, apperrors.NewValidationError("role", "unknown admin role")
		}
		role = models.AdminRole(*req.Role)
	}

	perms := current.Permissions
	if req.Perms != nil {
		perms = make([]models.AdminPermission, 0, len(*req.Perms))
		for _, p := range *req.Perms {
			perms = append(perms, models.AdminPermission(p))
		}
	}
	if req.Role != nil && req.Perms == nil {
		perms = models.DefaultPermissionsForRole(role)
	}

	updated, err := s.admins.UpdateAccess(ctx, id, role, perms)
	if err != nil {
		return nil, err
	}

	s.sessions.Purge()

	return updated, nil
}

// DeleteAdmin removes an admin account and invalidates its sessions.
func (s *AdminsService) DeleteAdmin(ctx context.Context, id string) error {
	if err := s.admins.Delete(ctx, id); err != nil {
		return err
	}

	s.sessions.Purge()

	return nil
}

// EnsureBootstrapAdmin creates the initial SUPER_ADMIN account when the table
// is empty and bootstrap credentials are configured.
func (s *AdminsService) EnsureBootstrapAdmin(ctx context.Context, email, password string) error {
	if email == "" {
		return nil
	}

	count, err := s.admins.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count admins: %w", err)
	}
	if count > 0 {
		return nil
	}

	_, err = s.CreateAdmin(ctx, &models.CreateAdminRequest{
		Email:    email,
		Name:     "Bootstrap Admin",
		Role:     string(models.RoleSuperAdmin),
		Password: password,
	})
	if err != nil {
		return fmt.Errorf("failed to create bootstrap admin: %w", err)
	}

	slog.Info("Created bootstrap admin account", "email", email)

	return nil
}

// CleanupExpiredSessions deletes sessions past their expiry.
func (s *AdminsService) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	return s.admins.DeleteExpiredSessions(ctx, s.now())
}

// hashPassword derives an scrypt hash with a fresh random salt. Both values
// are hex-encoded for storage.
func hashPassword(password string) (salt, hash string, err error) {
	rawSalt := make([]byte, passwordSaltBytes)
	if _, err := rand.Read(rawSalt); err != nil {
		return "", "", err
	}

	rawHash, err := scrypt.Key([]byte(password), rawSalt, scryptN, scryptR, scryptP, passwordHashBytes)
	if err != nil {
		return "", "", err
	}

	return hex.EncodeToString(rawSalt), hex.EncodeToString(rawHash), nil
}

// verifyPassword re-derives the hash and compares in constant time.
func verifyPassword(password, saltHex, hashHex string) bool {
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return false
	}
	want, err := hex.DecodeString(hashHex)
	if err != nil {
		return false
	}

	got, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, len(want))
	if err != nil {
		return false
	}

	return subtle.ConstantTimeCompare(got, want) == 1
}

func randomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
