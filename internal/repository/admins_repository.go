package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	apperrors "github.com/responseable/onboarding/internal/errors"
	"github.com/responseable/onboarding/internal/models"
)

// AdminsRepository handles data access for admin accounts and their sessions.
type AdminsRepository struct {
	db DB
}

// NewAdminsRepository creates a new admins repository.
func NewAdminsRepository(db DB) *AdminsRepository {
	return &AdminsRepository{db: db}
}

const adminColumns = `id, email, name, role, permissions, password_hash, password_salt, created_at`

func scanAdmin(row pgx.Row) (*models.AdminUser, error) {
	var a models.AdminUser
	var role string
	var perms []string
	err := row.Scan(&a.ID, &a.Email, &a.Name, &role, &perms,
		&a.PasswordHash, &a.PasswordSalt, &a.CreatedAt)
	if err != nil {
		return nil, err
	}

	a.Role = models.AdminRole(role)
	a.Permissions = make([]models.AdminPermission, 0, len(perms))
	for _, p := range perms {
		a.Permissions = append(a.Permissions, models.AdminPermission(p))
	}

	return &a, nil
}

// Create inserts a new admin account.
func (r *AdminsRepository) Create(ctx context.Context, admin *models.AdminUser) (*models.AdminUser, error) {
	if admin.ID == "" {
		admin.ID = uuid.Must(uuid.NewV7()).String()
	}

	perms := make([]string, 0, len(admin.Permissions))
	for _, p := range admin.Permissions {
		perms = append(perms, string(p))
	}

	query := `
		INSERT INTO admin_users (id, email, name, role, permissions, password_hash, password_salt)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`

	err := r.db.QueryRow(ctx, query,
		admin.ID, admin.Email, admin.Name, string(admin.Role), perms,
		admin.PasswordHash, admin.PasswordSalt,
	).Scan(&admin.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return nil, apperrors.NewConflictError("admin", "an admin with this email already exists")
		}
		return nil, fmt.Errorf("failed to create admin: %w", err)
	}

	return admin, nil
}

// GetByID retrieves an admin by id.
func (r *AdminsRepository) GetByID(ctx context.Context, id string) (*models.AdminUser, error) {
	query := `SELECT ` + adminColumns + ` FROM admin_users WHERE id = $1`

	admin, err := scanAdmin(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NewNotFoundError("admin", "admin not found")
		}
		return nil, fmt.Errorf("failed to get admin: %w", err)
	}

	return admin, nil
}

// GetByEmail retrieves an admin by email, case-insensitively.
func (r *AdminsRepository) GetByEmail(ctx context.Context, email string) (*models.AdminUser, error) {
	query := `SELECT ` + adminColumns + ` FROM admin_users WHERE lower(email) = lower($1)`

	admin, err := scanAdmin(r.db.QueryRow(ctx, query, email))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NewNotFoundError("admin", "admin not found")
		}
		return nil, fmt.Errorf("failed to get admin by email: %w", err)
	}

	return admin, nil
}

// List retrieves all admins ordered by creation time.
func (r *AdminsRepository) List(ctx context.Context) ([]models.AdminUser, error) {
	query := `SELECT ` + adminColumns + ` FROM admin_users ORDER BY created_at ASC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list admins: %w", err)
	}
	defer rows.Close()

	admins := []models.AdminUser{}
	for rows.Next() {
		admin, err := scanAdmin(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan admin: %w", err)
		}
		admins = append(admins, *admin)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating admins: %w", err)
	}

	return admins, nil
}

// Count returns the number of admin accounts.
func (r *AdminsRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM admin_users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count admins: %w", err)
	}
	return count, nil
}

// UpdateAccess changes an admin's role and permission list.
func (r *AdminsRepository) UpdateAccess(ctx context.Context, id string, role models.AdminRole, permissions []models.AdminPermission) (*models.AdminUser, error) {
	perms := make([]string, 0, len(permissions))
	for _, p := range permissions {
		perms = append(perms, string(p))
	}

	query := `
		UPDATE admin_users
		SET role = $2, permissions = $3
		WHERE id = $1
		RETURNING ` + adminColumns

	admin, err := scanAdmin(r.db.QueryRow(ctx, query, id, string(role), perms))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NewNotFoundError("admin", "admin not found")
		}
		return nil, fmt.Errorf("failed to update admin access: %w", err)
	}

	return admin, nil
}

// Delete removes an admin account and, via cascade, its sessions.
func (r *AdminsRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM admin_users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete admin: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewNotFoundError("admin", "admin not found")
	}

	return nil
}

// CreateSession stores a new session token.
func (r *AdminsRepository) CreateSession(ctx context.Context, session *models.Session) error {
	query := `
		INSERT INTO sessions (token, admin_id, expires_at)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`

	err := r.db.QueryRow(ctx, query, session.Token, session.AdminID, session.ExpiresAt).Scan(&session.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

// GetSession retrieves a session by token.
func (r *AdminsRepository) GetSession(ctx context.Context, token string) (*models.Session, error) {
	query := `SELECT token, admin_id, expires_at, created_at FROM sessions WHERE token = $1`

	var s models.Session
	err := r.db.QueryRow(ctx, query, token).Scan(&s.Token, &s.AdminID, &s.ExpiresAt, &s.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NewNotFoundError("session", "session not found")
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return &s, nil
}

// DeleteSession removes a session token. Deleting an unknown token is not an
// error; logout is idempotent.
func (r *AdminsRepository) DeleteSession(ctx context.Context, token string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE token = $1`, token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes all sessions past their expiry and returns
// the number deleted.
func (r *AdminsRepository) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
