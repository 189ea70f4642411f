package models

import "time"

// AdminRole is the coarse access tier of a back-office user.
type AdminRole string

const (
	RoleSuperAdmin AdminRole = "SUPER_ADMIN"
	RoleOperations AdminRole = "OPERATIONS"
	RoleRecruiter  AdminRole = "RECRUITER"
	RoleViewer     AdminRole = "VIEWER"
)

// IsValidAdminRole reports whether s is a known role.
func IsValidAdminRole(s string) bool {
	switch AdminRole(s) {
	case RoleSuperAdmin, RoleOperations, RoleRecruiter, RoleViewer:
		return true
	}
	return false
}

// AdminPermission is a single grantable capability.
type AdminPermission string

const (
	PermManageAdmins AdminPermission = "MANAGE_ADMINS"
	PermViewDrivers  AdminPermission = "VIEW_DRIVERS"
	PermEditDrivers  AdminPermission = "EDIT_DRIVERS"
	PermViewStats    AdminPermission = "VIEW_STATS"
	PermSendForms    AdminPermission = "SEND_FORMS"
)

// DefaultPermissionsForRole returns the permission set granted to a role when
// no explicit permissions are stored.
func DefaultPermissionsForRole(role AdminRole) []AdminPermission {
	switch role {
	case RoleSuperAdmin:
		return []AdminPermission{PermManageAdmins, PermViewDrivers, PermEditDrivers, PermViewStats, PermSendForms}
	case RoleOperations:
		return []AdminPermission{PermViewDrivers, PermEditDrivers, PermViewStats, PermSendForms}
	case RoleRecruiter:
		return []AdminPermission{PermViewDrivers, PermEditDrivers, PermSendForms}
	case RoleViewer:
		return []AdminPermission{PermViewDrivers, PermViewStats}
	default:
		return nil
	}
}

// AdminUser is a back-office account. PasswordHash and PasswordSalt never
// leave the repository layer.
type AdminUser struct {
	ID          string            `json:"id"`
	Email       string            `json:"email"`
	Name        string            `json:"name"`
	Role        AdminRole         `json:"role"`
	Permissions []AdminPermission `json:"permissions"`
	CreatedAt   time.Time         `json:"created_at"`

	PasswordHash string `json:"-"`
	PasswordSalt string `json:"-"`
}

// HasPermission checks the explicit permission list, falling back to the
// role defaults when the list is empty.
func (a *AdminUser) HasPermission(p AdminPermission) bool {
	perms := a.Permissions
	if len(perms) == 0 {
		perms = DefaultPermissionsForRole(a.Role)
	}
	for _, have := range perms {
		if have == p {
			return true
		}
	}
	return false
}

// Session is an authenticated admin session.
type Session struct {
	Token     string    `json:"token"`
	AdminID   string    `json:"admin_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Expired reports whether the session is past its expiry.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// LoginRequest is the credentials payload for POST /v1/auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=1,max=255"`
}

// LoginResponse carries the session token and the authenticated admin.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Admin     AdminUser `json:"admin"`
}

// CreateAdminRequest represents the request to create an admin account.
type CreateAdminRequest struct {
	Email    string   `json:"email" validate:"required,email,max=255"`
	Name     string   `json:"name" validate:"required,max=255"`
	Role     string   `json:"role" validate:"required,admin_role"`
	Password string   `json:"password" validate:"required,min=8,max=255"`
	Perms    []string `json:"permissions,omitempty"`
}

// UpdateAdminAccessRequest changes an admin's role and/or permission list.
type UpdateAdminAccessRequest struct {
	Role  *string   `json:"role,omitempty" validate:"omitempty,admin_role"`
	Perms *[]string `json:"permissions,omitempty"`
}
