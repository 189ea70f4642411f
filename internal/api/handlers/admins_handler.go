package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/responseable/onboarding/internal/api/middleware"
	"github.com/responseable/onboarding/internal/api/response"
	"github.com/responseable/onboarding/internal/api/validation"
	apperrors "github.com/responseable/onboarding/internal/errors"
	"github.com/responseable/onboarding/internal/models"
)

// AdminsService defines the interface for admin account management.
type AdminsService interface {
	CreateAdmin(ctx context.Context, req *models.CreateAdminRequest) (*models.AdminUser, error)
	GetAdmin(ctx context.Context, id string) (*models.AdminUser, error)
	ListAdmins(ctx context.Context) ([]models.AdminUser, error)
	UpdateAdminAccess(ctx context.Context, id string, req *models.UpdateAdminAccessRequest) (*models.AdminUser, error)
	DeleteAdmin(ctx context.Context, id string) error
}

// AdminsHandler handles HTTP requests for admin accounts.
type AdminsHandler struct {
	service AdminsService
}

// NewAdminsHandler creates a new admins handler.
func NewAdminsHandler(service AdminsService) *AdminsHandler {
	return &AdminsHandler{service: service}
}

// List handles GET /v1/admins.
func (h *AdminsHandler) List(w http.ResponseWriter, r *http.Request) {
	admins, err := h.service.ListAdmins(r.Context())
	if err != nil {
		slog.Error("Failed to list admins", "method", r.Method, "path", r.URL.Path, "error", err)
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	response.RespondJSON(w, http.StatusOK, map[string]any{"data": admins})
}

// Get handles GET /v1/admins/{id}.
func (h *AdminsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		response.RespondBadRequest(w, "Admin ID is required")
		return
	}

	admin, err := h.service.GetAdmin(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			response.RespondNotFound(w, "Admin not found")
			return
		}
		slog.Error("Failed to get admin", "method", r.Method, "path", r.URL.Path, "id", id, "error", err)
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	response.RespondJSON(w, http.StatusOK, admin)
}

// Create handles POST /v1/admins.
func (h *AdminsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateAdminRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		slog.Warn("Invalid request body", "method", r.Method, "path", r.URL.Path, "error", err)
		response.RespondBadRequest(w, "Invalid request body")
		return
	}

	if err := validation.ValidateStruct(&req); err != nil {
		validation.RespondValidationError(w, err)
		return
	}

	admin, err := h.service.CreateAdmin(r.Context(), &req)
	if err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			response.RespondConflict(w, err.Error())
			return
		}
		if errors.Is(err, apperrors.ErrValidation) {
			response.RespondBadRequest(w, err.Error())
			return
		}
		slog.Error("Failed to create admin", "method", r.Method, "path", r.URL.Path, "error", err)
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	response.RespondJSON(w, http.StatusCreated, admin)
}

// UpdateAccess handles PATCH /v1/admins/{id}.
func (h *AdminsHandler) UpdateAccess(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		response.RespondBadRequest(w, "Admin ID is required")
		return
	}

	var req models.UpdateAdminAccessRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		slog.Warn("Invalid request body", "method", r.Method, "path", r.URL.Path, "error", err)
		response.RespondBadRequest(w, "Invalid request body")
		return
	}

	if err := validation.ValidateStruct(&req); err != nil {
		validation.RespondValidationError(w, err)
		return
	}

	admin, err := h.service.UpdateAdminAccess(r.Context(), id, &req)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			response.RespondNotFound(w, "Admin not found")
			return
		}
		if errors.Is(err, apperrors.ErrValidation) {
			response.RespondBadRequest(w, err.Error())
			return
		}
		slog.Error("Failed to update admin access", "method", r.Method, "path", r.URL.Path, "id", id, "error", err)
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	response.RespondJSON(w, http.StatusOK, admin)
}

// Delete handles DELETE /v1/admins/{id}.
func (h *AdminsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		response.RespondBadRequest(w, "Admin ID is required")
		return
	}

	// Admins cannot delete their own account; that would strand the session.
	if admin := middleware.AdminFromContext(r.Context()); admin != nil && admin.ID == id {
		response.RespondBadRequest(w, "Cannot delete your own account")
		return
	}

	if err := h.service.DeleteAdmin(r.Context(), id); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			response.RespondNotFound(w, "Admin not found")
			return
		}
		slog.Error("Failed to delete admin", "method", r.Method, "path", r.URL.Path, "id", id, "error", err)
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
