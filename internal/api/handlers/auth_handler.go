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

// AuthService defines the interface for session authentication.
type AuthService interface {
	Login(ctx context.Context, req *models.LoginRequest) (*models.LoginResponse, error)
	Logout(ctx context.Context, token string) error
}

// AuthHandler handles login, logout, and session introspection.
type AuthHandler struct {
	service AuthService
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(service AuthService) *AuthHandler {
	return &AuthHandler{service: service}
}

// Login handles POST /v1/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
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

	result, err := h.service.Login(r.Context(), &req)
	if err != nil {
		if errors.Is(err, apperrors.ErrUnauthorized) {
			response.RespondUnauthorized(w, "Invalid email or password")
			return
		}
		slog.Error("Failed to log in", "method", r.Method, "path", r.URL.Path, "error", err)
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	response.RespondJSON(w, http.StatusOK, result)
}

// Logout handles POST /v1/auth/logout. It revokes the presented session token
// and succeeds even when the token is already gone.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := middleware.BearerToken(r)
	if token == "" {
		response.RespondUnauthorized(w, "Missing or malformed Authorization header. Expected: Bearer <token>")
		return
	}

	if err := h.service.Logout(r.Context(), token); err != nil {
		slog.Error("Failed to log out", "method", r.Method, "path", r.URL.Path, "error", err)
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Session handles GET /v1/auth/session. It runs inside SessionAuth and
// returns the authenticated admin.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	admin := middleware.AdminFromContext(r.Context())
	if admin == nil {
		response.RespondUnauthorized(w, "Not authenticated")
		return
	}

	response.RespondJSON(w, http.StatusOK, admin)
}
