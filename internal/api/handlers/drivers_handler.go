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

// DriversService defines the interface for driver business logic.
type DriversService interface {
	GetDriver(ctx context.Context, id string) (*models.Driver, error)
	ListDrivers(ctx context.Context, filters *models.ListDriversFilters) (*models.ListDriversResponse, error)
	CreateDriver(ctx context.Context, req *models.CreateDriverRequest, actor string) (*models.Driver, error)
	UpdateDriver(ctx context.Context, id string, req *models.UpdateDriverRequest, actor string) (*models.Driver, error)
	GetStats(ctx context.Context) (*models.DriverStats, error)
	SendAdditionalDetailsForm(ctx context.Context, id string) error
}

// DriversHandler handles HTTP requests for driver records.
type DriversHandler struct {
	service DriversService
}

// NewDriversHandler creates a new drivers handler.
func NewDriversHandler(service DriversService) *DriversHandler {
	return &DriversHandler{service: service}
}

// actorFromContext identifies the admin performing a change for the audit
// trail.
func actorFromContext(ctx context.Context) string {
	if admin := middleware.AdminFromContext(ctx); admin != nil {
		return admin.Email
	}
	return "system"
}

// List handles GET /v1/drivers.
func (h *DriversHandler) List(w http.ResponseWriter, r *http.Request) {
	filters := &models.ListDriversFilters{}

	if err := validation.ValidateAndDecodeQueryParams(r, filters); err != nil {
		validation.RespondValidationError(w, err)
		return
	}

	result, err := h.service.ListDrivers(r.Context(), filters)
	if err != nil {
		slog.Error("Failed to list drivers", "method", r.Method, "path", r.URL.Path, "error", err)
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	response.RespondJSON(w, http.StatusOK, result)
}

// Get handles GET /v1/drivers/{id}.
func (h *DriversHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		response.RespondBadRequest(w, "Driver ID is required")
		return
	}

	driver, err := h.service.GetDriver(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			response.RespondNotFound(w, "Driver not found")
			return
		}
		slog.Error("Failed to get driver", "method", r.Method, "path", r.URL.Path, "id", id, "error", err)
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	response.RespondJSON(w, http.StatusOK, driver)
}

// Create handles POST /v1/drivers.
func (h *DriversHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateDriverRequest
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

	driver, err := h.service.CreateDriver(r.Context(), &req, actorFromContext(r.Context()))
	if err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			response.RespondConflict(w, err.Error())
			return
		}
		slog.Error("Failed to create driver", "method", r.Method, "path", r.URL.Path, "error", err)
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	response.RespondJSON(w, http.StatusCreated, driver)
}

// Update handles PATCH /v1/drivers/{id}.
func (h *DriversHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		response.RespondBadRequest(w, "Driver ID is required")
		return
	}

	var req models.UpdateDriverRequest
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

	driver, err := h.service.UpdateDriver(r.Context(), id, &req, actorFromContext(r.Context()))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			response.RespondNotFound(w, "Driver not found")
			return
		}
		slog.Error("Failed to update driver", "method", r.Method, "path", r.URL.Path, "id", id, "error", err)
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	response.RespondJSON(w, http.StatusOK, driver)
}

// Stats handles GET /v1/drivers/stats.
func (h *DriversHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetStats(r.Context())
	if err != nil {
		slog.Error("Failed to get driver stats", "method", r.Method, "path", r.URL.Path, "error", err)
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	response.RespondJSON(w, http.StatusOK, stats)
}

// SendAdditionalDetailsForm handles POST /v1/drivers/{id}/send-additional-details-form.
func (h *DriversHandler) SendAdditionalDetailsForm(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		response.RespondBadRequest(w, "Driver ID is required")
		return
	}

	if err := h.service.SendAdditionalDetailsForm(r.Context(), id); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			response.RespondNotFound(w, "Driver not found")
			return
		}
		if errors.Is(err, apperrors.ErrValidation) {
			response.RespondBadRequest(w, err.Error())
			return
		}
		slog.Error("Failed to send additional details form", "method", r.Method, "path", r.URL.Path, "id", id, "error", err)
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	response.RespondJSON(w, http.StatusOK, map[string]bool{"sent": true})
}
