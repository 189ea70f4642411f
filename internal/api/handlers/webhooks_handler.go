package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/responseable/onboarding/internal/api/response"
	"github.com/responseable/onboarding/internal/api/validation"
	apperrors "github.com/responseable/onboarding/internal/errors"
	"github.com/responseable/onboarding/internal/models"
	"github.com/responseable/onboarding/internal/service"
)

// IngestionService defines the interface for webhook ingestion business logic.
type IngestionService interface {
	Ingest(ctx context.Context, provider, eventName, externalEventID string, headers http.Header, body []byte) (*models.IngestResult, error)
	ListEvents(ctx context.Context, filters *models.ListWebhookEventsFilters) (*models.ListWebhookEventsResponse, error)
}

// WebhooksHandler handles inbound webhook deliveries and the operator read API.
type WebhooksHandler struct {
	service IngestionService
}

// NewWebhooksHandler creates a new webhooks handler.
func NewWebhooksHandler(service IngestionService) *WebhooksHandler {
	return &WebhooksHandler{service: service}
}

// webhookError is the error envelope returned to webhook senders. Providers
// retry on it, so the shape stays stable.
type webhookError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func respondWebhookError(w http.ResponseWriter, status int, code, message string) {
	var body webhookError
	body.Error.Code = code
	body.Error.Message = message
	response.RespondJSON(w, status, body)
}

// Ingest handles POST /webhooks/{provider}/{eventName}.
func (h *WebhooksHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	h.ingest(w, r, r.PathValue("provider"), r.PathValue("eventName"))
}

// IngestLegacyTypeform handles POST /webhooks/typeform, the path Typeform was
// originally pointed at. Deliveries are recorded as submission.received.
func (h *WebhooksHandler) IngestLegacyTypeform(w http.ResponseWriter, r *http.Request) {
	h.ingest(w, r, "typeform", service.LegacyTypeformEventName)
}

func (h *WebhooksHandler) ingest(w http.ResponseWriter, r *http.Request, provider, eventName string) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			respondWebhookError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request body exceeds maximum allowed size")
			return
		}
		slog.Warn("Failed to read webhook body", "provider", provider, "error", err)
		respondWebhookError(w, http.StatusBadRequest, "INVALID_WEBHOOK", "could not read request body")
		return
	}

	// HTTP deliveries carry no explicit event id; the service infers one.
	result, err := h.service.Ingest(r.Context(), provider, eventName, "", r.Header, body)
	if err != nil {
		if errors.Is(err, apperrors.ErrValidation) {
			respondWebhookError(w, http.StatusBadRequest, "INVALID_WEBHOOK", err.Error())
			return
		}
		slog.Error("Failed to ingest webhook", "provider", provider, "error", err)
		respondWebhookError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred")
		return
	}

	response.RespondJSON(w, http.StatusAccepted, result)
}

// ListEvents handles GET /v1/webhook-events.
func (h *WebhooksHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	filters := &models.ListWebhookEventsFilters{}

	if err := validation.ValidateAndDecodeQueryParams(r, filters); err != nil {
		validation.RespondValidationError(w, err)
		return
	}

	result, err := h.service.ListEvents(r.Context(), filters)
	if err != nil {
		slog.Error("Failed to list webhook events", "method", r.Method, "path", r.URL.Path, "error", err)
		response.RespondInternalServerError(w, "An unexpected error occurred")
		return
	}

	response.RespondJSON(w, http.StatusOK, result)
}
