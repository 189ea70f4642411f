// Package service contains the business logic between HTTP handlers and
// repositories.
package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	apperrors "github.com/responseable/onboarding/internal/errors"
	"github.com/responseable/onboarding/internal/models"
)

// DefaultEventName is used when the inbound event name normalizes to nothing.
const DefaultEventName = "event.received"

// LegacyTypeformEventName is assigned to deliveries on the legacy
// provider-only endpoint.
const LegacyTypeformEventName = "submission.received"

var eventNameInvalidChars = regexp.MustCompile(`[^a-z0-9._-]+`)

// NormalizeEventName lowercases the name and collapses every run of
// characters outside [a-z0-9._-] into a single dash.
func NormalizeEventName(raw string) string {
	name := strings.ToLower(strings.TrimSpace(raw))
	name = eventNameInvalidChars.ReplaceAllString(name, "-")
	name = strings.Trim(name, "-")
	if name == "" {
		return DefaultEventName
	}
	return name
}

// EventEnqueuer is the store side of ingestion.
type EventEnqueuer interface {
	Enqueue(ctx context.Context, event *models.WebhookEvent) (*models.EnqueueResult, error)
	List(ctx context.Context, filters *models.ListWebhookEventsFilters) ([]models.WebhookEvent, error)
}

// DispatchTrigger starts an asynchronous drain for a provider.
type DispatchTrigger interface {
	Dispatch(ctx context.Context, provider string)
}

// IngestionService accepts inbound webhooks, persists them, and triggers
// dispatch.
type IngestionService struct {
	events     EventEnqueuer
	dispatcher DispatchTrigger
}

// NewIngestionService creates an ingestion service.
func NewIngestionService(events EventEnqueuer, dispatcher DispatchTrigger) *IngestionService {
	return &IngestionService{events: events, dispatcher: dispatcher}
}

// Ingest validates and persists one webhook delivery, triggers dispatch for
// its provider, and returns synchronously. An explicit externalEventID from
// the caller overrides every inferred dedup key; pass "" to infer. Duplicate
// deliveries are accepted and reported, never rejected.
func (s *IngestionService) Ingest(ctx context.Context, provider, eventName, externalEventID string, headers http.Header, body []byte) (*models.IngestResult, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return nil, apperrors.NewValidationError("provider", "provider is required")
	}

	payload, err := normalizePayload(body)
	if err != nil {
		return nil, err
	}

	eventType := NormalizeEventName(eventName)
	externalEventID = strings.TrimSpace(externalEventID)
	if externalEventID == "" {
		externalEventID = inferExternalEventID(provider, headers, payload)
	}

	event := &models.WebhookEvent{
		Provider:        provider,
		EventType:       eventType,
		ExternalEventID: externalEventID,
		Payload:         payload,
	}

	result, err := s.events.Enqueue(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("enqueue webhook event: %w", err)
	}

	// Fire and forget; the caller gets its response regardless of how the
	// drain goes.
	s.dispatcher.Dispatch(ctx, provider)

	return &models.IngestResult{
		Accepted:  true,
		Duplicate: result.Duplicate,
		EventID:   result.EventID,
		Provider:  provider,
		EventName: eventType,
	}, nil
}

// ListEvents returns recent events newest-first. The limit defaults to 50 and
// is capped at 200.
func (s *IngestionService) ListEvents(ctx context.Context, filters *models.ListWebhookEventsFilters) (*models.ListWebhookEventsResponse, error) {
	if filters.Limit <= 0 {
		filters.Limit = 50
	}
	if filters.Limit > 200 {
		filters.Limit = 200
	}
	filters.Provider = strings.ToLower(strings.TrimSpace(filters.Provider))

	events, err := s.events.List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("list webhook events: %w", err)
	}

	return &models.ListWebhookEventsResponse{Data: events, Limit: filters.Limit}, nil
}

// normalizePayload parses the raw body: an empty body becomes an empty JSON
// object, a non-empty body must be valid JSON.
func normalizePayload(body []byte) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return json.RawMessage(`{}`), nil
	}
	if !json.Valid([]byte(trimmed)) {
		return nil, apperrors.NewValidationError("payload", "request body is not valid JSON")
	}
	return json.RawMessage(trimmed), nil
}

// inferExternalEventID resolves the dedup key for a delivery: delivery
// headers first, then provider-specific payload fields, then a synthesized id
// that makes the delivery effectively unique.
func inferExternalEventID(provider string, headers http.Header, payload json.RawMessage) string {
	if id := strings.TrimSpace(headers.Get("X-Event-Id")); id != "" {
		return id
	}
	if id := strings.TrimSpace(headers.Get("X-Request-Id")); id != "" {
		return id
	}

	var probe struct {
		EventID      string `json:"event_id"`
		FormResponse struct {
			Token string `json:"token"`
		} `json:"form_response"`
	}
	if err := json.Unmarshal(payload, &probe); err == nil {
		if probe.EventID != "" {
			return probe.EventID
		}
		if provider == "typeform" && probe.FormResponse.Token != "" {
			return probe.FormResponse.Token
		}
	}

	return fmt.Sprintf("%s-%d-%s", provider, time.Now().UnixMilli(), randomSuffix())
}

func randomSuffix() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "00000000"
	}
	return hex.EncodeToString(buf)
}
