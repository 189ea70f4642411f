package models

import (
	"encoding/json"
	"time"
)

// WebhookEventStatus is the delivery-queue state of an ingested event.
type WebhookEventStatus string

const (
	EventPending    WebhookEventStatus = "PENDING"
	EventProcessing WebhookEventStatus = "PROCESSING"
	EventProcessed  WebhookEventStatus = "PROCESSED"
	EventFailed     WebhookEventStatus = "FAILED"
)

// MaxEventAttempts is the attempt count at which a failing event becomes
// terminally FAILED instead of being rescheduled.
const MaxEventAttempts = 5

// WebhookEvent is a durably queued inbound webhook delivery.
type WebhookEvent struct {
	ID              string             `json:"id"`
	Provider        string             `json:"provider"`
	EventType       string             `json:"event_type"`
	ExternalEventID string             `json:"external_event_id"`
	Payload         json.RawMessage    `json:"payload"`
	Status          WebhookEventStatus `json:"status"`
	Attempts        int                `json:"attempts"`
	AvailableAt     time.Time          `json:"available_at"`
	CreatedAt       time.Time          `json:"created_at"`
	ProcessedAt     *time.Time         `json:"processed_at,omitempty"`
	ErrorMessage    string             `json:"error_message,omitempty"`
}

// EnqueueResult reports the outcome of enqueueing an event. When the
// (provider, external_event_id) pair already exists, EventID is the existing
// row's id and Duplicate is true.
type EnqueueResult struct {
	EventID   string
	Duplicate bool
}

// IngestResult is returned synchronously from webhook ingestion.
type IngestResult struct {
	Accepted  bool   `json:"accepted"`
	Duplicate bool   `json:"duplicate"`
	EventID   string `json:"eventId"`
	Provider  string `json:"provider"`
	EventName string `json:"eventName"`
}

// ListWebhookEventsFilters represents filters for the event list endpoint.
type ListWebhookEventsFilters struct {
	Provider string `form:"provider" validate:"omitempty,max=255"`
	Limit    int    `form:"limit" validate:"omitempty,min=1,max=200"`
}

// ListWebhookEventsResponse is the newest-first event page.
type ListWebhookEventsResponse struct {
	Data  []WebhookEvent `json:"data"`
	Limit int            `json:"limit"`
}
