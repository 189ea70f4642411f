package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/responseable/onboarding/internal/models"
)

const uniqueViolationCode = "23505"

const webhookEventColumns = `id, provider, event_type, external_event_id, payload_json,
		status, attempts, available_at, created_at, processed_at, error_message`

// WebhookEventsRepository is the durable event store behind webhook ingestion.
type WebhookEventsRepository struct {
	db DB
}

// NewWebhookEventsRepository creates a new webhook events repository.
func NewWebhookEventsRepository(db DB) *WebhookEventsRepository {
	return &WebhookEventsRepository{db: db}
}

func scanWebhookEvent(row pgx.Row) (*models.WebhookEvent, error) {
	var e models.WebhookEvent
	var processedAt *time.Time
	err := row.Scan(
		&e.ID, &e.Provider, &e.EventType, &e.ExternalEventID, &e.Payload,
		&e.Status, &e.Attempts, &e.AvailableAt, &e.CreatedAt, &processedAt, &e.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}
	e.ProcessedAt = processedAt
	return &e, nil
}

// Enqueue inserts a PENDING event. When an event with the same
// (provider, external_event_id) already exists, the existing event id is
// returned with Duplicate set; the payload of the original delivery wins.
func (r *WebhookEventsRepository) Enqueue(ctx context.Context, event *models.WebhookEvent) (*models.EnqueueResult, error) {
	if event.ID == "" {
		event.ID = uuid.Must(uuid.NewV7()).String()
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO webhook_events (id, provider, event_type, external_event_id, payload_json,
			status, attempts, available_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.Exec(ctx, query,
		event.ID, event.Provider, event.EventType, event.ExternalEventID, event.Payload,
		string(models.EventPending), 0, now, now,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			var existingID string
			selErr := r.db.QueryRow(ctx,
				`SELECT id FROM webhook_events WHERE provider = $1 AND external_event_id = $2`,
				event.Provider, event.ExternalEventID,
			).Scan(&existingID)
			if selErr != nil {
				return nil, fmt.Errorf("failed to resolve duplicate event: %w", selErr)
			}
			return &models.EnqueueResult{EventID: existingID, Duplicate: true}, nil
		}
		return nil, fmt.Errorf("failed to enqueue webhook event: %w", err)
	}

	return &models.EnqueueResult{EventID: event.ID}, nil
}

// ClaimNext atomically claims the oldest eligible PENDING event for the
// provider: the row is locked with FOR UPDATE SKIP LOCKED, flipped to
// PROCESSING and its attempt counter incremented, all in one transaction.
// Returns nil when no event is eligible.
func (r *WebhookEventsRepository) ClaimNext(ctx context.Context, provider string, now time.Time) (*models.WebhookEvent, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	selectQuery := `
		SELECT ` + webhookEventColumns + `
		FROM webhook_events
		WHERE provider = $1 AND status = $2 AND available_at <= $3
		ORDER BY created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`

	event, err := scanWebhookEvent(tx.QueryRow(ctx, selectQuery, provider, string(models.EventPending), now))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to select claimable event: %w", err)
	}

	updateQuery := `
		UPDATE webhook_events
		SET status = $2, attempts = attempts + 1
		WHERE id = $1
		RETURNING attempts
	`

	if err := tx.QueryRow(ctx, updateQuery, event.ID, string(models.EventProcessing)).Scan(&event.Attempts); err != nil {
		return nil, fmt.Errorf("failed to claim event: %w", err)
	}
	event.Status = models.EventProcessing

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}

	return event, nil
}

// MarkProcessed transitions a claimed event to PROCESSED.
func (r *WebhookEventsRepository) MarkProcessed(ctx context.Context, id string, now time.Time) error {
	query := `
		UPDATE webhook_events
		SET status = $2, processed_at = $3, error_message = ''
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query, id, string(models.EventProcessed), now)
	if err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("webhook event %s not found", id)
	}

	return nil
}

// MarkFailed records a handler failure. At MaxEventAttempts the event becomes
// terminally FAILED; otherwise it returns to PENDING with a linear backoff of
// attempts*5 seconds, clamped to [5s, 60s].
func (r *WebhookEventsRepository) MarkFailed(ctx context.Context, id string, attempts int, errMsg string, now time.Time) error {
	if attempts >= models.MaxEventAttempts {
		query := `
			UPDATE webhook_events
			SET status = $2, processed_at = $3, error_message = $4
			WHERE id = $1
		`
		tag, err := r.db.Exec(ctx, query, id, string(models.EventFailed), now, errMsg)
		if err != nil {
			return fmt.Errorf("failed to mark event failed: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("webhook event %s not found", id)
		}
		return nil
	}

	query := `
		UPDATE webhook_events
		SET status = $2, available_at = $3, error_message = $4
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, id, string(models.EventPending), now.Add(RetryBackoff(attempts)), errMsg)
	if err != nil {
		return fmt.Errorf("failed to reschedule event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("webhook event %s not found", id)
	}

	return nil
}

// RetryBackoff returns the delay before a failed event becomes eligible
// again: attempts*5 seconds, clamped to [5s, 60s].
func RetryBackoff(attempts int) time.Duration {
	seconds := attempts * 5
	if seconds < 5 {
		seconds = 5
	}
	if seconds > 60 {
		seconds = 60
	}
	return time.Duration(seconds) * time.Second
}

// List retrieves events newest-first, optionally filtered by provider.
func (r *WebhookEventsRepository) List(ctx context.Context, filters *models.ListWebhookEventsFilters) ([]models.WebhookEvent, error) {
	query := `SELECT ` + webhookEventColumns + ` FROM webhook_events`

	var conditions []string
	var args []any

	if filters.Provider != "" {
		conditions = append(conditions, fmt.Sprintf("provider = $%d", len(args)+1))
		args = append(args, filters.Provider)
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args)+1)
	args = append(args, filters.Limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhook events: %w", err)
	}
	defer rows.Close()

	events := []models.WebhookEvent{}
	for rows.Next() {
		event, err := scanWebhookEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan webhook event: %w", err)
		}
		events = append(events, *event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating webhook events: %w", err)
	}

	return events, nil
}
