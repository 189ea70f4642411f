package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/responseable/onboarding/internal/models"
)

func TestWebhookEventsRepository_Enqueue(t *testing.T) {
	payload := json.RawMessage(`{"event_id":"evt-1"}`)

	tests := []struct {
		name          string
		event         *models.WebhookEvent
		mockSetup     func(mock pgxmock.PgxPoolIface)
		wantDuplicate bool
		wantEventID   string
		wantErr       string
	}{
		{
			name: "first delivery is inserted",
			event: &models.WebhookEvent{
				ID:              "evt-row-1",
				Provider:        "typeform",
				EventType:       "submission.received",
				ExternalEventID: "evt-1",
				Payload:         payload,
			},
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO webhook_events`).
					WithArgs("evt-row-1", "typeform", "submission.received", "evt-1", payload,
						"PENDING", 0, pgxmock.AnyArg(), pgxmock.AnyArg()).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
			},
			wantEventID: "evt-row-1",
		},
		{
			name: "duplicate delivery returns the winning row id",
			event: &models.WebhookEvent{
				ID:              "evt-row-2",
				Provider:        "typeform",
				EventType:       "submission.received",
				ExternalEventID: "evt-1",
				Payload:         payload,
			},
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO webhook_events`).
					WithArgs("evt-row-2", "typeform", "submission.received", "evt-1", payload,
						"PENDING", 0, pgxmock.AnyArg(), pgxmock.AnyArg()).
					WillReturnError(&pgconn.PgError{Code: "23505"})
				mock.ExpectQuery(`SELECT id FROM webhook_events WHERE provider = \$1 AND external_event_id = \$2`).
					WithArgs("typeform", "evt-1").
					WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("evt-row-1"))
			},
			wantDuplicate: true,
			wantEventID:   "evt-row-1",
		},
		{
			name: "database error",
			event: &models.WebhookEvent{
				ID:              "evt-row-3",
				Provider:        "typeform",
				EventType:       "submission.received",
				ExternalEventID: "evt-3",
				Payload:         payload,
			},
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO webhook_events`).
					WithArgs("evt-row-3", "typeform", "submission.received", "evt-3", payload,
						"PENDING", 0, pgxmock.AnyArg(), pgxmock.AnyArg()).
					WillReturnError(errors.New("connection lost"))
			},
			wantErr: "failed to enqueue webhook event",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			tt.mockSetup(mock)

			repo := NewWebhookEventsRepository(mock)
			got, err := repo.Enqueue(context.Background(), tt.event)

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantDuplicate, got.Duplicate)
				assert.Equal(t, tt.wantEventID, got.EventID)
			}

			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestWebhookEventsRepository_ClaimNext(t *testing.T) {
	now := time.Now().UTC()
	payload := json.RawMessage(`{}`)

	t.Run("claims the oldest eligible event", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		rows := pgxmock.NewRows([]string{
			"id", "provider", "event_type", "external_event_id", "payload_json",
			"status", "attempts", "available_at", "created_at", "processed_at", "error_message",
		}).AddRow("evt-row-1", "typeform", "submission.received", "evt-1", payload,
			"PENDING", 1, now, now, nil, "previous failure")

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT (.+) FROM webhook_events WHERE provider = \$1 AND status = \$2 AND available_at <= \$3 ORDER BY created_at ASC LIMIT 1 FOR UPDATE SKIP LOCKED`).
			WithArgs("typeform", "PENDING", now).
			WillReturnRows(rows)
		mock.ExpectQuery(`UPDATE webhook_events SET status = \$2, attempts = attempts \+ 1 WHERE id = \$1 RETURNING attempts`).
			WithArgs("evt-row-1", "PROCESSING").
			WillReturnRows(pgxmock.NewRows([]string{"attempts"}).AddRow(2))
		mock.ExpectCommit()

		repo := NewWebhookEventsRepository(mock)
		event, err := repo.ClaimNext(context.Background(), "typeform", now)

		require.NoError(t, err)
		require.NotNil(t, event)
		assert.Equal(t, "evt-row-1", event.ID)
		assert.Equal(t, models.EventProcessing, event.Status)
		assert.Equal(t, 2, event.Attempts)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns nil when no event is eligible", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT (.+) FROM webhook_events`).
			WithArgs("typeform", "PENDING", now).
			WillReturnError(pgx.ErrNoRows)
		mock.ExpectRollback()

		repo := NewWebhookEventsRepository(mock)
		event, err := repo.ClaimNext(context.Background(), "typeform", now)

		require.NoError(t, err)
		assert.Nil(t, event)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("propagates database errors", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT (.+) FROM webhook_events`).
			WithArgs("typeform", "PENDING", now).
			WillReturnError(errors.New("connection lost"))
		mock.ExpectRollback()

		repo := NewWebhookEventsRepository(mock)
		event, err := repo.ClaimNext(context.Background(), "typeform", now)

		require.Error(t, err)
		assert.Nil(t, event)
		assert.Contains(t, err.Error(), "failed to select claimable event")

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestWebhookEventsRepository_MarkFailed(t *testing.T) {
	now := time.Now().UTC()

	t.Run("reschedules with linear backoff below the attempt cap", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectExec(`UPDATE webhook_events SET status = \$2, available_at = \$3, error_message = \$4 WHERE id = \$1`).
			WithArgs("evt-row-1", "PENDING", now.Add(10*time.Second), "driver not found").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		repo := NewWebhookEventsRepository(mock)
		err = repo.MarkFailed(context.Background(), "evt-row-1", 2, "driver not found", now)

		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("becomes terminally FAILED at the attempt cap", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectExec(`UPDATE webhook_events SET status = \$2, processed_at = \$3, error_message = \$4 WHERE id = \$1`).
			WithArgs("evt-row-1", "FAILED", now, "driver not found").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		repo := NewWebhookEventsRepository(mock)
		err = repo.MarkFailed(context.Background(), "evt-row-1", models.MaxEventAttempts, "driver not found", now)

		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRetryBackoff(t *testing.T) {
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, 5 * time.Second},
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{3, 15 * time.Second},
		{4, 20 * time.Second},
		{12, 60 * time.Second},
		{100, 60 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, RetryBackoff(tt.attempts), "attempts=%d", tt.attempts)
	}
}

func TestWebhookEventsRepository_List(t *testing.T) {
	now := time.Now().UTC()
	payload := json.RawMessage(`{}`)

	t.Run("filters by provider newest first", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		rows := pgxmock.NewRows([]string{
			"id", "provider", "event_type", "external_event_id", "payload_json",
			"status", "attempts", "available_at", "created_at", "processed_at", "error_message",
		}).
			AddRow("evt-row-2", "typeform", "submission.received", "evt-2", payload,
				"PENDING", 0, now, now, nil, "").
			AddRow("evt-row-1", "typeform", "submission.received", "evt-1", payload,
				"PROCESSED", 1, now, now.Add(-time.Minute), &now, "")

		mock.ExpectQuery(`SELECT (.+) FROM webhook_events WHERE provider = \$1 ORDER BY created_at DESC LIMIT \$2`).
			WithArgs("typeform", 50).
			WillReturnRows(rows)

		repo := NewWebhookEventsRepository(mock)
		events, err := repo.List(context.Background(), &models.ListWebhookEventsFilters{Provider: "typeform", Limit: 50})

		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "evt-row-2", events[0].ID)
		assert.Equal(t, models.EventProcessed, events[1].Status)

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
