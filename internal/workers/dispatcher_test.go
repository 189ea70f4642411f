package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/responseable/onboarding/internal/models"
)

// fakeEventStore is an in-memory EventStore recording lifecycle transitions.
type fakeEventStore struct {
	mu        sync.Mutex
	pending   []*models.WebhookEvent
	processed []string
	failed    map[string]string
	claimErr  error
}

func newFakeEventStore(events ...*models.WebhookEvent) *fakeEventStore {
	return &fakeEventStore{pending: events, failed: map[string]string{}}
}

func (s *fakeEventStore) ClaimNext(_ context.Context, provider string, _ time.Time) (*models.WebhookEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.claimErr != nil {
		return nil, s.claimErr
	}

	for i, e := range s.pending {
		if e.Provider == provider {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			e.Attempts++
			e.Status = models.EventProcessing
			return e, nil
		}
	}
	return nil, nil
}

func (s *fakeEventStore) MarkProcessed(_ context.Context, id string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed = append(s.processed, id)
	return nil
}

func (s *fakeEventStore) MarkFailed(_ context.Context, id string, _ int, errMsg string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[id] = errMsg
	return nil
}

type funcHandler func(ctx context.Context, event *models.WebhookEvent) error

func (f funcHandler) Handle(ctx context.Context, event *models.WebhookEvent) error {
	return f(ctx, event)
}

func TestDispatcher_DrainsUntilEmpty(t *testing.T) {
	store := newFakeEventStore(
		&models.WebhookEvent{ID: "e1", Provider: "typeform"},
		&models.WebhookEvent{ID: "e2", Provider: "typeform"},
		&models.WebhookEvent{ID: "e3", Provider: "typeform"},
	)

	d := NewDispatcher(store)
	d.RegisterHandler("typeform", funcHandler(func(context.Context, *models.WebhookEvent) error {
		return nil
	}))

	d.Dispatch(context.Background(), "typeform")
	d.Wait()

	assert.Equal(t, []string{"e1", "e2", "e3"}, store.processed)
	assert.Empty(t, store.failed)
}

func TestDispatcher_HandlerErrorIsolation(t *testing.T) {
	store := newFakeEventStore(
		&models.WebhookEvent{ID: "e1", Provider: "typeform"},
		&models.WebhookEvent{ID: "e2", Provider: "typeform"},
	)

	d := NewDispatcher(store)
	d.RegisterHandler("typeform", funcHandler(func(_ context.Context, event *models.WebhookEvent) error {
		if event.ID == "e1" {
			return errors.New("driver not found")
		}
		return nil
	}))

	d.Dispatch(context.Background(), "typeform")
	d.Wait()

	// e1 failing does not stop e2 from being processed.
	assert.Equal(t, []string{"e2"}, store.processed)
	assert.Equal(t, "driver not found", store.failed["e1"])
}

func TestDispatcher_UnknownProviderFailsEvent(t *testing.T) {
	store := newFakeEventStore(&models.WebhookEvent{ID: "e1", Provider: "jotform"})

	d := NewDispatcher(store)

	d.Dispatch(context.Background(), "jotform")
	d.Wait()

	assert.Contains(t, store.failed["e1"], "no handler registered for provider jotform")
}

func TestDispatcher_PanicIsConvertedToFailure(t *testing.T) {
	store := newFakeEventStore(&models.WebhookEvent{ID: "e1", Provider: "typeform"})

	d := NewDispatcher(store)
	d.RegisterHandler("typeform", funcHandler(func(context.Context, *models.WebhookEvent) error {
		panic("boom")
	}))

	d.Dispatch(context.Background(), "typeform")
	d.Wait()

	assert.Contains(t, store.failed["e1"], "handler panicked")
}

func TestDispatcher_SingleFlightPerProvider(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})

	store := newFakeEventStore(&models.WebhookEvent{ID: "e1", Provider: "typeform"})

	d := NewDispatcher(store)
	d.RegisterHandler("typeform", funcHandler(func(context.Context, *models.WebhookEvent) error {
		close(started)
		<-release
		return nil
	}))

	d.Dispatch(context.Background(), "typeform")
	<-started

	// A second trigger while the first drain is running must not start
	// another loop; the event is already claimed, so a second loop would
	// see an empty queue anyway.
	d.Dispatch(context.Background(), "typeform")

	d.mu.Lock()
	assert.True(t, d.inFlight["typeform"])
	d.mu.Unlock()

	close(release)
	d.Wait()

	require.Len(t, store.processed, 1)
}

func TestDispatcher_StoreErrorAbortsDrain(t *testing.T) {
	store := newFakeEventStore()
	store.claimErr = errors.New("connection lost")

	d := NewDispatcher(store)
	d.Dispatch(context.Background(), "typeform")
	d.Wait()

	assert.Empty(t, store.processed)
	assert.Empty(t, store.failed)
}
