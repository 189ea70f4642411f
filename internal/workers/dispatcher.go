// Package workers provides the webhook event dispatch loop.
package workers

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/responseable/onboarding/internal/models"
)

// EventHandleTimeout limits how long a single event handler can run.
const EventHandleTimeout = 30 * time.Second

// EventStore is the durable queue the dispatcher drains.
type EventStore interface {
	ClaimNext(ctx context.Context, provider string, now time.Time) (*models.WebhookEvent, error)
	MarkProcessed(ctx context.Context, id string, now time.Time) error
	MarkFailed(ctx context.Context, id string, attempts int, errMsg string, now time.Time) error
}

// EventHandler processes one claimed event. A returned error reschedules the
// event (or fails it terminally at the attempt cap).
type EventHandler interface {
	Handle(ctx context.Context, event *models.WebhookEvent) error
}

// Dispatcher drains pending webhook events per provider. At most one drain
// loop runs per provider per process; concurrent triggers for a busy provider
// are dropped, since the running loop will pick up any newly enqueued events.
// Cross-instance exclusivity comes from the store's claim semantics, not from
// this guard.
type Dispatcher struct {
	store    EventStore
	handlers map[string]EventHandler

	mu       sync.Mutex
	inFlight map[string]bool
	wg       sync.WaitGroup
}

// NewDispatcher creates a dispatcher over the given event store.
func NewDispatcher(store EventStore) *Dispatcher {
	return &Dispatcher{
		store:    store,
		handlers: map[string]EventHandler{},
		inFlight: map[string]bool{},
	}
}

// RegisterHandler binds a provider to its handler. Must be called before the
// first Dispatch; registration is not synchronized.
func (d *Dispatcher) RegisterHandler(provider string, handler EventHandler) {
	d.handlers[provider] = handler
}

// Dispatch triggers an asynchronous drain of the provider's queue and returns
// immediately. The drain detaches from the caller's cancellation so an HTTP
// response does not abort in-flight processing.
func (d *Dispatcher) Dispatch(ctx context.Context, provider string) {
	d.mu.Lock()
	if d.inFlight[provider] {
		d.mu.Unlock()
		return
	}
	d.inFlight[provider] = true
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			d.mu.Lock()
			d.inFlight[provider] = false
			d.mu.Unlock()
		}()

		d.drain(context.WithoutCancel(ctx), provider)
	}()
}

// Wait blocks until all in-flight drains finish. Used during shutdown.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// drain claims and processes events until the queue is empty. Handler errors
// mark the event failed and continue with the next one; store errors abort
// the drain and leave the current event to be re-claimed later.
func (d *Dispatcher) drain(ctx context.Context, provider string) {
	for {
		event, err := d.store.ClaimNext(ctx, provider, time.Now().UTC())
		if err != nil {
			slog.Error("Failed to claim webhook event", "provider", provider, "error", err)
			return
		}
		if event == nil {
			return
		}

		handleErr := d.handle(ctx, event)
		if handleErr == nil {
			if err := d.store.MarkProcessed(ctx, event.ID, time.Now().UTC()); err != nil {
				slog.Error("Failed to mark event processed", "event_id", event.ID, "error", err)
				return
			}
			slog.Info("Webhook event processed",
				"provider", provider, "event_id", event.ID, "event_type", event.EventType)
			continue
		}

		slog.Warn("Webhook event handler failed",
			"provider", provider, "event_id", event.ID, "attempts", event.Attempts, "error", handleErr)

		if err := d.store.MarkFailed(ctx, event.ID, event.Attempts, handleErr.Error(), time.Now().UTC()); err != nil {
			slog.Error("Failed to mark event failed", "event_id", event.ID, "error", err)
			return
		}
	}
}

// handle runs the provider handler with a timeout and panic isolation.
func (d *Dispatcher) handle(ctx context.Context, event *models.WebhookEvent) (err error) {
	handler, ok := d.handlers[event.Provider]
	if !ok {
		return fmt.Errorf("no handler registered for provider %s", event.Provider)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()

	handleCtx, cancel := context.WithTimeout(ctx, EventHandleTimeout)
	defer cancel()

	return handler.Handle(handleCtx, event)
}
