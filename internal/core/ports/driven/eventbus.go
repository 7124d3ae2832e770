package driven

import (
	"context"

	"github.com/custodia-labs/caseflow/internal/core/domain"
)

// EventHandler consumes one delivered pack. The pack is the subscriber's own
// copy. A returned error (or panic) is recorded as a delivery failure and
// never retried by the bus.
type EventHandler func(ctx context.Context, pack domain.InfoPack) error

// EventBus is the publish/subscribe fabric connecting modules.
// It is constructed once per process and injected where needed.
type EventBus interface {
	// Publish enqueues pack for every subscriber of eventType and returns
	// without waiting for delivery.
	Publish(ctx context.Context, eventType domain.EventType, pack domain.InfoPack) error

	// Subscribe registers handler under a subscriber name. Each subscriber
	// receives events of one type in publish order. The returned cancel
	// function detaches the subscription.
	Subscribe(eventType domain.EventType, subscriber string, handler EventHandler) (cancel func(), err error)

	// Replay re-delivers a recorded delivery failure to its subscriber.
	Replay(ctx context.Context, failureID string) error

	// Close stops accepting publishes and drains queued deliveries until ctx
	// is done.
	Close(ctx context.Context) error
}

// DeliveryFailureStore keeps failed deliveries for manual replay.
type DeliveryFailureStore interface {
	// Record stores a failure.
	Record(ctx context.Context, failure *domain.DeliveryFailure) error

	// Get retrieves a failure by ID.
	Get(ctx context.Context, id string) (*domain.DeliveryFailure, error)

	// List returns the most recent failures, newest first.
	List(ctx context.Context, limit int) ([]domain.DeliveryFailure, error)

	// Delete removes a failure, typically after a successful replay.
	Delete(ctx context.Context, id string) error
}
