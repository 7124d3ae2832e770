// Package modulestest provides an in-memory event bus for module tests.
// Deliveries are synchronous and go through the same JSON round trip as the
// real bus, so handlers see transport-shaped fields.
package modulestest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/custodia-labs/caseflow/internal/core/domain"
	"github.com/custodia-labs/caseflow/internal/core/ports/driven"
)

// Ensure Bus implements the interface.
var _ driven.EventBus = (*Bus)(nil)

// Event is a published event.
type Event struct {
	Type domain.EventType
	Pack domain.InfoPack
}

type subscription struct {
	id      int
	name    string
	handler driven.EventHandler
}

// Bus records publishes and delivers on demand.
type Bus struct {
	mu        sync.Mutex
	nextID    int
	subs      map[domain.EventType][]subscription
	published []Event
	replayed  []string

	// ReplayErr is returned by Replay when set.
	ReplayErr error
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[domain.EventType][]subscription)}
}

// Publish records the event.
func (b *Bus) Publish(_ context.Context, t domain.EventType, pack domain.InfoPack) error {
	if !t.Valid() {
		return domain.NewError(domain.KindValidation, "unknown event type %q", t)
	}
	if err := pack.Validate(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, Event{Type: t, Pack: pack.Clone()})
	return nil
}

// Subscribe registers handler.
func (b *Bus) Subscribe(t domain.EventType, name string, handler driven.EventHandler) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs[t] = append(b.subs[t], subscription{id: id, name: name, handler: handler})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[t]
		for i, s := range list {
			if s.id == id {
				b.subs[t] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}, nil
}

// Replay records the request.
func (b *Bus) Replay(_ context.Context, failureID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ReplayErr != nil {
		return b.ReplayErr
	}
	b.replayed = append(b.replayed, failureID)
	return nil
}

// Close is a no-op.
func (b *Bus) Close(context.Context) error {
	return nil
}

// Deliver hands pack to every subscriber of t in subscription order and
// joins their errors.
func (b *Bus) Deliver(ctx context.Context, t domain.EventType, pack domain.InfoPack) error {
	raw, err := json.Marshal(pack)
	if err != nil {
		return err
	}
	b.mu.Lock()
	subs := append([]subscription(nil), b.subs[t]...)
	b.mu.Unlock()

	var errs []error
	for _, s := range subs {
		var decoded domain.InfoPack
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return err
		}
		errs = append(errs, s.handler(ctx, decoded))
	}
	return errors.Join(errs...)
}

// Events returns the packs published as t, in order.
func (b *Bus) Events(t domain.EventType) []domain.InfoPack {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.InfoPack
	for _, e := range b.published {
		if e.Type == t {
			out = append(out, e.Pack)
		}
	}
	return out
}

// Subscribers returns the names subscribed to t.
func (b *Bus) Subscribers(t domain.EventType) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.subs[t]))
	for _, s := range b.subs[t] {
		names = append(names, s.name)
	}
	return names
}

// Replayed returns the replayed failure IDs.
func (b *Bus) Replayed() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.replayed...)
}
