package natsrelay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/caseflow/internal/core/domain"
	"github.com/custodia-labs/caseflow/internal/core/ports/driven"
)

type published struct {
	subject string
	data    []byte
}

type mockPublisher struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (m *mockPublisher) Publish(_ context.Context, subject string, data []byte, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.sent = append(m.sent, published{subject: subject, data: data})
	return &jetstream.PubAck{Stream: StreamName}, nil
}

// captureBus records subscriptions and lets the test drive handlers.
type captureBus struct {
	handlers  map[domain.EventType]driven.EventHandler
	cancelled int
}

func (c *captureBus) Publish(context.Context, domain.EventType, domain.InfoPack) error { return nil }

func (c *captureBus) Subscribe(t domain.EventType, name string, h driven.EventHandler) (func(), error) {
	if name != SubscriberName {
		return nil, errors.New("unexpected subscriber name")
	}
	c.handlers[t] = h
	return func() { c.cancelled++ }, nil
}

func (c *captureBus) Replay(context.Context, string) error { return nil }
func (c *captureBus) Close(context.Context) error          { return nil }

func TestRelay_ForwardsEveryEventType(t *testing.T) {
	pub := &mockPublisher{}
	bus := &captureBus{handlers: make(map[domain.EventType]driven.EventHandler)}
	relay := New(pub)

	require.NoError(t, relay.Attach(bus))
	assert.Len(t, bus.handlers, len(domain.EventTypes()))

	pack := domain.NewInfoPack("p1", domain.PackCaseData, "documents", "google.tenant.u1", map[string]any{"category": "lease"})
	require.NoError(t, bus.handlers[domain.EventDocumentAdded](context.Background(), pack))

	require.Len(t, pub.sent, 1)
	assert.Equal(t, "caseflow.events.document_added", pub.sent[0].subject)

	var got domain.InfoPack
	require.NoError(t, json.Unmarshal(pub.sent[0].data, &got))
	assert.Equal(t, "p1", got.ID)
	assert.Equal(t, "lease", got.Text("category"))

	require.NoError(t, relay.Close())
	assert.Equal(t, len(domain.EventTypes()), bus.cancelled)
}

func TestRelay_PublishFailureIsTransient(t *testing.T) {
	pub := &mockPublisher{err: errors.New("no responders")}
	bus := &captureBus{handlers: make(map[domain.EventType]driven.EventHandler)}
	require.NoError(t, New(pub).Attach(bus))

	pack := domain.NewInfoPack("p1", domain.PackTimelineData, "timeline", "google.tenant.u1", nil)
	err := bus.handlers[domain.EventTimelineUpdated](context.Background(), pack)

	require.Error(t, err)
	assert.Equal(t, domain.KindTransientProvider, domain.KindOf(err))
}
