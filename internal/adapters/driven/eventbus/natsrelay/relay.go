// Package natsrelay forwards bus events to NATS JetStream for consumers
// outside the process.
package natsrelay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/custodia-labs/caseflow/internal/core/domain"
	"github.com/custodia-labs/caseflow/internal/core/ports/driven"
	"github.com/custodia-labs/caseflow/internal/logger"
)

// SubjectPrefix prefixes every relayed subject: caseflow.events.<type>.
const SubjectPrefix = "caseflow.events."

// SubscriberName is the bus subscriber name the relay registers under.
const SubscriberName = "nats-relay"

// StreamName is the JetStream stream holding relayed events.
const StreamName = "CASEFLOW_EVENTS"

// Publisher is the subset of jetstream.JetStream the relay needs.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Relay publishes every bus event it receives to JetStream.
type Relay struct {
	js      Publisher
	nc      *nats.Conn
	timeout time.Duration
	cancels []func()
}

// Connect dials url, ensures the stream exists and returns a relay.
func Connect(ctx context.Context, url string) (*Relay, error) {
	nc, err := nats.Connect(url,
		nats.Name("caseflow"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	streamCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := js.CreateOrUpdateStream(streamCtx, jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{SubjectPrefix + ">"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
	}); err != nil {
		// The stream may be managed elsewhere.
		logger.Warn("natsrelay: ensure stream %s: %v", StreamName, err)
	}

	r := New(js)
	r.nc = nc
	return r, nil
}

// New creates a relay over an existing publisher.
func New(js Publisher) *Relay {
	return &Relay{js: js, timeout: 5 * time.Second}
}

// Attach subscribes the relay to every event type on bus.
func (r *Relay) Attach(bus driven.EventBus) error {
	for _, t := range domain.EventTypes() {
		cancel, err := bus.Subscribe(t, SubscriberName, r.handler(t))
		if err != nil {
			r.detach()
			return fmt.Errorf("relay %s: %w", t, err)
		}
		r.cancels = append(r.cancels, cancel)
	}
	return nil
}

func (r *Relay) handler(t domain.EventType) driven.EventHandler {
	subject := SubjectPrefix + string(t)
	return func(ctx context.Context, pack domain.InfoPack) error {
		data, err := json.Marshal(pack)
		if err != nil {
			return fmt.Errorf("encode pack %s: %w", pack.ID, err)
		}
		ctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		// The pack id doubles as the JetStream dedupe id.
		if _, err := r.js.Publish(ctx, subject, data, jetstream.WithMsgID(pack.ID)); err != nil {
			return domain.WrapError(domain.KindTransientProvider, err, "publish to "+subject)
		}
		return nil
	}
}

func (r *Relay) detach() {
	for _, cancel := range r.cancels {
		cancel()
	}
	r.cancels = nil
}

// Close detaches from the bus and drains the NATS connection.
func (r *Relay) Close() error {
	r.detach()
	if r.nc == nil {
		return nil
	}
	if err := r.nc.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return fmt.Errorf("drain NATS connection: %w", err)
	}
	return nil
}
