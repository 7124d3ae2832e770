package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/custodia-labs/caseflow/internal/core/domain"
	"github.com/custodia-labs/caseflow/internal/core/ports/driven"
	"github.com/custodia-labs/caseflow/internal/logger"
)

// Ensure Bus implements the interface.
var _ driven.EventBus = (*Bus)(nil)

// DefaultDrainTimeout bounds how long Close waits for queued deliveries.
const DefaultDrainTimeout = 10 * time.Second

const (
	metaEventType = "event_type"
	metaPackID    = "pack_id"
)

// Config tunes the bus.
type Config struct {
	// DrainTimeout bounds how long Close waits for queued deliveries.
	DrainTimeout time.Duration
}

// Bus is an in-process event bus. Construct one per process and inject it.
type Bus struct {
	pubsub   *gochannel.GoChannel
	failures driven.DeliveryFailureStore
	drain    time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	subs   map[domain.EventType][]*subscription

	pumps     sync.WaitGroup
	consumers sync.WaitGroup
}

// subscription is one subscriber's ordered delivery lane.
type subscription struct {
	eventType domain.EventType
	name      string
	topic     string
	handler   driven.EventHandler
	queue     *queue
	cancel    context.CancelFunc
}

// New creates a bus. failures may be nil, in which case handler failures
// are only logged.
func New(cfg Config, failures driven.DeliveryFailureStore) *Bus {
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	pubsub := gochannel.NewGoChannel(gochannel.Config{
		BlockPublishUntilSubscriberAck: true,
	}, NewZapAdapter(logger.L()))
	return &Bus{
		pubsub:   pubsub,
		failures: failures,
		drain:    cfg.DrainTimeout,
		ctx:      ctx,
		cancel:   cancel,
		subs:     make(map[domain.EventType][]*subscription),
	}
}

// Publish enqueues pack for every current subscriber of t and returns
// without waiting for delivery.
func (b *Bus) Publish(ctx context.Context, t domain.EventType, pack domain.InfoPack) error {
	if !t.Valid() {
		return domain.NewError(domain.KindValidation, "unknown event type %q", t)
	}
	if err := pack.Validate(); err != nil {
		return domain.WrapError(domain.KindValidation, err, "")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(pack)
	if err != nil {
		return fmt.Errorf("encode pack %s: %w", pack.ID, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return domain.WrapError(domain.KindPermanent, domain.ErrBusClosed, "")
	}
	for _, sub := range b.subs[t] {
		msg := message.NewMessage(watermill.NewUUID(), payload)
		msg.Metadata.Set(metaEventType, string(t))
		msg.Metadata.Set(metaPackID, pack.ID)
		sub.queue.push(msg)
	}
	logger.Debug("eventbus: %s %s queued for %d subscribers", t, pack.ID, len(b.subs[t]))
	return nil
}

// Subscribe registers handler under name for events of type t. The
// returned cancel stops delivery; events still queued for it are dropped.
func (b *Bus) Subscribe(t domain.EventType, name string, handler driven.EventHandler) (func(), error) {
	if !t.Valid() {
		return nil, domain.NewError(domain.KindValidation, "unknown event type %q", t)
	}
	if name == "" || handler == nil {
		return nil, domain.NewError(domain.KindValidation, "subscriber name and handler are required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, domain.WrapError(domain.KindPermanent, domain.ErrBusClosed, "")
	}

	ctx, cancel := context.WithCancel(b.ctx)
	sub := &subscription{
		eventType: t,
		name:      name,
		topic:     fmt.Sprintf("%s.%s.%s", t, name, uuid.NewString()),
		handler:   handler,
		queue:     newQueue(),
		cancel:    cancel,
	}
	messages, err := b.pubsub.Subscribe(ctx, sub.topic)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe %s: %w", sub.topic, err)
	}
	b.subs[t] = append(b.subs[t], sub)

	b.consumers.Add(1)
	go b.consume(ctx, sub, messages)
	b.pumps.Add(1)
	go b.pump(sub)

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(sub) })
	}, nil
}

func (b *Bus) unsubscribe(sub *subscription) {
	b.mu.Lock()
	list := b.subs[sub.eventType]
	for i, s := range list {
		if s == sub {
			b.subs[sub.eventType] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	b.mu.Unlock()

	sub.queue.abort()
	sub.cancel()
}

// pump forwards sub's queue into its topic one message at a time; the
// publish blocks until the consumer acks, which keeps delivery ordered.
func (b *Bus) pump(sub *subscription) {
	defer b.pumps.Done()
	for {
		msg, ok := sub.queue.pop()
		if !ok {
			return
		}
		if err := b.pubsub.Publish(sub.topic, msg); err != nil {
			logger.Debug("eventbus: %s stopped: %v", sub.topic, err)
			return
		}
	}
}

func (b *Bus) consume(ctx context.Context, sub *subscription, messages <-chan *message.Message) {
	defer b.consumers.Done()
	for msg := range messages {
		b.deliver(ctx, sub, msg)
		msg.Ack()
	}
}

// deliver runs the handler for one message. Errors and panics are logged
// and recorded; the message is acknowledged either way.
func (b *Bus) deliver(ctx context.Context, sub *subscription, msg *message.Message) {
	var pack domain.InfoPack
	if err := json.Unmarshal(msg.Payload, &pack); err != nil {
		logger.L().Error("undecodable event dropped", zap.String("subscriber", sub.name),
			zap.String("pack_id", msg.Metadata.Get(metaPackID)), zap.Error(err))
		return
	}
	if pack.Expired(time.Now()) {
		logger.Debug("eventbus: expired pack %s skipped for %s", pack.ID, sub.name)
		return
	}

	err := runHandler(ctx, sub.handler, pack)
	if err == nil {
		return
	}
	logger.L().Warn("event delivery failed",
		zap.String("event_type", string(sub.eventType)),
		zap.String("subscriber", sub.name),
		zap.String("pack_id", pack.ID),
		zap.Error(err))
	b.recordFailure(sub, pack, err)
}

func runHandler(ctx context.Context, handler driven.EventHandler, pack domain.InfoPack) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler(ctx, pack)
}

func (b *Bus) recordFailure(sub *subscription, pack domain.InfoPack, cause error) {
	if b.failures == nil {
		return
	}
	envelope, err := encodeEnvelope(sub.eventType, sub.name, pack)
	if err != nil {
		logger.Warn("eventbus: failure for %s not recorded: %v", pack.ID, err)
		return
	}
	failure := &domain.DeliveryFailure{
		ID:         uuid.NewString(),
		EventType:  sub.eventType,
		Subscriber: sub.name,
		PackID:     pack.ID,
		Envelope:   envelope,
		Error:      cause.Error(),
		FailedAt:   time.Now().UTC(),
	}
	if err := b.failures.Record(context.WithoutCancel(b.ctx), failure); err != nil {
		logger.Warn("eventbus: failure for %s not recorded: %v", pack.ID, err)
	}
}

// Replay re-delivers a recorded failure to the subscriber that failed it
// and removes the record once queued.
func (b *Bus) Replay(ctx context.Context, failureID string) error {
	if b.failures == nil {
		return domain.NewError(domain.KindNotFound, "no failure store configured")
	}
	failure, err := b.failures.Get(ctx, failureID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.NewError(domain.KindNotFound, "delivery failure %s", failureID)
		}
		return fmt.Errorf("get delivery failure: %w", err)
	}
	t, subscriber, pack, err := decodeEnvelope(failure.Envelope)
	if err != nil {
		return domain.WrapError(domain.KindPermanent, err, "")
	}
	payload, err := json.Marshal(pack)
	if err != nil {
		return fmt.Errorf("encode pack %s: %w", pack.ID, err)
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return domain.WrapError(domain.KindPermanent, domain.ErrBusClosed, "")
	}
	queued := 0
	for _, sub := range b.subs[t] {
		if sub.name != subscriber {
			continue
		}
		msg := message.NewMessage(watermill.NewUUID(), payload)
		msg.Metadata.Set(metaEventType, string(t))
		msg.Metadata.Set(metaPackID, pack.ID)
		if sub.queue.push(msg) {
			queued++
		}
	}
	b.mu.Unlock()

	if queued == 0 {
		return domain.NewError(domain.KindNotFound, "subscriber %s is not listening to %s", subscriber, t)
	}
	if err := b.failures.Delete(ctx, failureID); err != nil {
		return fmt.Errorf("delete delivery failure: %w", err)
	}
	logger.L().Info("delivery failure replayed", zap.String("failure_id", failureID),
		zap.String("subscriber", subscriber), zap.String("pack_id", pack.ID))
	return nil
}

// Close stops accepting publishes, lets queued deliveries drain for up to
// the drain timeout or until ctx ends, then tears the bus down.
func (b *Bus) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	var all []*subscription
	for _, list := range b.subs {
		all = append(all, list...)
	}
	b.mu.Unlock()

	for _, sub := range all {
		sub.queue.close()
	}

	drained := make(chan struct{})
	go func() {
		b.pumps.Wait()
		close(drained)
	}()

	timer := time.NewTimer(b.drain)
	defer timer.Stop()
	var drainErr error
	select {
	case <-drained:
	case <-timer.C:
		drainErr = domain.NewError(domain.KindTimeout, "event bus drain exceeded %s", b.drain)
	case <-ctx.Done():
		drainErr = ctx.Err()
	}
	if drainErr != nil {
		dropped := 0
		for _, sub := range all {
			dropped += sub.queue.abort()
		}
		logger.L().Warn("event bus closed before draining", zap.Int("dropped", dropped), zap.Error(drainErr))
	}

	b.cancel()
	if err := b.pubsub.Close(); err != nil {
		logger.Warn("eventbus: close pubsub: %v", err)
	}
	b.pumps.Wait()
	b.consumers.Wait()
	return drainErr
}

// queue is an unbounded FIFO feeding one subscription's pump.
type queue struct {
	mu      sync.Mutex
	items   []*message.Message
	ready   chan struct{}
	closed  bool
	aborted bool
}

func newQueue() *queue {
	return &queue{ready: make(chan struct{}, 1)}
}

func (q *queue) push(msg *message.Message) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, msg)
	q.signal()
	return true
}

// pop blocks for the next message. It reports false once the queue is
// closed and empty, or aborted.
func (q *queue) pop() (*message.Message, bool) {
	for {
		q.mu.Lock()
		if q.aborted {
			q.mu.Unlock()
			return nil, false
		}
		if len(q.items) > 0 {
			msg := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			q.mu.Unlock()
			return msg, true
		}
		if q.closed {
			q.mu.Unlock()
			return nil, false
		}
		q.mu.Unlock()
		<-q.ready
	}
}

// close stops new pushes; queued messages still drain.
func (q *queue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.signal()
}

// abort closes the queue and drops everything pending, returning the
// number of dropped messages.
func (q *queue) abort() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	dropped := len(q.items)
	q.items = nil
	q.closed = true
	q.aborted = true
	q.signal()
	return dropped
}

func (q *queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
