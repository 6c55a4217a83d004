package mqtt

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// Broker is an in-process Transport. Messages published on it are fanned out
// to every subscription whose filter matches the topic. Delivery is
// at-least-once from the caller's perspective; ordering is preserved per
// subscription, not across topics.
type Broker struct {
	logger   *log.Logger
	observer Observer

	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64

	connectOnce sync.Once
	connected   chan struct{}
	closed      atomic.Bool
}

// BrokerOption customises broker behaviour.
type BrokerOption func(*Broker)

// WithLogger overrides the logger used for drop warnings.
func WithLogger(logger *log.Logger) BrokerOption {
	return func(b *Broker) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithObserver registers a publish observer (e.g. a metrics counter).
func WithObserver(observer Observer) BrokerOption {
	return func(b *Broker) {
		b.observer = observer
	}
}

// NewBroker constructs a disconnected in-process broker.
func NewBroker(opts ...BrokerOption) *Broker {
	b := &Broker{
		logger:    log.Default(),
		subs:      make(map[uint64]*Subscription),
		connected: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Connect marks the broker connected. Publishing before Connect fails with
// ErrNotConnected so callers cannot race against an unready transport.
func (b *Broker) Connect(ctx context.Context) error {
	if b.closed.Load() {
		return ErrClosed
	}
	b.connectOnce.Do(func() {
		close(b.connected)
	})
	return nil
}

// AwaitConnected blocks until Connect was called or the context expires.
func (b *Broker) AwaitConnected(ctx context.Context) error {
	select {
	case <-b.connected:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Broker) isConnected() bool {
	select {
	case <-b.connected:
		return !b.closed.Load()
	default:
		return false
	}
}

// Publish fans the payload out to all matching subscriptions.
func (b *Broker) Publish(ctx context.Context, topic string, payload []byte) error {
	if topic == "" {
		return nil
	}
	if b.closed.Load() {
		return ErrClosed
	}
	if !b.isConnected() {
		return ErrNotConnected
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if b.observer != nil {
		b.observer.OnPublish(topic, payload)
	}

	d := Delivery{
		Topic:    topic,
		Payload:  payload,
		Received: time.Now().UTC(),
	}

	b.mu.RLock()
	for _, sub := range b.subs {
		if sub.Matches(topic) {
			sub.deliver(d, b.logger)
		}
	}
	b.mu.RUnlock()
	return nil
}

// Subscribe registers a subscription for the given topic filters.
func (b *Broker) Subscribe(filters ...string) (*Subscription, error) {
	return b.SubscribeWith(filters, nil)
}

// SubscribeWith is Subscribe with per-subscription options.
func (b *Broker) SubscribeWith(filters []string, opts []SubscriptionOption) (*Subscription, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}
	if len(filters) == 0 {
		return nil, ErrNotConnected
	}

	cfg := newSubscriptionConfig(opts)
	id := atomic.AddUint64(&b.nextID, 1)
	sub := newSubscription(id, filters, cfg, b.remove)

	b.mu.Lock()
	b.subs[id] = sub
	b.mu.Unlock()
	return sub, nil
}

func (b *Broker) remove(sub *Subscription) {
	b.mu.Lock()
	delete(b.subs, sub.id)
	b.mu.Unlock()
}

// Disconnect closes all subscriptions and rejects further publishes.
func (b *Broker) Disconnect() {
	if !b.closed.CompareAndSwap(false, true) {
		return
	}

	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.subs))
	for id, sub := range b.subs {
		subs = append(subs, sub)
		delete(b.subs, id)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		sub.closeDetached()
	}
}

var _ Transport = (*Broker)(nil)
