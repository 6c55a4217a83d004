// Package mqtt provides the publish/subscribe transport connecting all
// platform components. Topics are hierarchical strings; subscriptions match
// MQTT-style filters ("+" for one level, trailing "#" for the rest).
//
// Two implementations share the Transport contract: an in-process Broker used
// by tests and single-process deployments, and a Client backed by an external
// MQTT broker.
package mqtt

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
	"time"
)

var (
	// ErrNotConnected is returned when publishing or subscribing before the
	// transport reported connectivity.
	ErrNotConnected = errors.New("mqtt: not connected")
	// ErrClosed is returned after Disconnect.
	ErrClosed = errors.New("mqtt: transport closed")
)

// Delivery is one message received on a subscription.
type Delivery struct {
	Topic    string
	Payload  []byte
	Received time.Time
}

// Transport is the pub/sub contract shared by the in-process broker and the
// external broker client.
type Transport interface {
	// Connect establishes connectivity. It is safe to call once.
	Connect(ctx context.Context) error
	// AwaitConnected blocks until the transport signalled connectivity or the
	// context expires. Components must wait on this before publishing.
	AwaitConnected(ctx context.Context) error
	// Publish sends a payload on a topic with no delivery acknowledgment.
	Publish(ctx context.Context, topic string, payload []byte) error
	// Subscribe registers interest in one or more topic filters.
	Subscribe(filters ...string) (*Subscription, error)
	// SubscribeWith is Subscribe with per-subscription options.
	SubscribeWith(filters []string, opts []SubscriptionOption) (*Subscription, error)
	// Disconnect tears the transport down and closes all subscriptions.
	Disconnect()
}

// Observer is notified of every published message. Used for metrics.
type Observer interface {
	OnPublish(topic string, payload []byte)
}

// DeliveryStrategy determines behaviour when a subscriber's channel is full.
type DeliveryStrategy string

const (
	// StrategyDropOldest removes the oldest buffered delivery and enqueues the new one.
	StrategyDropOldest DeliveryStrategy = "drop-oldest"
	// StrategyDropNewest discards the incoming delivery when the channel is full.
	StrategyDropNewest DeliveryStrategy = "drop-newest"
)

const defaultSubscriptionBuffer = 64

// SubscriptionOption customises individual subscriptions.
type SubscriptionOption func(*subscriptionConfig)

type subscriptionConfig struct {
	bufferSize int
	name       string
	strategy   DeliveryStrategy
	ctx        context.Context
}

// WithSubscriptionBuffer overrides the channel buffer for a subscription.
func WithSubscriptionBuffer(size int) SubscriptionOption {
	return func(cfg *subscriptionConfig) {
		if size > 0 {
			cfg.bufferSize = size
		}
	}
}

// WithSubscriptionName records a human friendly identifier used in drop logs.
func WithSubscriptionName(name string) SubscriptionOption {
	return func(cfg *subscriptionConfig) {
		cfg.name = name
	}
}

// WithSubscriptionStrategy overrides the backpressure strategy.
func WithSubscriptionStrategy(strategy DeliveryStrategy) SubscriptionOption {
	return func(cfg *subscriptionConfig) {
		if strategy != "" {
			cfg.strategy = strategy
		}
	}
}

// WithContext ties the subscription lifecycle to a context.
// When the context is cancelled the subscription is automatically closed.
func WithContext(ctx context.Context) SubscriptionOption {
	return func(cfg *subscriptionConfig) {
		if ctx != nil {
			cfg.ctx = ctx
		}
	}
}

func newSubscriptionConfig(opts []SubscriptionOption) subscriptionConfig {
	cfg := subscriptionConfig{
		bufferSize: defaultSubscriptionBuffer,
		strategy:   StrategyDropOldest,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Subscription represents a consumer listening to one or more topic filters.
type Subscription struct {
	id      uint64
	name    string
	filters []string
	ch      chan Delivery
	done    chan struct{} // closed when the subscription is closed

	strategy DeliveryStrategy
	closed   atomic.Bool
	dropped  atomic.Uint64

	// detach removes the subscription from its transport. Set by the owner.
	detach func(*Subscription)
}

func newSubscription(id uint64, filters []string, cfg subscriptionConfig, detach func(*Subscription)) *Subscription {
	sub := &Subscription{
		id:       id,
		name:     cfg.name,
		filters:  append([]string(nil), filters...),
		ch:       make(chan Delivery, cfg.bufferSize),
		done:     make(chan struct{}),
		strategy: cfg.strategy,
		detach:   detach,
	}
	if cfg.ctx != nil {
		go func() {
			select {
			case <-cfg.ctx.Done():
				sub.Close()
			case <-sub.done:
			}
		}()
	}
	return sub
}

// C exposes the delivery channel. It is closed when the subscription closes.
func (s *Subscription) C() <-chan Delivery {
	return s.ch
}

// Filters returns the topic filters this subscription matches.
func (s *Subscription) Filters() []string {
	return append([]string(nil), s.filters...)
}

// Matches reports whether the topic is covered by any of the filters.
func (s *Subscription) Matches(topic string) bool {
	for _, f := range s.filters {
		if MatchFilter(f, topic) {
			return true
		}
	}
	return false
}

// Dropped returns the number of deliveries discarded due to backpressure.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close removes the subscription from its transport and closes the channel.
// Safe to call multiple times.
func (s *Subscription) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	close(s.done)
	if s.detach != nil {
		s.detach(s)
	}
	close(s.ch)
}

// closeDetached closes the subscription without calling detach. The owner
// must already have removed it from its tables.
func (s *Subscription) closeDetached() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	close(s.done)
	close(s.ch)
}

func (s *Subscription) deliver(d Delivery, logger *log.Logger) {
	if s.closed.Load() {
		return
	}

	// Fast path: non-blocking send.
	select {
	case s.ch <- d:
		return
	default:
	}

	switch s.strategy {
	case StrategyDropNewest:
		s.recordDrop(logger, "drop-newest")
	default:
		select {
		case <-s.ch:
			s.recordDrop(logger, "drop-oldest")
		default:
		}
		select {
		case s.ch <- d:
		default:
			s.recordDrop(logger, "drop-current")
		}
	}
}

func (s *Subscription) recordDrop(logger *log.Logger, reason string) {
	count := s.dropped.Add(1)
	if logger != nil {
		name := s.name
		if name == "" {
			name = "subscription"
		}
		logger.Printf("[mqtt] dropped message #%d for %s (%s)", count, name, reason)
	}
}
