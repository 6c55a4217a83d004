package mqtt

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// Client is a Transport backed by an external MQTT broker. It tracks
// connectivity transitions so components can wait for the "became connected"
// signal before publishing or subscribing.
type Client struct {
	brokerURL string
	clientID  string
	logger    *log.Logger
	observer  Observer

	cli paho.Client

	mu        sync.Mutex
	connected chan struct{} // closed while connected, replaced on loss
	subs      map[uint64]*Subscription
	nextID    uint64
	closed    atomic.Bool
}

// ClientOption customises the broker client.
type ClientOption func(*Client)

// WithClientLogger overrides the logger used for connection and drop warnings.
func WithClientLogger(logger *log.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClientObserver registers a publish observer.
func WithClientObserver(observer Observer) ClientOption {
	return func(c *Client) {
		c.observer = observer
	}
}

// NewClient constructs a client for the given broker URL (e.g.
// "tcp://localhost:1883"). Connect must be called before use.
func NewClient(brokerURL, clientID string, opts ...ClientOption) *Client {
	c := &Client{
		brokerURL: brokerURL,
		clientID:  clientID,
		logger:    log.Default(),
		connected: make(chan struct{}),
		subs:      make(map[uint64]*Subscription),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect dials the broker. The returned error covers the initial attempt;
// later reconnects are handled by the underlying client and reflected in
// AwaitConnected.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}

	opts := paho.NewClientOptions().
		AddBroker(c.brokerURL).
		SetClientID(c.clientID).
		SetAutoReconnect(true).
		SetOnConnectHandler(func(paho.Client) {
			c.markConnected()
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			c.logger.Printf("[mqtt] connection to %s lost: %v", c.brokerURL, err)
			c.markDisconnected()
		})

	c.mu.Lock()
	c.cli = paho.NewClient(opts)
	cli := c.cli
	c.mu.Unlock()

	token := cli.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: connect %s: %w", c.brokerURL, err)
	}
	return nil
}

func (c *Client) markConnected() {
	c.mu.Lock()
	select {
	case <-c.connected:
		// already marked
	default:
		close(c.connected)
	}
	c.mu.Unlock()
}

func (c *Client) markDisconnected() {
	c.mu.Lock()
	select {
	case <-c.connected:
		c.connected = make(chan struct{})
	default:
	}
	c.mu.Unlock()
}

// AwaitConnected blocks until the broker connection is up or ctx expires.
func (c *Client) AwaitConnected(ctx context.Context) error {
	for {
		c.mu.Lock()
		ch := c.connected
		c.mu.Unlock()

		select {
		case <-ch:
			if c.closed.Load() {
				return ErrClosed
			}
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Publish sends the payload at QoS 0. Publishing while disconnected fails
// with ErrNotConnected instead of silently buffering.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	if c.closed.Load() {
		return ErrClosed
	}
	c.mu.Lock()
	cli := c.cli
	c.mu.Unlock()
	if cli == nil || !cli.IsConnected() {
		return ErrNotConnected
	}

	if c.observer != nil {
		c.observer.OnPublish(topic, payload)
	}

	token := cli.Publish(topic, 0, false, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers a subscription for the given topic filters.
func (c *Client) Subscribe(filters ...string) (*Subscription, error) {
	return c.SubscribeWith(filters, nil)
}

// SubscribeWith is Subscribe with per-subscription options.
func (c *Client) SubscribeWith(filters []string, opts []SubscriptionOption) (*Subscription, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	c.mu.Lock()
	cli := c.cli
	c.mu.Unlock()
	if cli == nil {
		return nil, ErrNotConnected
	}
	if len(filters) == 0 {
		return nil, ErrNotConnected
	}

	cfg := newSubscriptionConfig(opts)
	id := atomic.AddUint64(&c.nextID, 1)
	sub := newSubscription(id, filters, cfg, c.remove)

	handler := func(_ paho.Client, msg paho.Message) {
		sub.deliver(Delivery{
			Topic:   msg.Topic(),
			Payload: msg.Payload(),
		}, c.logger)
	}
	for _, filter := range filters {
		token := cli.Subscribe(filter, 0, handler)
		token.Wait()
		if err := token.Error(); err != nil {
			sub.closeDetached()
			return nil, fmt.Errorf("mqtt: subscribe %q: %w", filter, err)
		}
	}

	c.mu.Lock()
	c.subs[id] = sub
	c.mu.Unlock()
	return sub, nil
}

func (c *Client) remove(sub *Subscription) {
	c.mu.Lock()
	delete(c.subs, sub.id)
	cli := c.cli
	c.mu.Unlock()

	if cli != nil && cli.IsConnected() {
		cli.Unsubscribe(sub.filters...)
	}
}

// Disconnect closes all subscriptions and drops the broker connection.
func (c *Client) Disconnect() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}

	c.mu.Lock()
	subs := make([]*Subscription, 0, len(c.subs))
	for id, sub := range c.subs {
		subs = append(subs, sub)
		delete(c.subs, id)
	}
	cli := c.cli
	c.mu.Unlock()

	for _, sub := range subs {
		sub.closeDetached()
	}
	if cli != nil {
		cli.Disconnect(250)
	}
}

var _ Transport = (*Client)(nil)
