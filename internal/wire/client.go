package wire

import (
	"context"
	"log"
	"sync"

	"github.com/parley-ai/parley/internal/mqtt"
)

// Inbound is a decoded message plus the routing metadata from its topic.
type Inbound struct {
	Message Message
	Routing Routing
}

// Handler turns one inbound message into zero or more reply messages. The
// dispatch loop publishes the replies in the order they are returned.
type Handler func(ctx context.Context, in Inbound) []Message

// Client wraps a transport with message-typed subscribe/publish/dispatch.
type Client struct {
	name      string
	transport mqtt.Transport
	logger    *log.Logger

	mu   sync.Mutex
	subs []*mqtt.Subscription
}

// ClientOption customises a Client.
type ClientOption func(*Client)

// WithLogger overrides the client's logger.
func WithLogger(logger *log.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient constructs a named client over the given transport.
func NewClient(name string, transport mqtt.Transport, opts ...ClientOption) *Client {
	c := &Client{
		name:      name,
		transport: transport,
		logger:    log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Transport exposes the underlying transport.
func (c *Client) Transport() mqtt.Transport {
	return c.transport
}

// Subscribe registers interest in the given message kinds. The subscription
// is live from the moment this returns; HandleMessages drains it.
func (c *Client) Subscribe(kinds ...Kind) (*mqtt.Subscription, error) {
	filters := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		if f := FilterFor(kind); f != "" {
			filters = append(filters, f)
		}
	}

	sub, err := c.transport.SubscribeWith(filters, []mqtt.SubscriptionOption{
		mqtt.WithSubscriptionName(c.name),
	})
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return sub, nil
}

// Publish encodes and sends one message.
func (c *Client) Publish(ctx context.Context, msg Message) error {
	topic, payload, err := Encode(msg)
	if err != nil {
		return err
	}
	return c.transport.Publish(ctx, topic, payload)
}

// HandleMessages drains every subscription made so far and dispatches decoded
// messages to handler, publishing its replies in order. Messages for
// unrecognized topics are dropped silently. Returns when ctx is cancelled;
// cancellation never acts on partially received messages.
func (c *Client) HandleMessages(ctx context.Context, handler Handler) error {
	c.mu.Lock()
	subs := append([]*mqtt.Subscription(nil), c.subs...)
	c.mu.Unlock()

	merged := make(chan mqtt.Delivery)
	var wg sync.WaitGroup
	forwardCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, sub := range subs {
		wg.Add(1)
		go func(sub *mqtt.Subscription) {
			defer wg.Done()
			for {
				select {
				case <-forwardCtx.Done():
					return
				case d, ok := <-sub.C():
					if !ok {
						return
					}
					select {
					case merged <- d:
					case <-forwardCtx.Done():
						return
					}
				}
			}
		}(sub)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			cancel()
			<-done
			return ctx.Err()
		case <-done:
			return nil
		case d := <-merged:
			msg, routing, ok := Decode(d.Topic, d.Payload)
			if !ok {
				continue
			}
			for _, reply := range handler(ctx, Inbound{Message: msg, Routing: routing}) {
				if reply == nil {
					continue
				}
				if err := c.Publish(ctx, reply); err != nil {
					c.logger.Printf("[%s] publish reply %s failed: %v", c.name, reply.Kind(), err)
				}
			}
		}
	}
}

// Close closes all subscriptions made by this client.
func (c *Client) Close() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}

// Waiter collects messages of given kinds so a caller can publish a request
// and then block for the matching reply. The subscription is live from
// construction, so replies racing the publish are not lost.
type Waiter struct {
	sub *mqtt.Subscription
}

// NewWaiter subscribes to the given kinds on the client's transport.
func NewWaiter(c *Client, kinds ...Kind) (*Waiter, error) {
	filters := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		if f := FilterFor(kind); f != "" {
			filters = append(filters, f)
		}
	}
	sub, err := c.transport.SubscribeWith(filters, []mqtt.SubscriptionOption{
		mqtt.WithSubscriptionName(c.name + ".waiter"),
	})
	if err != nil {
		return nil, err
	}
	return &Waiter{sub: sub}, nil
}

// Wait blocks until a decoded message satisfies match or ctx expires.
func (w *Waiter) Wait(ctx context.Context, match func(Inbound) bool) (Inbound, error) {
	for {
		select {
		case <-ctx.Done():
			return Inbound{}, ctx.Err()
		case d, ok := <-w.sub.C():
			if !ok {
				return Inbound{}, mqtt.ErrClosed
			}
			msg, routing, decoded := Decode(d.Topic, d.Payload)
			if !decoded {
				continue
			}
			in := Inbound{Message: msg, Routing: routing}
			if match == nil || match(in) {
				return in, nil
			}
		}
	}
}

// Close releases the waiter's subscription.
func (w *Waiter) Close() {
	w.sub.Close()
}
