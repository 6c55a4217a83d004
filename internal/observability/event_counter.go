// Package observability renders process metrics in Prometheus text format.
package observability

import (
	"sync"
	"sync/atomic"
)

// EventCounter counts published bus messages grouped by topic. It implements
// mqtt.Observer.
type EventCounter struct {
	counts sync.Map // map[string]*atomic.Uint64
}

// NewEventCounter creates a counter that can be registered as a transport
// observer.
func NewEventCounter() *EventCounter {
	return &EventCounter{}
}

// OnPublish tracks one published message.
func (c *EventCounter) OnPublish(topic string, _ []byte) {
	if topic == "" {
		return
	}
	c.counterFor(topic).Add(1)
}

// Snapshot exposes a stable copy of the current counts.
func (c *EventCounter) Snapshot() map[string]uint64 {
	out := make(map[string]uint64)
	c.counts.Range(func(key, value any) bool {
		topic, ok := key.(string)
		if !ok {
			return true
		}
		counter, ok := value.(*atomic.Uint64)
		if !ok || counter == nil {
			return true
		}
		out[topic] = counter.Load()
		return true
	})
	return out
}

func (c *EventCounter) counterFor(topic string) *atomic.Uint64 {
	if counter, ok := c.counts.Load(topic); ok {
		if typed, ok := counter.(*atomic.Uint64); ok && typed != nil {
			return typed
		}
	}
	newCounter := &atomic.Uint64{}
	actual, _ := c.counts.LoadOrStore(topic, newCounter)
	if typed, ok := actual.(*atomic.Uint64); ok && typed != nil {
		return typed
	}
	return newCounter
}
