package mqtt_test

import (
	"context"
	"testing"
	"time"

	"github.com/parley-ai/parley/internal/mqtt"
)

func connectedBroker(t *testing.T) *mqtt.Broker {
	t.Helper()
	broker := mqtt.NewBroker()
	if err := broker.Connect(context.Background()); err != nil {
		t.Fatalf("connect broker: %v", err)
	}
	t.Cleanup(broker.Disconnect)
	return broker
}

func TestBrokerPublishDeliver(t *testing.T) {
	broker := connectedBroker(t)

	sub, err := broker.Subscribe("parley/dialogue/sessionStarted")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	payload := []byte(`{"siteId":"default"}`)
	if err := broker.Publish(context.Background(), "parley/dialogue/sessionStarted", payload); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case d := <-sub.C():
		if d.Topic != "parley/dialogue/sessionStarted" {
			t.Fatalf("unexpected topic: %s", d.Topic)
		}
		if string(d.Payload) != string(payload) {
			t.Fatalf("unexpected payload: %q", d.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestBrokerWildcardDelivery(t *testing.T) {
	broker := connectedBroker(t)

	sub, err := broker.Subscribe("parley/hotword/+/detected")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	if err := broker.Publish(context.Background(), "parley/hotword/porcupine/detected", []byte("{}")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := broker.Publish(context.Background(), "parley/asr/textCaptured", []byte("{}")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case d := <-sub.C():
		if d.Topic != "parley/hotword/porcupine/detected" {
			t.Fatalf("unexpected topic: %s", d.Topic)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for wildcard delivery")
	}

	select {
	case d := <-sub.C():
		t.Fatalf("unexpected extra delivery on topic %s", d.Topic)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBrokerPublishBeforeConnect(t *testing.T) {
	broker := mqtt.NewBroker()
	err := broker.Publish(context.Background(), "parley/tts/say", []byte("{}"))
	if err != mqtt.ErrNotConnected {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestBrokerAwaitConnected(t *testing.T) {
	broker := mqtt.NewBroker()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := broker.AwaitConnected(ctx); err == nil {
		t.Fatal("expected timeout before Connect")
	}

	if err := broker.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer broker.Disconnect()

	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	if err := broker.AwaitConnected(ctx2); err != nil {
		t.Fatalf("await after connect: %v", err)
	}
}

func TestBrokerDropOldest(t *testing.T) {
	broker := connectedBroker(t)

	sub, err := broker.SubscribeWith(
		[]string{"parley/audioServer/default/audioFrame"},
		[]mqtt.SubscriptionOption{mqtt.WithSubscriptionBuffer(1), mqtt.WithSubscriptionName("frames")},
	)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	ctx := context.Background()
	topic := "parley/audioServer/default/audioFrame"
	if err := broker.Publish(ctx, topic, []byte("one")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := broker.Publish(ctx, topic, []byte("two")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case d := <-sub.C():
		if string(d.Payload) != "two" {
			t.Fatalf("expected newest payload after drop-oldest, got %q", d.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery after drops")
	}

	if sub.Dropped() == 0 {
		t.Fatal("expected dropped deliveries to be recorded")
	}
}

func TestBrokerSubscriptionContextCancel(t *testing.T) {
	broker := connectedBroker(t)

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := broker.SubscribeWith(
		[]string{"parley/dialogue/#"},
		[]mqtt.SubscriptionOption{mqtt.WithContext(ctx)},
	)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	cancel()

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-sub.C():
			if !ok {
				return // channel closed by cancellation
			}
		case <-deadline:
			t.Fatal("subscription channel not closed after context cancel")
		}
	}
}

func TestBrokerDisconnectClosesSubscriptions(t *testing.T) {
	broker := mqtt.NewBroker()
	if err := broker.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	sub, err := broker.Subscribe("parley/#")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	broker.Disconnect()

	select {
	case _, ok := <-sub.C():
		if ok {
			t.Fatal("expected closed channel after Disconnect")
		}
	case <-time.After(time.Second):
		t.Fatal("subscription channel not closed after Disconnect")
	}

	if err := broker.Publish(context.Background(), "parley/tts/say", nil); err != mqtt.ErrClosed {
		t.Fatalf("expected ErrClosed after Disconnect, got %v", err)
	}
}
