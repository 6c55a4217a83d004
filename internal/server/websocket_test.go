package server_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/parley-ai/parley/internal/server"
	"github.com/parley-ai/parley/internal/wire"
)

func dialWS(t *testing.T, s *stack, path string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+s.baseURL[len("http://"):]+path, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) server.EventFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame server.EventFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return frame
}

func TestEventsIntentStream(t *testing.T) {
	s := startStack(t)
	s.train(t)

	conn := dialWS(t, s, "/api/events/intent")

	// An HTTP recognition round trip produces the bus traffic the socket
	// should surface.
	go s.post(t, "/api/text-to-intent", "text/plain", []byte("turn on the light"))

	frame := readFrame(t, conn)
	if frame.Topic != "parley/intent/ChangeLightState" {
		t.Fatalf("topic: %s", frame.Topic)
	}
	var intent wire.Intent
	if err := json.Unmarshal(frame.Payload, &intent); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if intent.Intent.IntentName != "ChangeLightState" {
		t.Fatalf("intent: %+v", intent)
	}
}

func TestTopicBridgePublishesInbound(t *testing.T) {
	s := startStack(t)

	probe := wire.NewClient("probe", s.broker)
	sub, err := probe.Subscribe(wire.KindHotwordDetected)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer probe.Close()

	conn := dialWS(t, s, "/api/mqtt/parley/hotword/porcupine/detected")

	frame := server.EventFrame{
		Topic:   "parley/hotword/porcupine/detected",
		Payload: json.RawMessage(`{"modelId":"porcupine","siteId":"default"}`),
	}
	if err := conn.WriteJSON(frame); err != nil {
		t.Fatalf("write frame: %v", err)
	}

	select {
	case d := <-sub.C():
		msg, routing, ok := wire.Decode(d.Topic, d.Payload)
		if !ok {
			t.Fatalf("undecodable delivery on %s", d.Topic)
		}
		hotword, ok := msg.(wire.HotwordDetected)
		if !ok {
			t.Fatalf("message type %T", msg)
		}
		if routing.WakewordID != "porcupine" || hotword.SiteID != "default" {
			t.Fatalf("routing %+v message %+v", routing, hotword)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("published frame never reached the bus")
	}

	// The writable bridge also echoes matching traffic back out.
	echo := readFrame(t, conn)
	if echo.Topic != "parley/hotword/porcupine/detected" {
		t.Fatalf("echo topic: %s", echo.Topic)
	}
}

func TestEventsWakeStream(t *testing.T) {
	s := startStack(t)

	conn := dialWS(t, s, "/api/events/wake")

	publisher := wire.NewClient("publisher", s.broker)
	defer publisher.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := publisher.Publish(ctx, wire.HotwordDetected{
		ModelID:    "default",
		WakewordID: "default",
		SiteID:     "satellite1",
	}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	frame := readFrame(t, conn)
	if frame.Topic != "parley/hotword/default/detected" {
		t.Fatalf("topic: %s", frame.Topic)
	}
}
