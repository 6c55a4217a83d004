package asr_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/parley-ai/parley/internal/asr"
	"github.com/parley-ai/parley/internal/mqtt"
	"github.com/parley-ai/parley/internal/wire"
)

func newService(t *testing.T, transcriber asr.Transcriber) (*mqtt.Broker, *asr.Service, *wire.Client) {
	t.Helper()

	broker := mqtt.NewBroker()
	if err := broker.Connect(context.Background()); err != nil {
		t.Fatalf("connect broker: %v", err)
	}
	t.Cleanup(broker.Disconnect)

	service := asr.New(wire.NewClient("asr", broker), asr.WithTranscriber(transcriber))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := service.Start(ctx); err != nil {
		t.Fatalf("start service: %v", err)
	}
	t.Cleanup(func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
		defer shutdownCancel()
		service.Shutdown(shutdownCtx)
	})

	return broker, service, wire.NewClient("test", broker)
}

func TestCaptureAcceptsArbitraryChunking(t *testing.T) {
	var captured []byte
	transcriber := asr.TranscriberFunc(func(ctx context.Context, audio []byte) (asr.Transcript, error) {
		captured = append([]byte(nil), audio...)
		return asr.Transcript{Text: "turn on the light", Likelihood: 0.87}, nil
	})

	_, _, api := newService(t, transcriber)
	ctx := context.Background()

	waiter, err := wire.NewWaiter(api, wire.KindTextCaptured)
	if err != nil {
		t.Fatalf("waiter: %v", err)
	}
	defer waiter.Close()

	if err := api.Publish(ctx, wire.StartListening{SiteID: "default", SessionID: "ses-1"}); err != nil {
		t.Fatalf("publish startListening: %v", err)
	}

	// Audio arrives in uneven chunks; only concatenation matters.
	chunks := [][]byte{{1, 2, 3}, {4}, {5, 6, 7, 8, 9}}
	for _, chunk := range chunks {
		if err := api.Publish(ctx, wire.AudioFrame{SiteID: "default", Chunk: chunk}); err != nil {
			t.Fatalf("publish frame: %v", err)
		}
	}

	if err := api.Publish(ctx, wire.StopListening{SiteID: "default", SessionID: "ses-1"}); err != nil {
		t.Fatalf("publish stopListening: %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	in, err := waiter.Wait(waitCtx, func(in wire.Inbound) bool {
		return in.Routing.SiteID == "default"
	})
	if err != nil {
		t.Fatalf("wait: %v", err)
	}

	msg := in.Message.(wire.TextCaptured)
	if msg.Text != "turn on the light" || msg.SessionID != "ses-1" {
		t.Fatalf("unexpected transcript: %+v", msg)
	}
	if !bytes.Equal(captured, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9}) {
		t.Fatalf("chunks not concatenated in order: %v", captured)
	}
}

func TestFramesForIdleSiteDropped(t *testing.T) {
	transcriber := asr.TranscriberFunc(func(ctx context.Context, audio []byte) (asr.Transcript, error) {
		t.Error("transcriber invoked for idle site")
		return asr.Transcript{}, nil
	})

	_, service, api := newService(t, transcriber)
	ctx := context.Background()

	if err := api.Publish(ctx, wire.AudioFrame{SiteID: "satellite1", Chunk: []byte{1, 2}}); err != nil {
		t.Fatalf("publish frame: %v", err)
	}
	if err := api.Publish(ctx, wire.StopListening{SiteID: "satellite1"}); err != nil {
		t.Fatalf("publish stopListening: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if service.Listening("satellite1") {
		t.Fatal("idle site reported as listening")
	}
}

func TestListeningStateTracksSites(t *testing.T) {
	transcriber := asr.TranscriberFunc(func(ctx context.Context, audio []byte) (asr.Transcript, error) {
		return asr.Transcript{Text: "ok"}, nil
	})

	_, service, api := newService(t, transcriber)
	ctx := context.Background()

	if err := api.Publish(ctx, wire.StartListening{SiteID: "default"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for !service.Listening("default") {
		if time.Now().After(deadline) {
			t.Fatal("site never entered listening state")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if service.Listening("satellite1") {
		t.Fatal("unrelated site listening")
	}
}
