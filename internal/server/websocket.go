package server

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/parley-ai/parley/internal/mqtt"
	"github.com/parley-ai/parley/internal/wire"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsSendBuffer   = 64
)

// EventFrame is the JSON shape of one bridged bus message. Payload keeps the
// external camelCase field spelling; binary payloads are base64-encoded with
// the encoding noted.
type EventFrame struct {
	Topic    string          `json:"topic"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Data     string          `json:"data,omitempty"`
	Encoding string          `json:"encoding,omitempty"`
}

func (s *APIServer) handleEventsText(w http.ResponseWriter, r *http.Request) {
	s.bridge(w, r, []string{wire.FilterFor(wire.KindTextCaptured)}, false)
}

func (s *APIServer) handleEventsIntent(w http.ResponseWriter, r *http.Request) {
	s.bridge(w, r, []string{
		wire.FilterFor(wire.KindIntent),
		wire.FilterFor(wire.KindIntentNotRecognized),
	}, false)
}

func (s *APIServer) handleEventsWake(w http.ResponseWriter, r *http.Request) {
	s.bridge(w, r, []string{wire.FilterFor(wire.KindHotwordDetected)}, false)
}

// handleTopicBridge is the raw bridge: the path names a topic filter and the
// socket carries every matching message, plus inbound frames to publish.
func (s *APIServer) handleTopicBridge(w http.ResponseWriter, r *http.Request) {
	filter := strings.TrimPrefix(r.URL.Path, "/api/mqtt/")
	if filter == "" {
		writeError(w, http.StatusBadRequest, "topic filter required")
		return
	}
	s.bridge(w, r, []string{filter}, true)
}

// bridge upgrades the request and pumps matching bus messages out as JSON
// frames. When writable, inbound frames are published back to the bus.
func (s *APIServer) bridge(w http.ResponseWriter, r *http.Request, filters []string, writable bool) {
	sub, err := s.transport.SubscribeWith(filters, []mqtt.SubscriptionOption{
		mqtt.WithSubscriptionName("ws-bridge"),
		mqtt.WithSubscriptionBuffer(wsSendBuffer),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		sub.Close()
		s.logger.Printf("[APIServer] websocket upgrade failed: %v", err)
		return
	}

	done := make(chan struct{})

	// Read side. A writable bridge publishes inbound frames; otherwise the
	// loop exists only to notice the peer going away.
	go func() {
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if !writable {
				continue
			}
			var frame EventFrame
			if err := json.Unmarshal(data, &frame); err != nil || frame.Topic == "" {
				continue
			}
			payload := []byte(frame.Payload)
			if frame.Encoding == "base64" {
				decoded, err := base64.StdEncoding.DecodeString(frame.Data)
				if err != nil {
					continue
				}
				payload = decoded
			}
			if err := s.transport.Publish(r.Context(), frame.Topic, payload); err != nil {
				s.logger.Printf("[APIServer] bridge publish to %s failed: %v", frame.Topic, err)
			}
		}
	}()

	defer func() {
		sub.Close()
		conn.Close()
	}()

	for {
		select {
		case <-done:
			return
		case d, ok := <-sub.C():
			if !ok {
				return
			}
			frame := EventFrame{Topic: d.Topic}
			if json.Valid(d.Payload) && utf8.Valid(d.Payload) {
				frame.Payload = json.RawMessage(d.Payload)
			} else {
				frame.Data = base64.StdEncoding.EncodeToString(d.Payload)
				frame.Encoding = "base64"
			}

			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
		}
	}
}
