package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/parley-ai/parley/internal/audioio"
	"github.com/parley-ai/parley/internal/profile/store"
	"github.com/parley-ai/parley/internal/tts"
	"github.com/parley-ai/parley/internal/version"
	"github.com/parley-ai/parley/internal/wire"
)

// audioFrameSize is the chunk size used when replaying uploaded audio onto
// the bus. Consumers accept arbitrary chunking.
const audioFrameSize = 4096

func (s *APIServer) handleTextToSpeech(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	if s.speaker == nil {
		writeError(w, http.StatusServiceUnavailable, "text to speech unavailable")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}

	repeat := r.URL.Query().Get("repeat") == "true"
	text := strings.TrimSpace(string(body))
	if text == "" && !repeat {
		writeError(w, http.StatusBadRequest, "empty text")
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	audio, err := s.speaker.Speak(ctx, tts.SpeakRequest{
		Text:      text,
		Lang:      r.URL.Query().Get("lang"),
		SiteID:    s.site(r),
		SessionID: r.URL.Query().Get("sessionId"),
		Mute:      r.URL.Query().Get("mute") == "true",
		Repeat:    repeat,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.WriteHeader(http.StatusOK)
	w.Write(audio)
}

func (s *APIServer) handleTextToIntent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		writeError(w, http.StatusBadRequest, "empty text")
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	waiter, err := wire.NewWaiter(s.client, wire.KindIntent, wire.KindIntentNotRecognized)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer waiter.Close()

	queryID := uuid.NewString()
	if err := s.client.Publish(ctx, wire.Query{
		Input:     text,
		ID:        queryID,
		SiteID:    s.site(r),
		SessionID: r.URL.Query().Get("sessionId"),
	}); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	in, err := waiter.Wait(ctx, func(in wire.Inbound) bool {
		switch m := in.Message.(type) {
		case wire.Intent:
			return m.ID == queryID
		case wire.IntentNotRecognized:
			return m.Input == text
		}
		return false
	})
	if err != nil {
		writeError(w, http.StatusGatewayTimeout, "no recognition reply: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, in.Message)
}

// replayAudio streams an uploaded WAV onto the bus between a listening
// start/stop pair, then hands back to the caller to await the outcome.
func (s *APIServer) replayAudio(r *http.Request, siteID, sessionID string, audio []byte) error {
	ctx := r.Context()
	if err := s.client.Publish(ctx, wire.StartListening{SiteID: siteID, SessionID: sessionID}); err != nil {
		return err
	}
	for offset := 0; offset < len(audio); offset += audioFrameSize {
		end := offset + audioFrameSize
		if end > len(audio) {
			end = len(audio)
		}
		if err := s.client.Publish(ctx, wire.AudioFrame{SiteID: siteID, Chunk: audio[offset:end]}); err != nil {
			return err
		}
	}
	return s.client.Publish(ctx, wire.StopListening{SiteID: siteID, SessionID: sessionID})
}

func (s *APIServer) readWAVBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return nil, false
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return nil, false
	}
	if _, err := audioio.NewReader(bytes.NewReader(body)); err != nil {
		writeError(w, http.StatusBadRequest, "invalid wav: "+err.Error())
		return nil, false
	}
	return body, true
}

func (s *APIServer) handleSpeechToText(w http.ResponseWriter, r *http.Request) {
	audio, ok := s.readWAVBody(w, r)
	if !ok {
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	waiter, err := wire.NewWaiter(s.client, wire.KindTextCaptured)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer waiter.Close()

	siteID := s.site(r)
	sessionID := r.URL.Query().Get("sessionId")
	if err := s.replayAudio(r, siteID, sessionID, audio); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	in, err := waiter.Wait(ctx, func(in wire.Inbound) bool {
		return in.Routing.SiteID == siteID
	})
	if err != nil {
		writeError(w, http.StatusGatewayTimeout, "no transcript: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, in.Message)
}

func (s *APIServer) handleSpeechToIntent(w http.ResponseWriter, r *http.Request) {
	audio, ok := s.readWAVBody(w, r)
	if !ok {
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	waiter, err := wire.NewWaiter(s.client, wire.KindIntent, wire.KindIntentNotRecognized)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer waiter.Close()

	siteID := s.site(r)
	if err := s.replayAudio(r, siteID, r.URL.Query().Get("sessionId"), audio); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	in, err := waiter.Wait(ctx, func(in wire.Inbound) bool {
		return in.Routing.SiteID == siteID
	})
	if err != nil {
		writeError(w, http.StatusGatewayTimeout, "no recognition reply: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, in.Message)
}

type startSessionRequest struct {
	SiteID        string `json:"siteId"`
	CustomData    string `json:"customData,omitempty"`
	CanBeEnqueued bool   `json:"canBeEnqueued,omitempty"`
}

func (s *APIServer) handleStartSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "decode request: "+err.Error())
		return
	}
	if req.SiteID == "" {
		req.SiteID = s.baseSite
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	waiter, err := wire.NewWaiter(s.client, wire.KindSessionStarted)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer waiter.Close()

	if err := s.client.Publish(ctx, wire.StartSession{
		Init:       wire.SessionInit{Type: "action", CanBeEnqueued: req.CanBeEnqueued},
		SiteID:     req.SiteID,
		CustomData: req.CustomData,
	}); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	in, err := waiter.Wait(ctx, func(in wire.Inbound) bool {
		return in.Routing.SiteID == req.SiteID
	})
	if err != nil {
		writeError(w, http.StatusConflict, "session not started: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, in.Message)
}

type endSessionRequest struct {
	SessionID  string `json:"sessionId"`
	CustomData string `json:"customData,omitempty"`
}

func (s *APIServer) handleEndSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req endSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "decode request: "+err.Error())
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "sessionId required")
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	waiter, err := wire.NewWaiter(s.client, wire.KindSessionEnded)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer waiter.Close()

	if err := s.client.Publish(ctx, wire.EndSession{
		SessionID:  req.SessionID,
		CustomData: req.CustomData,
	}); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	in, err := waiter.Wait(ctx, func(in wire.Inbound) bool {
		return in.Routing.SessionID == req.SessionID
	})
	if err != nil {
		writeError(w, http.StatusNotFound, "session not ended: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, in.Message)
}

type sessionView struct {
	SessionID  string `json:"sessionId"`
	SiteID     string `json:"siteId"`
	CustomData string `json:"customData,omitempty"`
	State      string `json:"state"`
}

func (s *APIServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}
	if s.sessions == nil {
		writeError(w, http.StatusServiceUnavailable, "session registry unavailable")
		return
	}

	live := s.sessions.Snapshot()
	views := make([]sessionView, 0, len(live))
	for _, session := range live {
		views = append(views, sessionView{
			SessionID:  session.ID,
			SiteID:     session.SiteID,
			CustomData: session.CustomData,
			State:      string(session.State),
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *APIServer) handleSlotsRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}
	if s.profile == nil {
		writeError(w, http.StatusServiceUnavailable, "profile store unavailable")
		return
	}

	slots, err := s.profile.Slots(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, slots)
}

func (s *APIServer) handleSlot(w http.ResponseWriter, r *http.Request) {
	if s.profile == nil {
		writeError(w, http.StatusServiceUnavailable, "profile store unavailable")
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/api/slots/")
	if name == "" || strings.Contains(name, "/") {
		writeError(w, http.StatusBadRequest, "slot name required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		values, err := s.profile.SlotValues(r.Context(), name)
		if err != nil {
			status := http.StatusInternalServerError
			if store.IsNotFound(err) {
				status = http.StatusNotFound
			}
			writeError(w, status, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, values)

	case http.MethodPost:
		var values []string
		if err := json.NewDecoder(r.Body).Decode(&values); err != nil {
			writeError(w, http.StatusBadRequest, "decode values: "+err.Error())
			return
		}
		if err := s.profile.ReplaceSlot(r.Context(), name, values); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})

	case http.MethodDelete:
		if err := s.profile.DeleteSlot(r.Context(), name); err != nil {
			status := http.StatusInternalServerError
			if store.IsNotFound(err) {
				status = http.StatusNotFound
			}
			writeError(w, status, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})

	default:
		writeError(w, http.StatusMethodNotAllowed, "GET, POST or DELETE required")
	}
}

func (s *APIServer) handleSentencesRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}
	if s.profile == nil {
		writeError(w, http.StatusServiceUnavailable, "profile store unavailable")
		return
	}

	sentences, err := s.profile.Sentences(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sentences)
}

func (s *APIServer) handleSentences(w http.ResponseWriter, r *http.Request) {
	if s.profile == nil {
		writeError(w, http.StatusServiceUnavailable, "profile store unavailable")
		return
	}
	intent := strings.TrimPrefix(r.URL.Path, "/api/sentences/")
	if intent == "" || strings.Contains(intent, "/") {
		writeError(w, http.StatusBadRequest, "intent name required")
		return
	}

	switch r.Method {
	case http.MethodPost:
		var templates []string
		if err := json.NewDecoder(r.Body).Decode(&templates); err != nil {
			writeError(w, http.StatusBadRequest, "decode templates: "+err.Error())
			return
		}
		if err := s.profile.ReplaceSentences(r.Context(), intent, templates); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})

	case http.MethodDelete:
		if err := s.profile.DeleteSentences(r.Context(), intent); err != nil {
			status := http.StatusInternalServerError
			if store.IsNotFound(err) {
				status = http.StatusNotFound
			}
			writeError(w, status, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})

	default:
		writeError(w, http.StatusMethodNotAllowed, "POST or DELETE required")
	}
}

func (s *APIServer) handleTrain(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	if s.trainer == nil {
		writeError(w, http.StatusServiceUnavailable, "trainer unavailable")
		return
	}

	if err := s.trainer.Train(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"templates": s.trainer.Recognizer().TemplateCount(),
	})
}

func (s *APIServer) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": version.String()})
}

func (s *APIServer) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.exporter == nil {
		writeError(w, http.StatusServiceUnavailable, "metrics unavailable")
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	w.Write(s.exporter.Export())
}
