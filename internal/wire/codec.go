package wire

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Namespace is the first level of every topic owned by the platform.
const Namespace = "parley"

const (
	topicStartSession        = Namespace + "/dialogue/startSession"
	topicSessionStarted      = Namespace + "/dialogue/sessionStarted"
	topicContinueSession     = Namespace + "/dialogue/continueSession"
	topicEndSession          = Namespace + "/dialogue/endSession"
	topicSessionEnded        = Namespace + "/dialogue/sessionEnded"
	topicStartListening      = Namespace + "/asr/startListening"
	topicStopListening       = Namespace + "/asr/stopListening"
	topicTextCaptured        = Namespace + "/asr/textCaptured"
	topicQuery               = Namespace + "/nlu/query"
	topicIntentNotRecognized = Namespace + "/nlu/intentNotRecognized"
	topicSay                 = Namespace + "/tts/say"
	topicSayFinished         = Namespace + "/tts/sayFinished"
	topicToggleOff           = Namespace + "/audioServer/toggleOff"
	topicToggleOn            = Namespace + "/audioServer/toggleOn"
)

const defaultWakewordID = "default"

// Routing carries the metadata extracted from a message's topic. Some fields
// (wakeword id, intent name, play request id) exist only here, never in the
// payload.
type Routing struct {
	Topic      string
	SiteID     string
	SessionID  string
	WakewordID string
	IntentName string
	RequestID  string
}

// FilterFor returns the subscription filter covering all topics of a kind.
func FilterFor(kind Kind) string {
	switch kind {
	case KindStartSession:
		return topicStartSession
	case KindSessionStarted:
		return topicSessionStarted
	case KindContinueSession:
		return topicContinueSession
	case KindEndSession:
		return topicEndSession
	case KindSessionEnded:
		return topicSessionEnded
	case KindHotwordDetected:
		return Namespace + "/hotword/+/detected"
	case KindStartListening:
		return topicStartListening
	case KindStopListening:
		return topicStopListening
	case KindTextCaptured:
		return topicTextCaptured
	case KindQuery:
		return topicQuery
	case KindIntent:
		return Namespace + "/intent/+"
	case KindIntentNotRecognized:
		return topicIntentNotRecognized
	case KindSay:
		return topicSay
	case KindSayFinished:
		return topicSayFinished
	case KindAudioFrame:
		return Namespace + "/audioServer/+/audioFrame"
	case KindPlayBytes:
		return Namespace + "/audioServer/+/playBytes/#"
	case KindPlayFinished:
		return Namespace + "/audioServer/+/playFinished"
	case KindToggleOff:
		return topicToggleOff
	case KindToggleOn:
		return topicToggleOn
	default:
		return ""
	}
}

// Encode maps a message to its canonical (topic, payload) pair.
func Encode(msg Message) (string, []byte, error) {
	switch m := msg.(type) {
	case HotwordDetected:
		wakeword := m.WakewordID
		if wakeword == "" {
			wakeword = defaultWakewordID
		}
		payload, err := json.Marshal(m)
		return Namespace + "/hotword/" + wakeword + "/detected", payload, err
	case Intent:
		if m.Intent.IntentName == "" {
			return "", nil, fmt.Errorf("wire: intent message without intent name")
		}
		payload, err := json.Marshal(m)
		return Namespace + "/intent/" + m.Intent.IntentName, payload, err
	case AudioFrame:
		if m.SiteID == "" {
			return "", nil, fmt.Errorf("wire: audio frame without site id")
		}
		return Namespace + "/audioServer/" + m.SiteID + "/audioFrame", m.Chunk, nil
	case PlayBytes:
		if m.SiteID == "" || m.RequestID == "" {
			return "", nil, fmt.Errorf("wire: playBytes needs site and request ids")
		}
		return Namespace + "/audioServer/" + m.SiteID + "/playBytes/" + m.RequestID, m.Bytes, nil
	case PlayFinished:
		if m.SiteID == "" {
			return "", nil, fmt.Errorf("wire: playFinished without site id")
		}
		payload, err := json.Marshal(m)
		return Namespace + "/audioServer/" + m.SiteID + "/playFinished", payload, err
	}

	topic := FilterFor(msg.Kind())
	if topic == "" || strings.ContainsAny(topic, "+#") {
		return "", nil, fmt.Errorf("wire: cannot encode message kind %q", msg.Kind())
	}
	payload, err := json.Marshal(msg)
	return topic, payload, err
}

// Decode maps a (topic, payload) pair back to a message plus its routing
// metadata. The boolean result is false for topics or payloads the codec does
// not recognize; such deliveries are dropped silently for forward
// compatibility.
func Decode(topic string, payload []byte) (Message, Routing, bool) {
	routing := Routing{Topic: topic}
	parts := strings.Split(topic, "/")
	if len(parts) < 3 || parts[0] != Namespace {
		return nil, routing, false
	}

	switch {
	case topic == topicStartSession:
		return decodeJSON[StartSession](payload, &routing, func(m StartSession, r *Routing) {
			r.SiteID = m.SiteID
		})
	case topic == topicSessionStarted:
		return decodeJSON[SessionStarted](payload, &routing, func(m SessionStarted, r *Routing) {
			r.SiteID = m.SiteID
			r.SessionID = m.SessionID
		})
	case topic == topicContinueSession:
		return decodeJSON[ContinueSession](payload, &routing, func(m ContinueSession, r *Routing) {
			r.SessionID = m.SessionID
		})
	case topic == topicEndSession:
		return decodeJSON[EndSession](payload, &routing, func(m EndSession, r *Routing) {
			r.SessionID = m.SessionID
		})
	case topic == topicSessionEnded:
		return decodeJSON[SessionEnded](payload, &routing, func(m SessionEnded, r *Routing) {
			r.SiteID = m.SiteID
			r.SessionID = m.SessionID
		})
	case topic == topicStartListening:
		return decodeJSON[StartListening](payload, &routing, func(m StartListening, r *Routing) {
			r.SiteID = m.SiteID
			r.SessionID = m.SessionID
		})
	case topic == topicStopListening:
		return decodeJSON[StopListening](payload, &routing, func(m StopListening, r *Routing) {
			r.SiteID = m.SiteID
			r.SessionID = m.SessionID
		})
	case topic == topicTextCaptured:
		return decodeJSON[TextCaptured](payload, &routing, func(m TextCaptured, r *Routing) {
			r.SiteID = m.SiteID
			r.SessionID = m.SessionID
			r.WakewordID = m.WakewordID
		})
	case topic == topicQuery:
		return decodeJSON[Query](payload, &routing, func(m Query, r *Routing) {
			r.SiteID = m.SiteID
			r.SessionID = m.SessionID
		})
	case topic == topicIntentNotRecognized:
		return decodeJSON[IntentNotRecognized](payload, &routing, func(m IntentNotRecognized, r *Routing) {
			r.SiteID = m.SiteID
			r.SessionID = m.SessionID
		})
	case topic == topicSay:
		return decodeJSON[Say](payload, &routing, func(m Say, r *Routing) {
			r.SiteID = m.SiteID
			r.SessionID = m.SessionID
		})
	case topic == topicSayFinished:
		return decodeJSON[SayFinished](payload, &routing, func(m SayFinished, r *Routing) {
			r.SiteID = m.SiteID
			r.SessionID = m.SessionID
			r.RequestID = m.ID
		})
	case topic == topicToggleOff:
		return decodeJSON[ToggleOff](payload, &routing, func(m ToggleOff, r *Routing) {
			r.SiteID = m.SiteID
		})
	case topic == topicToggleOn:
		return decodeJSON[ToggleOn](payload, &routing, func(m ToggleOn, r *Routing) {
			r.SiteID = m.SiteID
		})

	case len(parts) == 4 && parts[1] == "hotword" && parts[3] == "detected":
		msg, r, ok := decodeJSON[HotwordDetected](payload, &routing, func(m HotwordDetected, r *Routing) {
			r.SiteID = m.SiteID
		})
		if !ok {
			return nil, routing, false
		}
		detected := msg.(HotwordDetected)
		detected.WakewordID = parts[2]
		r.WakewordID = parts[2]
		return detected, r, true

	case len(parts) == 3 && parts[1] == "intent":
		msg, r, ok := decodeJSON[Intent](payload, &routing, func(m Intent, r *Routing) {
			r.SiteID = m.SiteID
			r.SessionID = m.SessionID
		})
		if !ok {
			return nil, routing, false
		}
		r.IntentName = parts[2]
		return msg, r, true

	case len(parts) == 4 && parts[1] == "audioServer" && parts[3] == "audioFrame":
		routing.SiteID = parts[2]
		return AudioFrame{SiteID: parts[2], Chunk: payload}, routing, true

	case len(parts) == 5 && parts[1] == "audioServer" && parts[3] == "playBytes":
		routing.SiteID = parts[2]
		routing.RequestID = parts[4]
		return PlayBytes{SiteID: parts[2], RequestID: parts[4], Bytes: payload}, routing, true

	case len(parts) == 4 && parts[1] == "audioServer" && parts[3] == "playFinished":
		msg, r, ok := decodeJSON[PlayFinished](payload, &routing, nil)
		if !ok {
			return nil, routing, false
		}
		finished := msg.(PlayFinished)
		finished.SiteID = parts[2]
		r.SiteID = parts[2]
		r.SessionID = finished.SessionID
		r.RequestID = finished.ID
		return finished, r, true
	}

	return nil, routing, false
}

func decodeJSON[T Message](payload []byte, routing *Routing, fill func(T, *Routing)) (Message, Routing, bool) {
	var msg T
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &msg); err != nil {
			return nil, *routing, false
		}
	}
	if fill != nil {
		fill(msg, routing)
	}
	return msg, *routing, true
}
