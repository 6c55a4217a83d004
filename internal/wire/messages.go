// Package wire defines the discriminated set of messages exchanged on the
// bus, their canonical topics, and a client that dispatches decoded messages
// to handlers. JSON field names use the external camelCase spelling; the same
// spelling is exposed unchanged through the HTTP and WebSocket facades.
package wire

// Kind discriminates wire message types.
type Kind string

const (
	KindStartSession        Kind = "dialogue.startSession"
	KindSessionStarted      Kind = "dialogue.sessionStarted"
	KindContinueSession     Kind = "dialogue.continueSession"
	KindEndSession          Kind = "dialogue.endSession"
	KindSessionEnded        Kind = "dialogue.sessionEnded"
	KindHotwordDetected     Kind = "hotword.detected"
	KindStartListening      Kind = "asr.startListening"
	KindStopListening       Kind = "asr.stopListening"
	KindTextCaptured        Kind = "asr.textCaptured"
	KindQuery               Kind = "nlu.query"
	KindIntent              Kind = "nlu.intent"
	KindIntentNotRecognized Kind = "nlu.intentNotRecognized"
	KindSay                 Kind = "tts.say"
	KindSayFinished         Kind = "tts.sayFinished"
	KindAudioFrame          Kind = "audio.frame"
	KindPlayBytes           Kind = "audio.playBytes"
	KindPlayFinished        Kind = "audio.playFinished"
	KindToggleOff           Kind = "audio.toggleOff"
	KindToggleOn            Kind = "audio.toggleOn"
)

// Message is implemented by every wire message.
type Message interface {
	Kind() Kind
}

// TerminationReason enumerates why a dialogue session ended.
type TerminationReason string

const (
	ReasonSuccess             TerminationReason = "success"
	ReasonTimeout             TerminationReason = "timeout"
	ReasonIntentNotRecognized TerminationReason = "intentNotRecognized"
	ReasonAbortedManually     TerminationReason = "abortedManually"
	ReasonError               TerminationReason = "error"
)

// Termination records the cause attached to every ended session.
type Termination struct {
	Reason TerminationReason `json:"reason"`
}

// SessionInit describes how a requested session should begin.
type SessionInit struct {
	Type          string `json:"type,omitempty"`
	Text          string `json:"text,omitempty"`
	CanBeEnqueued bool   `json:"canBeEnqueued"`
}

// StartSession requests a new dialogue session on a site.
type StartSession struct {
	Init       SessionInit `json:"init"`
	SiteID     string      `json:"siteId"`
	CustomData string      `json:"customData,omitempty"`
}

func (StartSession) Kind() Kind { return KindStartSession }

// SessionStarted announces that a session was created.
type SessionStarted struct {
	SessionID  string `json:"sessionId"`
	SiteID     string `json:"siteId"`
	CustomData string `json:"customData,omitempty"`
}

func (SessionStarted) Kind() Kind { return KindSessionStarted }

// ContinueSession re-arms listening for an active session. A non-empty
// CustomData replaces the session's stored value.
type ContinueSession struct {
	SessionID  string `json:"sessionId"`
	Text       string `json:"text,omitempty"`
	CustomData string `json:"customData,omitempty"`
}

func (ContinueSession) Kind() Kind { return KindContinueSession }

// EndSession requests explicit termination of a session.
type EndSession struct {
	SessionID  string `json:"sessionId"`
	Text       string `json:"text,omitempty"`
	CustomData string `json:"customData,omitempty"`
}

func (EndSession) Kind() Kind { return KindEndSession }

// SessionEnded announces that a session reached a terminal state.
type SessionEnded struct {
	SessionID   string      `json:"sessionId"`
	SiteID      string      `json:"siteId"`
	CustomData  string      `json:"customData,omitempty"`
	Termination Termination `json:"termination"`
}

func (SessionEnded) Kind() Kind { return KindSessionEnded }

// HotwordDetected signals a trigger phrase on a site's audio stream.
// The wakeword id travels in the topic only.
type HotwordDetected struct {
	ModelID    string `json:"modelId"`
	SiteID     string `json:"siteId"`
	WakewordID string `json:"-"`
}

func (HotwordDetected) Kind() Kind { return KindHotwordDetected }

// StartListening asks the speech recognizer to begin capturing a site.
type StartListening struct {
	SiteID    string `json:"siteId"`
	SessionID string `json:"sessionId,omitempty"`
}

func (StartListening) Kind() Kind { return KindStartListening }

// StopListening asks the speech recognizer to finish capturing a site.
type StopListening struct {
	SiteID    string `json:"siteId"`
	SessionID string `json:"sessionId,omitempty"`
}

func (StopListening) Kind() Kind { return KindStopListening }

// TextCaptured delivers a recognized transcript.
type TextCaptured struct {
	Text       string  `json:"text"`
	Likelihood float64 `json:"likelihood"`
	Seconds    float64 `json:"seconds"`
	SiteID     string  `json:"siteId"`
	SessionID  string  `json:"sessionId,omitempty"`
	WakewordID string  `json:"wakewordId,omitempty"`
}

func (TextCaptured) Kind() Kind { return KindTextCaptured }

// Query asks the language understanding service to interpret text.
type Query struct {
	Input     string `json:"input"`
	ID        string `json:"id,omitempty"`
	SiteID    string `json:"siteId"`
	SessionID string `json:"sessionId,omitempty"`
}

func (Query) Kind() Kind { return KindQuery }

// IntentSpec names a recognized intent with its confidence.
type IntentSpec struct {
	IntentName      string  `json:"intentName"`
	ConfidenceScore float64 `json:"confidenceScore"`
}

// SlotValue is the structured slot value form. Value is at minimum a scalar
// under the "value" key; Kind optionally names the value type.
type SlotValue struct {
	Kind  string `json:"kind,omitempty"`
	Value any    `json:"value"`
}

// Slot is a named, typed value extracted from recognized text.
type Slot struct {
	Entity     string    `json:"entity"`
	SlotName   string    `json:"slotName"`
	Value      SlotValue `json:"value"`
	Confidence float64   `json:"confidence"`
	RawValue   string    `json:"rawValue"`
}

// Intent delivers a recognized intent. The intent name also travels in the
// topic so subscribers can filter without decoding payloads.
type Intent struct {
	Input      string     `json:"input"`
	RawInput   string     `json:"rawInput,omitempty"`
	ID         string     `json:"id,omitempty"`
	Intent     IntentSpec `json:"intent"`
	Slots      []Slot     `json:"slots"`
	SiteID     string     `json:"siteId"`
	SessionID  string     `json:"sessionId,omitempty"`
	CustomData string     `json:"customData,omitempty"`
	WakewordID string     `json:"wakewordId,omitempty"`
}

func (Intent) Kind() Kind { return KindIntent }

// IntentNotRecognized reports that no intent matched the input. This is a
// normal terminal outcome for a dialogue session, not an error.
type IntentNotRecognized struct {
	Input      string `json:"input"`
	SiteID     string `json:"siteId"`
	SessionID  string `json:"sessionId,omitempty"`
	CustomData string `json:"customData,omitempty"`
}

func (IntentNotRecognized) Kind() Kind { return KindIntentNotRecognized }

// Say requests speech synthesis and playback of text on a site.
type Say struct {
	Text      string `json:"text"`
	Lang      string `json:"lang,omitempty"`
	ID        string `json:"id,omitempty"`
	SiteID    string `json:"siteId"`
	SessionID string `json:"sessionId,omitempty"`
}

func (Say) Kind() Kind { return KindSay }

// SayFinished acknowledges that a say request completed playback.
type SayFinished struct {
	ID        string `json:"id,omitempty"`
	SiteID    string `json:"siteId"`
	SessionID string `json:"sessionId,omitempty"`
}

func (SayFinished) Kind() Kind { return KindSayFinished }

// AudioFrame carries one raw audio chunk from a site. Binary payload; the
// site id travels in the topic.
type AudioFrame struct {
	SiteID string `json:"-"`
	Chunk  []byte `json:"-"`
}

func (AudioFrame) Kind() Kind { return KindAudioFrame }

// PlayBytes carries synthesized audio for playback at a site. Binary payload;
// site and request ids travel in the topic.
type PlayBytes struct {
	SiteID    string `json:"-"`
	RequestID string `json:"-"`
	Bytes     []byte `json:"-"`
}

func (PlayBytes) Kind() Kind { return KindPlayBytes }

// PlayFinished acknowledges that a PlayBytes request finished playing.
type PlayFinished struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId,omitempty"`
	SiteID    string `json:"-"`
}

func (PlayFinished) Kind() Kind { return KindPlayFinished }

// ToggleOff mutes a site's normal audio output.
type ToggleOff struct {
	SiteID string `json:"siteId"`
}

func (ToggleOff) Kind() Kind { return KindToggleOff }

// ToggleOn restores a site's normal audio output.
type ToggleOn struct {
	SiteID string `json:"siteId"`
}

func (ToggleOn) Kind() Kind { return KindToggleOn }
