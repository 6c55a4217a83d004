// Package tts sequences say requests into synthesis, playback and
// completion acknowledgments on the bus.
package tts

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parley-ai/parley/internal/audioio"
	"github.com/parley-ai/parley/internal/wire"
)

var (
	// ErrNothingToRepeat is returned for a repeat request on a site that
	// never spoke.
	ErrNothingToRepeat = errors.New("tts: no previous utterance for site")
)

// DefaultPlayTimeout bounds the wait for a playback acknowledgment. A site
// that never acknowledges still gets its sayFinished, just late.
const DefaultPlayTimeout = 10 * time.Second

// Synthesizer turns text into a complete WAV payload.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, lang string) ([]byte, error)
}

// SynthesizerFunc adapts a function to the Synthesizer interface.
type SynthesizerFunc func(ctx context.Context, text, lang string) ([]byte, error)

// Synthesize invokes the underlying function.
func (f SynthesizerFunc) Synthesize(ctx context.Context, text, lang string) ([]byte, error) {
	return f(ctx, text, lang)
}

// ToneSynthesizer is the built-in placeholder backend. It renders a short
// deterministic tone whose pitch derives from the text, which keeps
// byte-identity guarantees testable without a real voice model.
type ToneSynthesizer struct {
	Format audioio.Format
}

// Synthesize renders the tone for a text.
func (t ToneSynthesizer) Synthesize(_ context.Context, text, _ string) ([]byte, error) {
	format := t.Format
	if format.SampleRate == 0 {
		format = audioio.DefaultFormat
	}

	h := fnv.New32a()
	h.Write([]byte(text))
	freq := 220 + float64(h.Sum32()%660)

	d := 80*time.Millisecond + time.Duration(len(text))*4*time.Millisecond
	return audioio.Encode(format, audioio.Sine(format, freq, d))
}

// Option configures the Service.
type Option func(*Service)

// WithLogger overrides the default logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSynthesizer sets the synthesis backend.
func WithSynthesizer(synth Synthesizer) Option {
	return func(s *Service) {
		if synth != nil {
			s.synth = synth
		}
	}
}

// WithPlayTimeout overrides the playback acknowledgment wait.
func WithPlayTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.playTimeout = d
		}
	}
}

// Service consumes say requests and produces the playback event sequence:
// playBytes for the site, then sayFinished once the site acknowledges with
// playFinished (or the wait times out). The most recent utterance per site is
// cached so a repeat request replays identical bytes without re-synthesis.
type Service struct {
	client      *wire.Client
	synth       Synthesizer
	logger      *log.Logger
	playTimeout time.Duration

	mu      sync.Mutex
	last    map[string][]byte
	pending map[string]chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs the playback coordinator over a bus client.
func New(client *wire.Client, opts ...Option) *Service {
	s := &Service{
		client:      client,
		synth:       ToneSynthesizer{},
		logger:      log.Default(),
		playTimeout: DefaultPlayTimeout,
		last:        make(map[string][]byte),
		pending:     make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start subscribes to say requests and playback acknowledgments.
func (s *Service) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	if _, err := s.client.Subscribe(wire.KindSay, wire.KindPlayFinished); err != nil {
		return err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.client.HandleMessages(s.ctx, s.handle); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Printf("[TTS] dispatch loop stopped: %v", err)
		}
	}()

	s.logger.Print("[TTS] playback coordinator started")
	return nil
}

// Shutdown stops message consumption and waits for in-flight utterances.
func (s *Service) Shutdown(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LastUtterance returns the cached audio last played on a site.
func (s *Service) LastUtterance(siteID string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	audio, ok := s.last[siteID]
	return audio, ok
}

func (s *Service) handle(ctx context.Context, in wire.Inbound) []wire.Message {
	switch m := in.Message.(type) {
	case wire.Say:
		// The utterance pipeline waits for playFinished, which arrives on
		// this same dispatch loop, so it runs in its own goroutine.
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.utter(s.ctx, m); err != nil {
				s.logger.Printf("[TTS] say on %s failed: %v", m.SiteID, err)
			}
		}()

	case wire.PlayFinished:
		s.mu.Lock()
		waiter, ok := s.pending[m.ID]
		if ok {
			delete(s.pending, m.ID)
		}
		s.mu.Unlock()
		if ok {
			close(waiter)
		}
	}
	return nil
}

// utter runs one say request through synthesis and playback. An empty text is
// a repeat request and replays the cached utterance.
func (s *Service) utter(ctx context.Context, m wire.Say) error {
	var audio []byte
	if m.Text == "" {
		cached, ok := s.LastUtterance(m.SiteID)
		if !ok {
			return fmt.Errorf("%w: %s", ErrNothingToRepeat, m.SiteID)
		}
		audio = cached
	} else {
		synthesized, err := s.synth.Synthesize(ctx, m.Text, m.Lang)
		if err != nil {
			return fmt.Errorf("synthesize: %w", err)
		}
		audio = synthesized
		s.mu.Lock()
		s.last[m.SiteID] = audio
		s.mu.Unlock()
	}

	requestID := m.ID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	waiter := make(chan struct{})
	s.mu.Lock()
	s.pending[requestID] = waiter
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, requestID)
		s.mu.Unlock()
	}()

	err := s.client.Publish(ctx, wire.PlayBytes{
		SiteID:    m.SiteID,
		RequestID: requestID,
		Bytes:     audio,
	})
	if err != nil {
		return fmt.Errorf("publish playBytes: %w", err)
	}

	select {
	case <-waiter:
	case <-time.After(s.playTimeout):
		s.logger.Printf("[TTS] no playFinished for %s on %s, finishing anyway", requestID, m.SiteID)
	case <-ctx.Done():
		return ctx.Err()
	}

	return s.client.Publish(ctx, wire.SayFinished{
		ID:        requestID,
		SiteID:    m.SiteID,
		SessionID: m.SessionID,
	})
}

// SpeakRequest is the façade-level form of an utterance.
type SpeakRequest struct {
	Text      string
	Lang      string
	SiteID    string
	SessionID string
	Mute      bool
	Repeat    bool
}

// Speak drives a full utterance from the caller's side: optional output
// muting, the say request, the wait for its sayFinished, and unmuting. The
// returned bytes are the audio that was played, for callers that also want
// the payload (the HTTP endpoint returns it as the response body).
func (s *Service) Speak(ctx context.Context, req SpeakRequest) ([]byte, error) {
	if req.SiteID == "" {
		req.SiteID = "default"
	}

	waiter, err := wire.NewWaiter(s.client, wire.KindSayFinished)
	if err != nil {
		return nil, err
	}
	defer waiter.Close()

	if req.Mute {
		if err := s.client.Publish(ctx, wire.ToggleOff{SiteID: req.SiteID}); err != nil {
			return nil, err
		}
	}

	requestID := uuid.NewString()
	text := req.Text
	if req.Repeat {
		text = ""
	}
	err = s.client.Publish(ctx, wire.Say{
		Text:      text,
		Lang:      req.Lang,
		ID:        requestID,
		SiteID:    req.SiteID,
		SessionID: req.SessionID,
	})
	if err != nil {
		return nil, err
	}

	if _, err := waiter.Wait(ctx, func(in wire.Inbound) bool {
		finished, ok := in.Message.(wire.SayFinished)
		return ok && finished.ID == requestID
	}); err != nil {
		return nil, err
	}

	if req.Mute {
		if err := s.client.Publish(ctx, wire.ToggleOn{SiteID: req.SiteID}); err != nil {
			return nil, err
		}
	}

	audio, ok := s.LastUtterance(req.SiteID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNothingToRepeat, req.SiteID)
	}
	return audio, nil
}
