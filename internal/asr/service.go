// Package asr captures per-site audio streams between startListening and
// stopListening and publishes the recognized transcript.
package asr

import (
	"bytes"
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/parley-ai/parley/internal/wire"
)

// Transcript is the result of recognizing one captured utterance.
type Transcript struct {
	Text       string
	Likelihood float64
}

// Transcriber turns captured audio into text. The audio arrives exactly as
// chunked on the bus, concatenated; implementations must not assume any
// particular chunking.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (Transcript, error)
}

// TranscriberFunc adapts a function to the Transcriber interface.
type TranscriberFunc func(ctx context.Context, audio []byte) (Transcript, error)

// Transcribe invokes the underlying function.
func (f TranscriberFunc) Transcribe(ctx context.Context, audio []byte) (Transcript, error) {
	return f(ctx, audio)
}

type capture struct {
	sessionID  string
	wakewordID string
	buf        bytes.Buffer
	startedAt  time.Time
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

// WithTranscriber sets the recognition backend.
func WithTranscriber(t Transcriber) Option {
	return func(s *Service) {
		if t != nil {
			s.transcriber = t
		}
	}
}

// Service is the speech recognition front. It owns one capture buffer per
// actively listening site; frames for sites not listening are dropped.
type Service struct {
	client      *wire.Client
	transcriber Transcriber
	logger      *log.Logger

	mu       sync.Mutex
	captures map[string]*capture

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs the recognition service over a bus client.
func New(client *wire.Client, opts ...Option) *Service {
	s := &Service{
		client: client,
		transcriber: TranscriberFunc(func(ctx context.Context, audio []byte) (Transcript, error) {
			return Transcript{}, errors.New("asr: no transcriber configured")
		}),
		logger:   log.Default(),
		captures: make(map[string]*capture),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start subscribes to listening control and audio frames.
func (s *Service) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	_, err := s.client.Subscribe(
		wire.KindStartListening,
		wire.KindStopListening,
		wire.KindAudioFrame,
	)
	if err != nil {
		return err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.client.HandleMessages(s.ctx, s.handle); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Printf("[ASR] dispatch loop stopped: %v", err)
		}
	}()

	s.logger.Print("[ASR] recognition service started")
	return nil
}

// Shutdown stops message consumption. Capture buffers are discarded.
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

// Listening reports whether a site is currently being captured.
func (s *Service) Listening(siteID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.captures[siteID]
	return ok
}

func (s *Service) handle(ctx context.Context, in wire.Inbound) []wire.Message {
	switch m := in.Message.(type) {
	case wire.StartListening:
		s.mu.Lock()
		s.captures[m.SiteID] = &capture{
			sessionID:  m.SessionID,
			wakewordID: in.Routing.WakewordID,
			startedAt:  time.Now(),
		}
		s.mu.Unlock()
		s.logger.Printf("[ASR] listening on %s (session %s)", m.SiteID, m.SessionID)

	case wire.AudioFrame:
		s.mu.Lock()
		if c, ok := s.captures[m.SiteID]; ok {
			c.buf.Write(m.Chunk)
		}
		s.mu.Unlock()

	case wire.StopListening:
		s.mu.Lock()
		c, ok := s.captures[m.SiteID]
		if ok {
			delete(s.captures, m.SiteID)
		}
		s.mu.Unlock()
		if !ok {
			s.logger.Printf("[ASR] stopListening for idle site %s ignored", m.SiteID)
			return nil
		}
		return s.finish(ctx, m.SiteID, c)
	}
	return nil
}

func (s *Service) finish(ctx context.Context, siteID string, c *capture) []wire.Message {
	result, err := s.transcriber.Transcribe(ctx, c.buf.Bytes())
	if err != nil {
		s.logger.Printf("[ASR] transcription on %s failed: %v", siteID, err)
		return nil
	}

	return []wire.Message{wire.TextCaptured{
		Text:       result.Text,
		Likelihood: result.Likelihood,
		Seconds:    time.Since(c.startedAt).Seconds(),
		SiteID:     siteID,
		SessionID:  c.sessionID,
		WakewordID: c.wakewordID,
	}}
}
