package nlu

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/parley-ai/parley/internal/wire"
)

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

// Service answers nlu queries on the bus. Every query gets exactly one
// reply: an intent on the intent's own topic, or a non-recognition.
type Service struct {
	client     *wire.Client
	recognizer *Recognizer
	source     Source
	logger     *log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs the understanding service over a bus client. A nil source
// leaves the recognizer untrained until Train is called with one.
func New(client *wire.Client, source Source, opts ...Option) *Service {
	s := &Service{
		client:     client,
		recognizer: NewRecognizer(),
		source:     source,
		logger:     log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Recognizer exposes the active recognizer.
func (s *Service) Recognizer() *Recognizer {
	return s.recognizer
}

// Train (re)compiles templates from the configured source.
func (s *Service) Train(ctx context.Context) error {
	if s.source == nil {
		return errors.New("nlu: no training source configured")
	}
	if err := s.recognizer.Train(ctx, s.source); err != nil {
		return err
	}
	s.logger.Printf("[NLU] trained %d templates", s.recognizer.TemplateCount())
	return nil
}

// Start trains from the source when one is configured, then subscribes to
// queries.
func (s *Service) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	if s.source != nil {
		if err := s.Train(ctx); err != nil {
			return err
		}
	}

	if _, err := s.client.Subscribe(wire.KindQuery); err != nil {
		return err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.client.HandleMessages(s.ctx, s.handle); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Printf("[NLU] dispatch loop stopped: %v", err)
		}
	}()

	s.logger.Print("[NLU] understanding service started")
	return nil
}

// Shutdown stops message consumption.
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

func (s *Service) handle(ctx context.Context, in wire.Inbound) []wire.Message {
	query, ok := in.Message.(wire.Query)
	if !ok {
		return nil
	}

	recognition, matched := s.recognizer.Recognize(query.Input)
	if !matched {
		return []wire.Message{wire.IntentNotRecognized{
			Input:     query.Input,
			SiteID:    query.SiteID,
			SessionID: query.SessionID,
		}}
	}

	return []wire.Message{wire.Intent{
		Input:    query.Input,
		RawInput: query.Input,
		ID:       query.ID,
		Intent: wire.IntentSpec{
			IntentName:      recognition.IntentName,
			ConfidenceScore: recognition.Confidence,
		},
		Slots:     recognition.Slots,
		SiteID:    query.SiteID,
		SessionID: query.SessionID,
	}}
}
