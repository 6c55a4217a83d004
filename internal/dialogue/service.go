package dialogue

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parley-ai/parley/internal/wire"
)

// DefaultSessionTimeout bounds how long a session may stay live without a
// terminating event before the manager ends it itself.
const DefaultSessionTimeout = 30 * time.Second

// Service is the dialogue session manager. A single dispatch loop applies all
// state transitions, so transitions for one site are serialized; the expiry
// timers are the only other writers and settle conflicts through the registry.
type Service struct {
	client   *wire.Client
	registry *Registry
	logger   *log.Logger
	timeout  time.Duration
	newID    func() string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option customises the service.
type Option func(*Service)

// WithSessionTimeout overrides the per-session expiry window.
func WithSessionTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger overrides the service logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New constructs the session manager over a bus client.
func New(client *wire.Client, opts ...Option) *Service {
	s := &Service{
		client:   client,
		registry: NewRegistry(),
		logger:   log.Default(),
		timeout:  DefaultSessionTimeout,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry exposes the session table, mainly for facades and tests.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Start subscribes to dialogue-relevant events and launches the dispatch
// loop. The transport must be connected before messages flow; callers wait on
// the transport's connected signal, not on Start.
func (s *Service) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	_, err := s.client.Subscribe(
		wire.KindStartSession,
		wire.KindContinueSession,
		wire.KindEndSession,
		wire.KindHotwordDetected,
		wire.KindTextCaptured,
		wire.KindIntent,
		wire.KindIntentNotRecognized,
	)
	if err != nil {
		return err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.client.HandleMessages(s.ctx, s.handle); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Printf("[Dialogue] dispatch loop stopped: %v", err)
		}
	}()

	s.logger.Printf("[Dialogue] session manager started (timeout %s)", s.timeout)
	return nil
}

// Shutdown stops message consumption. Open sessions are not terminated; they
// stay live until an explicit terminating event or their own expiry.
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

// handle applies one inbound event to the registry and returns the replies to
// publish, in order.
func (s *Service) handle(ctx context.Context, in wire.Inbound) []wire.Message {
	switch m := in.Message.(type) {
	case wire.StartSession:
		return s.startSession(m.SiteID, m.CustomData, m.Init.CanBeEnqueued)

	case wire.HotwordDetected:
		return s.startSession(m.SiteID, "", false)

	case wire.ContinueSession:
		return s.continueSession(m)

	case wire.EndSession:
		return s.endSession(m)

	case wire.TextCaptured:
		if m.Text == "" {
			return nil
		}
		return []wire.Message{wire.Query{
			Input:     m.Text,
			ID:        s.newID(),
			SiteID:    m.SiteID,
			SessionID: m.SessionID,
		}}

	case wire.Intent:
		return s.intentRecognized(m)

	case wire.IntentNotRecognized:
		return s.intentNotRecognized(m)
	}
	return nil
}

func (s *Service) startSession(siteID, customData string, canBeEnqueued bool) []wire.Message {
	session, err := s.registry.Create(s.newID(), siteID, customData)
	if errors.Is(err, ErrSiteBusy) {
		// Rejected, not queued. The requester gets no event for a session
		// that never started.
		if canBeEnqueued {
			s.logger.Printf("[Dialogue] site %s busy, enqueuing not supported, start dropped", siteID)
		} else {
			s.logger.Printf("[Dialogue] site %s busy, start rejected", siteID)
		}
		return nil
	}
	if err != nil {
		s.logger.Printf("[Dialogue] start session on %s failed: %v", siteID, err)
		return nil
	}

	s.registry.SetState(session.ID, StateActive)
	s.arm(session.ID)
	s.logger.Printf("[Dialogue] session %s started on %s", session.ID, siteID)

	return []wire.Message{
		wire.SessionStarted{SessionID: session.ID, SiteID: siteID, CustomData: customData},
		wire.StartListening{SiteID: siteID, SessionID: session.ID},
	}
}

func (s *Service) continueSession(m wire.ContinueSession) []wire.Message {
	session, err := s.registry.Lookup(m.SessionID)
	if err != nil {
		s.logger.Printf("[Dialogue] continue for stale session %s ignored", m.SessionID)
		return nil
	}

	if m.CustomData != "" {
		s.registry.SetCustomData(session.ID, m.CustomData)
	}
	s.arm(session.ID)

	return []wire.Message{
		wire.StartListening{SiteID: session.SiteID, SessionID: session.ID},
	}
}

func (s *Service) endSession(m wire.EndSession) []wire.Message {
	return s.end(m.SessionID, wire.ReasonAbortedManually, m.CustomData)
}

func (s *Service) intentRecognized(m wire.Intent) []wire.Message {
	if m.SessionID == "" {
		return nil
	}
	return s.end(m.SessionID, wire.ReasonSuccess, m.CustomData)
}

func (s *Service) intentNotRecognized(m wire.IntentNotRecognized) []wire.Message {
	if m.SessionID == "" {
		return nil
	}
	return s.end(m.SessionID, wire.ReasonIntentNotRecognized, m.CustomData)
}

// end moves a session to Ended and removes it. A non-empty customData
// replaces the session's stored value on the ended event. Removal decides
// races with the expiry timer: only the caller that removes the session emits
// SessionEnded.
func (s *Service) end(sessionID string, reason wire.TerminationReason, customData string) []wire.Message {
	session, err := s.registry.Lookup(sessionID)
	if err != nil {
		s.logger.Printf("[Dialogue] terminating event for stale session %s ignored", sessionID)
		return nil
	}

	if customData != "" {
		s.registry.SetCustomData(sessionID, customData)
	}
	s.registry.SetState(sessionID, StateEnding)

	ended, ok := s.finish(sessionID, reason)
	if !ok {
		return nil
	}
	return []wire.Message{
		wire.StopListening{SiteID: session.SiteID, SessionID: session.ID},
		ended,
	}
}

// finish removes the session and builds its SessionEnded event. Returns
// false when someone else already ended it.
func (s *Service) finish(sessionID string, reason wire.TerminationReason) (wire.SessionEnded, bool) {
	session, err := s.registry.Lookup(sessionID)
	if err != nil {
		return wire.SessionEnded{}, false
	}
	siteID := session.SiteID
	customData := session.CustomData

	if !s.registry.Remove(sessionID) {
		return wire.SessionEnded{}, false
	}

	s.logger.Printf("[Dialogue] session %s on %s ended (%s)", sessionID, siteID, reason)
	return wire.SessionEnded{
		SessionID:   sessionID,
		SiteID:      siteID,
		CustomData:  customData,
		Termination: wire.Termination{Reason: reason},
	}, true
}

// arm (re)starts the session's expiry timer.
func (s *Service) arm(sessionID string) {
	s.registry.Arm(sessionID, s.timeout, func() {
		s.expire(sessionID)
	})
}

// expire force-terminates a session that saw no terminating event within the
// timeout window. Runs outside the dispatch loop, so it publishes directly.
func (s *Service) expire(sessionID string) {
	session, err := s.registry.Lookup(sessionID)
	if err != nil {
		return
	}
	siteID := session.SiteID

	ended, ok := s.finish(sessionID, wire.ReasonTimeout)
	if !ok {
		return
	}

	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.client.Publish(ctx, wire.StopListening{SiteID: siteID, SessionID: sessionID}); err != nil {
		s.logger.Printf("[Dialogue] publish stopListening for expired session %s failed: %v", sessionID, err)
	}
	if err := s.client.Publish(ctx, ended); err != nil {
		s.logger.Printf("[Dialogue] publish sessionEnded for expired session %s failed: %v", sessionID, err)
	}
}
