// Package server is the HTTP and WebSocket façade. Every endpoint translates
// to and from the bus contract; anything possible here is equally possible
// through direct bus messages.
package server

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/parley-ai/parley/internal/dialogue"
	"github.com/parley-ai/parley/internal/mqtt"
	"github.com/parley-ai/parley/internal/nlu"
	"github.com/parley-ai/parley/internal/observability"
	"github.com/parley-ai/parley/internal/profile/store"
	"github.com/parley-ai/parley/internal/tts"
	"github.com/parley-ai/parley/internal/wire"
)

const defaultRequestTimeout = 30 * time.Second

// APIServer exposes the platform over HTTP.
type APIServer struct {
	bind      string
	transport mqtt.Transport
	client    *wire.Client
	logger    *log.Logger

	speaker  *tts.Service
	trainer  *nlu.Service
	profile  *store.Store
	sessions *dialogue.Registry
	exporter *observability.PrometheusExporter
	baseSite string

	httpServer *http.Server
	listener   net.Listener
	upgrader   websocket.Upgrader
}

// Option configures the APIServer.
type Option func(*APIServer)

// WithLogger overrides the default logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *APIServer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSpeaker wires the text-to-speech endpoint.
func WithSpeaker(speaker *tts.Service) Option {
	return func(s *APIServer) { s.speaker = speaker }
}

// WithTrainer wires the /api/train endpoint.
func WithTrainer(trainer *nlu.Service) Option {
	return func(s *APIServer) { s.trainer = trainer }
}

// WithProfile wires the slot and sentence endpoints.
func WithProfile(profile *store.Store) Option {
	return func(s *APIServer) { s.profile = profile }
}

// WithSessions wires the /api/sessions listing.
func WithSessions(registry *dialogue.Registry) Option {
	return func(s *APIServer) { s.sessions = registry }
}

// WithExporter wires the /metrics endpoint.
func WithExporter(exporter *observability.PrometheusExporter) Option {
	return func(s *APIServer) { s.exporter = exporter }
}

// WithBaseSite sets the site used when a request names none.
func WithBaseSite(site string) Option {
	return func(s *APIServer) {
		if site != "" {
			s.baseSite = site
		}
	}
}

// NewAPIServer constructs the façade bound to addr over the given transport.
func NewAPIServer(bind string, transport mqtt.Transport, opts ...Option) *APIServer {
	s := &APIServer{
		bind:      bind,
		transport: transport,
		client:    wire.NewClient("http-api", transport),
		logger:    log.Default(),
		baseSite:  "default",
		upgrader: websocket.Upgrader{
			// The façade binds to loopback by default; remote deployments
			// front it with their own origin policy.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *APIServer) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/text-to-speech", s.handleTextToSpeech)
	mux.HandleFunc("/api/text-to-intent", s.handleTextToIntent)
	mux.HandleFunc("/api/speech-to-text", s.handleSpeechToText)
	mux.HandleFunc("/api/speech-to-intent", s.handleSpeechToIntent)
	mux.HandleFunc("/api/start-session", s.handleStartSession)
	mux.HandleFunc("/api/end-session", s.handleEndSession)
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/api/slots", s.handleSlotsRoot)
	mux.HandleFunc("/api/slots/", s.handleSlot)
	mux.HandleFunc("/api/sentences", s.handleSentencesRoot)
	mux.HandleFunc("/api/sentences/", s.handleSentences)
	mux.HandleFunc("/api/train", s.handleTrain)
	mux.HandleFunc("/api/version", s.handleVersion)
	mux.HandleFunc("/api/events/text", s.handleEventsText)
	mux.HandleFunc("/api/events/intent", s.handleEventsIntent)
	mux.HandleFunc("/api/events/wake", s.handleEventsWake)
	mux.HandleFunc("/api/mqtt/", s.handleTopicBridge)
	mux.HandleFunc("/metrics", s.handleMetrics)
	return mux
}

// Start begins serving. It returns once the listener is bound; serving
// continues until Shutdown.
func (s *APIServer) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return err
	}
	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("[APIServer] serve stopped: %v", err)
		}
	}()

	s.logger.Printf("[APIServer] listening on %s", listener.Addr())
	return nil
}

// Addr returns the bound listen address.
func (s *APIServer) Addr() string {
	if s.listener == nil {
		return s.bind
	}
	return s.listener.Addr().String()
}

// Shutdown gracefully stops the HTTP server.
func (s *APIServer) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.client.Close()
	return s.httpServer.Shutdown(ctx)
}

func (s *APIServer) site(r *http.Request) string {
	if site := r.URL.Query().Get("siteId"); site != "" {
		return site
	}
	return s.baseSite
}

func requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), defaultRequestTimeout)
}
