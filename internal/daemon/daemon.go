// Package daemon assembles the platform: bus transport, dialogue manager,
// speech services, language understanding, profile store and the HTTP façade.
package daemon

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/parley-ai/parley/internal/asr"
	"github.com/parley-ai/parley/internal/config"
	"github.com/parley-ai/parley/internal/dialogue"
	"github.com/parley-ai/parley/internal/mqtt"
	"github.com/parley-ai/parley/internal/nlu"
	"github.com/parley-ai/parley/internal/observability"
	"github.com/parley-ai/parley/internal/profile/store"
	"github.com/parley-ai/parley/internal/server"
	"github.com/parley-ai/parley/internal/tts"
	"github.com/parley-ai/parley/internal/wire"
)

const connectTimeout = 10 * time.Second

// Options configures the daemon.
type Options struct {
	Config config.Config
	Paths  config.Paths
	Logger *log.Logger
}

// Daemon owns the lifecycle of every service.
type Daemon struct {
	cfg    config.Config
	logger *log.Logger

	transport mqtt.Transport
	counter   *observability.EventCounter
	profile   *store.Store

	dialogue *dialogue.Service
	asr      *asr.Service
	nlu      *nlu.Service
	tts      *tts.Service
	api      *server.APIServer
}

// New builds the daemon from configuration. Nothing is started yet.
func New(opts Options) (*Daemon, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	counter := observability.NewEventCounter()

	var transport mqtt.Transport
	if cfg.MQTT.BrokerURL == "" {
		transport = mqtt.NewBroker(mqtt.WithObserver(counter), mqtt.WithLogger(logger))
	} else {
		transport = mqtt.NewClient(cfg.MQTT.BrokerURL, cfg.MQTT.ClientID,
			mqtt.WithClientObserver(counter),
			mqtt.WithClientLogger(logger),
		)
	}

	dbPath := cfg.ProfileDB
	if dbPath == "" {
		dbPath = opts.Paths.ProfileDB
	}
	profile, err := store.Open(store.Options{DBPath: dbPath})
	if err != nil {
		return nil, fmt.Errorf("open profile store: %w", err)
	}

	d := &Daemon{
		cfg:       cfg,
		logger:    logger,
		transport: transport,
		counter:   counter,
		profile:   profile,
	}

	d.dialogue = dialogue.New(wire.NewClient("dialogue", transport),
		dialogue.WithSessionTimeout(cfg.Dialogue.SessionTimeout),
		dialogue.WithLogger(logger),
	)
	d.asr = asr.New(wire.NewClient("asr", transport), asr.WithLogger(logger))
	d.nlu = nlu.New(wire.NewClient("nlu", transport), profile, nlu.WithLogger(logger))
	d.tts = tts.New(wire.NewClient("tts", transport),
		tts.WithPlayTimeout(cfg.TTS.PlayTimeout),
		tts.WithLogger(logger),
	)

	exporter := observability.NewPrometheusExporter(counter)
	exporter.WithSessions(d.dialogue.Registry())

	d.api = server.NewAPIServer(cfg.HTTP.Bind, transport,
		server.WithLogger(logger),
		server.WithSpeaker(d.tts),
		server.WithTrainer(d.nlu),
		server.WithProfile(profile),
		server.WithSessions(d.dialogue.Registry()),
		server.WithExporter(exporter),
		server.WithBaseSite(cfg.BaseSite()),
	)

	return d, nil
}

// Start connects the transport and brings every service up. It returns once
// everything is running.
func (d *Daemon) Start(ctx context.Context) error {
	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := d.transport.Connect(connectCtx); err != nil {
		return fmt.Errorf("connect transport: %w", err)
	}
	if err := d.transport.AwaitConnected(connectCtx); err != nil {
		return fmt.Errorf("await transport: %w", err)
	}

	var group errgroup.Group
	group.Go(func() error { return d.dialogue.Start(ctx) })
	group.Go(func() error { return d.asr.Start(ctx) })
	group.Go(func() error { return d.nlu.Start(ctx) })
	group.Go(func() error { return d.tts.Start(ctx) })
	if err := group.Wait(); err != nil {
		return err
	}

	if err := d.api.Start(ctx); err != nil {
		return fmt.Errorf("start http api: %w", err)
	}

	d.logger.Printf("[Daemon] running, api on %s", d.api.Addr())
	return nil
}

// Addr returns the bound HTTP address.
func (d *Daemon) Addr() string {
	return d.api.Addr()
}

// Registry exposes live session state.
func (d *Daemon) Registry() *dialogue.Registry {
	return d.dialogue.Registry()
}

// Shutdown stops everything in reverse start order.
func (d *Daemon) Shutdown(ctx context.Context) error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	record(d.api.Shutdown(ctx))
	record(d.tts.Shutdown(ctx))
	record(d.nlu.Shutdown(ctx))
	record(d.asr.Shutdown(ctx))
	record(d.dialogue.Shutdown(ctx))
	d.transport.Disconnect()
	record(d.profile.Close())

	d.logger.Printf("[Daemon] stopped")
	return firstErr
}
