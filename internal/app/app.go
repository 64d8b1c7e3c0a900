package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/flowchat-server/internal/auth"
	"github.com/vovakirdan/flowchat-server/internal/config"
	"github.com/vovakirdan/flowchat-server/internal/core"
	"github.com/vovakirdan/flowchat-server/internal/metrics"
	"github.com/vovakirdan/flowchat-server/internal/observability"
	"github.com/vovakirdan/flowchat-server/internal/presence"
	"github.com/vovakirdan/flowchat-server/internal/service/chats"
	"github.com/vovakirdan/flowchat-server/internal/service/friends"
	"github.com/vovakirdan/flowchat-server/internal/service/realtime"
	"github.com/vovakirdan/flowchat-server/internal/service/statuses"
	"github.com/vovakirdan/flowchat-server/internal/store"
	"github.com/vovakirdan/flowchat-server/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/flowchat-server/internal/transport/http"
)

// Version is stamped at build time.
var Version = "dev"

// App wires together core, services and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	realtime        *realtime.Service
	statuses        *statuses.Service
	sweepInterval   time.Duration
	store           store.Store
	presence        presence.Store
	shutdownTracer  observability.ShutdownFunc
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg config.Config, logger *zerolog.Logger) (*App, error) {
	a := &App{
		shutdownTimeout: cfg.ShutdownTimeout,
		sweepInterval:   cfg.StatusSweepInterval,
		log:             logger,
	}

	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	a.store = st
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	pres, err := newPresence(ctx, cfg, logger)
	if err != nil {
		a.cleanup(ctx)
		return nil, fmt.Errorf("init presence: %w", err)
	}
	a.presence = pres
	logger.Info().Str("backend", cfg.Presence.Backend).Dur("typing_ttl", pres.TypingTTL()).Msg("presence store initialized")

	tracer, shutdownTracer, err := observability.NewTracer(ctx, observability.TraceConfig{
		ServiceName:    "flowchat-server",
		ServiceVersion: Version,
		Endpoint:       cfg.Tracing.Endpoint,
		SamplingRate:   cfg.Tracing.SamplingRate,
		Insecure:       cfg.Tracing.Insecure,
	})
	if err != nil {
		a.cleanup(ctx)
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a.shutdownTracer = shutdownTracer

	m := metrics.New()
	a.hub = core.NewHub(logger, m)
	a.realtime = realtime.New(realtime.Deps{
		Hub:      a.hub,
		Store:    st,
		Presence: pres,
		Logger:   logger,
		Metrics:  m,
		Tracer:   tracer,
	}, realtime.OptionsFromConfig(cfg))

	if cfg.JWTSecret == "" {
		logger.Warn().Msg("jwt secret is not configured, every connection will be refused")
	}
	jwtConfig := auth.JWTConfigFrom(cfg)

	friendsSvc := friends.New(st)
	a.statuses = statuses.New(st, friendsSvc, a.realtime, logger)

	a.server = transporthttp.NewServer(transporthttp.Deps{
		Gate:     auth.NewGate(jwtConfig),
		Auth:     auth.NewService(st, jwtConfig),
		Realtime: a.realtime,
		Chats:    chats.New(st, pres, a.realtime, logger),
		Friends:  friendsSvc,
		Statuses: a.statuses,
		Users:    st,
		Metrics:  m,
	}, cfg, logger)

	return a, nil
}

func newPresence(ctx context.Context, cfg config.Config, logger *zerolog.Logger) (presence.Store, error) {
	opts := []presence.Option{presence.WithTypingTTL(cfg.Presence.TypingTTL)}

	switch cfg.Presence.Backend {
	case config.PresenceBackendRedis:
		rc := cfg.Presence.Redis
		return presence.DialRedis(ctx, rc.Addr, rc.Password, rc.DB, opts...)
	case config.PresenceBackendNATS:
		nc := cfg.Presence.NATS
		return presence.DialNATS(presence.NATSConfig{
			URL:          nc.URL,
			User:         nc.User,
			Password:     nc.Password,
			BucketPrefix: nc.BucketPrefix,
		}, logger, opts...)
	case config.PresenceBackendMemory, "":
		return presence.NewMemory(opts...), nil
	default:
		return nil, fmt.Errorf("unknown presence backend %q", cfg.Presence.Backend)
	}
}

// Run starts the hub and the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	a.hub.Start()

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		a.statuses.RunSweeper(sweepCtx, a.sweepInterval)
	}()
	stopSweeper := func() {
		stopSweep()
		<-sweepDone
	}

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		stopSweeper()
		a.cleanup(context.Background())
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		// Shutdown does not wait for hijacked websocket connections; closing
		// the hub ends their write loops.
		err := a.server.Shutdown(shutdownCtx)
		a.hub.Shutdown()
		if derr := a.realtime.Drain(shutdownCtx); derr != nil {
			a.log.Warn().Err(derr).Int("sessions", a.realtime.Sessions()).Msg("connections still closing at shutdown")
		}
		stopSweeper()
		a.cleanup(shutdownCtx)
		if err != nil {
			return err
		}
		return <-serverErr
	}
}

// cleanup closes database and other resources.
func (a *App) cleanup(ctx context.Context) {
	if a.realtime != nil {
		a.realtime.Close()
	}
	if a.presence != nil {
		if err := a.presence.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close presence store")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
	if a.shutdownTracer != nil {
		if err := a.shutdownTracer(ctx); err != nil {
			a.log.Warn().Err(err).Msg("failed to flush traces")
		}
	}
}
