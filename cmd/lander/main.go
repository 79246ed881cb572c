// Package main runs the autonomous landing arbiter: it consumes sensor and RC topics,
// drives the landing state machine and publishes RC override frames.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/autoland/lander/internal/api"
	"github.com/autoland/lander/internal/audit"
	"github.com/autoland/lander/internal/auth"
	"github.com/autoland/lander/internal/bus"
	"github.com/autoland/lander/internal/command"
	"github.com/autoland/lander/internal/config"
	"github.com/autoland/lander/internal/lander"
	"github.com/autoland/lander/internal/logging"
	"github.com/autoland/lander/internal/observability"
	"github.com/autoland/lander/internal/replay"
	"github.com/autoland/lander/internal/telemetry"
	"github.com/autoland/lander/internal/vehicle"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "lander: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, logCloser := logging.New(logging.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		AddSource:  cfg.Logging.AddSource,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	defer func() { _ = logCloser.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info(ctx, "starting landing arbiter", logging.String("version", api.Version))

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		Exporter:    cfg.Tracing.Exporter,
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		SampleRatio: cfg.Tracing.SampleRatio,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to initialise tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	collector, err := observability.NewLanderCollector(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	eventBus := bus.New(bus.Options{
		QueueSize:     cfg.Transport.QueueSize,
		ToggleChannel: cfg.Control.ToggleChannel,
		OnDrop: func(topic string) {
			collector.RecordDrop(topic)
			log.Warn(context.Background(), "bus queue full, dropped oldest message", logging.String("topic", topic))
		},
	})
	defer eventBus.Close()

	auditLog, err := audit.NewLogger(audit.Config{
		Path:       cfg.Audit.Path,
		MaxSizeMB:  cfg.Audit.MaxSizeMB,
		MaxBackups: cfg.Audit.MaxBackups,
		MaxAgeDays: cfg.Audit.MaxAgeDays,
	})
	if err != nil {
		return fmt.Errorf("failed to initialise audit log: %w", err)
	}
	defer func() { _ = auditLog.Close() }()

	guidance := cfg.Guidance.Params()
	cc := lander.NewControllerContext(lander.NewProportionalSelector(guidance), cfg.Control.Options())

	var router *lander.Router
	hub := telemetry.NewHub(&cfg.Timing, telemetry.StatusFunc(func() lander.Status { return router.Status() }))
	defer hub.Stop()

	dispatcher := command.NewDispatcher(vehicle.NewBusLink(eventBus), hub, auditLog, &cfg.Timing, guidance, log)
	router = lander.NewRouter(cc, dispatcher, dispatcher, collector)

	if _, err := bus.Bind(eventBus, router, log); err != nil {
		return fmt.Errorf("failed to bind router: %w", err)
	}
	if _, err := eventBus.Subscribe(bus.TopicCommand, func(m bus.Message) {
		log.Debug(context.Background(), "override frame", logging.Any("seq", m.Seq), logging.Any("frame", m.Payload))
	}); err != nil {
		return fmt.Errorf("failed to watch command topic: %w", err)
	}

	authMiddleware, err := auth.NewMiddlewareFromConfig(cfg.Auth)
	if err != nil {
		return fmt.Errorf("failed to initialise auth: %w", err)
	}
	switch {
	case !cfg.Auth.Enabled:
		log.Warn(ctx, "auth disabled; loopback clients have operator access", logging.String("addr", cfg.Server.Addr))
	case cfg.Auth.AllowDevTokens:
		log.Warn(ctx, "dev tokens are accepted on loopback; do not use this configuration on a vehicle")
	case cfg.Auth.HMACSecret == "" && cfg.Auth.PublicKeyFile == "":
		log.Warn(ctx, "no token credentials configured; authenticated routes refuse every request")
	}

	server := api.NewServer(cfg.Server, api.Deps{
		Status:    router,
		Telemetry: hub,
		Events:    eventBus,
		Audit:     auditLog,
		Auth:      authMiddleware,
		Collector: collector,
		Log:       log,
	})

	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Start() }()

	if cfg.Replay.File != "" {
		if err := startReplay(ctx, cfg, eventBus, log); err != nil {
			return err
		}
	}

	log.Info(ctx, "landing arbiter started",
		logging.String("addr", cfg.Server.Addr),
		logging.Int("toggleChannel", cfg.Control.ToggleChannel),
		logging.Int("queueSize", cfg.Transport.QueueSize))

	select {
	case <-ctx.Done():
		log.Info(context.Background(), "shutdown requested")
	case err := <-serverErr:
		if err != nil {
			log.Error(context.Background(), "api server failed", logging.Err(err))
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "api shutdown failed", logging.Err(err))
	}

	log.Info(shutdownCtx, "landing arbiter stopped")
	return nil
}

func startReplay(ctx context.Context, cfg *config.Config, eventBus *bus.Bus, log logging.Logger) error {
	sc, err := replay.Load(cfg.Replay.File)
	if err != nil {
		return err
	}
	if err := sc.Validate(cfg.Control.ToggleChannel); err != nil {
		return fmt.Errorf("invalid replay scenario: %w", err)
	}

	go func() {
		_, err := replay.NewPlayer(eventBus, log).Play(ctx, sc, cfg.Replay.Loop)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error(context.Background(), "replay failed", logging.Err(err))
		}
	}()
	return nil
}
