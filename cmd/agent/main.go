package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/CHZarles/WorkflowMonitor-sub000/internal/agent"
	"github.com/CHZarles/WorkflowMonitor-sub000/internal/api"
	"github.com/CHZarles/WorkflowMonitor-sub000/internal/auth"
	"github.com/CHZarles/WorkflowMonitor-sub000/internal/config"
	"github.com/CHZarles/WorkflowMonitor-sub000/internal/delivery"
	"github.com/CHZarles/WorkflowMonitor-sub000/internal/observability"
	"github.com/CHZarles/WorkflowMonitor-sub000/internal/signal"
	"github.com/CHZarles/WorkflowMonitor-sub000/internal/status"
	httptransport "github.com/CHZarles/WorkflowMonitor-sub000/internal/transport/http"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "activity-agent",
		Short: "Attributes foreground and background-audio activity and reports it to the ingestion endpoint",
		Long: `activity-agent resolves what the user is doing from platform focus and audio
signals, emits an event when the attribution changes (plus a periodic heartbeat)
and exposes force/repair commands and delivery diagnostics on a local control API.

Configuration comes from --config (YAML) and AGENT_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	return cmd
}

func run(parent context.Context, configPath string) error {
	v, err := config.New(configPath)
	if err != nil {
		return err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	logger, level, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	ctx, stop := ossignal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStatusStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	sink, closeSink := newSink(cfg)
	defer closeSink()

	tracker := delivery.NewTracker(store, logger.Named("delivery"))
	pipeline := delivery.NewPipeline(sink, tracker,
		delivery.WithTimeout(cfg.DeliveryTimeout),
		delivery.WithLogger(logger.Named("delivery")),
	)

	var reader signal.Reader = signal.NewFileReader(cfg.SignalFile, signal.WithFileLogger(logger.Named("signal")))
	watcher, err := signal.NewWatcher(cfg.SignalFile, logger.Named("signal"))
	if err != nil {
		return fmt.Errorf("create signal watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()
	if err := watcher.Start(ctx); err != nil {
		logger.Warn("signal watcher unavailable, relying on timers", zap.String("path", cfg.SignalFile), zap.Error(err))
	} else {
		reader = signal.Watched(reader, watcher)
	}

	worker := agent.New(cfg, reader, pipeline, agent.WithLogger(logger.Named("agent")))

	config.Watch(v, func(next config.Config) {
		if err := observability.SetLevel(level, next.LogLevel); err != nil {
			logger.Warn("ignoring log level", zap.Error(err))
		}
		logger.Info("configuration reloaded")
		worker.UpdateConfig(next)
	}, func(err error) {
		logger.Warn("configuration reload rejected", zap.Error(err))
	})

	ln, err := net.Listen("tcp", cfg.ControlAddress)
	if err != nil {
		return fmt.Errorf("bind control address %s: %w", cfg.ControlAddress, err)
	}
	if cfg.ControlSecret == "" {
		logger.Warn("control API running without authentication", zap.String("address", cfg.ControlAddress))
	}
	serverCfg := httptransport.DefaultServerConfig(cfg.ControlAddress)
	handler := api.NewRouter(
		api.NewHandler(worker, logger.Named("api")),
		auth.Config{Secret: cfg.ControlSecret, Issuer: cfg.ControlIssuer},
	)
	server := httptransport.NewServer(serverCfg, handler)

	logger.Info("activity agent starting",
		zap.String("sink", cfg.Sink),
		zap.String("server_url", cfg.ServerURL),
		zap.String("signal_file", cfg.SignalFile),
		zap.Int("heartbeat_seconds", cfg.HeartbeatSeconds),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Run(gctx)
	})
	g.Go(func() error {
		return resumeOnHangup(gctx, worker, logger)
	})
	g.Go(func() error {
		return httptransport.Serve(gctx, server, ln, serverCfg.ShutdownTimeout, logger.Named("api"))
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("activity agent stopped")
	return nil
}

// resumeOnHangup re-initialises the worker on SIGHUP, which platform helpers
// send after the host wakes from sleep.
func resumeOnHangup(ctx context.Context, worker *agent.Agent, logger *zap.Logger) error {
	hup := make(chan os.Signal, 1)
	ossignal.Notify(hup, syscall.SIGHUP)
	defer ossignal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hup:
			res := worker.Resume(ctx)
			logger.Info("resume requested", zap.Bool("ok", res.OK), zap.String("error", res.Error))
		}
	}
}

func openStatusStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (status.Store, func(), error) {
	if cfg.StatusDB == "" {
		return status.NewMemoryStore(), func() {}, nil
	}
	store, err := status.Open(ctx, cfg.StatusDB, status.AgentID(cfg.Source))
	if err != nil {
		return nil, nil, fmt.Errorf("open status db: %w", err)
	}
	return store, func() {
		if err := store.Close(); err != nil {
			logger.Warn("close status db", zap.Error(err))
		}
	}, nil
}

func newSink(cfg config.Config) (delivery.Sink, func()) {
	if cfg.Sink == config.SinkKafka {
		k := delivery.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
		return k, func() { _ = k.Close() }
	}
	return delivery.NewHTTPSink(cfg.ServerURL), func() {}
}
