// monitor maintains a long-lived connection to a SysMedic daemon, logs
// inbound events, and optionally records metric samples to TimescaleDB.
// Usage: go run ./cmd/monitor --config configs/monitor.local.yaml
//
// The access secret can be supplied via the config file with ${VAR}
// expansion, e.g. secret: ${SYSMEDIC_SECRET}.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rickgao/sysmedic-client/internal/config"
	"github.com/rickgao/sysmedic-client/internal/connection"
	"github.com/rickgao/sysmedic-client/internal/database"
	"github.com/rickgao/sysmedic-client/internal/health"
	"github.com/rickgao/sysmedic-client/internal/recorder"
	"github.com/rickgao/sysmedic-client/internal/router"
	"github.com/rickgao/sysmedic-client/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/monitor.local.yaml", "path to config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	logger.Info("starting monitor",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	mgr := connection.NewManager(connection.ManagerConfig{
		URL:                  cfg.Server.URL,
		Secret:               cfg.Server.Secret,
		ProbeInterval:        cfg.Heartbeat.ProbeInterval,
		AckTimeout:           cfg.Heartbeat.AckTimeout,
		LivenessAnyTraffic:   cfg.Heartbeat.LivenessAnyTraffic,
		ReconnectBaseDelay:   cfg.Reconnect.BaseDelay,
		ReconnectGrowth:      cfg.Reconnect.Growth,
		ReconnectMaxDelay:    cfg.Reconnect.MaxDelay,
		MaxReconnectAttempts: cfg.Reconnect.MaxAttempts,
		HandshakeTimeout:     cfg.Transport.HandshakeTimeout,
		WriteTimeout:         cfg.Transport.WriteTimeout,
		BufferSize:           cfg.Transport.BufferSize,
	}, logger)

	// Subscribe before connecting so the welcome message is not missed.
	events := mgr.Subscribe()

	// Optional metrics recorder
	var rec *recorder.Recorder
	if cfg.Recorder.Enabled {
		logger.Info("connecting to database",
			"host", cfg.Recorder.Database.Host,
			"database", cfg.Recorder.Database.Name,
		)
		pool, err := database.Connect(ctx, cfg.Recorder.Database)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		rec = recorder.New(recorder.Config{
			BatchSize:     cfg.Recorder.BatchSize,
			FlushInterval: cfg.Recorder.FlushInterval,
		}, mgr.Subscribe(router.EventSystemUpdate, router.EventAlert), pool, logger)

		if err := rec.Start(ctx); err != nil {
			logger.Error("failed to start recorder", "error", err)
			os.Exit(1)
		}
	}

	// Optional daemon health probing
	var prober *health.Prober
	if cfg.Health.Enabled {
		client := health.NewClient(cfg.Server.HealthURL,
			health.WithLogger(logger),
			health.WithTimeout(cfg.Health.Timeout),
		)
		prober = health.NewProber(health.ProberConfig{
			Interval: cfg.Health.Interval,
			Timeout:  cfg.Health.Timeout,
		}, client, nil, logger)
		prober.Start(ctx)
	}

	if err := mgr.Connect(ctx); err != nil {
		// Retries continue in the background; log and keep going.
		logger.Warn("initial connect failed, retrying", "error", err)
	}

	go consumeEvents(events, logger)

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if prober != nil {
		prober.Stop()
	}
	if rec != nil {
		rec.Stop(shutdownCtx)
	}
	mgr.Disconnect(shutdownCtx, 0)

	logger.Info("monitor stopped")
}

// consumeEvents logs everything the daemon sends until the subscription
// is torn down.
func consumeEvents(sub *router.Subscription, logger *slog.Logger) {
	for {
		ev, ok := sub.Receive()
		if !ok {
			return
		}

		switch ev.Kind {
		case router.EventWelcome:
			logger.Info("daemon welcome",
				"message", ev.Welcome.Message,
				"version", ev.Welcome.Version,
				"system", ev.Welcome.System,
				"daemon", ev.Welcome.Daemon,
			)
		case router.EventSystemUpdate:
			logger.Info("system update",
				"cpu", ev.Update.CPUUsage,
				"memory", ev.Update.MemoryUsage,
				"disk", ev.Update.DiskUsage,
				"uptime", ev.Update.Uptime,
			)
		case router.EventAlert:
			logger.Warn("alert",
				"severity", ev.Alert.Severity,
				"message", ev.Alert.Message,
				"cause", ev.Alert.PrimaryCause,
			)
		case router.EventStateChanged:
			logger.Info("connection state",
				"from", ev.Previous,
				"to", ev.State,
				"attempt", ev.Attempt,
				"error", ev.Err,
			)
		case router.EventError:
			logger.Warn("daemon error event", "error", ev.Err)
		case router.EventUnknown:
			logger.Info("unknown message", "type", ev.Type)
		}
	}
}
