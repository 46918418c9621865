// watch connects to a SysMedic daemon and streams decoded events to the
// console, periodically issuing each request kind the daemon serves.
// Usage: go run ./cmd/watch --url ws://host:8060/ws --secret <secret>
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rickgao/sysmedic-client/internal/connection"
	"github.com/rickgao/sysmedic-client/internal/model"
	"github.com/rickgao/sysmedic-client/internal/router"
)

func main() {
	url := flag.String("url", "ws://localhost:8060/ws", "daemon WebSocket URL")
	secret := flag.String("secret", os.Getenv("SYSMEDIC_SECRET"), "access secret")
	interval := flag.Duration("interval", 15*time.Second, "interval between requests")
	verbose := flag.Bool("verbose", false, "print full payload JSON")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	cfg := connection.DefaultManagerConfig()
	cfg.URL = *url
	cfg.Secret = *secret

	mgr := connection.NewManager(cfg, logger)
	events := mgr.Subscribe()

	if err := mgr.Connect(ctx); err != nil {
		logger.Warn("initial connect failed, retrying", "error", err)
	}

	go requestLoop(ctx, mgr, *interval, logger)
	go printEvents(events, *verbose)

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	mgr.Disconnect(shutdownCtx, 0)
}

// requestLoop cycles through the daemon's request kinds.
func requestLoop(ctx context.Context, mgr connection.Manager, interval time.Duration, logger *slog.Logger) {
	kinds := []string{
		connection.KindGetSystemInfo,
		connection.KindGetAlerts,
		connection.KindGetUserMetrics,
		connection.KindGetConfig,
		connection.KindGetUptime,
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	i := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		kind := kinds[i%len(kinds)]
		i++

		req, err := mgr.SendRequest(kind, nil, 10*time.Second)
		if err != nil {
			logger.Warn("request failed", "kind", kind, "error", err)
			continue
		}

		payload, err := req.Await(ctx)
		if err != nil {
			logger.Warn("request rejected", "kind", kind, "id", req.ID, "error", err)
			continue
		}

		ts := time.Now().Format(time.TimeOnly)
		if kind == connection.KindGetConfig {
			var info model.ConfigInfo
			if err := json.Unmarshal(payload, &info); err == nil {
				fmt.Printf("%s config: interval=%s cpu_threshold=%.0f mem_threshold=%.0f version=%s\n",
					ts, info.MonitoringInterval, info.CPUThreshold, info.MemoryThreshold, info.Version)
				continue
			}
		}
		fmt.Printf("%s %s → %s\n", ts, kind, compact(payload))
	}
}

// printEvents streams decoded events until the subscription ends.
func printEvents(sub *router.Subscription, verbose bool) {
	for {
		ev, ok := sub.Receive()
		if !ok {
			return
		}

		ts := ev.ReceivedAt.Format(time.TimeOnly)
		switch ev.Kind {
		case router.EventWelcome:
			fmt.Printf("%s welcome: %s (daemon %s, version %s)\n",
				ts, ev.Welcome.Message, ev.Welcome.Daemon, ev.Welcome.Version)
		case router.EventSystemUpdate:
			fmt.Printf("%s cpu=%.1f%% mem=%.1f%% disk=%.1f%% up=%s\n",
				ts, ev.Update.CPUUsage, ev.Update.MemoryUsage, ev.Update.DiskUsage, ev.Update.Uptime)
		case router.EventAlert:
			fmt.Printf("%s ALERT [%s] %s\n", ts, ev.Alert.Severity, ev.Alert.Message)
		case router.EventStateChanged:
			fmt.Printf("%s state: %s → %s\n", ts, ev.Previous, ev.State)
		case router.EventError:
			fmt.Printf("%s error: %v\n", ts, ev.Err)
		case router.EventUnknown:
			fmt.Printf("%s unknown message type %q\n", ts, ev.Type)
			if verbose {
				fmt.Println(compact(ev.Raw))
			}
		}
	}
}

// compact renders a payload on one line.
func compact(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	var buf map[string]any
	if err := json.Unmarshal(raw, &buf); err != nil {
		return string(raw)
	}
	out, _ := json.Marshal(buf)
	return string(out)
}
