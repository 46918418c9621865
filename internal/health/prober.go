package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/sysmedic-client/internal/model"
)

// StatusHandler receives probe results.
type StatusHandler interface {
	HandleStatus(status *model.HealthStatus, err error)
}

// StatusHandlerFunc is a function adapter for StatusHandler.
type StatusHandlerFunc func(*model.HealthStatus, error)

func (f StatusHandlerFunc) HandleStatus(s *model.HealthStatus, err error) {
	f(s, err)
}

// ProberConfig holds prober configuration.
type ProberConfig struct {
	Interval time.Duration // Probe interval (default: 1m)
	Timeout  time.Duration // Per-probe timeout (default: 5s)
}

// DefaultProberConfig returns sensible defaults.
func DefaultProberConfig() ProberConfig {
	return ProberConfig{
		Interval: time.Minute,
		Timeout:  5 * time.Second,
	}
}

// Prober periodically fetches the daemon's health status.
type Prober struct {
	cfg     ProberConfig
	client  *Client
	handler StatusHandler
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewProber creates a Prober. handler may be nil; results are then only
// logged.
func NewProber(cfg ProberConfig, client *Client, handler StatusHandler, logger *slog.Logger) *Prober {
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{
		cfg:     cfg,
		client:  client,
		handler: handler,
		logger:  logger,
	}
}

// Start begins the probe loop.
func (p *Prober) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("health prober started", "interval", p.cfg.Interval)
	return nil
}

// Stop shuts down the probe loop.
func (p *Prober) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.logger.Info("health prober stopped")
}

func (p *Prober) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.probe()
		}
	}
}

func (p *Prober) probe() {
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.Timeout)
	defer cancel()

	status, err := p.client.Get(ctx)
	if err != nil {
		p.logger.Warn("health probe failed", "error", err)
	} else {
		p.logger.Debug("health probe",
			"status", status.Status,
			"running", status.Running,
			"clients", status.Clients,
		)
	}

	if p.handler != nil {
		p.handler.HandleStatus(status, err)
	}
}
