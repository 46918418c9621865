package recorder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/sysmedic-client/internal/model"
	"github.com/rickgao/sysmedic-client/internal/router"
)

// Config holds recorder settings.
type Config struct {
	BatchSize     int           // Flush when this many samples accumulate
	FlushInterval time.Duration // Flush at least this often
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: time.Second,
	}
}

// Metrics contains recorder counters.
type Metrics struct {
	SamplesWritten int64
	AlertsWritten  int64
	BatchesFlushed int64
	WriteErrors    int64
	Dropped        int64
}

// sampleRow is the system_samples table layout.
type sampleRow struct {
	RecordedAt int64 // µs since epoch, local receive time
	CPU        float64
	Memory     float64
	Disk       float64
	Uptime     string
}

// Recorder consumes events from a subscription and writes them to the
// database in batches.
type Recorder struct {
	cfg    Config
	logger *slog.Logger

	sub *router.Subscription
	db  *pgxpool.Pool

	batchMu sync.Mutex
	batch   []sampleRow
	metrics Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Recorder consuming from sub. The subscription should
// cover system_update and alert events.
func New(cfg Config, sub *router.Subscription, db *pgxpool.Pool, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		cfg:    cfg,
		logger: logger,
		sub:    sub,
		db:     db,
		batch:  make([]sampleRow, 0, cfg.BatchSize),
	}
}

// Start begins consuming events and writing to the database.
func (r *Recorder) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.consumeLoop()

	r.wg.Add(1)
	go r.flushLoop()

	r.logger.Info("recorder started",
		"batch_size", r.cfg.BatchSize,
		"flush_interval", r.cfg.FlushInterval,
	)
	return nil
}

// Stop drains and shuts down the recorder.
func (r *Recorder) Stop(ctx context.Context) error {
	r.logger.Info("stopping recorder")

	r.sub.Cancel()
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("recorder stopped")
	case <-ctx.Done():
		r.logger.Warn("recorder stop timed out")
	}

	// Final flush
	r.flush()

	return nil
}

// Stats returns current metrics.
func (r *Recorder) Stats() Metrics {
	r.batchMu.Lock()
	defer r.batchMu.Unlock()
	return r.metrics
}

// consumeLoop reads events from the subscription until it is torn down.
func (r *Recorder) consumeLoop() {
	defer r.wg.Done()

	for {
		ev, ok := r.sub.Receive()
		if !ok {
			return
		}

		switch ev.Kind {
		case router.EventSystemUpdate:
			r.add(r.transform(ev))
		case router.EventAlert:
			r.writeAlert(ev.Alert, ev.ReceivedAt)
		}
	}
}

// flushLoop flushes the batch on an interval.
func (r *Recorder) flushLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.flush()
		}
	}
}

// transform converts a system_update event to its table row.
func (r *Recorder) transform(ev router.Event) sampleRow {
	return sampleRow{
		RecordedAt: ev.ReceivedAt.UnixMicro(),
		CPU:        ev.Update.CPUUsage,
		Memory:     ev.Update.MemoryUsage,
		Disk:       ev.Update.DiskUsage,
		Uptime:     ev.Update.Uptime,
	}
}

// add appends a row, flushing when the batch is full.
func (r *Recorder) add(row sampleRow) {
	r.batchMu.Lock()
	r.batch = append(r.batch, row)
	full := len(r.batch) >= r.cfg.BatchSize
	r.batchMu.Unlock()

	if full {
		r.flush()
	}
}

// flush writes the accumulated batch with a single CopyFrom.
func (r *Recorder) flush() {
	r.batchMu.Lock()
	if len(r.batch) == 0 {
		r.batchMu.Unlock()
		return
	}
	batch := r.batch
	r.batch = make([]sampleRow, 0, r.cfg.BatchSize)
	r.batchMu.Unlock()

	if r.db == nil {
		r.batchMu.Lock()
		r.metrics.Dropped += int64(len(batch))
		r.batchMu.Unlock()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rows := make([][]any, 0, len(batch))
	for _, row := range batch {
		rows = append(rows, []any{row.RecordedAt, row.CPU, row.Memory, row.Disk, row.Uptime})
	}

	_, err := r.db.CopyFrom(
		ctx,
		pgx.Identifier{"system_samples"},
		[]string{"recorded_at", "cpu_usage", "memory_usage", "disk_usage", "uptime"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		r.logger.Error("failed to flush samples", "count", len(batch), "error", err)
		r.batchMu.Lock()
		r.metrics.WriteErrors++
		r.batchMu.Unlock()
		return
	}

	r.batchMu.Lock()
	r.metrics.SamplesWritten += int64(len(batch))
	r.metrics.BatchesFlushed++
	r.batchMu.Unlock()

	r.logger.Debug("flushed samples", "count", len(batch))
}

// writeAlert inserts one alert row. Alerts are rare; they skip batching
// so they land promptly.
func (r *Recorder) writeAlert(alert *model.AlertInfo, receivedAt time.Time) {
	if r.db == nil {
		r.batchMu.Lock()
		r.metrics.Dropped++
		r.batchMu.Unlock()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := r.db.Exec(ctx,
		`INSERT INTO alerts (id, received_at, severity, message, primary_cause, resolved)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		alert.ID, receivedAt.UnixMicro(), alert.Severity, alert.Message, alert.PrimaryCause, alert.Resolved,
	)
	if err != nil {
		r.logger.Error("failed to write alert", "error", err)
		r.batchMu.Lock()
		r.metrics.WriteErrors++
		r.batchMu.Unlock()
		return
	}

	r.batchMu.Lock()
	r.metrics.AlertsWritten++
	r.batchMu.Unlock()
}
