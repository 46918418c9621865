package connection

import (
	"log/slog"
	"sync"
	"time"
)

// heartbeatStatus is the monitor's state for the current probe cycle.
type heartbeatStatus int

const (
	heartbeatIdle heartbeatStatus = iota
	heartbeatAwaitingAck
	heartbeatTimedOut
)

// heartbeat monitors liveness of one active transport. It sends a probe
// every ProbeInterval and expects an acknowledgment within AckTimeout.
// A defensive deadline of AckTimeout+ProbeInterval since the last
// observed ack catches dead links even when probe sends fail.
//
// On timeout the monitor signals the Manager and stops; it never closes
// the transport itself. The Manager owns transport replacement, which
// prevents the monitor and the reconnect path racing to replace it.
// One heartbeat instance serves exactly one transport: the Manager
// creates a fresh one per (re)connect, so all timing state resets.
type heartbeat struct {
	probeInterval time.Duration
	ackTimeout    time.Duration
	sendProbe     func() error
	onTimeout     func()
	logger        *slog.Logger

	mu          sync.Mutex
	status      heartbeatStatus
	lastProbeAt time.Time
	lastAckAt   time.Time

	done     chan struct{}
	stopOnce sync.Once
}

// newHeartbeat creates a monitor. sendProbe is invoked from the
// monitor's goroutine; onTimeout is invoked at most once.
func newHeartbeat(probeInterval, ackTimeout time.Duration, sendProbe func() error, onTimeout func(), logger *slog.Logger) *heartbeat {
	if logger == nil {
		logger = slog.Default()
	}
	return &heartbeat{
		probeInterval: probeInterval,
		ackTimeout:    ackTimeout,
		sendProbe:     sendProbe,
		onTimeout:     onTimeout,
		logger:        logger,
		lastAckAt:     time.Now(),
		done:          make(chan struct{}),
	}
}

// Start begins the probe and deadline timers.
func (h *heartbeat) Start() {
	go h.run()
}

// Stop cancels the monitor. Safe to call multiple times and after a
// timeout already fired.
func (h *heartbeat) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
	})
}

// Ack records a liveness acknowledgment and returns the monitor to idle.
func (h *heartbeat) Ack() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.status == heartbeatTimedOut {
		return
	}
	h.lastAckAt = time.Now()
	h.status = heartbeatIdle
}

// Status returns the current probe-cycle state.
func (h *heartbeat) Status() heartbeatStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

func (h *heartbeat) run() {
	probe := time.NewTicker(h.probeInterval)
	defer probe.Stop()

	deadline := time.NewTimer(h.ackTimeout + h.probeInterval)
	defer deadline.Stop()

	for {
		select {
		case <-h.done:
			return

		case <-probe.C:
			h.mu.Lock()
			h.lastProbeAt = time.Now()
			fresh := h.status == heartbeatIdle
			if fresh {
				h.status = heartbeatAwaitingAck
			}
			h.mu.Unlock()

			if err := h.sendProbe(); err != nil {
				h.logger.Debug("failed to send liveness probe", "error", err)
			}

			// Only a fresh probe arms the ack deadline; a still-unanswered
			// one must not push its own deadline out.
			if fresh {
				resetTimer(deadline, h.ackTimeout)
			}

		case <-deadline.C:
			if wait, dead := h.check(); dead {
				h.onTimeout()
				return
			} else {
				resetTimer(deadline, wait)
			}
		}
	}
}

// check decides whether the link is dead, and if not, how long until the
// next deadline evaluation.
func (h *heartbeat) check() (rearm time.Duration, dead bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()

	// A probe went unanswered past its deadline.
	if h.status == heartbeatAwaitingAck && now.Sub(h.lastProbeAt) >= h.ackTimeout {
		h.status = heartbeatTimedOut
		h.logger.Warn("heartbeat timeout",
			"last_ack", h.lastAckAt,
			"last_probe", h.lastProbeAt,
		)
		return 0, true
	}

	// Defensive window: no ack at all for a full probe cycle plus its
	// grace period, regardless of probe bookkeeping.
	cutoff := h.lastAckAt.Add(h.ackTimeout + h.probeInterval)
	if !now.Before(cutoff) {
		h.status = heartbeatTimedOut
		h.logger.Warn("heartbeat timeout (no traffic)", "last_ack", h.lastAckAt)
		return 0, true
	}

	return cutoff.Sub(now), false
}

// resetTimer safely re-arms a timer whose channel may hold a stale fire.
func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
