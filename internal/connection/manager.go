package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rickgao/sysmedic-client/internal/router"
)

// Manager owns the connection lifecycle to one SysMedic daemon: it
// opens and replaces the disposable transport, monitors liveness,
// reconnects with backoff, and correlates request/response pairs. It is
// the only surface external collaborators touch.
type Manager interface {
	// Connect performs the initial connection attempt. On failure the
	// manager keeps retrying in the background (observable via state
	// events) and the first attempt's error is returned.
	Connect(ctx context.Context) error

	// Disconnect closes the connection with the given close code
	// (0 = normal closure) and cancels all timers and pending requests.
	// Terminal: no reconnect is scheduled. Safe from any state.
	Disconnect(ctx context.Context, code int) error

	// Reconnect forces an immediate reconnect attempt, short-circuiting
	// any pending backoff delay. The attempt still counts toward the
	// ceiling unless it succeeds.
	Reconnect()

	// SendRequest registers a pending request and forwards it to the
	// daemon. The returned handle resolves when the matching response
	// arrives, the optional timeout elapses, or the connection drops.
	SendRequest(kind string, data any, timeout time.Duration) (*Request, error)

	// Subscribe registers an event subscriber (all kinds when none are
	// given). Subscriptions are torn down on Disconnect.
	Subscribe(kinds ...router.EventKind) *router.Subscription

	// State returns the current lifecycle state.
	State() State

	// Stats returns current counters.
	Stats() ManagerStats
}

// manager implements the Manager interface.
type manager struct {
	cfg     ManagerConfig
	logger  *slog.Logger
	session uuid.UUID

	hub        *router.Hub
	dispatcher *router.Dispatcher
	pending    *correlator

	// Lifecycle state. gen identifies the current transport so stale
	// callbacks from a replaced one are ignored.
	mu             sync.Mutex
	state          State
	attempts       int
	gen            int
	client         Client
	monitor        *heartbeat
	reconnectTimer *time.Timer
	connectCancel  context.CancelFunc
	closed         bool

	probeSeq uint64
	wg       sync.WaitGroup
}

// NewManager creates a Manager. Zero config fields take defaults.
func NewManager(cfg ManagerConfig, logger *slog.Logger) Manager {
	if logger == nil {
		logger = slog.Default()
	}

	def := DefaultManagerConfig()
	if cfg.ProbeInterval == 0 {
		cfg.ProbeInterval = def.ProbeInterval
	}
	if cfg.AckTimeout == 0 {
		cfg.AckTimeout = def.AckTimeout
	}
	if cfg.ReconnectBaseDelay == 0 {
		cfg.ReconnectBaseDelay = def.ReconnectBaseDelay
	}
	if cfg.ReconnectGrowth == 0 {
		cfg.ReconnectGrowth = def.ReconnectGrowth
	}
	if cfg.ReconnectMaxDelay == 0 {
		cfg.ReconnectMaxDelay = def.ReconnectMaxDelay
	}
	if cfg.MaxReconnectAttempts == 0 {
		cfg.MaxReconnectAttempts = def.MaxReconnectAttempts
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.EventBufferSize == 0 {
		cfg.EventBufferSize = def.EventBufferSize
	}

	m := &manager{
		cfg:     cfg,
		session: uuid.New(),
		state:   StateDisconnected,
		hub:     router.NewHub(cfg.EventBufferSize),
		pending: newCorrelator(logger),
	}
	m.logger = logger.With("session", m.session.String())
	m.dispatcher = router.NewDispatcher(m.pending, m.hub, m.ackLiveness, cfg.LivenessAnyTraffic, m.logger)

	return m
}

// Connect performs the initial connection attempt.
func (m *manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrAlreadyClosed
	}
	if m.state != StateDisconnected {
		m.mu.Unlock()
		return ErrAlreadyConnected
	}
	m.attempts = 0
	m.setStateLocked(StateConnecting, nil)
	m.mu.Unlock()

	if err := m.open(ctx); err != nil {
		m.mu.Lock()
		if !m.closed && m.state == StateConnecting {
			m.scheduleReconnectLocked(err)
		}
		m.mu.Unlock()
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

// Disconnect closes the connection. Terminal for this instance until
// Connect is called again.
func (m *manager) Disconnect(ctx context.Context, code int) error {
	if code == 0 {
		code = websocket.CloseNormalClosure
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	if m.connectCancel != nil {
		m.connectCancel()
	}
	m.teardownTransportLocked(code)
	m.setStateLocked(StateDisconnected, nil)
	m.mu.Unlock()

	// Wait for the reader to drain; bounded by the caller's context.
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("disconnect timed out waiting for reader")
	}

	m.hub.Close()
	m.logger.Info("disconnected")
	return nil
}

// Reconnect forces an immediate reconnect attempt.
func (m *manager) Reconnect() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}

	switch m.state {
	case StateReconnecting:
		// Short-circuit the pending backoff delay.
		if m.reconnectTimer != nil {
			m.reconnectTimer.Stop()
			m.reconnectTimer = nil
		}
		m.setStateLocked(StateConnecting, nil)

	case StateConnected:
		m.teardownTransportLocked(websocket.CloseNormalClosure)
		m.attempts++ // still counts toward the ceiling
		m.setStateLocked(StateConnecting, nil)

	default:
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	go func() {
		if err := m.open(context.Background()); err != nil {
			m.mu.Lock()
			if !m.closed && m.state == StateConnecting {
				m.scheduleReconnectLocked(err)
			}
			m.mu.Unlock()
		}
	}()
}

// SendRequest registers and forwards a request.
func (m *manager) SendRequest(kind string, data any, timeout time.Duration) (*Request, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrAlreadyClosed
	}
	if m.state != StateConnected || m.client == nil {
		m.mu.Unlock()
		return nil, ErrNotConnected
	}
	c := m.client
	gen := m.gen
	m.mu.Unlock()

	// Register before sending so a fast response cannot race the table.
	req := m.pending.register(kind, timeout)

	var payload json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			m.pending.Reject(req.ID, err)
			return nil, fmt.Errorf("marshal request data: %w", err)
		}
		payload = b
	}

	frame, err := json.Marshal(Envelope{Type: kind, RequestID: req.ID, Data: payload})
	if err != nil {
		m.pending.Reject(req.ID, err)
		return nil, fmt.Errorf("encode request: %w", err)
	}

	if err := c.Send(frame); err != nil {
		m.pending.Reject(req.ID, err)
		// A write failure on a presumed-open transport is connection loss.
		go m.transportFailed(gen, fmt.Errorf("send %s: %w", kind, err))
		return nil, fmt.Errorf("send %s: %w", kind, err)
	}

	m.logger.Debug("request sent", "kind", kind, "id", req.ID)
	return req, nil
}

// Subscribe registers an event subscriber.
func (m *manager) Subscribe(kinds ...router.EventKind) *router.Subscription {
	return m.hub.Subscribe(kinds...)
}

// State returns the current lifecycle state.
func (m *manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Stats returns current counters.
func (m *manager) Stats() ManagerStats {
	ds := m.dispatcher.Stats()

	m.mu.Lock()
	defer m.mu.Unlock()
	return ManagerStats{
		State:             m.state,
		ReconnectAttempts: m.attempts,
		PendingRequests:   m.pending.Len(),
		MessagesReceived:  ds.Received,
		ParseErrors:       ds.ParseErrors,
	}
}

// open performs one transport open and installs it on success. The
// attempt is cancellable via Disconnect; a success that races a
// Disconnect is discarded and the transport closed immediately.
func (m *manager) open(ctx context.Context) error {
	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	m.mu.Lock()
	m.connectCancel = cancel
	m.mu.Unlock()

	c := NewClient(ClientConfig{
		URL:              m.cfg.URL,
		Secret:           m.cfg.Secret,
		HandshakeTimeout: m.cfg.HandshakeTimeout,
		WriteTimeout:     m.cfg.WriteTimeout,
		BufferSize:       m.cfg.BufferSize,
	}, m.logger)

	if err := c.Connect(attemptCtx); err != nil {
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		c.Close(websocket.CloseNormalClosure)
		return ErrAlreadyClosed
	}

	m.gen++
	gen := m.gen
	m.client = c
	m.attempts = 0 // resets only on a fully established connection
	m.monitor = newHeartbeat(
		m.cfg.ProbeInterval,
		m.cfg.AckTimeout,
		m.sendProbe,
		func() { m.transportFailed(gen, ErrHeartbeatTimeout) },
		m.logger,
	)
	m.setStateLocked(StateConnected, nil)
	m.monitor.Start()
	m.mu.Unlock()

	m.wg.Add(1)
	go m.readLoop(c, gen)

	return nil
}

// readLoop drains one transport's inbound sequence into the dispatcher.
func (m *manager) readLoop(c Client, gen int) {
	defer m.wg.Done()

	for {
		select {
		case msg, ok := <-c.Messages():
			if !ok {
				// The cause, if any, is queued on the errors channel.
				select {
				case err := <-c.Errors():
					m.transportFailed(gen, err)
				default:
					m.transportFailed(gen, ErrConnectionLost)
				}
				return
			}
			m.dispatcher.Dispatch(msg.Data, msg.ReceivedAt)

		case err := <-c.Errors():
			m.transportFailed(gen, err)
			return
		}
	}
}

// transportFailed handles loss of the current transport: abnormal
// closes, read errors, send failures, and heartbeat timeouts all land
// here. Stale generations are ignored.
func (m *manager) transportFailed(gen int, cause error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || gen != m.gen || m.state != StateConnected {
		return
	}

	m.teardownTransportLocked(websocket.CloseNormalClosure)

	// A peer-initiated normal close is a clean shutdown, not a failure.
	var ce *websocket.CloseError
	if errors.As(cause, &ce) && ce.Code == websocket.CloseNormalClosure {
		m.logger.Info("daemon closed the connection", "reason", ce.Text)
		m.setStateLocked(StateDisconnected, nil)
		return
	}

	m.logger.Warn("connection lost", "error", cause)
	m.scheduleReconnectLocked(cause)
}

// teardownTransportLocked stops the monitor, closes the transport, and
// rejects every pending request with ConnectionLost.
func (m *manager) teardownTransportLocked(code int) {
	if m.monitor != nil {
		m.monitor.Stop()
		m.monitor = nil
	}
	if m.client != nil {
		m.client.Close(code)
		m.client = nil
	}
	if n := m.pending.failAll(ErrConnectionLost); n > 0 {
		m.logger.Info("rejected pending requests", "count", n)
	}
}

// scheduleReconnectLocked arms the single backoff timer, superseding
// any prior one, or gives up when the attempt ceiling is reached.
func (m *manager) scheduleReconnectLocked(cause error) {
	if m.attempts >= m.cfg.MaxReconnectAttempts {
		m.logger.Error("reconnect attempts exhausted", "attempts", m.attempts)
		m.setStateLocked(StateDisconnected, ErrReconnectExhausted)
		m.hub.Publish(router.Event{
			Kind:       router.EventError,
			ReceivedAt: time.Now(),
			Err:        ErrReconnectExhausted,
		})
		return
	}

	m.attempts++
	delay := backoffDelay(m.cfg.ReconnectBaseDelay, m.cfg.ReconnectMaxDelay, m.cfg.ReconnectGrowth, m.attempts)
	m.setStateLocked(StateReconnecting, cause)

	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
	}
	m.reconnectTimer = time.AfterFunc(delay, m.retry)

	m.logger.Info("reconnect scheduled",
		"attempt", m.attempts,
		"max_attempts", m.cfg.MaxReconnectAttempts,
		"delay", delay,
	)
}

// retry fires when the backoff delay elapses.
func (m *manager) retry() {
	m.mu.Lock()
	if m.closed || m.state != StateReconnecting {
		m.mu.Unlock()
		return
	}
	m.setStateLocked(StateConnecting, nil)
	m.mu.Unlock()

	if err := m.open(context.Background()); err != nil {
		m.mu.Lock()
		if !m.closed && m.state == StateConnecting {
			m.scheduleReconnectLocked(err)
		}
		m.mu.Unlock()
	}
}

// sendProbe writes one liveness probe. Probe ids are never registered
// with the correlator, so the answering pong falls through to the
// liveness path instead of the pending table.
func (m *manager) sendProbe() error {
	m.mu.Lock()
	c := m.client
	m.mu.Unlock()

	if c == nil {
		return ErrNotConnected
	}

	id := fmt.Sprintf("hb_%d", atomic.AddUint64(&m.probeSeq, 1))
	frame, err := json.Marshal(Envelope{Type: KindPing, RequestID: id})
	if err != nil {
		return err
	}
	return c.Send(frame)
}

// ackLiveness forwards a liveness acknowledgment to the current
// monitor, if any.
func (m *manager) ackLiveness() {
	m.mu.Lock()
	mon := m.monitor
	m.mu.Unlock()

	if mon != nil {
		mon.Ack()
	}
}

// setStateLocked transitions the lifecycle state and publishes a
// state-changed event. cause is set for failure-driven transitions.
func (m *manager) setStateLocked(next State, cause error) {
	if m.state == next {
		return
	}
	prev := m.state
	m.state = next

	m.logger.Debug("state changed", "from", prev, "to", next)
	m.hub.Publish(router.Event{
		Kind:       router.EventStateChanged,
		ReceivedAt: time.Now(),
		State:      string(next),
		Previous:   string(prev),
		Attempt:    m.attempts,
		Err:        cause,
	})
}

// backoffDelay computes the delay before reconnect attempt n (1-based):
// min(base * growth^(n-1), max).
func backoffDelay(base, max time.Duration, growth float64, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(float64(base) * math.Pow(growth, float64(attempt-1)))
	if d <= 0 || d > max {
		return max
	}
	return d
}
