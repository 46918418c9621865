package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/sysmedic-client/internal/model"
)

// ErrMalformedMessage marks frames that could not be decoded. Malformed
// frames are reported and dropped; they never affect connection state.
var ErrMalformedMessage = errors.New("malformed message")

// Dispatcher decodes inbound frames and routes them to either the
// pending-request resolver or the subscriber hub.
type Dispatcher struct {
	resolver Resolver
	hub      *Hub
	onAck    func() // Liveness acknowledgment callback
	ackAny   bool   // Invoke onAck for any decoded message, not just pongs
	logger   *slog.Logger

	mu    sync.Mutex
	stats Stats
}

// NewDispatcher creates a Dispatcher. onAck may be nil.
func NewDispatcher(resolver Resolver, hub *Hub, onAck func(), ackOnAnyTraffic bool, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if onAck == nil {
		onAck = func() {}
	}
	return &Dispatcher{
		resolver: resolver,
		hub:      hub,
		onAck:    onAck,
		ackAny:   ackOnAnyTraffic,
		logger:   logger,
	}
}

// Stats returns current counters.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Dispatch classifies and routes a single raw frame.
func (d *Dispatcher) Dispatch(data []byte, receivedAt time.Time) {
	d.count(func(s *Stats) { s.Received++ })

	var env inboundEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		d.count(func(s *Stats) { s.ParseErrors++ })
		d.logger.Warn("dropping malformed message", "error", err)
		d.hub.Publish(Event{
			Kind:       EventError,
			ReceivedAt: receivedAt,
			Raw:        data,
			Err:        fmt.Errorf("%w: %v", ErrMalformedMessage, err),
		})
		return
	}

	if d.ackAny || env.Type == "pong" {
		d.onAck()
	}

	// Correlated response: route to the resolver only, never also to
	// subscribers. An explicit error indicator rejects; anything else
	// resolves.
	if env.RequestID != "" {
		var claimed bool
		if env.Type == "error" {
			claimed = d.resolver.Reject(env.RequestID, decodeError(env.Data))
		} else {
			claimed = d.resolver.Resolve(env.RequestID, env.Data)
		}
		if claimed {
			d.count(func(s *Stats) { s.Correlated++ })
			return
		}
	}

	switch env.Type {
	case "welcome":
		var info model.WelcomeInfo
		if err := json.Unmarshal(env.Data, &info); err != nil {
			d.malformed(data, receivedAt, err)
			return
		}
		d.publish(Event{Kind: EventWelcome, ReceivedAt: receivedAt, Welcome: &info})

	case "system_update":
		var metrics model.SystemMetrics
		if err := json.Unmarshal(env.Data, &metrics); err != nil {
			d.malformed(data, receivedAt, err)
			return
		}
		if bad := metrics.OutOfRange(); len(bad) > 0 {
			d.logger.Warn("system_update fields out of range", "fields", bad)
		}
		d.publish(Event{Kind: EventSystemUpdate, ReceivedAt: receivedAt, Update: &metrics})

	case "alert":
		var alert model.AlertInfo
		if err := json.Unmarshal(env.Data, &alert); err != nil {
			d.malformed(data, receivedAt, err)
			return
		}
		alert.ID = uuid.New()
		d.publish(Event{Kind: EventAlert, ReceivedAt: receivedAt, Alert: &alert})

	case "pong":
		// Uncorrelated liveness ack; onAck above already consumed it.

	case "error":
		d.publish(Event{
			Kind:       EventError,
			ReceivedAt: receivedAt,
			Raw:        env.Data,
			Err:        decodeError(env.Data),
		})

	default:
		d.count(func(s *Stats) { s.Unknown++ })
		d.publish(Event{
			Kind:       EventUnknown,
			ReceivedAt: receivedAt,
			Type:       env.Type,
			Raw:        data,
		})
	}
}

func (d *Dispatcher) publish(ev Event) {
	d.count(func(s *Stats) { s.Routed++ })
	d.hub.Publish(ev)
}

func (d *Dispatcher) malformed(data []byte, receivedAt time.Time, err error) {
	d.count(func(s *Stats) { s.ParseErrors++ })
	d.logger.Warn("dropping message with malformed payload", "error", err)
	d.hub.Publish(Event{
		Kind:       EventError,
		ReceivedAt: receivedAt,
		Raw:        data,
		Err:        fmt.Errorf("%w: %v", ErrMalformedMessage, err),
	})
}

func (d *Dispatcher) count(fn func(*Stats)) {
	d.mu.Lock()
	fn(&d.stats)
	d.mu.Unlock()
}

// decodeError extracts the daemon's error message from an error-type
// payload.
func decodeError(data json.RawMessage) error {
	var body errorData
	if err := json.Unmarshal(data, &body); err != nil || body.Error == "" {
		return fmt.Errorf("daemon error: %s", data)
	}
	return fmt.Errorf("daemon error: %s", body.Error)
}
