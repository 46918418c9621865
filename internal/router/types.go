package router

import (
	"encoding/json"
	"time"

	"github.com/rickgao/sysmedic-client/internal/model"
)

// EventKind classifies events delivered to subscribers.
type EventKind string

const (
	EventWelcome      EventKind = "welcome"
	EventSystemUpdate EventKind = "system_update"
	EventAlert        EventKind = "alert"
	EventUnknown      EventKind = "unknown"
	EventStateChanged EventKind = "connection_state_changed"
	EventError        EventKind = "error"
)

// Event is a typed inbound occurrence. The field matching Kind is set;
// the rest are zero.
type Event struct {
	Kind       EventKind
	ReceivedAt time.Time

	Welcome *model.WelcomeInfo
	Update  *model.SystemMetrics
	Alert   *model.AlertInfo

	// Unknown messages are forwarded verbatim, never dropped silently.
	Type string          // Declared type tag of an unknown message
	Raw  json.RawMessage // Raw frame for unknown and malformed messages

	// State changes and recoverable failures
	State    string // New lifecycle state (EventStateChanged)
	Previous string // Prior lifecycle state (EventStateChanged)
	Attempt  int    // Reconnect attempt counter at the transition
	Err      error  // Cause, when the transition or event was failure-driven
}

// Resolver is the pending-request table the dispatcher hands correlated
// responses to. Both methods return false when the id is not pending,
// in which case the message falls through to classification.
type Resolver interface {
	Resolve(id string, payload json.RawMessage) bool
	Reject(id string, err error) bool
}

// Stats contains dispatcher runtime counters.
type Stats struct {
	Received    int64
	Routed      int64
	Correlated  int64
	ParseErrors int64
	Unknown     int64
}

// inboundEnvelope is the wire format of every daemon message.
type inboundEnvelope struct {
	Type      string          `json:"type"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
	RequestID string          `json:"request_id,omitempty"`
}

// errorData is the payload of an error-type message.
type errorData struct {
	Error string `json:"error"`
}
