package connection

import (
	"encoding/json"
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected       = errors.New("not connected")
	ErrAlreadyClosed      = errors.New("already closed")
	ErrAlreadyConnected   = errors.New("already connected")
	ErrConnectionLost     = errors.New("connection lost")
	ErrRequestTimeout     = errors.New("request timeout")
	ErrHeartbeatTimeout   = errors.New("heartbeat timeout (no pong)")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
)

// Request kinds served by the SysMedic daemon.
const (
	KindPing           = "ping"
	KindGetSystemInfo  = "get_system_info"
	KindGetAlerts      = "get_alerts"
	KindGetUserMetrics = "get_user_metrics"
	KindGetConfig      = "get_config"
	KindGetUptime      = "get_uptime"
)

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// Envelope is an outbound request to the daemon.
type Envelope struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// State is the lifecycle state of a managed connection.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

// ClientConfig configures a single WebSocket client.
type ClientConfig struct {
	URL              string        // WebSocket URL (e.g., wss://host:8060/ws)
	Secret           string        // Access secret, sent as the ?secret= query parameter
	HandshakeTimeout time.Duration // Dial handshake deadline
	WriteTimeout     time.Duration // Write deadline for sends
	BufferSize       int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       1000,
	}
}

// ManagerConfig configures the connection Manager.
type ManagerConfig struct {
	URL    string // WebSocket URL
	Secret string // Access secret (opaque, supplied by the caller)

	// Heartbeat
	ProbeInterval      time.Duration // Interval between liveness probes
	AckTimeout         time.Duration // Max wait for an ack after a probe
	LivenessAnyTraffic bool          // Treat any inbound message as an ack, not just pongs

	// Reconnect
	ReconnectBaseDelay   time.Duration // First retry delay
	ReconnectGrowth      float64       // Delay multiplier per attempt
	ReconnectMaxDelay    time.Duration // Delay ceiling
	MaxReconnectAttempts int           // Attempt ceiling before giving up

	// Transport
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	BufferSize       int

	// Events
	EventBufferSize int // Initial per-subscriber buffer capacity
}

// DefaultManagerConfig returns defaults matching the daemon's expected
// client behavior.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		ProbeInterval:        30 * time.Second,
		AckTimeout:           10 * time.Second,
		ReconnectBaseDelay:   5 * time.Second,
		ReconnectGrowth:      1.5,
		ReconnectMaxDelay:    30 * time.Second,
		MaxReconnectAttempts: 10,
		HandshakeTimeout:     10 * time.Second,
		WriteTimeout:         5 * time.Second,
		BufferSize:           1000,
		EventBufferSize:      64,
	}
}

// ManagerStats provides statistics about a connection Manager.
type ManagerStats struct {
	State             State
	ReconnectAttempts int
	PendingRequests   int
	MessagesReceived  int64
	ParseErrors       int64
}
