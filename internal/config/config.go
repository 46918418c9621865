package config

import "time"

// MonitorConfig is the root configuration for a monitor instance.
type MonitorConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Transport TransportConfig `yaml:"transport"`
	Recorder  RecorderConfig  `yaml:"recorder"`
	Health    HealthConfig    `yaml:"health"`
}

// ServerConfig identifies the daemon endpoint.
type ServerConfig struct {
	URL       string `yaml:"url"`        // WebSocket URL (e.g., ws://host:8060/ws)
	Secret    string `yaml:"secret"`     // Access secret; supports ${VAR} expansion
	HealthURL string `yaml:"health_url"` // HTTP health endpoint (e.g., http://host:8060/health)
}

// HeartbeatConfig holds liveness probe settings.
type HeartbeatConfig struct {
	ProbeInterval      time.Duration `yaml:"probe_interval"`
	AckTimeout         time.Duration `yaml:"ack_timeout"`
	LivenessAnyTraffic bool          `yaml:"liveness_any_traffic"` // Any inbound message counts as an ack
}

// ReconnectConfig holds backoff settings.
type ReconnectConfig struct {
	BaseDelay   time.Duration `yaml:"base_delay"`
	Growth      float64       `yaml:"growth"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// TransportConfig holds WebSocket transport settings.
type TransportConfig struct {
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	BufferSize       int           `yaml:"buffer_size"`
}

// RecorderConfig holds the optional metrics recorder settings.
type RecorderConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Database      DBConfig      `yaml:"database"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// HealthConfig holds the periodic daemon health probe settings.
type HealthConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}
