package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultProbeInterval    = 30 * time.Second
	DefaultAckTimeout       = 10 * time.Second
	DefaultReconnectBase    = 5 * time.Second
	DefaultReconnectGrowth  = 1.5
	DefaultReconnectMax     = 30 * time.Second
	DefaultMaxAttempts      = 10
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
	DefaultBufferSize       = 1000
	DefaultDBPort           = 5432
	DefaultDBSSLMode        = "prefer"
	DefaultMaxConns         = 10
	DefaultMinConns         = 2
	DefaultBatchSize        = 500
	DefaultFlushInterval    = 1 * time.Second
	DefaultHealthInterval   = 1 * time.Minute
	DefaultHealthTimeout    = 5 * time.Second
)

func (c *MonitorConfig) applyDefaults() {
	if c.Heartbeat.ProbeInterval == 0 {
		c.Heartbeat.ProbeInterval = DefaultProbeInterval
	}
	if c.Heartbeat.AckTimeout == 0 {
		c.Heartbeat.AckTimeout = DefaultAckTimeout
	}

	if c.Reconnect.BaseDelay == 0 {
		c.Reconnect.BaseDelay = DefaultReconnectBase
	}
	if c.Reconnect.Growth == 0 {
		c.Reconnect.Growth = DefaultReconnectGrowth
	}
	if c.Reconnect.MaxDelay == 0 {
		c.Reconnect.MaxDelay = DefaultReconnectMax
	}
	if c.Reconnect.MaxAttempts == 0 {
		c.Reconnect.MaxAttempts = DefaultMaxAttempts
	}

	if c.Transport.HandshakeTimeout == 0 {
		c.Transport.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Transport.WriteTimeout == 0 {
		c.Transport.WriteTimeout = DefaultWriteTimeout
	}
	if c.Transport.BufferSize == 0 {
		c.Transport.BufferSize = DefaultBufferSize
	}

	if c.Recorder.BatchSize == 0 {
		c.Recorder.BatchSize = DefaultBatchSize
	}
	if c.Recorder.FlushInterval == 0 {
		c.Recorder.FlushInterval = DefaultFlushInterval
	}
	applyDBDefaults(&c.Recorder.Database)

	if c.Health.Interval == 0 {
		c.Health.Interval = DefaultHealthInterval
	}
	if c.Health.Timeout == 0 {
		c.Health.Timeout = DefaultHealthTimeout
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
