package config

import "errors"

// Validate checks that all required fields are set and values are valid.
func (c *MonitorConfig) Validate() error {
	if c.Server.URL == "" {
		return errors.New("server.url is required")
	}

	if c.Heartbeat.ProbeInterval <= 0 {
		return errors.New("heartbeat.probe_interval must be > 0")
	}
	if c.Heartbeat.AckTimeout <= 0 {
		return errors.New("heartbeat.ack_timeout must be > 0")
	}

	if c.Reconnect.Growth < 1 {
		return errors.New("reconnect.growth must be >= 1")
	}
	if c.Reconnect.MaxDelay < c.Reconnect.BaseDelay {
		return errors.New("reconnect.max_delay must be >= reconnect.base_delay")
	}
	if c.Reconnect.MaxAttempts < 1 {
		return errors.New("reconnect.max_attempts must be >= 1")
	}

	if c.Transport.BufferSize < 1 {
		return errors.New("transport.buffer_size must be >= 1")
	}

	if c.Recorder.Enabled {
		if c.Recorder.Database.Host == "" {
			return errors.New("recorder.database.host is required when recorder is enabled")
		}
		if c.Recorder.Database.Name == "" {
			return errors.New("recorder.database.name is required when recorder is enabled")
		}
		if c.Recorder.BatchSize < 1 {
			return errors.New("recorder.batch_size must be >= 1")
		}
	}

	if c.Health.Enabled && c.Server.HealthURL == "" {
		return errors.New("server.health_url is required when health probing is enabled")
	}

	return nil
}
