package model

import "github.com/google/uuid"

// WelcomeInfo is the metadata the daemon sends when a connection is
// established.
type WelcomeInfo struct {
	Message string `json:"message"`
	Version string `json:"version"`
	System  string `json:"system"`
	Status  string `json:"status"`
	Daemon  string `json:"daemon"`
}

// SystemMetrics is one periodic system_update snapshot.
type SystemMetrics struct {
	CPUUsage    float64 `json:"cpu_usage"`    // Percent, 0-100
	MemoryUsage float64 `json:"memory_usage"` // Percent, 0-100
	DiskUsage   float64 `json:"disk_usage"`   // Percent, 0-100
	Uptime      string  `json:"uptime"`       // Human-readable (e.g. "2d 3h")
}

// OutOfRange returns the names of usage fields outside [0, 100]. The
// daemon occasionally reports transient garbage; callers log these
// rather than dropping the snapshot.
func (m SystemMetrics) OutOfRange() []string {
	var fields []string
	if m.CPUUsage < 0 || m.CPUUsage > 100 {
		fields = append(fields, "cpu_usage")
	}
	if m.MemoryUsage < 0 || m.MemoryUsage > 100 {
		fields = append(fields, "memory_usage")
	}
	if m.DiskUsage < 0 || m.DiskUsage > 100 {
		fields = append(fields, "disk_usage")
	}
	return fields
}

// AlertInfo is a structured warning broadcast by the daemon. ID is
// assigned locally on receipt; the daemon does not key alerts.
type AlertInfo struct {
	ID           uuid.UUID `json:"-"`
	Severity     string    `json:"severity"`
	Message      string    `json:"message"`
	PrimaryCause string    `json:"primary_cause"`
	Duration     string    `json:"duration"`
	Resolved     bool      `json:"resolved"`
}

// ConfigInfo is the daemon's config_response payload. The daemon only
// exposes non-sensitive settings.
type ConfigInfo struct {
	MonitoringInterval string  `json:"monitoring_interval"`
	CPUThreshold       float64 `json:"cpu_threshold"`
	MemoryThreshold    float64 `json:"memory_threshold"`
	Version            string  `json:"version"`
}

// HealthStatus is the daemon's /health endpoint payload.
type HealthStatus struct {
	Status    string `json:"status"`
	Running   bool   `json:"running"`
	Clients   int    `json:"clients"`
	Port      int    `json:"port"`
	Hostname  string `json:"hostname"`
	HasSecret bool   `json:"has_secret"`
}
