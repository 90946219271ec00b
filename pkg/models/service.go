// Package models contains the shared domain types exchanged between
// ServiceDeck plugins and exposed over the HTTP API.
package models

// ServiceStatus is the lifecycle state of a discovered service.
type ServiceStatus string

const (
	StatusRunning ServiceStatus = "running"
	StatusStopped ServiceStatus = "stopped"
	StatusError   ServiceStatus = "error"
	StatusUnknown ServiceStatus = "unknown"
)

// SourceKind identifies the discovery mechanism a service came from.
type SourceKind string

const (
	SourceDocker  SourceKind = "docker"
	SourceSystemd SourceKind = "systemd"
	SourceLaunchd SourceKind = "launchd"
	SourceWinSvc  SourceKind = "winsvc"
	SourceProcess SourceKind = "process"
)

// Service is the canonical representation of one runnable unit, merged
// across discovery sources. ID is stable across merge cycles for the same
// underlying unit and unique within one merged snapshot.
type Service struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Status      ServiceStatus `json:"status"`
	Source      SourceKind    `json:"source"`
	Ports       []uint16      `json:"ports"`
	PID         *uint32       `json:"pid,omitempty"`
	Path        string        `json:"path,omitempty"`
	Description string        `json:"description,omitempty"`
	AutoStart   bool          `json:"auto_start"`

	// Resource figures are best-effort and nil when the backing pid is
	// unknown or has exited since the last sample.
	CPUPercent    *float64 `json:"cpu_percent,omitempty"`
	MemoryBytes   *uint64  `json:"memory_bytes,omitempty"`
	MemoryPercent *float64 `json:"memory_percent,omitempty"`
}

// ResourceUsage holds per-process resource figures attributed to a service.
type ResourceUsage struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryBytes   uint64  `json:"memory_bytes"`
	MemoryPercent float64 `json:"memory_percent"`
}

// Clone returns a deep copy of the service.
func (s Service) Clone() Service {
	c := s
	if s.Ports != nil {
		c.Ports = make([]uint16, len(s.Ports))
		copy(c.Ports, s.Ports)
	}
	if s.PID != nil {
		pid := *s.PID
		c.PID = &pid
	}
	if s.CPUPercent != nil {
		v := *s.CPUPercent
		c.CPUPercent = &v
	}
	if s.MemoryBytes != nil {
		v := *s.MemoryBytes
		c.MemoryBytes = &v
	}
	if s.MemoryPercent != nil {
		v := *s.MemoryPercent
		c.MemoryPercent = &v
	}
	return c
}
