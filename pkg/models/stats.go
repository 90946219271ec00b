package models

import "time"

// CPUStats is a point-in-time CPU reading.
type CPUStats struct {
	UsagePercent float64   `json:"usage_percent"`
	CoreCount    int       `json:"core_count"`
	PerCore      []float64 `json:"per_core"`
}

// MemoryStats is a point-in-time memory reading.
type MemoryStats struct {
	TotalBytes     uint64  `json:"total_bytes"`
	UsedBytes      uint64  `json:"used_bytes"`
	AvailableBytes uint64  `json:"available_bytes"`
	UsagePercent   float64 `json:"usage_percent"`
	SwapTotalBytes uint64  `json:"swap_total_bytes"`
	SwapUsedBytes  uint64  `json:"swap_used_bytes"`
}

// GPUStats is a point-in-time reading for one GPU. Fields the provider
// cannot report are nil.
type GPUStats struct {
	Name            string   `json:"name"`
	UsagePercent    *float64 `json:"usage_percent,omitempty"`
	MemoryUsedBytes *uint64  `json:"memory_used_bytes,omitempty"`
	MemoryTotal     *uint64  `json:"memory_total_bytes,omitempty"`
	TemperatureC    *float64 `json:"temperature_celsius,omitempty"`
	PowerWatts      *float64 `json:"power_watts,omitempty"`
}

// StatsSample is one point-in-time system reading. Samples are immutable
// after creation and live in a bounded ring buffer.
type StatsSample struct {
	CPU       CPUStats    `json:"cpu"`
	Memory    MemoryStats `json:"memory"`
	GPUs      []GPUStats  `json:"gpus"`
	Timestamp time.Time   `json:"timestamp"`
}
