package models

import "time"

// AuditEventType classifies an audited operation.
type AuditEventType string

const (
	AuditServiceStart AuditEventType = "service_start"
	AuditServiceStop  AuditEventType = "service_stop"
	AuditRestart      AuditEventType = "service_restart"
	AuditProcessKill  AuditEventType = "process_kill"
	AuditConfigChange AuditEventType = "config_change"
	AuditPortScan     AuditEventType = "port_scan"
	AuditSecurityScan AuditEventType = "security_scan"
	AuditLLMAnalysis  AuditEventType = "llm_analysis"
)

// AuditEntry records one operator-visible operation. Recording is
// fire-and-forget: a failed insert never rolls back the operation it logs.
type AuditEntry struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	EventType AuditEventType `json:"event_type"`
	Operation string         `json:"operation"`
	SubjectID string         `json:"subject_id,omitempty"`
	Success   bool           `json:"success"`
	Error     string         `json:"error,omitempty"`
	Details   string         `json:"details,omitempty"` // JSON blob
}
