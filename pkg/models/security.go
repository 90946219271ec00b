package models

// SecuritySeverity classifies how urgent a finding is.
type SecuritySeverity string

const (
	SeverityCritical SecuritySeverity = "critical"
	SeverityHigh     SecuritySeverity = "high"
	SeverityMedium   SecuritySeverity = "medium"
	SeverityLow      SecuritySeverity = "low"
	SeverityInfo     SecuritySeverity = "info"
)

// SeverityRank orders severities for deterministic sorting; lower is worse.
func SeverityRank(s SecuritySeverity) int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 3
	default:
		return 4
	}
}

// SecurityCategory is the closed set of finding categories.
type SecurityCategory string

const (
	CategoryUnencryptedConnection SecurityCategory = "unencrypted_connection"
	CategoryPublicExposure        SecurityCategory = "public_exposure"
	CategoryDefaultCredentials    SecurityCategory = "default_credentials"
	CategoryOutdatedSoftware      SecurityCategory = "outdated_software"
	CategoryMissingAuthentication SecurityCategory = "missing_authentication"
	CategoryInsecureConfiguration SecurityCategory = "insecure_configuration"
	CategoryPrivilegeEscalation   SecurityCategory = "privilege_escalation"
	CategoryDataLeakage           SecurityCategory = "data_leakage"
)

// SecurityIssue is one finding produced by the rule engine. The ID derives
// deterministically from category, service, and port so repeated scans of an
// unchanged state produce identical ids.
type SecurityIssue struct {
	ID             string           `json:"id"`
	ServiceID      string           `json:"service_id,omitempty"`
	ServiceName    string           `json:"service_name,omitempty"`
	Category       SecurityCategory `json:"category"`
	Severity       SecuritySeverity `json:"severity"`
	Title          string           `json:"title"`
	Description    string           `json:"description"`
	Recommendation string           `json:"recommendation"`
	Port           *uint16          `json:"port,omitempty"`
}

// SecurityScanResult bundles the findings of one scan. The severity counts
// are derived from Issues and always equal the count of issues carrying that
// severity.
type SecurityScanResult struct {
	Issues          []SecurityIssue `json:"issues"`
	ScannedAt       int64           `json:"scanned_at"` // Unix seconds
	ServicesScanned int             `json:"services_scanned"`
	PortsScanned    int             `json:"ports_scanned"`
	CriticalCount   int             `json:"critical_count"`
	HighCount       int             `json:"high_count"`
	MediumCount     int             `json:"medium_count"`
	LowCount        int             `json:"low_count"`
	InfoCount       int             `json:"info_count"`
}

// Recount recomputes the derived severity counters from Issues.
func (r *SecurityScanResult) Recount() {
	r.CriticalCount, r.HighCount, r.MediumCount, r.LowCount, r.InfoCount = 0, 0, 0, 0, 0
	for i := range r.Issues {
		switch r.Issues[i].Severity {
		case SeverityCritical:
			r.CriticalCount++
		case SeverityHigh:
			r.HighCount++
		case SeverityMedium:
			r.MediumCount++
		case SeverityLow:
			r.LowCount++
		case SeverityInfo:
			r.InfoCount++
		}
	}
}
