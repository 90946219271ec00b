package models

// Protocol is the transport protocol of a port record.
type Protocol string

const (
	ProtocolTCP Protocol = "tcp"
	ProtocolUDP Protocol = "udp"
)

// PortStatus indicates whether a port is held by a process.
type PortStatus string

const (
	PortOccupied PortStatus = "occupied"
	PortFree     PortStatus = "free"
)

// PortRecord describes one network port and, when occupied, the process
// holding it. Free records never carry process identity.
type PortRecord struct {
	Port        uint16     `json:"port"`
	Protocol    Protocol   `json:"protocol"`
	Status      PortStatus `json:"status"`
	ProcessName string     `json:"process_name,omitempty"`
	PID         *uint32    `json:"pid,omitempty"`
	// Address is the local bind address as reported by the OS
	// ("0.0.0.0", "::", "127.0.0.1", ...). Empty for free records.
	Address string `json:"address,omitempty"`
}

// Wildcard reports whether the record is bound to all interfaces.
func (p PortRecord) Wildcard() bool {
	if p.Status != PortOccupied {
		return false
	}
	switch p.Address {
	case "0.0.0.0", "::", "*":
		return true
	}
	return false
}
