package inventory

import "github.com/servicedeck/servicedeck/pkg/models"

// TopicServiceEvent is the single ordered stream of inventory changes.
// Events are published synchronously so subscribers observe the exact
// emission order of each merge cycle.
const TopicServiceEvent = "inventory.service.event"

// EventKind discriminates inventory change events.
type EventKind string

const (
	// EventDiscovered carries the full service list. Emitted once for the
	// first successful merge and again after an explicit resync.
	EventDiscovered EventKind = "discovered"
	EventAdded      EventKind = "added"
	EventRemoved    EventKind = "removed"
	// EventStatusChanged fires when a surviving service changes lifecycle
	// state.
	EventStatusChanged EventKind = "status_changed"
	// EventPortsChanged fires when a surviving service's port set changes.
	// Port order is not significant.
	EventPortsChanged EventKind = "ports_changed"
)

// ServiceEvent is the payload published on TopicServiceEvent.
type ServiceEvent struct {
	Kind EventKind `json:"kind"`

	// Service is set for added, removed, status_changed and ports_changed.
	// For removed events it holds the last known state.
	Service *models.Service `json:"service,omitempty"`

	// Services is set only for discovered events.
	Services []*models.Service `json:"services,omitempty"`

	OldStatus models.ServiceStatus `json:"old_status,omitempty"`
	NewStatus models.ServiceStatus `json:"new_status,omitempty"`
	OldPorts  []uint16             `json:"old_ports,omitempty"`
	NewPorts  []uint16             `json:"new_ports,omitempty"`
}
