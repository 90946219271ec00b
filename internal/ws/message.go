package ws

import (
	"time"

	"github.com/servicedeck/servicedeck/internal/inventory"
	"github.com/servicedeck/servicedeck/pkg/models"
)

// MessageType discriminates WebSocket messages.
type MessageType string

const (
	// MessageServiceEvent carries a single inventory change event.
	MessageServiceEvent MessageType = "service.event"
	// MessageSnapshot carries the full current service list. Sent on connect
	// and in response to a resync request.
	MessageSnapshot MessageType = "service.snapshot"
	// MessageError reports a server-side error to the client.
	MessageError MessageType = "error"
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      any         `json:"data"`
}

// ServiceEventData is the payload for service.event messages.
type ServiceEventData struct {
	Event *inventory.ServiceEvent `json:"event"`
}

// SnapshotData is the payload for service.snapshot messages.
type SnapshotData struct {
	Services []*models.Service `json:"services"`
}

// ErrorData is the payload for error messages.
type ErrorData struct {
	Error string `json:"error"`
}

// clientRequest is the only message shape clients are expected to send.
type clientRequest struct {
	Type string `json:"type"`
}
