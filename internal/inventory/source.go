package inventory

import (
	"context"

	"github.com/servicedeck/servicedeck/pkg/models"
)

// RawUnit is one unit as reported by a single source, before identity
// derivation and merging.
type RawUnit struct {
	Kind        models.SourceKind
	NativeID    string // container id, unit name, label, service name, "pid-<n>"
	Name        string
	Status      models.ServiceStatus
	Ports       []uint16
	PID         *uint32
	Path        string
	Description string
	AutoStart   bool
}

// SourceAdapter is implemented by each discovery mechanism. List returns
// every unit the source currently knows about; an adapter reporting
// ErrSourceUnavailable contributes nothing for the cycle, ErrPartialRead
// keeps whatever it managed to read.
type SourceAdapter interface {
	Kind() models.SourceKind
	List(ctx context.Context) ([]RawUnit, error)
}
