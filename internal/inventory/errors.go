package inventory

import "errors"

// Sentinel errors shared by adapters, the merger, and control dispatch.
// Adapter errors are absorbed at merge time (the source is flagged degraded);
// control errors surface to the caller unchanged.
var (
	// ErrSourceUnavailable means the discovery mechanism itself is absent
	// (no docker socket, no systemctl binary). The source contributes an
	// empty set for the cycle.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrPartialRead means a source answered but the data is incomplete
	// or truncated. Partial results are kept.
	ErrPartialRead = errors.New("partial read")

	// ErrNotFound means the referenced service id is not in the current
	// snapshot.
	ErrNotFound = errors.New("service not found")

	// ErrPermissionDenied is returned verbatim when the platform refuses a
	// control operation. No retry, no privilege escalation.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrUnsupportedOp means the (source kind, operation) pair has no
	// control path, e.g. autostart toggling for a bare process.
	ErrUnsupportedOp = errors.New("operation not supported for this service source")
)
