package inventory

import (
	"errors"
	"sort"
	"time"

	"github.com/servicedeck/servicedeck/pkg/models"
)

// PortLookup supplies externally observed listening ports per pid. The
// portmap plugin satisfies this; a nil lookup disables enrichment.
type PortLookup interface {
	PortsForPID(pid uint32) []uint16
}

// SourceState records how one source fared in a merge cycle.
type SourceState struct {
	Kind models.SourceKind `json:"kind"`
	// Degraded means the source contributed nothing this cycle.
	Degraded bool `json:"degraded"`
	// Partial means the source answered but the data may be incomplete.
	Partial bool   `json:"partial"`
	Error   string `json:"error,omitempty"`
}

// Snapshot is one consistent merged view of all sources.
type Snapshot struct {
	Services []*models.Service `json:"services"`
	Sources  []SourceState     `json:"sources"`
	TakenAt  time.Time         `json:"taken_at"`
}

// adapterResult pairs one adapter's output with its error for the cycle.
// Results are ordered by adapter registration; that order breaks
// equal-precedence identity ties.
type adapterResult struct {
	kind  models.SourceKind
	units []RawUnit
	err   error
}

// merge reconciles all adapter results into one snapshot. Deterministic:
// identical inputs yield an identical snapshot (modulo TakenAt).
func merge(results []adapterResult, ports PortLookup, now time.Time) *Snapshot {
	snap := &Snapshot{TakenAt: now}

	type candidate struct {
		svc        *models.Service
		precedence int
		order      int // position in the normalized stream
		suppressed bool
	}

	var candidates []*candidate
	seen := make(map[string]struct{})
	order := 0

	for _, res := range results {
		state := SourceState{Kind: res.kind}
		switch {
		case res.err == nil:
		case errors.Is(res.err, ErrPartialRead):
			state.Partial = true
			state.Error = res.err.Error()
		default:
			// Unavailable or failed outright: empty contribution.
			state.Degraded = true
			state.Error = res.err.Error()
		}
		snap.Sources = append(snap.Sources, state)

		if state.Degraded {
			continue
		}

		for _, u := range res.units {
			svc := normalize(u)
			// Dedupe by id, keep-first in registration order.
			if _, dup := seen[svc.ID]; dup {
				continue
			}
			seen[svc.ID] = struct{}{}
			candidates = append(candidates, &candidate{
				svc:        svc,
				precedence: sourcePrecedence(u.Kind),
				order:      order,
			})
			order++
		}
	}

	// Cross-source identity: records sharing a live pid are the same unit.
	// The lowest-precedence source wins; ties go to the earlier-registered
	// adapter. Losers are suppressed and their ports union into the winner.
	byPID := make(map[uint32]*candidate)
	for _, c := range candidates {
		if c.svc.PID == nil || c.svc.Status != models.StatusRunning {
			continue
		}
		pid := *c.svc.PID
		winner, ok := byPID[pid]
		if !ok {
			byPID[pid] = c
			continue
		}
		if c.precedence < winner.precedence {
			winner, c = c, winner
			byPID[pid] = winner
		}
		c.suppressed = true
		winner.svc.Ports = unionPorts(winner.svc.Ports, c.svc.Ports)
	}

	for _, c := range candidates {
		if c.suppressed {
			continue
		}
		if ports != nil && c.svc.PID != nil {
			c.svc.Ports = unionPorts(c.svc.Ports, ports.PortsForPID(*c.svc.PID))
		}
		sortPorts(c.svc.Ports)
		snap.Services = append(snap.Services, c.svc)
	}

	sort.Slice(snap.Services, func(i, j int) bool {
		return snap.Services[i].ID < snap.Services[j].ID
	})

	return snap
}

// normalize converts a raw unit into the canonical service shape.
func normalize(u RawUnit) *models.Service {
	status := u.Status
	if status == "" {
		status = models.StatusUnknown
	}
	svc := &models.Service{
		ID:          serviceID(u.Kind, u.NativeID),
		Name:        u.Name,
		Status:      status,
		Source:      u.Kind,
		PID:         u.PID,
		Path:        u.Path,
		Description: u.Description,
		AutoStart:   u.AutoStart,
	}
	if len(u.Ports) > 0 {
		svc.Ports = make([]uint16, len(u.Ports))
		copy(svc.Ports, u.Ports)
	}
	return svc
}

func unionPorts(a, b []uint16) []uint16 {
	if len(b) == 0 {
		return a
	}
	seen := make(map[uint16]struct{}, len(a)+len(b))
	out := make([]uint16, 0, len(a)+len(b))
	for _, p := range a {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	for _, p := range b {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func sortPorts(ports []uint16) {
	sort.Slice(ports, func(i, j int) bool { return ports[i] < ports[j] })
}
