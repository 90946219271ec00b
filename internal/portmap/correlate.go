package portmap

import (
	"fmt"
	"sort"

	"github.com/servicedeck/servicedeck/pkg/models"
)

const (
	freePortRangeStart = 1024
	freePortRangeEnd   = 65535
)

// correlate joins the raw port table with the service registry. Pid
// consistency is bidirectional: an entry whose pid maps to a known service
// adopts the service's name, and the record keeps the pid so the inventory
// can enrich the service's port list from the same table. Output is sorted
// by port then protocol for determinism.
func correlate(entries []tableEntry, services []*models.Service) []models.PortRecord {
	byPID := make(map[uint32]*models.Service, len(services))
	for _, s := range services {
		if s.PID != nil {
			byPID[*s.PID] = s
		}
	}

	records := make([]models.PortRecord, 0, len(entries))
	for _, e := range entries {
		rec := models.PortRecord{
			Port:        e.Port,
			Protocol:    e.Protocol,
			Status:      models.PortOccupied,
			ProcessName: e.ProcessName,
			Address:     e.Address,
		}
		if e.PID > 0 {
			pid := e.PID
			rec.PID = &pid
			if svc, ok := byPID[pid]; ok && svc.Name != "" {
				rec.ProcessName = svc.Name
			}
		}
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].Port != records[j].Port {
			return records[i].Port < records[j].Port
		}
		return records[i].Protocol < records[j].Protocol
	})
	return records
}

// findFreePorts returns the first count ports in [1024, 65535] that no
// observed listener occupies, ascending. Returns ErrExhaustedRange when the
// range ends before count ports are found.
func findFreePorts(occupied map[uint16]struct{}, count int) ([]uint16, error) {
	if count <= 0 {
		return nil, fmt.Errorf("count must be positive, got %d", count)
	}

	free := make([]uint16, 0, count)
	for port := freePortRangeStart; port <= freePortRangeEnd; port++ {
		if _, taken := occupied[uint16(port)]; taken {
			continue
		}
		free = append(free, uint16(port))
		if len(free) == count {
			return free, nil
		}
	}
	return free, fmt.Errorf("found %d of %d: %w", len(free), count, ErrExhaustedRange)
}

// occupiedSet collapses the table into the set of taken port numbers,
// protocol-agnostic: a port is only free if nothing listens on it at all.
func occupiedSet(entries []tableEntry) map[uint16]struct{} {
	set := make(map[uint16]struct{}, len(entries))
	for _, e := range entries {
		set[e.Port] = struct{}{}
	}
	return set
}
