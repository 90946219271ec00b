package inventory

import (
	"sort"

	"github.com/servicedeck/servicedeck/pkg/models"
)

// diff computes the ordered event batch between two snapshots. A nil
// previous snapshot yields a single Discovered event with the full list.
// Otherwise events come in fixed batches, each ascending by service id:
// added, removed, status_changed, ports_changed. Identical snapshots yield
// no events. Resource figures are deliberately not compared; they are
// sampled asynchronously and must not churn the event stream.
func diff(previous, current *Snapshot) []*ServiceEvent {
	if previous == nil {
		return []*ServiceEvent{{
			Kind:     EventDiscovered,
			Services: cloneServices(current.Services),
		}}
	}

	prevByID := indexByID(previous.Services)
	currByID := indexByID(current.Services)

	var added, removed, statusChanged, portsChanged []*ServiceEvent

	for _, svc := range current.Services {
		prev, existed := prevByID[svc.ID]
		if !existed {
			c := svc.Clone()
			added = append(added, &ServiceEvent{Kind: EventAdded, Service: &c})
			continue
		}
		if prev.Status != svc.Status {
			c := svc.Clone()
			statusChanged = append(statusChanged, &ServiceEvent{
				Kind:      EventStatusChanged,
				Service:   &c,
				OldStatus: prev.Status,
				NewStatus: svc.Status,
			})
		}
		if !samePortSet(prev.Ports, svc.Ports) {
			c := svc.Clone()
			portsChanged = append(portsChanged, &ServiceEvent{
				Kind:     EventPortsChanged,
				Service:  &c,
				OldPorts: clonePorts(prev.Ports),
				NewPorts: clonePorts(svc.Ports),
			})
		}
	}

	for _, svc := range previous.Services {
		if _, survives := currByID[svc.ID]; !survives {
			c := svc.Clone()
			removed = append(removed, &ServiceEvent{Kind: EventRemoved, Service: &c})
		}
	}

	sortEvents(added)
	sortEvents(removed)
	sortEvents(statusChanged)
	sortEvents(portsChanged)

	events := make([]*ServiceEvent, 0, len(added)+len(removed)+len(statusChanged)+len(portsChanged))
	events = append(events, added...)
	events = append(events, removed...)
	events = append(events, statusChanged...)
	events = append(events, portsChanged...)
	return events
}

func indexByID(services []*models.Service) map[string]*models.Service {
	m := make(map[string]*models.Service, len(services))
	for _, s := range services {
		m[s.ID] = s
	}
	return m
}

// samePortSet compares port lists as sets; order is not significant.
func samePortSet(a, b []uint16) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[uint16]struct{}, len(a))
	for _, p := range a {
		set[p] = struct{}{}
	}
	for _, p := range b {
		if _, ok := set[p]; !ok {
			return false
		}
	}
	return true
}

func sortEvents(events []*ServiceEvent) {
	sort.Slice(events, func(i, j int) bool {
		return events[i].Service.ID < events[j].Service.ID
	})
}

func cloneServices(services []*models.Service) []*models.Service {
	out := make([]*models.Service, len(services))
	for i, s := range services {
		c := s.Clone()
		out[i] = &c
	}
	return out
}

func clonePorts(ports []uint16) []uint16 {
	if ports == nil {
		return nil
	}
	out := make([]uint16, len(ports))
	copy(out, ports)
	return out
}
