package inventory

import (
	"context"
	"fmt"
	"sort"

	gnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/servicedeck/servicedeck/pkg/models"
	"go.uber.org/zap"
)

// ProcessAdapter discovers bare processes that hold listening sockets.
// Processes without a listener are not interesting as services and are
// skipped; higher-precedence sources suppress duplicates at merge time.
type ProcessAdapter struct {
	maxUnits    int
	connections func(ctx context.Context) ([]gnet.ConnectionStat, error)
	logger      *zap.Logger
}

var _ SourceAdapter = (*ProcessAdapter)(nil)

// NewProcessAdapter creates the bare-process source adapter.
func NewProcessAdapter(maxUnits int, logger *zap.Logger) *ProcessAdapter {
	return &ProcessAdapter{
		maxUnits: maxUnits,
		connections: func(ctx context.Context) ([]gnet.ConnectionStat, error) {
			return gnet.ConnectionsWithContext(ctx, "inet")
		},
		logger: logger,
	}
}

func (a *ProcessAdapter) Kind() models.SourceKind {
	return models.SourceProcess
}

// List groups listening sockets by pid and resolves one unit per process.
// Processes that exit between the socket read and the detail lookup are
// dropped silently.
func (a *ProcessAdapter) List(ctx context.Context) ([]RawUnit, error) {
	conns, err := a.connections(ctx)
	if err != nil {
		return nil, fmt.Errorf("read connections: %v: %w", err, ErrSourceUnavailable)
	}

	portsByPID := make(map[int32][]uint16)
	for _, c := range conns {
		if c.Status != "LISTEN" || c.Pid <= 0 {
			continue
		}
		portsByPID[c.Pid] = appendUniquePort(portsByPID[c.Pid], uint16(c.Laddr.Port))
	}

	pids := make([]int32, 0, len(portsByPID))
	for pid := range portsByPID {
		pids = append(pids, pid)
	}
	sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })

	units := make([]RawUnit, 0, len(pids))
	for _, pid := range pids {
		if a.maxUnits > 0 && len(units) >= a.maxUnits {
			break
		}
		unit, ok := a.describe(ctx, pid, portsByPID[pid])
		if !ok {
			continue
		}
		units = append(units, unit)
	}
	return units, nil
}

func (a *ProcessAdapter) describe(ctx context.Context, pid int32, ports []uint16) (RawUnit, bool) {
	proc, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return RawUnit{}, false
	}

	name, err := proc.NameWithContext(ctx)
	if err != nil || name == "" {
		return RawUnit{}, false
	}

	// Best effort, processes may restrict exe access.
	path, _ := proc.ExeWithContext(ctx)
	cmdline, _ := proc.CmdlineWithContext(ctx)

	upid := uint32(pid)
	sort.Slice(ports, func(i, j int) bool { return ports[i] < ports[j] })

	return RawUnit{
		Kind:        models.SourceProcess,
		NativeID:    processNativeID(upid),
		Name:        name,
		Status:      models.StatusRunning,
		Ports:       ports,
		PID:         &upid,
		Path:        path,
		Description: cmdline,
	}, true
}

func appendUniquePort(ports []uint16, port uint16) []uint16 {
	if port == 0 {
		return ports
	}
	for _, p := range ports {
		if p == port {
			return ports
		}
	}
	return append(ports, port)
}
