package portmap

import (
	"context"
	"strconv"

	gnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/servicedeck/servicedeck/pkg/models"
)

// tableEntry is one observed listening socket before correlation.
type tableEntry struct {
	Port        uint16
	Protocol    models.Protocol
	PID         uint32 // 0 when the owner is unknown
	Address     string
	ProcessName string
}

// connectionReader abstracts gopsutil for tests.
type connectionReader func(ctx context.Context) ([]gnet.ConnectionStat, error)

func readConnections(ctx context.Context) ([]gnet.ConnectionStat, error) {
	return gnet.ConnectionsWithContext(ctx, "inet")
}

// readTable builds the raw occupied-port table: LISTEN tcp sockets plus all
// bound udp sockets. Process names resolve through a per-call cache so one
// pid is looked up at most once per tick.
func readTable(ctx context.Context, read connectionReader) ([]tableEntry, error) {
	conns, err := read(ctx)
	if err != nil {
		return nil, err
	}

	nameCache := make(map[uint32]string)
	resolveName := func(pid uint32) string {
		if pid == 0 {
			return ""
		}
		if name, ok := nameCache[pid]; ok {
			return name
		}
		name := ""
		if proc, err := process.NewProcessWithContext(ctx, int32(pid)); err == nil {
			name, _ = proc.NameWithContext(ctx)
		}
		nameCache[pid] = name
		return name
	}

	seen := make(map[string]struct{})
	var entries []tableEntry
	for _, c := range conns {
		var proto models.Protocol
		switch {
		case isTCP(c.Type) && c.Status == "LISTEN":
			proto = models.ProtocolTCP
		case isUDP(c.Type):
			proto = models.ProtocolUDP
		default:
			continue
		}

		port := uint16(c.Laddr.Port)
		if port == 0 {
			continue
		}
		key := string(proto) + ":" + c.Laddr.IP + ":" + strconv.Itoa(int(port))
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		var pid uint32
		if c.Pid > 0 {
			pid = uint32(c.Pid)
		}
		entries = append(entries, tableEntry{
			Port:        port,
			Protocol:    proto,
			PID:         pid,
			Address:     c.Laddr.IP,
			ProcessName: resolveName(pid),
		})
	}
	return entries, nil
}

// Socket type constants from syscall: SOCK_STREAM=1, SOCK_DGRAM=2.
func isTCP(t uint32) bool { return t == 1 }
func isUDP(t uint32) bool { return t == 2 }
