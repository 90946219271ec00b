package portmap

import (
	"context"
	"errors"
	"testing"

	gnet "github.com/shirou/gopsutil/v3/net"
)

func fakeConnections(conns []gnet.ConnectionStat) connectionReader {
	return func(_ context.Context) ([]gnet.ConnectionStat, error) {
		return conns, nil
	}
}

func TestReadTableFiltersListeners(t *testing.T) {
	conns := []gnet.ConnectionStat{
		{Type: 1, Status: "LISTEN", Laddr: gnet.Addr{IP: "127.0.0.1", Port: 8080}, Pid: 100},
		{Type: 1, Status: "ESTABLISHED", Laddr: gnet.Addr{IP: "127.0.0.1", Port: 54321}, Pid: 100},
		{Type: 2, Status: "", Laddr: gnet.Addr{IP: "0.0.0.0", Port: 53}, Pid: 200},
		{Type: 1, Status: "LISTEN", Laddr: gnet.Addr{IP: "::", Port: 0}, Pid: 300},
	}

	entries, err := readTable(context.Background(), fakeConnections(conns))
	if err != nil {
		t.Fatalf("readTable() error = %v", err)
	}

	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2 (LISTEN tcp + udp)", len(entries))
	}
	if entries[0].Port != 8080 || entries[0].PID != 100 {
		t.Errorf("tcp entry = %+v", entries[0])
	}
	if entries[1].Port != 53 || entries[1].Address != "0.0.0.0" {
		t.Errorf("udp entry = %+v", entries[1])
	}
}

func TestReadTableDeduplicates(t *testing.T) {
	// Dual-stack listeners often show up once per address family with the
	// same proto/ip/port triple on some platforms.
	conns := []gnet.ConnectionStat{
		{Type: 1, Status: "LISTEN", Laddr: gnet.Addr{IP: "0.0.0.0", Port: 443}, Pid: 10},
		{Type: 1, Status: "LISTEN", Laddr: gnet.Addr{IP: "0.0.0.0", Port: 443}, Pid: 10},
		{Type: 1, Status: "LISTEN", Laddr: gnet.Addr{IP: "::", Port: 443}, Pid: 10},
	}

	entries, err := readTable(context.Background(), fakeConnections(conns))
	if err != nil {
		t.Fatalf("readTable() error = %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("entries = %d, want 2 (distinct addresses kept, exact dup dropped)", len(entries))
	}
}

func TestReadTablePropagatesReadError(t *testing.T) {
	boom := errors.New("proc unavailable")
	reader := func(_ context.Context) ([]gnet.ConnectionStat, error) {
		return nil, boom
	}

	if _, err := readTable(context.Background(), reader); !errors.Is(err, boom) {
		t.Errorf("error = %v, want wrapped proc error", err)
	}
}
