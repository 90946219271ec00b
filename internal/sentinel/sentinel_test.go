package sentinel

import (
	"context"
	"reflect"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/servicedeck/servicedeck/pkg/models"
)

type fakeServices struct {
	services []*models.Service
}

func (f *fakeServices) Services() []*models.Service { return f.services }

type fakePorts struct {
	records []models.PortRecord
}

func (f *fakePorts) Usage() []models.PortRecord { return f.records }

type fakeAudit struct {
	mu      sync.Mutex
	entries []models.AuditEntry
}

func (f *fakeAudit) Record(_ context.Context, entry models.AuditEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
}

func newTestModule() (*Module, *fakeAudit) {
	audit := &fakeAudit{}
	m := New()
	m.logger = zap.NewNop()
	m.cfg = DefaultConfig()
	m.services = &fakeServices{services: []*models.Service{
		{ID: "docker:redis", Name: "redis", Status: models.StatusRunning, Ports: []uint16{6379}, PID: pidPtr(10)},
		{ID: "systemd:cron.service", Name: "cron", Status: models.StatusStopped, AutoStart: true},
	}}
	m.ports = &fakePorts{records: []models.PortRecord{
		occupied(23, "0.0.0.0", "telnetd"),
		occupied(6379, "127.0.0.1", "redis-server"),
	}}
	m.audit = audit
	m.uidsOf = func(_ context.Context, pid uint32) ([]int32, error) {
		if pid == 10 {
			return []int32{0, 0, 0}, nil
		}
		return []int32{1000}, nil
	}
	return m, audit
}

func TestScanProducesFindings(t *testing.T) {
	m, audit := newTestModule()

	result, err := m.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	if result.ServicesScanned != 2 || result.PortsScanned != 2 {
		t.Errorf("scanned = %d services / %d ports, want 2/2",
			result.ServicesScanned, result.PortsScanned)
	}
	if len(result.Issues) == 0 {
		t.Fatal("expected findings for telnet, redis, root and stale autostart")
	}

	byCategory := map[models.SecurityCategory]int{}
	for _, issue := range result.Issues {
		byCategory[issue.Category]++
	}
	for _, want := range []models.SecurityCategory{
		models.CategoryUnencryptedConnection,
		models.CategoryMissingAuthentication,
		models.CategoryPrivilegeEscalation,
		models.CategoryInsecureConfiguration,
	} {
		if byCategory[want] == 0 {
			t.Errorf("no finding in category %s", want)
		}
	}

	total := result.CriticalCount + result.HighCount + result.MediumCount +
		result.LowCount + result.InfoCount
	if total != len(result.Issues) {
		t.Errorf("severity counts sum to %d, want %d", total, len(result.Issues))
	}

	audit.mu.Lock()
	defer audit.mu.Unlock()
	if len(audit.entries) != 1 || audit.entries[0].EventType != models.AuditSecurityScan {
		t.Errorf("audit entries = %+v, want one security_scan record", audit.entries)
	}
}

func TestScanDeterministicAcrossRuns(t *testing.T) {
	m, _ := newTestModule()

	first, err := m.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	second, err := m.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	if !reflect.DeepEqual(first.Issues, second.Issues) {
		t.Error("unchanged input must yield identical issues across scans")
	}
}

func TestLastReflectsMostRecentScan(t *testing.T) {
	m, _ := newTestModule()

	if m.Last() != nil {
		t.Fatal("Last() before any scan should be nil")
	}

	result, err := m.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if m.Last() != result {
		t.Error("Last() should return the stored result of the latest scan")
	}
}

func TestScanWithoutCollaborators(t *testing.T) {
	m := New()
	m.logger = zap.NewNop()
	m.cfg = DefaultConfig()

	result, err := m.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if result.ServicesScanned != 0 || len(result.Issues) != 0 {
		t.Errorf("empty state should produce an empty result, got %+v", result)
	}
}
