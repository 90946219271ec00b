package inventory

import (
	"context"
	"errors"
	"testing"

	"github.com/servicedeck/servicedeck/pkg/models"
	"go.uber.org/zap"
)

const sampleListUnits = `  cron.service        loaded active   running Regular background program processing daemon
  nginx.service       loaded active   running A high performance web server
  postgresql.service  loaded inactive dead    PostgreSQL RDBMS
  broken.service      loaded failed   failed  Something that crashed
  ghost.service       not-found inactive dead ghost.service
`

const sampleUnitFiles = `cron.service        enabled  enabled
nginx.service       enabled  enabled
postgresql.service  disabled enabled
broken.service      static   -
`

const sampleShowOutput = `Id=cron.service
MainPID=612

Id=nginx.service
MainPID=1301
`

func TestParseSystemdUnits(t *testing.T) {
	units := parseSystemdUnits(sampleListUnits)

	if len(units) != 4 {
		t.Fatalf("units = %d, want 4 (not-found excluded)", len(units))
	}

	tests := []struct {
		nativeID string
		name     string
		status   models.ServiceStatus
	}{
		{"cron.service", "cron", models.StatusRunning},
		{"nginx.service", "nginx", models.StatusRunning},
		{"postgresql.service", "postgresql", models.StatusStopped},
		{"broken.service", "broken", models.StatusError},
	}

	for i, tt := range tests {
		if units[i].NativeID != tt.nativeID {
			t.Errorf("unit[%d].NativeID = %s, want %s", i, units[i].NativeID, tt.nativeID)
		}
		if units[i].Name != tt.name {
			t.Errorf("unit[%d].Name = %s, want %s", i, units[i].Name, tt.name)
		}
		if units[i].Status != tt.status {
			t.Errorf("unit[%d].Status = %s, want %s", i, units[i].Status, tt.status)
		}
	}

	if units[0].Description != "Regular background program processing daemon" {
		t.Errorf("description = %q, want full trailing text", units[0].Description)
	}
}

func TestParseUnitFileStates(t *testing.T) {
	states := parseUnitFileStates(sampleUnitFiles)

	if !states["cron.service"] {
		t.Error("cron.service should be enabled")
	}
	if states["postgresql.service"] {
		t.Error("postgresql.service should not be enabled")
	}
	if states["broken.service"] {
		t.Error("static units are not autostart-enabled")
	}
}

func TestParseMainPIDs(t *testing.T) {
	pids := parseMainPIDs(sampleShowOutput)

	if pids["cron.service"] != 612 {
		t.Errorf("cron pid = %d, want 612", pids["cron.service"])
	}
	if pids["nginx.service"] != 1301 {
		t.Errorf("nginx pid = %d, want 1301", pids["nginx.service"])
	}
}

// TestSystemdListComposed exercises the full List flow with a fake runner.
func TestSystemdListComposed(t *testing.T) {
	a := &SystemdAdapter{
		probe:  func() bool { return true },
		logger: zap.NewNop(),
		run: func(_ context.Context, _ string, args ...string) ([]byte, error) {
			switch args[0] {
			case "list-units":
				return []byte(sampleListUnits), nil
			case "list-unit-files":
				return []byte(sampleUnitFiles), nil
			case "show":
				return []byte(sampleShowOutput), nil
			}
			return nil, errors.New("unexpected command")
		},
	}

	units, err := a.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(units) != 4 {
		t.Fatalf("units = %d, want 4", len(units))
	}

	if !units[0].AutoStart {
		t.Error("cron.service should be autostart-enabled")
	}
	if units[0].PID == nil || *units[0].PID != 612 {
		t.Errorf("cron pid = %v, want 612", units[0].PID)
	}
	if units[2].AutoStart {
		t.Error("postgresql.service should not be autostart-enabled")
	}
	if units[2].PID != nil {
		t.Error("stopped unit should not carry a pid")
	}
}

func TestSystemdListUnavailable(t *testing.T) {
	a := &SystemdAdapter{
		probe:  func() bool { return false },
		logger: zap.NewNop(),
		run:    runCommand,
	}

	_, err := a.List(context.Background())
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Errorf("error = %v, want ErrSourceUnavailable", err)
	}
}

// TestSystemdListPartial verifies a failed enablement lookup keeps the unit
// list and reports ErrPartialRead.
func TestSystemdListPartial(t *testing.T) {
	a := &SystemdAdapter{
		probe:  func() bool { return true },
		logger: zap.NewNop(),
		run: func(_ context.Context, _ string, args ...string) ([]byte, error) {
			if args[0] == "list-units" {
				return []byte(sampleListUnits), nil
			}
			return nil, errors.New("dbus timeout")
		},
	}

	units, err := a.List(context.Background())
	if !errors.Is(err, ErrPartialRead) {
		t.Fatalf("error = %v, want ErrPartialRead", err)
	}
	if len(units) != 4 {
		t.Errorf("units = %d, want 4 despite partial read", len(units))
	}
}
