package inventory

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/servicedeck/servicedeck/pkg/models"
	"go.uber.org/zap"
)

// SystemdAdapter discovers systemd service units via systemctl.
type SystemdAdapter struct {
	run    commandRunner
	probe  func() bool
	logger *zap.Logger
}

var _ SourceAdapter = (*SystemdAdapter)(nil)

// NewSystemdAdapter creates the systemd source adapter.
func NewSystemdAdapter(logger *zap.Logger) *SystemdAdapter {
	return &SystemdAdapter{
		run:    runCommand,
		probe:  func() bool { return commandExists("systemctl") },
		logger: logger,
	}
}

func (a *SystemdAdapter) Kind() models.SourceKind {
	return models.SourceSystemd
}

// List enumerates all service units plus their enablement state. A failed
// enablement lookup keeps the unit list and reports ErrPartialRead.
func (a *SystemdAdapter) List(ctx context.Context) ([]RawUnit, error) {
	if !a.probe() {
		return nil, fmt.Errorf("systemctl not found: %w", ErrSourceUnavailable)
	}

	out, err := a.run(ctx, "systemctl",
		"list-units", "--type=service", "--all", "--no-pager", "--plain", "--no-legend")
	if err != nil {
		return nil, fmt.Errorf("list-units: %v: %w", err, ErrSourceUnavailable)
	}

	units := parseSystemdUnits(string(out))
	if len(units) == 0 {
		return nil, nil
	}

	enabled, enErr := a.unitFileStates(ctx)
	pids, pidErr := a.mainPIDs(ctx, runningUnitNames(units))

	for i := range units {
		units[i].AutoStart = enabled[units[i].NativeID]
		if pid, ok := pids[units[i].NativeID]; ok && pid > 0 {
			p := pid
			units[i].PID = &p
		}
	}

	if enErr != nil || pidErr != nil {
		return units, fmt.Errorf("unit detail lookup failed: %w", ErrPartialRead)
	}
	return units, nil
}

// parseSystemdUnits parses `systemctl list-units` plain output. Columns:
// UNIT LOAD ACTIVE SUB DESCRIPTION...
func parseSystemdUnits(out string) []RawUnit {
	var units []RawUnit
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		name := fields[0]
		if !strings.HasSuffix(name, ".service") {
			continue
		}
		// not-found units appear with load state "not-found"
		if fields[1] == "not-found" {
			continue
		}
		desc := ""
		if len(fields) > 4 {
			desc = strings.Join(fields[4:], " ")
		}
		units = append(units, RawUnit{
			Kind:        models.SourceSystemd,
			NativeID:    name,
			Name:        strings.TrimSuffix(name, ".service"),
			Status:      mapSystemdActive(fields[2], fields[3]),
			Description: desc,
		})
	}
	return units
}

func mapSystemdActive(active, sub string) models.ServiceStatus {
	switch active {
	case "active":
		return models.StatusRunning
	case "failed":
		return models.StatusError
	case "inactive":
		if sub == "failed" {
			return models.StatusError
		}
		return models.StatusStopped
	case "activating", "reloading":
		return models.StatusRunning
	case "deactivating":
		return models.StatusStopped
	default:
		return models.StatusUnknown
	}
}

// unitFileStates returns unit name -> enabled for all service unit files.
func (a *SystemdAdapter) unitFileStates(ctx context.Context) (map[string]bool, error) {
	out, err := a.run(ctx, "systemctl",
		"list-unit-files", "--type=service", "--no-pager", "--plain", "--no-legend")
	if err != nil {
		return nil, err
	}
	return parseUnitFileStates(string(out)), nil
}

// parseUnitFileStates parses `systemctl list-unit-files` output. Columns:
// UNIT-FILE STATE [PRESET]
func parseUnitFileStates(out string) map[string]bool {
	states := make(map[string]bool)
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(strings.TrimSpace(scanner.Text()))
		if len(fields) < 2 || !strings.HasSuffix(fields[0], ".service") {
			continue
		}
		switch fields[1] {
		case "enabled", "enabled-runtime":
			states[fields[0]] = true
		}
	}
	return states
}

func runningUnitNames(units []RawUnit) []string {
	var names []string
	for _, u := range units {
		if u.Status == models.StatusRunning {
			names = append(names, u.NativeID)
		}
	}
	return names
}

// mainPIDs resolves MainPID for the given units with one batched show call.
func (a *SystemdAdapter) mainPIDs(ctx context.Context, names []string) (map[string]uint32, error) {
	if len(names) == 0 {
		return nil, nil
	}
	args := append([]string{"show", "--property=Id,MainPID", "--no-pager"}, names...)
	out, err := a.run(ctx, "systemctl", args...)
	if err != nil {
		return nil, err
	}
	return parseMainPIDs(string(out)), nil
}

// parseMainPIDs parses blocks of `systemctl show` output separated by blank
// lines, each holding Id= and MainPID= properties.
func parseMainPIDs(out string) map[string]uint32 {
	pids := make(map[string]uint32)
	var id string
	var pid uint32
	flush := func() {
		if id != "" && pid > 0 {
			pids[id] = pid
		}
		id, pid = "", 0
	}
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			flush()
			continue
		}
		if v, ok := strings.CutPrefix(line, "Id="); ok {
			id = v
		} else if v, ok := strings.CutPrefix(line, "MainPID="); ok {
			if n, err := strconv.ParseUint(v, 10, 32); err == nil {
				pid = uint32(n)
			}
		}
	}
	flush()
	return pids
}
