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

// LaunchdAdapter discovers launchd jobs via launchctl.
type LaunchdAdapter struct {
	run    commandRunner
	probe  func() bool
	logger *zap.Logger
}

var _ SourceAdapter = (*LaunchdAdapter)(nil)

// NewLaunchdAdapter creates the launchd source adapter.
func NewLaunchdAdapter(logger *zap.Logger) *LaunchdAdapter {
	return &LaunchdAdapter{
		run:    runCommand,
		probe:  func() bool { return commandExists("launchctl") },
		logger: logger,
	}
}

func (a *LaunchdAdapter) Kind() models.SourceKind {
	return models.SourceLaunchd
}

// List enumerates loaded launchd jobs. Loaded jobs are treated as
// autostart-enabled; launchd does not expose enablement separately
// through `launchctl list`.
func (a *LaunchdAdapter) List(ctx context.Context) ([]RawUnit, error) {
	if !a.probe() {
		return nil, fmt.Errorf("launchctl not found: %w", ErrSourceUnavailable)
	}

	out, err := a.run(ctx, "launchctl", "list")
	if err != nil {
		return nil, fmt.Errorf("launchctl list: %v: %w", err, ErrSourceUnavailable)
	}

	return parseLaunchdJobs(string(out)), nil
}

// parseLaunchdJobs parses `launchctl list` output. Columns: PID STATUS LABEL.
// PID is "-" for jobs that are loaded but not running; STATUS is the last
// exit code.
func parseLaunchdJobs(out string) []RawUnit {
	var units []RawUnit
	scanner := bufio.NewScanner(strings.NewReader(out))
	first := true
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if first {
			// Header row: "PID Status Label".
			first = false
			if strings.HasPrefix(line, "PID") {
				continue
			}
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}

		label := fields[2]
		unit := RawUnit{
			Kind:      models.SourceLaunchd,
			NativeID:  label,
			Name:      label,
			AutoStart: true,
		}

		if fields[0] != "-" {
			if n, err := strconv.ParseUint(fields[0], 10, 32); err == nil {
				pid := uint32(n)
				unit.PID = &pid
				unit.Status = models.StatusRunning
			}
		} else {
			// Not running: non-zero last exit code means it died.
			if code, err := strconv.Atoi(fields[1]); err == nil && code != 0 {
				unit.Status = models.StatusError
			} else {
				unit.Status = models.StatusStopped
			}
		}

		units = append(units, unit)
	}
	return units
}
