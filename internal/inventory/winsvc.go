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

// WinSvcAdapter discovers Windows services via the sc.exe query interface.
type WinSvcAdapter struct {
	run    commandRunner
	probe  func() bool
	logger *zap.Logger
}

var _ SourceAdapter = (*WinSvcAdapter)(nil)

// NewWinSvcAdapter creates the Windows service-manager source adapter.
func NewWinSvcAdapter(logger *zap.Logger) *WinSvcAdapter {
	return &WinSvcAdapter{
		run:    runCommand,
		probe:  func() bool { return commandExists("sc") || commandExists("sc.exe") },
		logger: logger,
	}
}

func (a *WinSvcAdapter) Kind() models.SourceKind {
	return models.SourceWinSvc
}

// List enumerates all Windows services. Start-type lookups use `sc qc`
// per service; a failed lookup keeps the service and reports ErrPartialRead.
func (a *WinSvcAdapter) List(ctx context.Context) ([]RawUnit, error) {
	if !a.probe() {
		return nil, fmt.Errorf("sc.exe not found: %w", ErrSourceUnavailable)
	}

	out, err := a.run(ctx, "sc", "query", "type=", "service", "state=", "all")
	if err != nil {
		return nil, fmt.Errorf("sc query: %v: %w", err, ErrSourceUnavailable)
	}

	units := parseWinServices(string(out))
	partial := false
	for i := range units {
		auto, err := a.startTypeIsAuto(ctx, units[i].NativeID)
		if err != nil {
			partial = true
			continue
		}
		units[i].AutoStart = auto
	}

	if partial {
		return units, fmt.Errorf("sc qc lookup failed: %w", ErrPartialRead)
	}
	return units, nil
}

// parseWinServices parses `sc query` block output. Each service block starts
// with SERVICE_NAME and carries DISPLAY_NAME, STATE and PID lines.
func parseWinServices(out string) []RawUnit {
	var units []RawUnit
	var cur *RawUnit

	flush := func() {
		if cur != nil && cur.NativeID != "" {
			units = append(units, *cur)
		}
		cur = nil
	}

	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if name, ok := cutField(line, "SERVICE_NAME:"); ok {
			flush()
			cur = &RawUnit{
				Kind:     models.SourceWinSvc,
				NativeID: name,
				Name:     name,
				Status:   models.StatusUnknown,
			}
			continue
		}
		if cur == nil {
			continue
		}

		if display, ok := cutField(line, "DISPLAY_NAME:"); ok {
			cur.Description = display
		} else if state, ok := cutField(line, "STATE"); ok {
			cur.Status = mapWinState(state)
		} else if pidField, ok := cutField(line, "PID"); ok {
			if n, err := strconv.ParseUint(pidField, 10, 32); err == nil && n > 0 {
				pid := uint32(n)
				cur.PID = &pid
			}
		}
	}
	flush()
	return units
}

// cutField splits "KEY : value" lines tolerating the colon placement sc.exe
// uses ("STATE              : 4  RUNNING").
func cutField(line, key string) (string, bool) {
	if !strings.HasPrefix(line, strings.TrimSuffix(key, ":")) {
		return "", false
	}
	_, rest, found := strings.Cut(line, ":")
	if !found {
		return "", false
	}
	return strings.TrimSpace(rest), true
}

func mapWinState(state string) models.ServiceStatus {
	s := strings.ToUpper(state)
	switch {
	case strings.Contains(s, "RUNNING"), strings.Contains(s, "START_PENDING"),
		strings.Contains(s, "CONTINUE_PENDING"):
		return models.StatusRunning
	case strings.Contains(s, "STOPPED"), strings.Contains(s, "STOP_PENDING"),
		strings.Contains(s, "PAUSED"), strings.Contains(s, "PAUSE_PENDING"):
		return models.StatusStopped
	default:
		return models.StatusUnknown
	}
}

// startTypeIsAuto reports whether the service start type is AUTO_START.
func (a *WinSvcAdapter) startTypeIsAuto(ctx context.Context, name string) (bool, error) {
	out, err := a.run(ctx, "sc", "qc", name)
	if err != nil {
		return false, err
	}
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if st, ok := cutField(line, "START_TYPE"); ok {
			return strings.Contains(strings.ToUpper(st), "AUTO_START"), nil
		}
	}
	return false, nil
}
