package inventory

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/process"
	"github.com/servicedeck/servicedeck/pkg/models"
	"go.uber.org/zap"
)

// ControlOp is a lifecycle operation requested against one service.
type ControlOp string

const (
	OpStart   ControlOp = "start"
	OpStop    ControlOp = "stop"
	OpRestart ControlOp = "restart"
	OpKill    ControlOp = "kill"
)

// controller dispatches control operations to the platform mechanism that
// owns the service. Fire-and-forget: success means the request was issued,
// not that the service reached the target state. The next merge cycle
// observes the outcome.
type controller struct {
	docker *dockerClient
	run    commandRunner
	logger *zap.Logger
}

func newController(docker *dockerClient, logger *zap.Logger) *controller {
	return &controller{
		docker: docker,
		run:    runCommand,
		logger: logger,
	}
}

// Control issues op against svc. Permission failures surface as
// ErrPermissionDenied without retry or escalation; unsupported
// (kind, op) pairs return ErrUnsupportedOp.
func (c *controller) Control(ctx context.Context, svc *models.Service, op ControlOp) error {
	nativeID := nativeIDOf(svc)

	switch svc.Source {
	case models.SourceDocker:
		return c.controlDocker(ctx, nativeID, op)
	case models.SourceSystemd:
		return c.controlSystemd(ctx, nativeID, op)
	case models.SourceLaunchd:
		return c.controlLaunchd(ctx, svc, nativeID, op)
	case models.SourceWinSvc:
		return c.controlWinSvc(ctx, nativeID, op)
	case models.SourceProcess:
		return c.controlProcess(ctx, svc, op)
	default:
		return fmt.Errorf("%s on %s: %w", op, svc.Source, ErrUnsupportedOp)
	}
}

// SetAutostart toggles boot-time enablement.
func (c *controller) SetAutostart(ctx context.Context, svc *models.Service, enabled bool) error {
	nativeID := nativeIDOf(svc)

	switch svc.Source {
	case models.SourceDocker:
		policy := `{"RestartPolicy":{"Name":"no"}}`
		if enabled {
			policy = `{"RestartPolicy":{"Name":"unless-stopped"}}`
		}
		return c.docker.post(ctx, "/containers/"+nativeID+"/update", policy)
	case models.SourceSystemd:
		verb := "disable"
		if enabled {
			verb = "enable"
		}
		return c.execTool(ctx, "systemctl", verb, nativeID)
	case models.SourceWinSvc:
		start := "demand"
		if enabled {
			start = "auto"
		}
		return c.execTool(ctx, "sc", "config", nativeID, "start=", start)
	default:
		// launchd enablement needs the job's plist path, which discovery
		// does not carry; bare processes have no autostart at all.
		return fmt.Errorf("autostart on %s: %w", svc.Source, ErrUnsupportedOp)
	}
}

func (c *controller) controlDocker(ctx context.Context, id string, op ControlOp) error {
	switch op {
	case OpStart, OpStop, OpRestart, OpKill:
		return c.docker.post(ctx, fmt.Sprintf("/containers/%s/%s", id, op), "")
	default:
		return fmt.Errorf("%s: %w", op, ErrUnsupportedOp)
	}
}

func (c *controller) controlSystemd(ctx context.Context, unit string, op ControlOp) error {
	switch op {
	case OpStart, OpStop, OpRestart:
		return c.execTool(ctx, "systemctl", string(op), unit)
	case OpKill:
		return c.execTool(ctx, "systemctl", "kill", "--signal=SIGKILL", unit)
	default:
		return fmt.Errorf("%s: %w", op, ErrUnsupportedOp)
	}
}

func (c *controller) controlLaunchd(ctx context.Context, svc *models.Service, label string, op ControlOp) error {
	switch op {
	case OpStart:
		return c.execTool(ctx, "launchctl", "start", label)
	case OpStop:
		return c.execTool(ctx, "launchctl", "stop", label)
	case OpRestart:
		if err := c.execTool(ctx, "launchctl", "stop", label); err != nil {
			return err
		}
		return c.execTool(ctx, "launchctl", "start", label)
	case OpKill:
		return c.killPID(ctx, svc)
	default:
		return fmt.Errorf("%s: %w", op, ErrUnsupportedOp)
	}
}

func (c *controller) controlWinSvc(ctx context.Context, name string, op ControlOp) error {
	switch op {
	case OpStart:
		return c.execTool(ctx, "sc", "start", name)
	case OpStop:
		return c.execTool(ctx, "sc", "stop", name)
	case OpRestart:
		if err := c.execTool(ctx, "sc", "stop", name); err != nil {
			return err
		}
		return c.execTool(ctx, "sc", "start", name)
	case OpKill:
		return fmt.Errorf("kill on %s: %w", models.SourceWinSvc, ErrUnsupportedOp)
	default:
		return fmt.Errorf("%s: %w", op, ErrUnsupportedOp)
	}
}

// controlProcess handles bare processes: only stop (graceful terminate) and
// kill make sense; nothing can start a process the platform does not manage.
func (c *controller) controlProcess(ctx context.Context, svc *models.Service, op ControlOp) error {
	switch op {
	case OpStop:
		return c.signalPID(ctx, svc, false)
	case OpKill:
		return c.signalPID(ctx, svc, true)
	default:
		return fmt.Errorf("%s on %s: %w", op, models.SourceProcess, ErrUnsupportedOp)
	}
}

func (c *controller) killPID(ctx context.Context, svc *models.Service) error {
	return c.signalPID(ctx, svc, true)
}

func (c *controller) signalPID(ctx context.Context, svc *models.Service, force bool) error {
	if svc.PID == nil {
		return fmt.Errorf("service %s has no pid: %w", svc.ID, ErrNotFound)
	}
	proc, err := process.NewProcessWithContext(ctx, int32(*svc.PID))
	if err != nil {
		return fmt.Errorf("pid %d: %w", *svc.PID, ErrNotFound)
	}
	if force {
		err = proc.KillWithContext(ctx)
	} else {
		err = proc.TerminateWithContext(ctx)
	}
	if err != nil {
		if isPermissionDenied(err) {
			return fmt.Errorf("signal pid %d: %w", *svc.PID, ErrPermissionDenied)
		}
		return fmt.Errorf("signal pid %d: %w", *svc.PID, err)
	}
	return nil
}

// execTool runs a platform control tool and classifies privilege failures.
func (c *controller) execTool(ctx context.Context, name string, args ...string) error {
	out, err := c.run(ctx, name, args...)
	if err != nil {
		if isPermissionDenied(err) {
			return fmt.Errorf("%s %v: %w", name, args, ErrPermissionDenied)
		}
		return fmt.Errorf("%s %v: %v (output: %s)", name, args, err, firstLine(string(out)+exitStderr(err)))
	}
	return nil
}

// nativeIDOf strips the source-kind prefix from a service id.
func nativeIDOf(svc *models.Service) string {
	prefix := string(svc.Source) + ":"
	if len(svc.ID) > len(prefix) && svc.ID[:len(prefix)] == prefix {
		return svc.ID[len(prefix):]
	}
	return svc.ID
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
