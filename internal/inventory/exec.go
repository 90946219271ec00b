package inventory

import (
	"context"
	"errors"
	"os/exec"
	"strings"
)

// commandRunner abstracts process execution so adapter parsing is testable
// without the underlying platform tools.
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// runCommand is the production runner.
func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// commandExists reports whether a binary is on PATH.
func commandExists(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// isPermissionDenied classifies platform tool failures that mean the caller
// lacks privileges rather than the tool being broken.
func isPermissionDenied(err error) bool {
	if err == nil {
		return false
	}
	combined := strings.ToLower(err.Error() + " " + exitStderr(err))
	return strings.Contains(combined, "permission denied") ||
		strings.Contains(combined, "access is denied") ||
		strings.Contains(combined, "operation not permitted") ||
		strings.Contains(combined, "interactive authentication required")
}

// exitStderr extracts stderr from an exec.ExitError for diagnostics.
func exitStderr(err error) string {
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return string(ee.Stderr)
	}
	return ""
}
