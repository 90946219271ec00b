package inventory

import (
	"testing"

	"github.com/servicedeck/servicedeck/pkg/models"
)

func TestServiceID(t *testing.T) {
	tests := []struct {
		name     string
		kind     models.SourceKind
		nativeID string
		want     string
	}{
		{name: "docker container", kind: models.SourceDocker, nativeID: "abc123def456", want: "docker:abc123def456"},
		{name: "systemd unit", kind: models.SourceSystemd, nativeID: "nginx.service", want: "systemd:nginx.service"},
		{name: "launchd label", kind: models.SourceLaunchd, nativeID: "com.example.agent", want: "launchd:com.example.agent"},
		{name: "windows service", kind: models.SourceWinSvc, nativeID: "Spooler", want: "winsvc:Spooler"},
		{name: "bare process", kind: models.SourceProcess, nativeID: "pid-4242", want: "process:pid-4242"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := serviceID(tt.kind, tt.nativeID); got != tt.want {
				t.Errorf("serviceID(%s, %s) = %q, want %q", tt.kind, tt.nativeID, got, tt.want)
			}
		})
	}
}

// TestServiceIDStable verifies that the same unit maps to the same id on
// repeated derivations.
func TestServiceIDStable(t *testing.T) {
	a := serviceID(models.SourceSystemd, "postgresql.service")
	b := serviceID(models.SourceSystemd, "postgresql.service")
	if a != b {
		t.Errorf("id not stable: %q != %q", a, b)
	}
}

func TestProcessNativeID(t *testing.T) {
	if got := processNativeID(1234); got != "pid-1234" {
		t.Errorf("processNativeID(1234) = %q, want %q", got, "pid-1234")
	}
}

func TestSourcePrecedence(t *testing.T) {
	// Container beats init system beats native service manager beats
	// bare process.
	if !(sourcePrecedence(models.SourceDocker) < sourcePrecedence(models.SourceSystemd)) {
		t.Error("docker should outrank systemd")
	}
	if !(sourcePrecedence(models.SourceSystemd) < sourcePrecedence(models.SourceWinSvc)) {
		t.Error("systemd should outrank winsvc")
	}
	if !(sourcePrecedence(models.SourceWinSvc) < sourcePrecedence(models.SourceProcess)) {
		t.Error("winsvc should outrank process")
	}
	if sourcePrecedence(models.SourceSystemd) != sourcePrecedence(models.SourceLaunchd) {
		t.Error("both init systems should share a precedence rank")
	}
}
