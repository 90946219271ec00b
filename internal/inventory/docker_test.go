package inventory

import (
	"reflect"
	"testing"

	"github.com/servicedeck/servicedeck/pkg/models"
)

func TestContainerName(t *testing.T) {
	tests := []struct {
		name  string
		names []string
		want  string
	}{
		{name: "leading slash stripped", names: []string{"/redis-cache"}, want: "redis-cache"},
		{name: "first name wins", names: []string{"/primary", "/alias"}, want: "primary"},
		{name: "empty list", names: nil, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := containerName(tt.names); got != tt.want {
				t.Errorf("containerName(%v) = %q, want %q", tt.names, got, tt.want)
			}
		})
	}
}

func TestShortID(t *testing.T) {
	full := "4f5e6d7c8b9a0f1e2d3c4b5a69788796a5b4c3d2e1f0"
	if got := shortID(full); got != "4f5e6d7c8b9a" {
		t.Errorf("shortID() = %q, want 12-char prefix", got)
	}
	if got := shortID("abc"); got != "abc" {
		t.Errorf("shortID(short) = %q, want unchanged", got)
	}
}

func TestMapContainerState(t *testing.T) {
	tests := []struct {
		state string
		want  models.ServiceStatus
	}{
		{"running", models.StatusRunning},
		{"restarting", models.StatusRunning},
		{"exited", models.StatusStopped},
		{"created", models.StatusStopped},
		{"paused", models.StatusStopped},
		{"dead", models.StatusError},
		{"weird", models.StatusUnknown},
	}

	for _, tt := range tests {
		if got := mapContainerState(tt.state); got != tt.want {
			t.Errorf("mapContainerState(%q) = %s, want %s", tt.state, got, tt.want)
		}
	}
}

func TestRestartPolicyAutostarts(t *testing.T) {
	if !restartPolicyAutostarts("always") {
		t.Error("always should autostart")
	}
	if !restartPolicyAutostarts("unless-stopped") {
		t.Error("unless-stopped should autostart")
	}
	if restartPolicyAutostarts("no") || restartPolicyAutostarts("") || restartPolicyAutostarts("on-failure") {
		t.Error("no/empty/on-failure should not autostart")
	}
}

func TestPublishedPorts(t *testing.T) {
	ports := []dockerPort{
		{PrivatePort: 6379, PublicPort: 16379, Type: "tcp"},
		{PrivatePort: 8080, Type: "tcp"},          // host networking: no mapping
		{PrivatePort: 6379, PublicPort: 16379},    // duplicate mapping (ipv4+ipv6)
		{},                                        // empty entry ignored
	}

	got := publishedPorts(ports)
	want := []uint16{16379, 8080}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("publishedPorts() = %v, want %v", got, want)
	}
}
