package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/servicedeck/servicedeck/pkg/models"
	"go.uber.org/zap"
)

const dockerAPIVersion = "v1.41"

// dockerClient talks to the container runtime over its unix socket. No
// client library is used; the handful of endpoints we need are plain
// HTTP+JSON.
type dockerClient struct {
	socket string
	http   *http.Client
	logger *zap.Logger
}

func newDockerClient(socket string, logger *zap.Logger) *dockerClient {
	return &dockerClient{
		socket: socket,
		http: &http.Client{
			Transport: &http.Transport{
				DialContext: func(_ context.Context, _, _ string) (net.Conn, error) {
					return net.DialTimeout("unix", socket, 5*time.Second)
				},
			},
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// available reports whether the runtime socket exists.
func (c *dockerClient) available() bool {
	_, err := os.Stat(c.socket)
	return err == nil
}

func (c *dockerClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		"http://localhost/"+dockerAPIVersion+path, http.NoBody)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("docker API %s: status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// post issues a control request. Docker answers 204 on success, 304 when
// the container is already in the requested state.
func (c *dockerClient) post(ctx context.Context, path string, body string) error {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		"http://localhost/"+dockerAPIVersion+path, reader)
	if err != nil {
		return err
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotModified:
		return nil
	case http.StatusForbidden:
		return fmt.Errorf("docker API %s: %w", path, ErrPermissionDenied)
	case http.StatusNotFound:
		return fmt.Errorf("docker API %s: %w", path, ErrNotFound)
	default:
		return fmt.Errorf("docker API %s: status %d", path, resp.StatusCode)
	}
}

// --- Docker API list/inspect payloads ---

type dockerContainer struct {
	ID     string            `json:"Id"`
	Names  []string          `json:"Names"`
	Image  string            `json:"Image"`
	State  string            `json:"State"`
	Status string            `json:"Status"`
	Ports  []dockerPort      `json:"Ports"`
	Labels map[string]string `json:"Labels"`
}

type dockerPort struct {
	PrivatePort uint16 `json:"PrivatePort"`
	PublicPort  uint16 `json:"PublicPort"`
	Type        string `json:"Type"`
}

type dockerInspect struct {
	State struct {
		Pid int `json:"Pid"`
	} `json:"State"`
	HostConfig struct {
		RestartPolicy struct {
			Name string `json:"Name"`
		} `json:"RestartPolicy"`
	} `json:"HostConfig"`
}

// DockerAdapter discovers containers as services.
type DockerAdapter struct {
	client *dockerClient
	logger *zap.Logger
}

var _ SourceAdapter = (*DockerAdapter)(nil)

// NewDockerAdapter creates the container source adapter.
func NewDockerAdapter(socket string, logger *zap.Logger) *DockerAdapter {
	return &DockerAdapter{
		client: newDockerClient(socket, logger),
		logger: logger,
	}
}

func (a *DockerAdapter) Kind() models.SourceKind {
	return models.SourceDocker
}

// List returns all containers, running or not. Inspect failures on
// individual containers degrade that container's detail, not the cycle.
func (a *DockerAdapter) List(ctx context.Context) ([]RawUnit, error) {
	if !a.client.available() {
		return nil, fmt.Errorf("socket %s: %w", a.client.socket, ErrSourceUnavailable)
	}

	var containers []dockerContainer
	if err := a.client.get(ctx, "/containers/json?all=1", &containers); err != nil {
		return nil, fmt.Errorf("list containers: %w", ErrSourceUnavailable)
	}

	units := make([]RawUnit, 0, len(containers))
	partial := false
	for _, c := range containers {
		unit := RawUnit{
			Kind:        models.SourceDocker,
			NativeID:    shortID(c.ID),
			Name:        containerName(c.Names),
			Status:      mapContainerState(c.State),
			Ports:       publishedPorts(c.Ports),
			Path:        c.Image,
			Description: c.Status,
		}

		var insp dockerInspect
		if err := a.client.get(ctx, "/containers/"+c.ID+"/json", &insp); err != nil {
			a.logger.Debug("container inspect failed",
				zap.String("container", shortID(c.ID)), zap.Error(err))
			partial = true
		} else {
			if insp.State.Pid > 0 {
				pid := uint32(insp.State.Pid)
				unit.PID = &pid
			}
			unit.AutoStart = restartPolicyAutostarts(insp.HostConfig.RestartPolicy.Name)
		}

		units = append(units, unit)
	}

	if partial {
		return units, ErrPartialRead
	}
	return units, nil
}

// containerName extracts a clean name from Docker container names
// (removes leading /).
func containerName(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return strings.TrimPrefix(names[0], "/")
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func mapContainerState(state string) models.ServiceStatus {
	switch state {
	case "running", "restarting":
		return models.StatusRunning
	case "exited", "created", "paused", "removing":
		return models.StatusStopped
	case "dead":
		return models.StatusError
	default:
		return models.StatusUnknown
	}
}

func restartPolicyAutostarts(policy string) bool {
	switch policy {
	case "always", "unless-stopped":
		return true
	default:
		return false
	}
}

// publishedPorts returns host-visible ports: the published port when mapped,
// the private port for host-network containers.
func publishedPorts(ports []dockerPort) []uint16 {
	seen := make(map[uint16]struct{}, len(ports))
	var out []uint16
	for _, p := range ports {
		port := p.PublicPort
		if port == 0 {
			port = p.PrivatePort
		}
		if port == 0 {
			continue
		}
		if _, dup := seen[port]; dup {
			continue
		}
		seen[port] = struct{}{}
		out = append(out, port)
	}
	return out
}
