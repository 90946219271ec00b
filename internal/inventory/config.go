package inventory

import "time"

// Config holds the inventory module configuration.
type Config struct {
	// DiscoverInterval is the merge cycle period. Ticks arriving while a
	// merge is still in flight are coalesced.
	DiscoverInterval time.Duration `mapstructure:"discover_interval"`

	// AdapterTimeout bounds each source adapter's List call per cycle.
	AdapterTimeout time.Duration `mapstructure:"adapter_timeout"`

	// DockerSocket is the path to the container runtime's unix socket.
	DockerSocket string `mapstructure:"docker_socket"`

	// MaxProcessServices caps how many bare-process units the process
	// adapter contributes per cycle.
	MaxProcessServices int `mapstructure:"max_process_services"`
}

// DefaultConfig returns the inventory defaults.
func DefaultConfig() Config {
	return Config{
		DiscoverInterval:   5 * time.Second,
		AdapterTimeout:     10 * time.Second,
		DockerSocket:       "/var/run/docker.sock",
		MaxProcessServices: 50,
	}
}
