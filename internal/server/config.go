package server

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds the server configuration.
type Config struct {
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	DataDir string `mapstructure:"data_dir"`
}

// Addr returns the listen address as host:port.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoadConfig reads configuration from file and environment variables.
func LoadConfig(configPath string) (*viper.Viper, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8420)
	v.SetDefault("server.data_dir", "./data")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("database.path", "./data/servicedeck.db")

	// Plugin defaults
	v.SetDefault("plugins.inventory.discover_interval", "5s")
	v.SetDefault("plugins.inventory.adapter_timeout", "10s")
	v.SetDefault("plugins.inventory.docker_socket", "/var/run/docker.sock")
	v.SetDefault("plugins.inventory.max_process_services", 50)
	v.SetDefault("plugins.portmap.correlate_interval", "10s")
	v.SetDefault("plugins.portmap.scan_timeout", "2s")
	v.SetDefault("plugins.portmap.scan_concurrency", 100)
	v.SetDefault("plugins.sysstats.sample_interval", "5s")
	v.SetDefault("plugins.sysstats.history_window", "30m")
	v.SetDefault("plugins.sysstats.gpu_provider", "auto")
	v.SetDefault("plugins.sentinel.scan_interval", "10m")
	v.SetDefault("plugins.audit.retention_period", "720h")
	v.SetDefault("plugins.audit.maintenance_interval", "1h")
	v.SetDefault("plugins.explain.enabled", false)
	v.SetDefault("plugins.explain.url", "http://localhost:11434")
	v.SetDefault("plugins.explain.model", "mistral:7b-instruct")
	v.SetDefault("plugins.explain.timeout", "30s")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("servicedeck")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/servicedeck")
	}

	// Environment variable support: SD_SERVER_PORT=9090
	v.SetEnvPrefix("SD")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is fine -- use defaults
	}

	return v, nil
}
