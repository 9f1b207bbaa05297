package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// DefaultTelemetryPort is the fixed UDP port frames are sent to and received on.
	DefaultTelemetryPort = 9999

	// DefaultTickInterval is the simulation and telemetry period.
	DefaultTickInterval = 100 * time.Millisecond

	// DefaultResyncAfterFailures is the consecutive apply failures tolerated
	// from one peer before a snapshot is exchanged again.
	DefaultResyncAfterFailures = 3
)

// Config holds all configuration for tdf.
type Config struct {
	Network     NetworkConfig     `mapstructure:"network"`
	Simulation  SimulationConfig  `mapstructure:"simulation"`
	Replication ReplicationConfig `mapstructure:"replication"`
	Scenario    ScenarioConfig    `mapstructure:"scenario"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	API         APIConfig         `mapstructure:"api"`
}

// NetworkConfig holds the reliable and telemetry channel settings.
type NetworkConfig struct {
	// ListenAddr is where a master accepts websocket peers.
	ListenAddr string `mapstructure:"listen_addr"`
	// Path is the websocket upgrade path.
	Path string `mapstructure:"path"`
	// UpstreamURL is the master a slave connects to.
	UpstreamURL string `mapstructure:"upstream_url"`
	// TelemetryPort is the UDP port every process binds and sends frames to.
	TelemetryPort int `mapstructure:"telemetry_port"`
	// TelemetryAddr is the local UDP bind host.
	TelemetryAddr string `mapstructure:"telemetry_addr"`
}

// TelemetryBind returns the host:port the telemetry socket binds to.
func (n NetworkConfig) TelemetryBind() string {
	return fmt.Sprintf("%s:%d", n.TelemetryAddr, n.TelemetryPort)
}

// SimulationConfig holds engine loop settings.
type SimulationConfig struct {
	TickInterval time.Duration `mapstructure:"tick_interval"`
}

// ReplicationConfig holds replication queue and recovery settings.
type ReplicationConfig struct {
	QueueSize           int           `mapstructure:"queue_size"`
	SendBuffer          int           `mapstructure:"send_buffer"`
	ResyncAfterFailures int           `mapstructure:"resync_after_failures"`
	StaleAfter          time.Duration `mapstructure:"stale_after"`
}

// ScenarioConfig holds scenario document storage settings.
type ScenarioConfig struct {
	Dir string `mapstructure:"dir"`
	// Autoload names a scenario a master loads at startup. Empty disables it.
	Autoload string `mapstructure:"autoload"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// APIConfig holds HTTP API server settings. An empty ListenAddr disables the API.
type APIConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
	AuthToken  string `mapstructure:"auth_token"`
}

// String returns a safe representation of APIConfig with the token masked.
func (c APIConfig) String() string {
	return fmt.Sprintf("APIConfig{ListenAddr:%s, AuthToken:%s}", c.ListenAddr, maskSecret(c.AuthToken))
}

// maskSecret shows first 4 + last 4 chars, replacing the middle with asterisks.
func maskSecret(s string) string {
	const visible = 4
	if s == "" {
		return ""
	}
	if len(s) <= visible*2 {
		return "***"
	}
	return s[:visible] + "****" + s[len(s)-visible:]
}

// Load reads configuration from file and environment variables.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("network.listen_addr", ":8765")
	v.SetDefault("network.path", "/ws")
	v.SetDefault("network.upstream_url", "ws://127.0.0.1:8765/ws")
	v.SetDefault("network.telemetry_port", DefaultTelemetryPort)
	v.SetDefault("network.telemetry_addr", "0.0.0.0")

	v.SetDefault("simulation.tick_interval", DefaultTickInterval)

	v.SetDefault("replication.queue_size", 1024)
	v.SetDefault("replication.send_buffer", 256)
	v.SetDefault("replication.resync_after_failures", DefaultResyncAfterFailures)
	v.SetDefault("replication.stale_after", 5*time.Second)

	v.SetDefault("scenario.dir", filepath.Join(homeDir(), ".tdf", "scenarios"))
	v.SetDefault("scenario.autoload", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("api.listen_addr", "")
	v.SetDefault("api.auth_token", "")

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join(homeDir(), ".tdf"))
	v.AddConfigPath(".")

	// Environment variables: TDF_NETWORK_LISTEN_ADDR etc.
	v.SetEnvPrefix("TDF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are set and consistent.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.Network.Path, "/") {
		return fmt.Errorf("network.path must start with /")
	}
	if c.Network.TelemetryPort <= 0 || c.Network.TelemetryPort > 65535 {
		return fmt.Errorf("network.telemetry_port must be between 1 and 65535")
	}
	if c.Network.UpstreamURL != "" {
		u, err := url.Parse(c.Network.UpstreamURL)
		if err != nil {
			return fmt.Errorf("network.upstream_url: %w", err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("network.upstream_url must use ws or wss, got %q", u.Scheme)
		}
	}
	if c.Simulation.TickInterval <= 0 {
		return fmt.Errorf("simulation.tick_interval must be greater than 0")
	}
	if c.Replication.QueueSize <= 0 {
		return fmt.Errorf("replication.queue_size must be greater than 0")
	}
	if c.Replication.SendBuffer <= 0 {
		return fmt.Errorf("replication.send_buffer must be greater than 0")
	}
	if c.Replication.ResyncAfterFailures <= 0 {
		return fmt.Errorf("replication.resync_after_failures must be greater than 0")
	}
	if c.Replication.StaleAfter < c.Simulation.TickInterval {
		return fmt.Errorf("replication.stale_after (%s) must be at least simulation.tick_interval (%s)",
			c.Replication.StaleAfter, c.Simulation.TickInterval)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	return nil
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
