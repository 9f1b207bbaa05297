package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validCfg returns a fully-valid Config for mutation testing.
func validCfg() *Config {
	return &Config{
		Network: NetworkConfig{
			ListenAddr:    ":8765",
			Path:          "/ws",
			UpstreamURL:   "ws://127.0.0.1:8765/ws",
			TelemetryPort: 9999,
			TelemetryAddr: "0.0.0.0",
		},
		Simulation: SimulationConfig{TickInterval: 100 * time.Millisecond},
		Replication: ReplicationConfig{
			QueueSize:           16,
			SendBuffer:          16,
			ResyncAfterFailures: 3,
			StaleAfter:          time.Second,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8765", cfg.Network.ListenAddr)
	assert.Equal(t, "/ws", cfg.Network.Path)
	assert.Equal(t, DefaultTelemetryPort, cfg.Network.TelemetryPort)
	assert.Equal(t, "0.0.0.0:9999", cfg.Network.TelemetryBind())
	assert.Equal(t, DefaultTickInterval, cfg.Simulation.TickInterval)
	assert.Equal(t, DefaultResyncAfterFailures, cfg.Replication.ResyncAfterFailures)
	assert.Equal(t, 5*time.Second, cfg.Replication.StaleAfter)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Empty(t, cfg.API.ListenAddr)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
	t.Setenv("TDF_NETWORK_UPSTREAM_URL", "ws://master.example:9000/ws")
	t.Setenv("TDF_SIMULATION_TICK_INTERVAL", "250ms")
	t.Setenv("TDF_API_AUTH_TOKEN", "secret-token-123")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "ws://master.example:9000/ws", cfg.Network.UpstreamURL)
	assert.Equal(t, 250*time.Millisecond, cfg.Simulation.TickInterval)
	assert.Equal(t, "secret-token-123", cfg.API.AuthToken)
}

func TestLoad_InvalidEnvFailsValidation(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
	t.Setenv("TDF_LOGGING_FORMAT", "xml")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logging.format")
}

func TestValidate(t *testing.T) {
	cases := map[string]struct {
		mutate func(*Config)
		want   string
	}{
		"path without slash": {func(c *Config) { c.Network.Path = "ws" }, "network.path"},
		"telemetry port zero": {func(c *Config) { c.Network.TelemetryPort = 0 }, "telemetry_port"},
		"telemetry port high": {func(c *Config) { c.Network.TelemetryPort = 70000 }, "telemetry_port"},
		"http upstream":       {func(c *Config) { c.Network.UpstreamURL = "http://x/ws" }, "upstream_url"},
		"zero tick":           {func(c *Config) { c.Simulation.TickInterval = 0 }, "tick_interval"},
		"zero queue":          {func(c *Config) { c.Replication.QueueSize = 0 }, "queue_size"},
		"zero send buffer":    {func(c *Config) { c.Replication.SendBuffer = 0 }, "send_buffer"},
		"zero resync":         {func(c *Config) { c.Replication.ResyncAfterFailures = 0 }, "resync_after_failures"},
		"stale below tick":    {func(c *Config) { c.Replication.StaleAfter = time.Millisecond }, "stale_after"},
		"bad format":          {func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := validCfg()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
	assert.NoError(t, validCfg().Validate())
}

func TestValidate_EmptyUpstreamAllowed(t *testing.T) {
	cfg := validCfg()
	cfg.Network.UpstreamURL = ""
	assert.NoError(t, cfg.Validate())
}

func TestAPIConfigStringMasksToken(t *testing.T) {
	s := APIConfig{ListenAddr: ":8080", AuthToken: "tok-1234567890abcdef"}.String()
	assert.Contains(t, s, "tok-")
	assert.NotContains(t, s, "1234567890")
}
