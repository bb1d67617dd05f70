package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTestConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			BaseURL:           "http://engine:65445/api/json/v2",
			Timeout:           10 * time.Second,
			RetryAttempts:     3,
			BackoffMultiplier: 2,
		},
		Poll: PollConfig{
			Source:         PollSourceDetails,
			InitialDelay:   -1,
			OutputVariable: "s_output",
		},
		Launch: LaunchConfig{Concurrency: 40},
		Database: DatabaseConfig{
			Driver:       "sqlite",
			DSN:          "test.db",
			MaxOpenConns: 25,
			MaxIdleConns: 10,
			LogLevel:     "warn",
		},
		Server:  ServerConfig{Port: 8280},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// Engine defaults
	assert.Equal(t, "http://localhost:65445/api/json/v2", cfg.Engine.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.Engine.Timeout)
	assert.Equal(t, 3, cfg.Engine.RetryAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Engine.RetryDelay)
	assert.Equal(t, "500,502-504", cfg.Engine.RetryStatusCodes)

	// Poll defaults
	assert.Equal(t, PollSourceDetails, cfg.Poll.Source)
	assert.Zero(t, cfg.Poll.Interval)
	assert.Zero(t, cfg.Poll.Timeout)
	assert.Equal(t, time.Duration(-1), cfg.Poll.InitialDelay)
	assert.Equal(t, "s_output", cfg.Poll.OutputVariable)
	assert.Equal(t, "1", cfg.Poll.SuccessState)

	// Launch defaults
	assert.Equal(t, 40, cfg.Launch.Concurrency)
	assert.Equal(t, 500*time.Millisecond, cfg.Launch.LaunchDelay)
	assert.Equal(t, "3", cfg.Launch.Priority)
	assert.False(t, cfg.Launch.StrictReference)

	// Discovery defaults
	assert.Equal(t, []string{"*.mxf", "*.mov", "*.mp4"}, cfg.Discovery.IncludeFiles)
	assert.Equal(t, []string{"*_offspeed_*"}, cfg.Discovery.ExcludeFiles)

	// Database defaults
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "jobctl.db", cfg.Database.DSN)

	// Watch and server defaults
	assert.Equal(t, "*/5 * * * *", cfg.Watch.Schedule)
	assert.False(t, cfg.Server.Enabled)
	assert.Equal(t, 8280, cfg.Server.Port)

	// Logging defaults
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoad_FromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
engine:
  base_url: "http://ffastrans:65445/api/json/v2"
  timeout: 5s
poll:
  source: history
  interval: 30s
  output_variable: s_result
launch:
  concurrency: 4
  priority: "1"
logging:
  level: debug
  format: json
`
	err := os.WriteFile(configPath, []byte(configContent), 0o600)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "http://ffastrans:65445/api/json/v2", cfg.Engine.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Engine.Timeout)
	assert.Equal(t, PollSourceHistory, cfg.Poll.Source)
	assert.Equal(t, 30*time.Second, cfg.Poll.Interval)
	assert.Equal(t, "s_result", cfg.Poll.OutputVariable)
	assert.Equal(t, 4, cfg.Launch.Concurrency)
	assert.Equal(t, "1", cfg.Launch.Priority)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Untouched values keep defaults
	assert.Equal(t, 3, cfg.Engine.RetryAttempts)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("JOBCTL_ENGINE_BASE_URL", "http://env-engine/api")
	t.Setenv("JOBCTL_POLL_MAX_FAILURES", "7")
	t.Setenv("JOBCTL_LAUNCH_CONCURRENCY", "12")
	t.Setenv("JOBCTL_LOGGING_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://env-engine/api", cfg.Engine.BaseURL)
	assert.Equal(t, 7, cfg.Poll.MaxFailures)
	assert.Equal(t, 12, cfg.Launch.Concurrency)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	err := os.WriteFile(configPath, []byte("launch:\n  concurrency: 5\n"), 0o600)
	require.NoError(t, err)

	t.Setenv("JOBCTL_LAUNCH_CONCURRENCY", "9")

	cfg, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Launch.Concurrency)
}

func TestLoad_InvalidConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	err := os.WriteFile(configPath, []byte("engine: [unclosed"), 0o600)
	require.NoError(t, err)

	_, err = Load(configPath)
	assert.Error(t, err)
}

func TestLoad_NonExistentFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validTestConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"empty base url", func(c *Config) { c.Engine.BaseURL = "" }, "engine.base_url"},
		{"zero timeout", func(c *Config) { c.Engine.Timeout = 0 }, "engine.timeout"},
		{"negative retries", func(c *Config) { c.Engine.RetryAttempts = -1 }, "engine.retry_attempts"},
		{"backoff below one", func(c *Config) { c.Engine.BackoffMultiplier = 0.5 }, "engine.backoff_multiplier"},
		{"unknown poll source", func(c *Config) { c.Poll.Source = "tickets" }, "poll.source"},
		{"negative interval", func(c *Config) { c.Poll.Interval = -time.Second }, "poll.interval"},
		{"negative max failures", func(c *Config) { c.Poll.MaxFailures = -1 }, "poll.max_failures"},
		{"empty output variable", func(c *Config) { c.Poll.OutputVariable = "" }, "poll.output_variable"},
		{"zero concurrency", func(c *Config) { c.Launch.Concurrency = 0 }, "launch.concurrency"},
		{"negative launch delay", func(c *Config) { c.Launch.LaunchDelay = -time.Second }, "launch.launch_delay"},
		{"invalid driver", func(c *Config) { c.Database.Driver = "oracle" }, "database.driver"},
		{"empty dsn", func(c *Config) { c.Database.DSN = "" }, "database.dsn"},
		{"invalid port when enabled", func(c *Config) { c.Server.Enabled = true; c.Server.Port = 0 }, "server.port"},
		{"invalid log level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"invalid log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_PortIgnoredWhenServerDisabled(t *testing.T) {
	cfg := validTestConfig()
	cfg.Server.Port = 0
	assert.NoError(t, cfg.Validate())
}

func TestValidate_ReportsAllErrors(t *testing.T) {
	cfg := validTestConfig()
	cfg.Engine.BaseURL = ""
	cfg.Launch.Concurrency = 0
	cfg.Logging.Format = "xml"

	err := cfg.Validate()
	require.Error(t, err)
	for _, key := range []string{"engine.base_url", "launch.concurrency", "logging.format"} {
		assert.Contains(t, err.Error(), key)
	}
}

func TestLoad_NormalizesCase(t *testing.T) {
	t.Setenv("JOBCTL_LOGGING_LEVEL", "WARNING")
	t.Setenv("JOBCTL_LOGGING_FORMAT", "JSON")
	t.Setenv("JOBCTL_POLL_SOURCE", "History")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, PollSourceHistory, cfg.Poll.Source)
}

func TestPrepare_ReportsFileUsed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte("watch:\n  directory: /media/in\n"), 0o600))

	v := viper.New()
	used, err := Prepare(v, path)
	require.NoError(t, err)
	assert.Equal(t, path, used)
	assert.Equal(t, "/media/in", v.GetString("watch.directory"))
	assert.Equal(t, "*/5 * * * *", v.GetString("watch.schedule"))
}

func TestSetDefaults_Valid(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	cfg, err := FromViper(v)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, cfg.Database.ConnMaxLifetime)
	assert.Equal(t, time.RFC3339, cfg.Logging.TimeFormat)
}

func TestConfig_AllDrivers(t *testing.T) {
	for _, driver := range []string{"sqlite", "postgres", "mysql"} {
		t.Run(driver, func(t *testing.T) {
			cfg := validTestConfig()
			cfg.Database.Driver = driver
			assert.NoError(t, cfg.Validate())
		})
	}
}
