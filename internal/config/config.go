// Package config loads jobctl settings from defaults, a YAML file and
// JOBCTL_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "JOBCTL"

// Poll status sources.
const (
	PollSourceDetails = "details"
	PollSourceHistory = "history"
)

type Config struct {
	Engine    EngineConfig    `mapstructure:"engine" yaml:"engine"`
	Poll      PollConfig      `mapstructure:"poll" yaml:"poll"`
	Launch    LaunchConfig    `mapstructure:"launch" yaml:"launch"`
	Discovery DiscoveryConfig `mapstructure:"discovery" yaml:"discovery"`
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Watch     WatchConfig     `mapstructure:"watch" yaml:"watch"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
}

// EngineConfig describes the workflow engine API and how hard to retry it.
type EngineConfig struct {
	BaseURL           string        `mapstructure:"base_url" yaml:"base_url"`
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RetryAttempts     int           `mapstructure:"retry_attempts" yaml:"retry_attempts"`
	RetryDelay        time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	RetryMaxDelay     time.Duration `mapstructure:"retry_max_delay" yaml:"retry_max_delay"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier" yaml:"backoff_multiplier"`
	RetryStatusCodes  string        `mapstructure:"retry_status_codes" yaml:"retry_status_codes"` // "500,502-504"
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	// CircuitThreshold is the number of consecutive failures that opens the
	// engine circuit breaker. Zero disables the breaker.
	CircuitThreshold  int           `mapstructure:"circuit_threshold" yaml:"circuit_threshold"`
	CircuitCooldown   time.Duration `mapstructure:"circuit_cooldown" yaml:"circuit_cooldown"`
}

// PollConfig selects the status source. Zero durations and counts are
// filled from that source's profile; a negative InitialDelay does the same.
type PollConfig struct {
	Source         string        `mapstructure:"source" yaml:"source"`
	Interval       time.Duration `mapstructure:"interval" yaml:"interval"`
	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxFailures    int           `mapstructure:"max_failures" yaml:"max_failures"`
	InitialDelay   time.Duration `mapstructure:"initial_delay" yaml:"initial_delay"`
	OutputVariable string        `mapstructure:"output_variable" yaml:"output_variable"`
	SuccessState   string        `mapstructure:"success_state" yaml:"success_state"`
}

type LaunchConfig struct {
	Concurrency     int           `mapstructure:"concurrency" yaml:"concurrency"`
	LaunchDelay     time.Duration `mapstructure:"launch_delay" yaml:"launch_delay"`
	Priority        string        `mapstructure:"priority" yaml:"priority"`
	StartProc       string        `mapstructure:"start_proc" yaml:"start_proc"`
	StrictReference bool          `mapstructure:"strict_reference" yaml:"strict_reference"`
}

// DiscoveryConfig holds doublestar patterns matched against base names.
type DiscoveryConfig struct {
	IncludeFiles   []string `mapstructure:"include_files" yaml:"include_files"`
	ExcludeFiles   []string `mapstructure:"exclude_files" yaml:"exclude_files"`
	IncludeFolders []string `mapstructure:"include_folders" yaml:"include_folders"`
	ExcludeFolders []string `mapstructure:"exclude_folders" yaml:"exclude_folders"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver" yaml:"driver"`
	DSN             string        `mapstructure:"dsn" yaml:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" yaml:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level" yaml:"log_level"` // silent, error, warn, info
}

type WatchConfig struct {
	Schedule   string `mapstructure:"schedule" yaml:"schedule"`
	Directory  string `mapstructure:"directory" yaml:"directory"`
	WorkflowID string `mapstructure:"workflow_id" yaml:"workflow_id"`
	ReportDir  string `mapstructure:"report_dir" yaml:"report_dir"`
}

type ServerConfig struct {
	Enabled         bool          `mapstructure:"enabled" yaml:"enabled"`
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	AddSource  bool   `mapstructure:"add_source" yaml:"add_source"`
	TimeFormat string `mapstructure:"time_format" yaml:"time_format"`
}

// Prepare installs the defaults and environment binding on v and reads the
// config file: path when given, otherwise config.yaml from the usual search
// directories. A missing file is only an error when path names it. The
// returned string is the file that was read, or "".
func Prepare(v *viper.Viper, path string) (string, error) {
	SetDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		for _, dir := range []string{".", "./configs", "/etc/jobctl", "$HOME/.jobctl"} {
			v.AddConfigPath(dir)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return "", nil
		}
		return "", fmt.Errorf("reading config file: %w", err)
	}
	return v.ConfigFileUsed(), nil
}

// Load is Prepare on a fresh viper followed by FromViper.
func Load(path string) (*Config, error) {
	v := viper.New()
	if _, err := Prepare(v, path); err != nil {
		return nil, err
	}
	return FromViper(v)
}

// FromViper decodes and validates the settings held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.Logging.Level = strings.ToLower(c.Logging.Level)
	if c.Logging.Level == "warning" {
		c.Logging.Level = "warn"
	}
	c.Logging.Format = strings.ToLower(c.Logging.Format)
	c.Poll.Source = strings.ToLower(c.Poll.Source)
	c.Database.LogLevel = strings.ToLower(c.Database.LogLevel)
}
