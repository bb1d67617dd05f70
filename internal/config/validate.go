package config

import (
	"errors"
	"fmt"
	"slices"
)

var (
	pollSources = []string{PollSourceDetails, PollSourceHistory}
	dbDrivers   = []string{"sqlite", "postgres", "mysql"}
	logLevels   = []string{"debug", "info", "warn", "error"}
	logFormats  = []string{"json", "text"}
	dbLogLevels = []string{"silent", "error", "warn", "info"}
)

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}
	oneOf := func(key, got string, allowed []string) {
		check(slices.Contains(allowed, got), "%s must be one of %v, got %q", key, allowed, got)
	}

	check(c.Engine.BaseURL != "", "engine.base_url is required")
	check(c.Engine.Timeout > 0, "engine.timeout must be positive")
	check(c.Engine.RetryAttempts >= 0, "engine.retry_attempts must not be negative")
	check(c.Engine.BackoffMultiplier >= 1, "engine.backoff_multiplier must be at least 1")
	check(c.Engine.CircuitThreshold >= 0, "engine.circuit_threshold must not be negative")

	oneOf("poll.source", c.Poll.Source, pollSources)
	check(c.Poll.Interval >= 0, "poll.interval must not be negative")
	check(c.Poll.Timeout >= 0, "poll.timeout must not be negative")
	check(c.Poll.MaxFailures >= 0, "poll.max_failures must not be negative")
	check(c.Poll.OutputVariable != "", "poll.output_variable is required")

	check(c.Launch.Concurrency >= 1, "launch.concurrency must be at least 1")
	check(c.Launch.LaunchDelay >= 0, "launch.launch_delay must not be negative")

	oneOf("database.driver", c.Database.Driver, dbDrivers)
	check(c.Database.DSN != "", "database.dsn is required")
	if c.Database.LogLevel != "" {
		oneOf("database.log_level", c.Database.LogLevel, dbLogLevels)
	}

	if c.Server.Enabled {
		check(c.Server.Port > 0 && c.Server.Port <= 65535, "server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	oneOf("logging.level", c.Logging.Level, logLevels)
	oneOf("logging.format", c.Logging.Format, logFormats)

	return errors.Join(errs...)
}
