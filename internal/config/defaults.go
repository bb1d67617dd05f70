package config

import (
	"time"

	"github.com/spf13/viper"
)

// defaults lists every known key. Keys missing here are invisible to
// AutomaticEnv, so new settings must be added even when their zero value
// is the default.
var defaults = map[string]any{
	"engine.base_url":           "http://localhost:65445/api/json/v2",
	"engine.timeout":            10 * time.Second,
	"engine.retry_attempts":     3,
	"engine.retry_delay":        500 * time.Millisecond,
	"engine.retry_max_delay":    5 * time.Second,
	"engine.backoff_multiplier": 2.0,
	"engine.retry_status_codes": "500,502-504",
	"engine.user_agent":         "",
	"engine.circuit_threshold":  0,
	"engine.circuit_cooldown":   30 * time.Second,

	// Timings come from the source profile unless set.
	"poll.source":          PollSourceDetails,
	"poll.interval":        time.Duration(0),
	"poll.timeout":         time.Duration(0),
	"poll.max_failures":    0,
	"poll.initial_delay":   time.Duration(-1),
	"poll.output_variable": "s_output",
	"poll.success_state":   "1",

	"launch.concurrency":      40,
	"launch.launch_delay":     500 * time.Millisecond,
	"launch.priority":         "3",
	"launch.start_proc":       "",
	"launch.strict_reference": false,

	"discovery.include_files":   []string{"*.mxf", "*.mov", "*.mp4"},
	"discovery.exclude_files":   []string{"*_offspeed_*"},
	"discovery.include_folders": []string{},
	"discovery.exclude_folders": []string{},

	"database.driver":             "sqlite",
	"database.dsn":                "jobctl.db",
	"database.max_open_conns":     25,
	"database.max_idle_conns":     10,
	"database.conn_max_lifetime":  time.Hour,
	"database.conn_max_idle_time": 30 * time.Minute,
	"database.log_level":          "warn",

	"watch.schedule":    "*/5 * * * *",
	"watch.directory":   "",
	"watch.workflow_id": "",
	"watch.report_dir":  "",

	"server.enabled":          false,
	"server.host":             "0.0.0.0",
	"server.port":             8280,
	"server.read_timeout":     30 * time.Second,
	"server.write_timeout":    30 * time.Second,
	"server.shutdown_timeout": 10 * time.Second,

	"logging.level":       "info",
	"logging.format":      "text",
	"logging.add_source":  false,
	"logging.time_format": time.RFC3339,
}

// SetDefaults installs the built-in value of every key on v.
func SetDefaults(v *viper.Viper) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}
