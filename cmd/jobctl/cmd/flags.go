package cmd

import (
	"time"

	"github.com/spf13/pflag"
)

// configFlag maps a command flag to the config key it overrides.
type configFlag struct {
	name string
	key  string
}

var launchConfigFlags = []configFlag{
	{"start-proc", "launch.start_proc"},
	{"priority", "launch.priority"},
	{"concurrency", "launch.concurrency"},
	{"launch-delay", "launch.launch_delay"},
	{"strict-reference", "launch.strict_reference"},
	{"poll-source", "poll.source"},
	{"poll-interval", "poll.interval"},
	{"poll-timeout", "poll.timeout"},
	{"poll-max-failures", "poll.max_failures"},
	{"poll-initial-delay", "poll.initial_delay"},
	{"output-variable", "poll.output_variable"},
}

// addLaunchConfigFlags registers the flags shared by launch and watch. Their
// defaults are only documentation: config values apply unless a flag is set.
func addLaunchConfigFlags(f *pflag.FlagSet) {
	f.String("start-proc", "", "engine start processor id")
	f.String("priority", "3", "job priority; numeric values are sent as numbers")
	f.Int("concurrency", 40, "maximum items in flight")
	f.Duration("launch-delay", 500*time.Millisecond, "pause between item starts")
	f.Bool("strict-reference", false, "fail every item when --variables-from-job cannot be read")
	f.String("poll-source", "details", "status endpoint to poll (details, history)")
	f.Duration("poll-interval", 0, "pause between status requests (0 uses the source profile)")
	f.Duration("poll-timeout", 0, "maximum wait per job (0 uses the source profile)")
	f.Int("poll-max-failures", 0, "consecutive failed status requests before giving up (0 uses the source profile)")
	f.Duration("poll-initial-delay", -1, "wait before the first status request (negative uses the source profile)")
	f.String("output-variable", "s_output", "job variable holding the result")
}

func applyLaunchConfigFlags(f *pflag.FlagSet) {
	for _, cf := range launchConfigFlags {
		setIfChanged(f, cf.name, cf.key)
	}
}
