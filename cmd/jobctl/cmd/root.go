// Package cmd wires the jobctl command tree.
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jmylchreest/jobctl/internal/config"
	"github.com/jmylchreest/jobctl/internal/observability"
	"github.com/jmylchreest/jobctl/internal/version"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:     "jobctl",
	Short:   "Submit, track and report workflow engine jobs",
	Version: version.Short(),
	Long: `jobctl submits media files to a workflow engine, polls every job until it
finishes and reports which items succeeded.

Inputs can be given directly, as a JSON array file of paths, or discovered
below a directory. Watch mode repeats discovery on a cron schedule and only
launches files that have not already succeeded.

Settings come from config.yaml, then JOBCTL_* environment variables (a .env
file in the working directory is loaded first), then flags.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return initLogging(cmd.Root().PersistentFlags())
	},
}

// Execute runs the command tree. A bare *ExitError is a verdict and has
// already been reported, so only other errors are printed.
func Execute() error {
	err := rootCmd.Execute()
	var exitErr *ExitError
	if err != nil && (!errors.As(err, &exitErr) || exitErr.Err != nil) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

func init() {
	cobra.OnInitialize(initConfig)

	// These override config and env only when given, see setIfChanged.
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: config.yaml in ., ./configs, /etc/jobctl, ~/.jobctl)")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("log-format", "text", "log format (text, json)")
	pf.String("engine-url", "", "workflow engine API base URL")
}

func initConfig() {
	_ = godotenv.Load() // optional

	used, err := config.Prepare(viper.GetViper(), cfgFile)
	switch {
	case err != nil:
		fmt.Fprintln(os.Stderr, "Error reading config file:", err)
	case used != "":
		fmt.Fprintln(os.Stderr, "Using config file:", used)
	}
}

// initLogging installs the default logger before the full config is
// validated, so a bad config is itself logged in the requested format.
func initLogging(pf *pflag.FlagSet) error {
	setIfChanged(pf, "log-level", "logging.level")
	setIfChanged(pf, "log-format", "logging.format")

	// Per-key reads, because UnmarshalKey ignores env overrides of subkeys.
	logger := observability.NewLoggerWithWriter(config.LoggingConfig{
		Level:      viper.GetString("logging.level"),
		Format:     viper.GetString("logging.format"),
		AddSource:  viper.GetBool("logging.add_source"),
		TimeFormat: viper.GetString("logging.time_format"),
	}, os.Stderr)
	observability.SetDefault(observability.WithApp(logger, version.ApplicationName))
	return nil
}

func loadConfig() (*config.Config, error) {
	setIfChanged(rootCmd.PersistentFlags(), "engine-url", "engine.base_url")
	cfg, err := config.FromViper(viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// setIfChanged copies an explicitly given flag into key. Slice flags are
// set as slices; everything else as its string form, which viper decodes
// into the field type.
func setIfChanged(flags *pflag.FlagSet, name, key string) {
	f := flags.Lookup(name)
	if f == nil || !f.Changed {
		return
	}
	if sv, ok := f.Value.(pflag.SliceValue); ok {
		viper.Set(key, sv.GetSlice())
		return
	}
	viper.Set(key, f.Value.String())
}
