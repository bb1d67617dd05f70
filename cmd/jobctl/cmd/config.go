package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/jobctl/internal/config"
)

const dumpHeader = `# jobctl configuration
#
# Durations: 500ms, 30s, 5m, 2h
# Every key can be set from the environment as JOBCTL_<SECTION>_<KEY>,
# for example engine.base_url as JOBCTL_ENGINE_BASE_URL.

`

var configDefaultsOnly bool

func init() {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}

	dump := &cobra.Command{
		Use:   "dump",
		Short: "Print the effective configuration as YAML",
		Long: `Print the configuration after the config file, environment and flags were
applied. With --defaults only the built-in values are printed, which makes a
starting point for a config file:

  jobctl config dump --defaults > config.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := effectiveConfig(configDefaultsOnly)
			if err != nil {
				return err
			}
			return dumpConfig(cmd.OutOrStdout(), cfg)
		},
	}
	dump.Flags().BoolVar(&configDefaultsOnly, "defaults", false, "print built-in defaults only")

	validate := &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and report every problem",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := loadConfig(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "configuration is valid")
			return nil
		},
	}

	configCmd.AddCommand(dump, validate)
	rootCmd.AddCommand(configCmd)
}

func effectiveConfig(defaultsOnly bool) (*config.Config, error) {
	if !defaultsOnly {
		return loadConfig()
	}
	v := viper.New()
	config.SetDefaults(v)
	return config.FromViper(v)
}

// dumpConfig writes cfg as commented YAML. yaml.v3 renders durations in
// their string form, so the output loads back unchanged.
func dumpConfig(out io.Writer, cfg *config.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if _, err := io.WriteString(out, dumpHeader); err != nil {
		return err
	}
	_, err = out.Write(data)
	return err
}
