package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jmylchreest/jobctl/internal/discovery"
	"github.com/jmylchreest/jobctl/internal/report"
)

type discoverOptions struct {
	Root       string
	Output     string
	ReportPath string
}

var discoverOpts discoverOptions

var discoverCmd = &cobra.Command{
	Use:   "discover PATH",
	Short: "List input files below a path",
	Long: `List the files below PATH that pass the discovery patterns, in natural
order. PATH may also be a file, or a name prefix such as /media/clip which
matches /media/clip01.mov.

Patterns are comma-separated, case-insensitive and matched against both the
file name and the absolute path. The pattern flags override the discovery
section of the config.

--output writes the list as a JSON array usable as launch --input.
--report seeds a report that a later launch --report merges into.`,
	Args: cobra.ExactArgs(1),
	RunE: runDiscover,
}

var discoveryFlags = []configFlag{
	{"include-files", "discovery.include_files"},
	{"exclude-files", "discovery.exclude_files"},
	{"include-folders", "discovery.include_folders"},
	{"exclude-folders", "discovery.exclude_folders"},
}

func init() {
	rootCmd.AddCommand(discoverCmd)

	f := discoverCmd.Flags()
	f.StringVarP(&discoverOpts.Output, "output", "o", "", "write the file list as a JSON array to this path")
	f.StringVar(&discoverOpts.ReportPath, "report", "", "write or merge a report with one entry per file")
	addDiscoveryFlags(f)
}

func addDiscoveryFlags(f *pflag.FlagSet) {
	f.StringSlice("include-files", nil, "file patterns to include, e.g. '*.mov,*.mxf'")
	f.StringSlice("exclude-files", nil, "file patterns to exclude, e.g. '*_offspeed_*'")
	f.StringSlice("include-folders", nil, "folder patterns to include")
	f.StringSlice("exclude-folders", nil, "folder patterns to exclude")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	for _, cf := range discoveryFlags {
		setIfChanged(cmd.Flags(), cf.name, cf.key)
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	opts := discoverOpts
	opts.Root = args[0]
	return discover(discoveryFilter(cfg.Discovery), opts, cmd.OutOrStdout(), slog.Default())
}

func discover(filter discovery.Filter, opts discoverOptions, out io.Writer, logger *slog.Logger) error {
	files, err := discovery.Find(opts.Root, filter)
	if err != nil {
		return fmt.Errorf("discovering files: %w", err)
	}
	logger.Info("discovered files", slog.String("path", opts.Root), slog.Int("count", len(files)))

	for _, f := range files {
		fmt.Fprintln(out, f)
	}

	if opts.Output != "" {
		data, err := json.MarshalIndent(files, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding file list: %w", err)
		}
		if err := os.WriteFile(opts.Output, append(data, '\n'), 0o644); err != nil { //nolint:gosec // shared artifact
			return fmt.Errorf("writing file list: %w", err)
		}
	}

	if opts.ReportPath != "" {
		if err := report.WriteMerged(opts.ReportPath, report.FromPaths(files)); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
		logger.Info("report written", slog.String("path", opts.ReportPath))
	}
	return nil
}
