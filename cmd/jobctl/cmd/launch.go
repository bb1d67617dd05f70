package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/jobctl/internal/config"
	"github.com/jmylchreest/jobctl/internal/report"
	"github.com/jmylchreest/jobctl/internal/repository"
	"github.com/jmylchreest/jobctl/internal/service"
)

// launchOptions holds the launch flags that have no config key.
type launchOptions struct {
	WorkflowID       string
	Input            string
	Variables        []string
	ItemVariables    []string
	VariablesFromJob string
	ReportPath       string
	NoHistory        bool
}

var launchOpts launchOptions

var launchCmd = &cobra.Command{
	Use:   "launch",
	Short: "Submit jobs and wait for them to finish",
	Long: `Submit one job per input item to a workflow, poll every job until it
reaches a terminal status and print a summary.

--input is a single path, or a JSON file holding an array of paths. The exit
status is 0 only when every item succeeded.

Examples:
  jobctl launch -w 20240101-1200-0000-0000-000000000000 -i /media/clip01.mov
  jobctl launch -w WF -i files.json --variable s_project=demo --report report.json
  jobctl launch -w WF -i files.json --item-variable 's_clip={{.Stem}}'`,
	Args: cobra.NoArgs,
	RunE: runLaunch,
}

func init() {
	rootCmd.AddCommand(launchCmd)

	f := launchCmd.Flags()
	f.StringVarP(&launchOpts.WorkflowID, "workflow", "w", "", "workflow id (required)")
	f.StringVarP(&launchOpts.Input, "input", "i", "", "input path or JSON array file of paths (required)")
	f.StringArrayVar(&launchOpts.Variables, "variable", nil, "job variable NAME=DATA (repeatable, order kept)")
	f.StringArrayVar(&launchOpts.ItemVariables, "item-variable", nil,
		"per-item variable NAME=TEMPLATE using {{.Path}} {{.Base}} {{.Stem}} {{.Ext}} {{.Dir}} {{.Index}} (repeatable)")
	f.StringVar(&launchOpts.VariablesFromJob, "variables-from-job", "", "prepend the variables of this running job")
	f.StringVar(&launchOpts.ReportPath, "report", "", "write or merge the JSON report at this path")
	f.BoolVar(&launchOpts.NoHistory, "no-history", false, "do not record the run in the history database")

	addLaunchConfigFlags(f)

	_ = launchCmd.MarkFlagRequired("workflow")
	_ = launchCmd.MarkFlagRequired("input")
}

func runLaunch(cmd *cobra.Command, _ []string) error {
	applyLaunchConfigFlags(cmd.Flags())
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return launch(ctx, cfg, launchOpts, cmd.OutOrStdout(), slog.Default())
}

// launch runs one launch and maps its verdict to an ExitError.
func launch(ctx context.Context, cfg *config.Config, opts launchOptions, out io.Writer, logger *slog.Logger) error {
	inputs, err := report.LoadInputs(opts.Input)
	if err != nil {
		return fmt.Errorf("loading inputs: %w", err)
	}
	vars, err := parseVariables(opts.Variables)
	if err != nil {
		return err
	}

	client, err := newEngineClient(cfg, logger)
	if err != nil {
		return err
	}
	coordinator, err := newCoordinator(client, cfg, pipelineOptions{
		ReferenceJobID: opts.VariablesFromJob,
		ItemVariables:  opts.ItemVariables,
	}, logger)
	if err != nil {
		return err
	}

	svc := service.NewLaunchService(coordinator, client.BaseURL()).WithLogger(logger)

	if !opts.NoHistory {
		db, err := openDatabase(ctx, cfg.Database, logger)
		if err != nil {
			logger.Warn("run history unavailable, continuing without it", slog.String("error", err.Error()))
		} else {
			defer func() { _ = db.Close() }()
			svc.WithRunRepository(repository.NewRunRepository(db.DB))
		}
	}

	res, err := svc.Launch(ctx, service.LaunchRequest{
		WorkflowID: opts.WorkflowID,
		Inputs:     inputs,
		StartProc:  cfg.Launch.StartProc,
		Priority:   cfg.Launch.Priority,
		Variables:  vars,
		ReportPath: opts.ReportPath,
	})
	if res == nil {
		return err
	}

	if werr := res.Summary.WriteText(out); werr != nil {
		logger.Warn("failed to print summary", slog.String("error", werr.Error()))
	}
	if res.Run != nil {
		fmt.Fprintf(out, "run id: %s\n", res.Run.ID)
	}

	if err != nil {
		return &ExitError{Code: 1, Err: err}
	}
	if !res.Summary.AllSucceeded() {
		return errNotAllSucceeded
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return &ExitError{Code: 1, Err: ctx.Err()}
	}
	return nil
}
