package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/jobctl/internal/jobs"
	"github.com/jmylchreest/jobctl/internal/models"
	"github.com/jmylchreest/jobctl/internal/repository"
)

var (
	runsJSON   bool
	runsLimit  int
	runsOffset int
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect run history",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List runs, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withRuns(cmd, func(ctx context.Context, runs repository.RunRepository) error {
			return listRuns(ctx, runs, runsOffset, runsLimit, runsJSON, cmd.OutOrStdout())
		})
	},
}

var runsGetCmd = &cobra.Command{
	Use:   "get RUN_ID",
	Short: "Show a run and the outcome of every item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuns(cmd, func(ctx context.Context, runs repository.RunRepository) error {
			return showRun(ctx, runs, args[0], runsJSON, cmd.OutOrStdout())
		})
	},
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsListCmd, runsGetCmd)

	runsCmd.PersistentFlags().BoolVar(&runsJSON, "json", false, "output as JSON")
	runsListCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum runs to list")
	runsListCmd.Flags().IntVar(&runsOffset, "offset", 0, "runs to skip")
}

func withRuns(cmd *cobra.Command, fn func(ctx context.Context, runs repository.RunRepository) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	db, err := openDatabase(ctx, cfg.Database, slog.Default())
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	return fn(ctx, repository.NewRunRepository(db.DB))
}

func listRuns(ctx context.Context, runs repository.RunRepository, offset, limit int, asJSON bool, out io.Writer) error {
	if limit < 1 {
		return fmt.Errorf("limit must be at least 1")
	}
	list, total, err := runs.List(ctx, offset, limit)
	if err != nil {
		return fmt.Errorf("listing runs: %w", err)
	}

	if asJSON {
		return writeJSON(out, map[string]any{"runs": list, "total": total})
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tWORKFLOW\tTRIGGER\tSTATUS\tSTARTED\tOK/TOTAL")
	for _, r := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d/%d\n",
			r.ID, r.WorkflowID, r.Trigger, r.Status,
			r.StartedAt.Local().Format(time.DateTime), r.Succeeded, r.Total)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "%d of %d runs\n", len(list), total)
	return nil
}

func showRun(ctx context.Context, runs repository.RunRepository, rawID string, asJSON bool, out io.Writer) error {
	id, err := models.ParseULID(rawID)
	if err != nil {
		return fmt.Errorf("run id: %w", err)
	}
	run, err := runs.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("getting run: %w", err)
	}
	if run == nil {
		return fmt.Errorf("run %s not found", rawID)
	}

	if asJSON {
		return writeJSON(out, run)
	}

	fmt.Fprintf(out, "run %s  workflow %s  trigger %s  status %s\n", run.ID, run.WorkflowID, run.Trigger, run.Status)
	fmt.Fprintf(out, "engine %s  started %s\n", run.EngineURL, run.StartedAt.Local().Format(time.DateTime))
	if run.ReportPath != "" {
		fmt.Fprintf(out, "report %s\n", run.ReportPath)
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tSTATUS\tJOB\tDURATION\tINPUT\tDETAIL")
	for _, o := range run.Outcomes {
		detail := o.Result
		if o.Status != models.OutcomeSucceeded {
			detail = o.Message
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			o.ItemIndex, o.Status, o.JobID,
			jobs.FormatDuration(time.Duration(o.DurationMs)*time.Millisecond),
			o.InputRef, detail)
	}
	return tw.Flush()
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
