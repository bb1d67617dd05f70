package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/jobctl/internal/config"
	internalhttp "github.com/jmylchreest/jobctl/internal/http"
	"github.com/jmylchreest/jobctl/internal/http/handlers"
	"github.com/jmylchreest/jobctl/internal/repository"
	"github.com/jmylchreest/jobctl/internal/scheduler"
	"github.com/jmylchreest/jobctl/internal/service"
	"github.com/jmylchreest/jobctl/internal/version"
)

type watchOptions struct {
	Variables        []string
	ItemVariables    []string
	VariablesFromJob string
	Once             bool
}

var watchOpts watchOptions

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Launch new input files on a schedule",
	Long: `On every cron tick, discover files below the watch directory and launch
the ones that have not already succeeded for the workflow. Run history is
required, since it is what marks a file as done.

With --serve (or server.enabled) the status API runs alongside:
  GET /health, /livez, /readyz
  GET /api/v1/runs, /api/v1/runs/{id}
  GET /docs for the OpenAPI documentation`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

var watchConfigFlags = []configFlag{
	{"directory", "watch.directory"},
	{"workflow", "watch.workflow_id"},
	{"schedule", "watch.schedule"},
	{"report-dir", "watch.report_dir"},
	{"serve", "server.enabled"},
	{"port", "server.port"},
}

func init() {
	rootCmd.AddCommand(watchCmd)

	f := watchCmd.Flags()
	f.StringP("directory", "d", "", "directory to discover inputs in")
	f.StringP("workflow", "w", "", "workflow id")
	f.String("schedule", "*/5 * * * *", "cron schedule (5 fields or @every 1m style descriptor)")
	f.String("report-dir", "", "write one report per launching tick into this directory")
	f.Bool("serve", false, "run the status API")
	f.Int("port", 8280, "status API port")
	f.BoolVar(&watchOpts.Once, "once", false, "run a single tick and exit")
	f.StringArrayVar(&watchOpts.Variables, "variable", nil, "job variable NAME=DATA (repeatable, order kept)")
	f.StringArrayVar(&watchOpts.ItemVariables, "item-variable", nil, "per-item variable NAME=TEMPLATE (repeatable)")
	f.StringVar(&watchOpts.VariablesFromJob, "variables-from-job", "", "prepend the variables of this running job")

	addLaunchConfigFlags(f)
	addDiscoveryFlags(f)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	applyLaunchConfigFlags(flags)
	for _, group := range [][]configFlag{watchConfigFlags, discoveryFlags} {
		for _, cf := range group {
			setIfChanged(flags, cf.name, cf.key)
		}
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return watch(ctx, cfg, watchOpts, cmd.OutOrStdout(), slog.Default())
}

func watch(ctx context.Context, cfg *config.Config, opts watchOptions, out io.Writer, logger *slog.Logger) error {
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

	db, err := openDatabase(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	runs := repository.NewRunRepository(db.DB)

	svc := service.NewLaunchService(coordinator, client.BaseURL()).
		WithLogger(logger).
		WithRunRepository(runs)

	watcher, err := scheduler.NewWatcher(svc, runs, scheduler.WatchConfig{
		Schedule:  cfg.Watch.Schedule,
		Directory: cfg.Watch.Directory,
		Filter:    discoveryFilter(cfg.Discovery),
		Launch: service.LaunchRequest{
			WorkflowID: cfg.Watch.WorkflowID,
			StartProc:  cfg.Launch.StartProc,
			Priority:   cfg.Launch.Priority,
			Variables:  vars,
		},
		ReportDir: cfg.Watch.ReportDir,
	})
	if err != nil {
		return fmt.Errorf("configuring watch: %w", err)
	}
	watcher.WithLogger(logger)

	if opts.Once {
		res, err := watcher.Tick(ctx)
		if res != nil {
			fmt.Fprintf(out, "discovered: %d, already succeeded: %d\n", res.Discovered, res.Skipped)
			if res.Launched != nil {
				if werr := res.Launched.Summary.WriteText(out); werr != nil {
					logger.Warn("failed to print summary", slog.String("error", werr.Error()))
				}
			}
		}
		if err != nil {
			return &ExitError{Code: 1, Err: err}
		}
		if res.Launched != nil && !res.Launched.Summary.AllSucceeded() {
			return errNotAllSucceeded
		}
		return nil
	}

	if err := watcher.Start(ctx); err != nil {
		return err
	}
	defer watcher.Stop()

	if !cfg.Server.Enabled {
		<-ctx.Done()
		return nil
	}

	server := internalhttp.NewServer(internalhttp.ServerConfigFrom(cfg.Server), logger, version.Short())
	handlers.NewHealthHandler(version.Short()).
		WithDB(db.DB).
		WithEngine(client).
		WithWatch(watcher).
		Register(server.API())
	handlers.NewRunHandler(runs).Register(server.API())

	return server.ListenAndServe(ctx)
}
