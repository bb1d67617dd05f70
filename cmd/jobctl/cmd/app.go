package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmylchreest/jobctl/internal/config"
	"github.com/jmylchreest/jobctl/internal/database"
	"github.com/jmylchreest/jobctl/internal/discovery"
	"github.com/jmylchreest/jobctl/internal/engine"
	"github.com/jmylchreest/jobctl/internal/jobs"
	"github.com/jmylchreest/jobctl/internal/models"
)

// pipelineOptions are the per-invocation settings of the job pipeline that
// have no config key.
type pipelineOptions struct {
	ReferenceJobID string
	ItemVariables  []string
}

// newCoordinator wires submitter, poller and coordinator around api.
func newCoordinator(api jobs.EngineAPI, cfg *config.Config, opts pipelineOptions, logger *slog.Logger) (*jobs.Coordinator, error) {
	submitter := jobs.NewSubmitter(api, jobs.SubmitterConfig{
		ReferenceJobID:  opts.ReferenceJobID,
		StrictReference: cfg.Launch.StrictReference,
	}, logger)

	pollCfg := jobs.PollConfigFromConfig(cfg.Poll)
	poller := jobs.NewPoller(api, pollCfg, logger)

	coordinator := jobs.NewCoordinator(submitter, poller, jobs.CoordinatorConfig{
		Concurrency: cfg.Launch.Concurrency,
		LaunchDelay: cfg.Launch.LaunchDelay,
	}, logger)

	if len(opts.ItemVariables) > 0 {
		templates := make([]jobs.VariableTemplate, 0, len(opts.ItemVariables))
		for _, s := range opts.ItemVariables {
			vt, err := jobs.ParseVariableTemplate(s)
			if err != nil {
				return nil, fmt.Errorf("parsing item variable: %w", err)
			}
			templates = append(templates, vt)
		}
		transform, err := jobs.NewTemplateTransform(templates)
		if err != nil {
			return nil, fmt.Errorf("compiling item variables: %w", err)
		}
		coordinator.WithTransform(transform)
	}

	logger.Debug("job pipeline configured",
		slog.String("poll_source", pollCfg.Source),
		slog.Duration("poll_interval", pollCfg.Interval),
		slog.Duration("poll_timeout", pollCfg.Timeout),
		slog.Int("concurrency", cfg.Launch.Concurrency),
	)
	return coordinator, nil
}

// newEngineClient builds the engine client from configuration.
func newEngineClient(cfg *config.Config, logger *slog.Logger) (*engine.Client, error) {
	client, err := engine.NewClientFromConfig(cfg.Engine, logger)
	if err != nil {
		return nil, fmt.Errorf("creating engine client: %w", err)
	}
	return client, nil
}

// openDatabase connects to the run history database and migrates it.
func openDatabase(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*database.DB, error) {
	db, err := database.New(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("opening run history: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating run history: %w", err)
	}
	return db, nil
}

func parseVariables(pairs []string) ([]models.Variable, error) {
	vars := make([]models.Variable, 0, len(pairs))
	for _, p := range pairs {
		v, err := models.ParseVariable(p)
		if err != nil {
			return nil, fmt.Errorf("parsing variable: %w", err)
		}
		vars = append(vars, v)
	}
	return vars, nil
}

// discoveryFilter builds the filter from config. An entry may itself hold a
// comma-separated list.
func discoveryFilter(cfg config.DiscoveryConfig) discovery.Filter {
	return discovery.Filter{
		IncludeFiles:   splitAll(cfg.IncludeFiles),
		ExcludeFiles:   splitAll(cfg.ExcludeFiles),
		IncludeFolders: splitAll(cfg.IncludeFolders),
		ExcludeFolders: splitAll(cfg.ExcludeFolders),
	}
}

func splitAll(entries []string) []string {
	var out []string
	for _, e := range entries {
		out = append(out, discovery.SplitPatterns(e)...)
	}
	return out
}
