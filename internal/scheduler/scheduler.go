// Package scheduler runs watch mode: on a cron schedule it discovers input
// files and launches jobs for the ones that have not yet succeeded.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jmylchreest/jobctl/internal/discovery"
	"github.com/jmylchreest/jobctl/internal/models"
	"github.com/jmylchreest/jobctl/internal/service"
)

// Launcher starts a launch and waits for it to finish.
type Launcher interface {
	Launch(ctx context.Context, req service.LaunchRequest) (*service.LaunchResult, error)
}

// SucceededLookup reports which inputs already succeeded for a workflow.
type SucceededLookup interface {
	SucceededInputs(ctx context.Context, workflowID string, inputs []string) (map[string]bool, error)
}

// WatchConfig holds configuration for the watcher.
type WatchConfig struct {
	// Schedule is a 5-field cron expression.
	// Default: */5 * * * *
	Schedule string

	// Directory is the discovery root.
	Directory string

	// Filter narrows what discovery returns.
	Filter discovery.Filter

	// Launch is the template for every launch. Inputs, Trigger and
	// ReportPath are filled in per tick.
	Launch service.LaunchRequest

	// ReportDir, when set, receives one report per launching tick.
	ReportDir string
}

// DefaultSchedule is used when WatchConfig.Schedule is empty.
const DefaultSchedule = "*/5 * * * *"

// TickResult describes one watch tick.
type TickResult struct {
	Discovered int
	Skipped    int
	Launched   *service.LaunchResult
}

// Watcher triggers discovery and launches on a cron schedule.
type Watcher struct {
	mu sync.Mutex

	launcher Launcher
	lookup   SucceededLookup
	config   WatchConfig
	logger   *slog.Logger
	parser   cron.Parser
	now      func() time.Time

	cron    *cron.Cron
	entryID cron.EntryID
	cancel  context.CancelFunc
}

// NewWatcher validates cfg and creates a watcher. lookup may be nil, in
// which case every discovered input is launched on every tick.
func NewWatcher(launcher Launcher, lookup SucceededLookup, cfg WatchConfig) (*Watcher, error) {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.Directory == "" {
		return nil, errors.New("watch directory is required")
	}
	if cfg.Launch.WorkflowID == "" {
		return nil, models.ErrWorkflowIDRequired
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", cfg.Schedule, err)
	}

	return &Watcher{
		launcher: launcher,
		lookup:   lookup,
		config:   cfg,
		logger:   slog.Default(),
		parser:   parser,
		now:      time.Now,
	}, nil
}

// WithLogger sets a custom logger.
func (w *Watcher) WithLogger(logger *slog.Logger) *Watcher {
	w.logger = logger
	return w
}

// Start schedules ticks until ctx is cancelled or Stop is called. A tick
// that is still running when the next one is due makes that one skip.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cron != nil {
		return errors.New("watcher already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	cronLog := cronLogger{logger: w.logger}
	c := cron.New(
		cron.WithParser(w.parser),
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)

	id, err := c.AddFunc(w.config.Schedule, func() {
		if _, err := w.Tick(runCtx); err != nil {
			w.logger.ErrorContext(runCtx, "watch tick failed", slog.String("error", err.Error()))
		}
	})
	if err != nil {
		cancel()
		return fmt.Errorf("scheduling watch: %w", err)
	}

	c.Start()
	w.cron, w.entryID, w.cancel = c, id, cancel

	w.logger.Info("watcher started",
		slog.String("schedule", w.config.Schedule),
		slog.String("directory", w.config.Directory),
		slog.Time("next_run", c.Entry(id).Next))
	return nil
}

// Stop cancels a running tick and waits for it to return.
func (w *Watcher) Stop() {
	w.mu.Lock()
	c, cancel := w.cron, w.cancel
	w.cron, w.cancel = nil, nil
	w.mu.Unlock()

	if c == nil {
		return
	}
	cancel()
	<-c.Stop().Done()
	w.logger.Info("watcher stopped")
}

// NextRun returns when the next tick is due, or the zero time when the
// watcher is not started.
func (w *Watcher) NextRun() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cron == nil {
		return time.Time{}
	}
	return w.cron.Entry(w.entryID).Next
}

// Tick discovers inputs and launches the new ones. Finding no files is not
// an error.
func (w *Watcher) Tick(ctx context.Context) (*TickResult, error) {
	files, err := discovery.Find(w.config.Directory, w.config.Filter)
	if err != nil {
		if errors.Is(err, discovery.ErrNoFiles) {
			w.logger.DebugContext(ctx, "no input files found", slog.String("directory", w.config.Directory))
			return &TickResult{}, nil
		}
		return nil, fmt.Errorf("discovering inputs: %w", err)
	}

	result := &TickResult{Discovered: len(files)}

	inputs := files
	if w.lookup != nil {
		done, err := w.lookup.SucceededInputs(ctx, w.config.Launch.WorkflowID, files)
		if err != nil {
			return nil, fmt.Errorf("checking run history: %w", err)
		}
		inputs = make([]string, 0, len(files))
		for _, f := range files {
			if !done[f] {
				inputs = append(inputs, f)
			}
		}
	}
	result.Skipped = len(files) - len(inputs)

	if len(inputs) == 0 {
		w.logger.DebugContext(ctx, "no new inputs",
			slog.Int("discovered", result.Discovered),
			slog.Int("skipped", result.Skipped))
		return result, nil
	}

	req := w.config.Launch
	req.Inputs = inputs
	req.Trigger = models.RunTriggerWatch
	if w.config.ReportDir != "" {
		req.ReportPath = filepath.Join(w.config.ReportDir,
			fmt.Sprintf("watch-%s.json", w.now().UTC().Format("20060102T150405Z")))
	}

	w.logger.InfoContext(ctx, "launching new inputs",
		slog.Int("discovered", result.Discovered),
		slog.Int("skipped", result.Skipped),
		slog.Int("launching", len(inputs)))

	launched, err := w.launcher.Launch(ctx, req)
	result.Launched = launched
	if err != nil {
		return result, fmt.Errorf("launching: %w", err)
	}
	return result, nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append([]any{slog.String("error", err.Error())}, keysAndValues...)...)
}
