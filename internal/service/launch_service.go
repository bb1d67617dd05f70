// Package service wires the job components into the launch use case shared
// by the CLI, the watch schedule and the status API.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmylchreest/jobctl/internal/jobs"
	"github.com/jmylchreest/jobctl/internal/models"
	"github.com/jmylchreest/jobctl/internal/report"
	"github.com/jmylchreest/jobctl/internal/repository"
)

// ErrNoInputs is returned when a launch names no input items.
var ErrNoInputs = errors.New("no input items")

// Runner fans requests out and returns one outcome per request.
type Runner interface {
	Run(ctx context.Context, reqs []models.JobRequest) []models.JobOutcome
}

// LaunchRequest describes one launch: the same workflow and variables for
// every input item.
type LaunchRequest struct {
	WorkflowID string
	Inputs     []string
	StartProc  string
	Priority   string
	Variables  []models.Variable

	// ReportPath, when set, receives the report artifact, merged into any
	// report already there.
	ReportPath string

	Trigger models.RunTrigger
}

// Requests expands the launch into one job request per input.
func (r LaunchRequest) Requests() []models.JobRequest {
	reqs := make([]models.JobRequest, 0, len(r.Inputs))
	for _, in := range r.Inputs {
		reqs = append(reqs, models.JobRequest{
			WorkflowID: r.WorkflowID,
			InputRef:   in,
			StartProc:  r.StartProc,
			Priority:   r.Priority,
			Variables:  r.Variables,
		})
	}
	return reqs
}

// LaunchResult is what a finished launch produced.
type LaunchResult struct {
	// Run is the persisted run, nil when no run repository is configured.
	Run      *models.Run
	Outcomes []models.JobOutcome
	Summary  jobs.Summary
}

// LaunchService runs launches and records their history.
type LaunchService struct {
	runner    Runner
	runs      repository.RunRepository
	engineURL string
	logger    *slog.Logger
	now       func() time.Time
}

// NewLaunchService creates a new launch service.
func NewLaunchService(runner Runner, engineURL string) *LaunchService {
	return &LaunchService{
		runner:    runner,
		engineURL: engineURL,
		logger:    slog.Default(),
		now:       time.Now,
	}
}

// WithLogger sets the logger for the service.
func (s *LaunchService) WithLogger(logger *slog.Logger) *LaunchService {
	s.logger = logger
	return s
}

// WithRunRepository enables run history.
func (s *LaunchService) WithRunRepository(runs repository.RunRepository) *LaunchService {
	s.runs = runs
	return s
}

// Launch runs every input to a terminal outcome, logs the summary and writes
// the report. Only invalid requests fail before any job is submitted. A
// report or history write error is returned together with the result, since
// the jobs themselves have already run.
func (s *LaunchService) Launch(ctx context.Context, req LaunchRequest) (*LaunchResult, error) {
	if req.WorkflowID == "" {
		return nil, models.ErrWorkflowIDRequired
	}
	if len(req.Inputs) == 0 {
		return nil, ErrNoInputs
	}
	if req.Trigger == "" {
		req.Trigger = models.RunTriggerLaunch
	}

	logger := s.logger.With(
		slog.String("workflow_id", req.WorkflowID),
		slog.String("trigger", string(req.Trigger)),
	)

	run := s.startRun(ctx, logger, req)

	logger.InfoContext(ctx, "launching jobs", slog.Int("item_count", len(req.Inputs)))
	outcomes := s.runner.Run(ctx, req.Requests())

	now := s.now()
	summary := jobs.Summarize(outcomes, now)
	summary.Log(ctx, logger)

	result := &LaunchResult{Run: run, Outcomes: outcomes, Summary: summary}

	var errs []error
	if req.ReportPath != "" {
		if err := report.WriteMerged(req.ReportPath, report.FromOutcomes(outcomes, now)); err != nil {
			errs = append(errs, fmt.Errorf("writing report: %w", err))
		} else {
			logger.InfoContext(ctx, "report written", slog.String("path", req.ReportPath))
		}
	}

	if run != nil {
		if err := s.completeRun(context.WithoutCancel(ctx), run, req, summary, outcomes, now); err != nil {
			errs = append(errs, err)
		}
	}

	return result, errors.Join(errs...)
}

// startRun records the run as running. History is best effort: a failure is
// logged and the launch continues without it.
func (s *LaunchService) startRun(ctx context.Context, logger *slog.Logger, req LaunchRequest) *models.Run {
	if s.runs == nil {
		return nil
	}
	run := &models.Run{
		WorkflowID: req.WorkflowID,
		EngineURL:  s.engineURL,
		Trigger:    req.Trigger,
		Status:     models.RunStatusRunning,
		StartedAt:  s.now(),
		Total:      len(req.Inputs),
		ReportPath: req.ReportPath,
	}
	if err := s.runs.Create(ctx, run); err != nil {
		logger.WarnContext(ctx, "failed to record run, continuing without history",
			slog.String("error", err.Error()))
		return nil
	}
	logger.DebugContext(ctx, "run recorded", slog.String("run_id", run.ID.String()))
	return run
}

func (s *LaunchService) completeRun(ctx context.Context, run *models.Run, req LaunchRequest, summary jobs.Summary, outcomes []models.JobOutcome, now time.Time) error {
	run.Status = models.RunStatusFailed
	if summary.AllSucceeded() {
		run.Status = models.RunStatusSucceeded
	}
	run.CompletedAt = &now
	run.Total = summary.Total
	run.Succeeded = summary.Succeeded
	run.Failed = summary.Failed

	records := make([]models.OutcomeRecord, 0, len(outcomes))
	for _, o := range outcomes {
		records = append(records, models.NewOutcomeRecord(req.WorkflowID, o, now))
	}
	if err := s.runs.Complete(ctx, run, records); err != nil {
		return fmt.Errorf("recording run outcomes: %w", err)
	}
	return nil
}
