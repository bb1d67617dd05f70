// Package jobs drives input items through the workflow engine: submission,
// status polling, bounded fan-out across items and the final summary.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/jobctl/internal/engine"
	"github.com/jmylchreest/jobctl/internal/models"
	"github.com/jmylchreest/jobctl/internal/observability"
)

// ErrReferenceJobNotFound is returned when the reference job is not among
// the engine's running tickets.
var ErrReferenceJobNotFound = errors.New("reference job not found among running jobs")

// EngineAPI is the subset of the engine client used by this package.
type EngineAPI interface {
	SubmitJob(ctx context.Context, req engine.SubmitRequest) (string, error)
	JobHistory(ctx context.Context, jobID string) (*engine.HistoryResponse, error)
	RunningTickets(ctx context.Context) ([]engine.Ticket, error)
	JobDetails(ctx context.Context, jobID string) (*engine.JobDetails, error)
}

// SubmitterConfig holds configuration for the submitter.
type SubmitterConfig struct {
	// ReferenceJobID names a running job whose variables are prepended to
	// every request. Empty disables enrichment.
	ReferenceJobID string

	// StrictReference turns a missing or unreadable reference job into a
	// submission error instead of a warning.
	StrictReference bool
}

// Submitter turns job requests into engine jobs.
type Submitter struct {
	api    EngineAPI
	config SubmitterConfig
	logger *slog.Logger
	now    func() time.Time

	refOnce sync.Once
	refVars []models.Variable
	refErr  error
}

// NewSubmitter creates a submitter.
func NewSubmitter(api EngineAPI, cfg SubmitterConfig, logger *slog.Logger) *Submitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Submitter{
		api:    api,
		config: cfg,
		logger: observability.WithComponent(logger, "submitter"),
		now:    time.Now,
	}
}

// ReferenceVariables looks up jobID among the running tickets and returns its
// variables.
func (s *Submitter) ReferenceVariables(ctx context.Context, jobID string) ([]models.Variable, error) {
	tickets, err := s.api.RunningTickets(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching running tickets: %w", err)
	}
	for _, t := range tickets {
		if t.JobID.String() == jobID {
			return t.Variables, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrReferenceJobNotFound, jobID)
}

// referenceVariables fetches the configured reference job once per submitter.
func (s *Submitter) referenceVariables(ctx context.Context) ([]models.Variable, error) {
	s.refOnce.Do(func() {
		jobID := s.config.ReferenceJobID
		vars, err := s.ReferenceVariables(ctx, jobID)
		if err != nil {
			s.refErr = err
			if errors.Is(err, ErrReferenceJobNotFound) {
				s.logger.Warn("reference job not found, no variables inherited",
					slog.String("reference_job_id", jobID))
			} else {
				s.logger.Error("failed to fetch reference job variables",
					slog.String("reference_job_id", jobID),
					slog.String("error", err.Error()))
			}
			return
		}
		s.refVars = vars
		s.logger.Info("inherited variables from reference job",
			slog.String("reference_job_id", jobID),
			slog.Int("variable_count", len(vars)))
	})
	return s.refVars, s.refErr
}

// Submit validates req, applies reference-job enrichment and posts the job.
// Fetched variables come first; caller variables are not deduplicated and the
// engine keeps the last value for a repeated name.
func (s *Submitter) Submit(ctx context.Context, req models.JobRequest) (*models.JobHandle, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid job request: %w", err)
	}

	logger := observability.LoggerFromContextOr(ctx, s.logger)

	if s.config.ReferenceJobID != "" {
		vars, err := s.referenceVariables(ctx)
		if err != nil && s.config.StrictReference {
			return nil, fmt.Errorf("enriching from reference job: %w", err)
		}
		if len(vars) > 0 {
			req = req.WithPrependedVariables(vars)
		}
	}

	jobID, err := s.api.SubmitJob(ctx, engine.NewSubmitRequest(req))
	if err != nil {
		return nil, fmt.Errorf("submitting job: %w", err)
	}

	handle := &models.JobHandle{
		JobID:       jobID,
		InputRef:    req.InputRef,
		SubmittedAt: s.now(),
	}
	logger.Info("job submitted",
		slog.String("job_id", jobID),
		slog.String("workflow_id", req.WorkflowID),
		slog.Int("variable_count", len(req.Variables)))
	return handle, nil
}
