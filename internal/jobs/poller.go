package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmylchreest/jobctl/internal/config"
	"github.com/jmylchreest/jobctl/internal/models"
	"github.com/jmylchreest/jobctl/internal/observability"
)

// Status sources.
const (
	SourceDetails = config.PollSourceDetails
	SourceHistory = config.PollSourceHistory
)

// MessageCancelled is the outcome message for items stopped by cancellation.
const MessageCancelled = "cancelled"

// PollConfig holds configuration for the poller.
type PollConfig struct {
	// Source selects the status endpoint: details or history.
	// Default: details
	Source string

	// Interval is the sleep between status requests.
	// Default: 1s (details), 60s (history)
	Interval time.Duration

	// Timeout bounds the total wall-clock wait for a job.
	// Default: 2h (details), 30m (history)
	Timeout time.Duration

	// MaxFailures is the number of consecutive failed status requests after
	// which the job is failed.
	// Default: 10 (details), 30 (history)
	MaxFailures int

	// InitialDelay is waited once before the first status request so the
	// engine can index the new job. Negative selects the profile default.
	// Default: 2s (details), 0 (history)
	InitialDelay time.Duration

	// OutputVariable is the variable extracted from a finished job.
	// Default: s_output
	OutputVariable string

	// SuccessState is the history state value that denotes success.
	// Default: 1
	SuccessState string
}

// ProfileFor returns the default poll settings for a status source.
func ProfileFor(source string) PollConfig {
	if source == SourceHistory {
		return PollConfig{
			Source:         SourceHistory,
			Interval:       60 * time.Second,
			Timeout:        30 * time.Minute,
			MaxFailures:    30,
			InitialDelay:   0,
			OutputVariable: "s_output",
			SuccessState:   "1",
		}
	}
	return PollConfig{
		Source:         SourceDetails,
		Interval:       time.Second,
		Timeout:        2 * time.Hour,
		MaxFailures:    10,
		InitialDelay:   2 * time.Second,
		OutputVariable: "s_output",
		SuccessState:   "1",
	}
}

// WithDefaults fills zero fields from the profile of c.Source.
func (c PollConfig) WithDefaults() PollConfig {
	p := ProfileFor(c.Source)
	if c.Source == "" {
		c.Source = p.Source
	}
	if c.Interval <= 0 {
		c.Interval = p.Interval
	}
	if c.Timeout <= 0 {
		c.Timeout = p.Timeout
	}
	if c.MaxFailures <= 0 {
		c.MaxFailures = p.MaxFailures
	}
	if c.InitialDelay < 0 {
		c.InitialDelay = p.InitialDelay
	}
	if c.OutputVariable == "" {
		c.OutputVariable = p.OutputVariable
	}
	if c.SuccessState == "" {
		c.SuccessState = p.SuccessState
	}
	return c
}

// PollConfigFromConfig converts application configuration, applying profile defaults.
func PollConfigFromConfig(cfg config.PollConfig) PollConfig {
	return PollConfig{
		Source:         cfg.Source,
		Interval:       cfg.Interval,
		Timeout:        cfg.Timeout,
		MaxFailures:    cfg.MaxFailures,
		InitialDelay:   cfg.InitialDelay,
		OutputVariable: cfg.OutputVariable,
		SuccessState:   cfg.SuccessState,
	}.WithDefaults()
}

// Phase is the engine-side progress of a job as seen by one status request.
type Phase int

const (
	// PhaseRunning means the job has not reached a terminal status.
	PhaseRunning Phase = iota
	// PhaseFinished means the engine reports success.
	PhaseFinished
	// PhaseFailed means the engine reports an error.
	PhaseFailed
)

// Status is one status observation.
type Status struct {
	Phase Phase

	// Engine is the raw status string reported by the engine.
	Engine string

	// Result is the extracted payload; valid only when HasResult is set.
	Result    string
	HasResult bool

	// CompletedAt is the engine's completion time, zero if unknown.
	CompletedAt time.Time
}

// StatusSource answers "how is job X doing" with one engine request.
type StatusSource interface {
	Check(ctx context.Context, jobID string) (Status, error)
}

// NewStatusSource returns the source selected by cfg.Source.
func NewStatusSource(api EngineAPI, cfg PollConfig) StatusSource {
	if cfg.Source == SourceHistory {
		return &historySource{api: api, successState: cfg.SuccessState}
	}
	return &detailsSource{api: api, outputVariable: cfg.OutputVariable}
}

// detailsSource polls GET /getjobdetails and extracts the output variable
// from the workflow object.
type detailsSource struct {
	api            EngineAPI
	outputVariable string
}

func (s *detailsSource) Check(ctx context.Context, jobID string) (Status, error) {
	details, err := s.api.JobDetails(ctx, jobID)
	if err != nil {
		return Status{}, err
	}

	st := Status{Engine: details.Status}
	switch {
	case details.IsFinished():
		st.Phase = PhaseFinished
		st.Result, st.HasResult = details.OutputVariable(s.outputVariable)
	case details.IsFailed():
		st.Phase = PhaseFailed
	default:
		st.Phase = PhaseRunning
	}
	return st, nil
}

// historySource polls GET /jobs?jobid= where a job appears only once it has
// finished, with a state that is either the success value or a failure.
type historySource struct {
	api          EngineAPI
	successState string
}

func (s *historySource) Check(ctx context.Context, jobID string) (Status, error) {
	history, err := s.api.JobHistory(ctx, jobID)
	if err != nil {
		return Status{}, err
	}

	entry, ok := history.Find(jobID)
	if !ok {
		return Status{Phase: PhaseRunning}, nil
	}

	state := entry.State.String()
	st := Status{
		Engine:      "state " + state,
		CompletedAt: parseEngineTime(entry.EndTime),
	}
	if state != s.successState {
		st.Phase = PhaseFailed
		st.Result = entry.ResultString()
		return st, nil
	}
	st.Phase = PhaseFinished
	if len(entry.Result) > 0 && string(entry.Result) != "null" {
		st.Result = entry.ResultString()
		st.HasResult = true
	}
	return st, nil
}

var engineTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.000",
}

// parseEngineTime parses an engine timestamp, assuming UTC when no zone is
// given. Unparsable values yield the zero time.
func parseEngineTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range engineTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Poller drives one job handle to a terminal outcome.
type Poller struct {
	source StatusSource
	config PollConfig
	logger *slog.Logger
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewPoller creates a poller using the status source selected by cfg.
func NewPoller(api EngineAPI, cfg PollConfig, logger *slog.Logger) *Poller {
	cfg = cfg.WithDefaults()
	return NewPollerWithSource(NewStatusSource(api, cfg), cfg, logger)
}

// NewPollerWithSource creates a poller around an explicit status source.
func NewPollerWithSource(source StatusSource, cfg PollConfig, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		source: source,
		config: cfg.WithDefaults(),
		logger: observability.WithComponent(logger, "poller"),
		now:    time.Now,
		sleep:  sleepContext,
	}
}

// Config returns the effective poll configuration.
func (p *Poller) Config() PollConfig {
	return p.config
}

// pollState is owned by a single Poll call.
type pollState struct {
	failures   int
	lastStatus string
	lastErr    error
}

// Poll requests the job status every interval until the engine reports a
// terminal status, the consecutive failure limit is reached, the timeout
// elapses or ctx is cancelled. It always returns exactly one outcome.
func (p *Poller) Poll(ctx context.Context, handle models.JobHandle) models.JobOutcome {
	logger := observability.WithJobID(observability.LoggerFromContextOr(ctx, p.logger), handle.JobID)
	start := p.now()
	deadline := start.Add(p.config.Timeout)
	state := &pollState{}

	h := handle
	outcome := func(status models.OutcomeStatus, msg string) models.JobOutcome {
		return models.JobOutcome{
			InputRef:         handle.InputRef,
			Handle:           &h,
			Status:           status,
			LastEngineStatus: state.lastStatus,
			Message:          msg,
			LaunchedAt:       handle.SubmittedAt,
			CompletedAt:      p.now(),
		}
	}

	if p.config.InitialDelay > 0 {
		if err := p.sleep(ctx, p.config.InitialDelay); err != nil {
			logger.Warn("polling cancelled")
			return outcome(models.OutcomeFailed, MessageCancelled)
		}
	}

	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			logger.Warn("polling cancelled", slog.Int("attempt", attempt))
			return outcome(models.OutcomeFailed, MessageCancelled)
		}

		elapsed := p.now().Sub(start)
		if elapsed >= p.config.Timeout {
			logger.Error("job did not complete within timeout",
				slog.Duration("timeout", p.config.Timeout),
				slog.String("last_status", state.lastStatus))
			return outcome(models.OutcomeTimedOut,
				fmt.Sprintf("job did not complete within %s", p.config.Timeout))
		}

		st, err := p.source.Check(ctx, handle.JobID)
		if err != nil {
			if ctx.Err() != nil {
				logger.Warn("polling cancelled", slog.Int("attempt", attempt))
				return outcome(models.OutcomeFailed, MessageCancelled)
			}
			state.failures++
			state.lastErr = err
			logger.Warn("failed to get job status",
				slog.Int("failures", state.failures),
				slog.Int("max_failures", p.config.MaxFailures),
				slog.String("error", err.Error()))
			if state.failures >= p.config.MaxFailures {
				logger.Error("max consecutive failures exceeded",
					slog.Int("max_failures", p.config.MaxFailures))
				return outcome(models.OutcomeFailed, fmt.Sprintf(
					"max consecutive failures (%d) exceeded: %v", p.config.MaxFailures, state.lastErr))
			}
		} else {
			state.failures = 0
			state.lastStatus = st.Engine

			switch st.Phase {
			case PhaseFinished:
				out := outcome(models.OutcomeSucceeded, "")
				if !st.CompletedAt.IsZero() {
					out.CompletedAt = st.CompletedAt
				}
				if !st.HasResult {
					logger.Error("job finished without output variable",
						slog.String("variable", p.config.OutputVariable))
					out.Status = models.OutcomeFailed
					out.Message = fmt.Sprintf("variable %s not found in job output", p.config.OutputVariable)
					return out
				}
				out.Result = st.Result
				logger.Info("job completed",
					slog.Duration("elapsed", p.now().Sub(start)),
					slog.String("result", st.Result))
				return out

			case PhaseFailed:
				out := outcome(models.OutcomeFailed, fmt.Sprintf("engine reported status %q", st.Engine))
				if st.Result != "" {
					out.Message += ": " + st.Result
				}
				if !st.CompletedAt.IsZero() {
					out.CompletedAt = st.CompletedAt
				}
				logger.Error("job failed", slog.String("status", st.Engine))
				return out

			default:
				logger.Debug("job still running",
					slog.String("status", st.Engine),
					slog.Duration("elapsed", elapsed))
			}
		}

		wait := p.config.Interval
		if remaining := deadline.Sub(p.now()); remaining < wait {
			wait = max(remaining, 0)
		}
		if err := p.sleep(ctx, wait); err != nil {
			logger.Warn("polling cancelled", slog.Int("attempt", attempt))
			return outcome(models.OutcomeFailed, MessageCancelled)
		}
	}
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
