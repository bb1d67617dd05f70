package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jmylchreest/jobctl/internal/models"
	"github.com/jmylchreest/jobctl/internal/observability"
)

// JobSubmitter submits one request.
type JobSubmitter interface {
	Submit(ctx context.Context, req models.JobRequest) (*models.JobHandle, error)
}

// JobPoller drives one handle to a terminal outcome.
type JobPoller interface {
	Poll(ctx context.Context, handle models.JobHandle) models.JobOutcome
}

// ItemTransform rewrites a request just before submission. It runs inside the
// item's worker, so an error or panic only fails that item.
type ItemTransform func(ctx context.Context, item Item, req models.JobRequest) (models.JobRequest, error)

// Item identifies one input item within a run.
type Item struct {
	Index         int
	InputRef      string
	CorrelationID string
}

// CoordinatorConfig holds configuration for the coordinator.
type CoordinatorConfig struct {
	// Concurrency is the maximum number of items in flight.
	// Default: 40
	Concurrency int

	// LaunchDelay is the pause between consecutive item starts.
	// Default: 500ms
	LaunchDelay time.Duration
}

// DefaultCoordinatorConfig returns the default coordinator configuration.
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		Concurrency: 40,
		LaunchDelay: 500 * time.Millisecond,
	}
}

// Coordinator runs submit then poll for every item on a bounded set of
// goroutines. One item's failure never affects another.
type Coordinator struct {
	submitter JobSubmitter
	poller    JobPoller
	config    CoordinatorConfig
	logger    *slog.Logger
	transform ItemTransform
	newID     func() string
	now       func() time.Time
}

// NewCoordinator creates a coordinator.
func NewCoordinator(submitter JobSubmitter, poller JobPoller, cfg CoordinatorConfig, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultCoordinatorConfig().Concurrency
	}
	if cfg.LaunchDelay < 0 {
		cfg.LaunchDelay = 0
	}
	return &Coordinator{
		submitter: submitter,
		poller:    poller,
		config:    cfg,
		logger:    observability.WithComponent(logger, "coordinator"),
		newID:     uuid.NewString,
		now:       time.Now,
	}
}

// WithTransform sets the per-item transform.
func (c *Coordinator) WithTransform(t ItemTransform) *Coordinator {
	c.transform = t
	return c
}

// Run processes every request and returns one outcome per request, ordered
// by item index. Cancelling ctx stops polling and skips items not yet
// started; each still yields a failed outcome.
func (c *Coordinator) Run(ctx context.Context, reqs []models.JobRequest) []models.JobOutcome {
	c.logger.Info("starting items",
		slog.Int("items", len(reqs)),
		slog.Int("concurrency", c.config.Concurrency))

	sem := make(chan struct{}, c.config.Concurrency)
	results := make(chan models.JobOutcome, len(reqs))
	var wg sync.WaitGroup

	for i, req := range reqs {
		if i > 0 && c.config.LaunchDelay > 0 {
			_ = sleepContext(ctx, c.config.LaunchDelay)
		}

		select {
		case sem <- struct{}{}:
			if ctx.Err() != nil {
				<-sem
				results <- c.skipped(i, req)
				continue
			}
		case <-ctx.Done():
			results <- c.skipped(i, req)
			continue
		}

		wg.Add(1)
		go func(index int, req models.JobRequest) {
			defer wg.Done()
			defer func() { <-sem }()
			results <- c.runItem(ctx, index, req)
		}(i, req)
	}

	wg.Wait()
	close(results)

	outcomes := make([]models.JobOutcome, 0, len(reqs))
	for o := range results {
		outcomes = append(outcomes, o)
	}
	sort.Slice(outcomes, func(a, b int) bool { return outcomes[a].Index < outcomes[b].Index })

	c.logger.Info("all items reached a terminal state", slog.Int("items", len(outcomes)))
	return outcomes
}

func (c *Coordinator) skipped(index int, req models.JobRequest) models.JobOutcome {
	now := c.now()
	c.logger.Warn("item skipped, run cancelled",
		slog.Int("item_index", index),
		slog.String("input", req.InputRef))
	return models.JobOutcome{
		Index:       index,
		InputRef:    req.InputRef,
		Status:      models.OutcomeFailed,
		Message:     MessageCancelled,
		LaunchedAt:  now,
		CompletedAt: now,
	}
}

// runItem owns one item end to end. Panics are converted to a failed outcome.
func (c *Coordinator) runItem(ctx context.Context, index int, req models.JobRequest) (outcome models.JobOutcome) {
	item := Item{Index: index, InputRef: req.InputRef, CorrelationID: c.newID()}
	logger := observability.WithCorrelationID(
		observability.WithItem(c.logger, index, req.InputRef), item.CorrelationID)
	ctx = observability.ContextWithCorrelationID(observability.ContextWithLogger(ctx, logger), item.CorrelationID)

	outcome = models.JobOutcome{
		Index:         index,
		InputRef:      req.InputRef,
		CorrelationID: item.CorrelationID,
		LaunchedAt:    c.now(),
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("item panicked",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			outcome.Status = models.OutcomeFailed
			outcome.Message = fmt.Sprintf("panic: %v", r)
			outcome.Result = ""
			outcome.CompletedAt = c.now()
		}
	}()

	logger.Info("item started")

	if c.transform != nil {
		transformed, err := c.transform(ctx, item, req)
		if err != nil {
			return c.submissionFailed(logger, outcome, fmt.Errorf("preparing job request: %w", err))
		}
		req = transformed
	}

	handle, err := c.submitter.Submit(ctx, req)
	if err != nil {
		return c.submissionFailed(logger, outcome, err)
	}
	outcome.Handle = handle

	// The poller adds job_id to the context logger itself.
	polled := c.poller.Poll(ctx, *handle)
	logger = observability.WithJobID(logger, handle.JobID)
	outcome.Status = polled.Status
	outcome.Result = polled.Result
	outcome.Message = polled.Message
	outcome.LastEngineStatus = polled.LastEngineStatus
	outcome.CompletedAt = polled.CompletedAt

	logger.Info("item finished",
		slog.String("status", string(outcome.Status)),
		slog.Duration("duration", outcome.Duration(c.now())))
	return outcome
}

func (c *Coordinator) submissionFailed(logger *slog.Logger, outcome models.JobOutcome, err error) models.JobOutcome {
	observability.WithError(logger, err).Error("submission failed")
	outcome.Status = models.OutcomeSubmissionFailed
	outcome.Message = err.Error()
	outcome.CompletedAt = c.now()
	return outcome
}
