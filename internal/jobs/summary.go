package jobs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmylchreest/jobctl/internal/models"
)

// ItemSummary is the per-item line of a run summary.
type ItemSummary struct {
	Index    int                  `json:"index"`
	InputRef string               `json:"input"`
	JobID    string               `json:"job_id,omitempty"`
	Status   models.OutcomeStatus `json:"status"`
	Result   string               `json:"result,omitempty"`
	Message  string               `json:"message,omitempty"`
	Duration time.Duration        `json:"duration"`
}

// Detail returns the result for successful items and the diagnostic otherwise.
func (i ItemSummary) Detail() string {
	if i.Status == models.OutcomeSucceeded {
		return i.Result
	}
	return i.Message
}

// Summary aggregates the outcomes of a run.
type Summary struct {
	Total     int                          `json:"total"`
	Succeeded int                          `json:"succeeded"`
	Failed    int                          `json:"failed"`
	ByStatus  map[models.OutcomeStatus]int `json:"by_status"`
	Items     []ItemSummary                `json:"items"`
}

// Summarize builds the summary. Items whose completion time is unknown are
// measured up to now.
func Summarize(outcomes []models.JobOutcome, now time.Time) Summary {
	s := Summary{
		Total:    len(outcomes),
		ByStatus: make(map[models.OutcomeStatus]int),
		Items:    make([]ItemSummary, 0, len(outcomes)),
	}
	for _, o := range outcomes {
		s.ByStatus[o.Status]++
		if o.Succeeded() {
			s.Succeeded++
		} else {
			s.Failed++
		}
		s.Items = append(s.Items, ItemSummary{
			Index:    o.Index,
			InputRef: o.InputRef,
			JobID:    o.JobID(),
			Status:   o.Status,
			Result:   o.Result,
			Message:  o.Message,
			Duration: o.Duration(now),
		})
	}
	return s
}

// AllSucceeded is the run verdict.
func (s Summary) AllSucceeded() bool {
	return s.Failed == 0 && s.Succeeded == s.Total
}

// FormatDuration renders d as "Xm Ys".
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	minutes := int64(d / time.Minute)
	seconds := int64((d % time.Minute) / time.Second)
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}

// Log emits the summary as structured records: one for the totals and one
// per item.
func (s Summary) Log(ctx context.Context, logger *slog.Logger) {
	logger.InfoContext(ctx, "job execution summary",
		slog.Int("total", s.Total),
		slog.Int("succeeded", s.Succeeded),
		slog.Int("failed", s.Failed),
		slog.Bool("all_succeeded", s.AllSucceeded()))

	for _, item := range s.Items {
		level := slog.LevelInfo
		if item.Status != models.OutcomeSucceeded {
			level = slog.LevelError
		}
		logger.Log(ctx, level, "item result",
			slog.Int("item_index", item.Index),
			slog.String("input", item.InputRef),
			slog.String("job_id", item.JobID),
			slog.String("status", string(item.Status)),
			slog.String("detail", item.Detail()),
			slog.String("duration", FormatDuration(item.Duration)))
	}
}

// WriteText writes a human-readable summary.
func (s Summary) WriteText(w io.Writer) error {
	if _, err := fmt.Fprintln(w, "========== JOB EXECUTION SUMMARY =========="); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "Total jobs: %d\nSuccessful: %d\nFailed: %d\n", s.Total, s.Succeeded, s.Failed); err != nil {
		return err
	}
	for _, item := range s.Items {
		if _, err := fmt.Fprintf(w, "%s: %s - %s - Duration: %s\n",
			item.InputRef, item.Status, item.Detail(), FormatDuration(item.Duration)); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "===========================================")
	return err
}
