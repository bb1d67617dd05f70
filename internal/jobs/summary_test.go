package jobs

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/jobctl/internal/models"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0m 0s"},
		{59 * time.Second, "0m 59s"},
		{61 * time.Second, "1m 1s"},
		{90*time.Minute + 5*time.Second + 900*time.Millisecond, "90m 5s"},
		{-time.Second, "0m 0s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDuration(tt.d))
	}
}

func scenarioOutcomes(launched time.Time) []models.JobOutcome {
	return []models.JobOutcome{
		{
			Index: 0, InputRef: "a.mov", Status: models.OutcomeSucceeded, Result: "/out/a.mxf",
			Handle:     &models.JobHandle{JobID: "j-a"},
			LaunchedAt: launched, CompletedAt: launched.Add(75 * time.Second),
		},
		{
			Index: 1, InputRef: "b.mov", Status: models.OutcomeFailed, Message: `engine reported status "error"`,
			Handle:     &models.JobHandle{JobID: "j-b"},
			LaunchedAt: launched,
		},
	}
}

func TestSummarize(t *testing.T) {
	launched := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	now := launched.Add(3 * time.Minute)

	s := Summarize(scenarioOutcomes(launched), now)

	assert.Equal(t, 2, s.Total)
	assert.Equal(t, 1, s.Succeeded)
	assert.Equal(t, 1, s.Failed)
	assert.False(t, s.AllSucceeded())
	assert.Equal(t, 1, s.ByStatus[models.OutcomeSucceeded])
	assert.Equal(t, 1, s.ByStatus[models.OutcomeFailed])

	require.Len(t, s.Items, 2)
	assert.Equal(t, 75*time.Second, s.Items[0].Duration)
	assert.Equal(t, "/out/a.mxf", s.Items[0].Detail())
	assert.Equal(t, 3*time.Minute, s.Items[1].Duration, "missing completion falls back to now")
	assert.Contains(t, s.Items[1].Detail(), "error")
}

func TestSummary_AllSucceeded(t *testing.T) {
	ok := Summarize([]models.JobOutcome{
		{Status: models.OutcomeSucceeded},
		{Status: models.OutcomeSucceeded},
	}, time.Now())
	assert.True(t, ok.AllSucceeded())

	for _, status := range []models.OutcomeStatus{models.OutcomeFailed, models.OutcomeTimedOut, models.OutcomeSubmissionFailed} {
		s := Summarize([]models.JobOutcome{{Status: models.OutcomeSucceeded}, {Status: status}}, time.Now())
		assert.False(t, s.AllSucceeded(), status)
	}
}

func TestSummary_WriteText(t *testing.T) {
	launched := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	s := Summarize(scenarioOutcomes(launched), launched.Add(2*time.Minute))

	var buf bytes.Buffer
	require.NoError(t, s.WriteText(&buf))

	out := buf.String()
	assert.Contains(t, out, "JOB EXECUTION SUMMARY")
	assert.Contains(t, out, "Total jobs: 2")
	assert.Contains(t, out, "Successful: 1")
	assert.Contains(t, out, "Failed: 1")
	assert.Contains(t, out, "a.mov: succeeded - /out/a.mxf - Duration: 1m 15s")
	assert.Contains(t, out, `b.mov: failed - engine reported status "error" - Duration: 2m 0s`)
}

func TestSummary_Log(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	launched := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	Summarize(scenarioOutcomes(launched), launched.Add(time.Minute)).Log(context.Background(), logger)

	out := buf.String()
	assert.Contains(t, out, "job execution summary")
	assert.Contains(t, out, "total=2")
	assert.Contains(t, out, "all_succeeded=false")
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, "job_id=j-b")
	assert.Contains(t, out, `duration="1m 15s"`)
}
