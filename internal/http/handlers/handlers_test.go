package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jmylchreest/jobctl/internal/models"
	"github.com/jmylchreest/jobctl/internal/repository"
	"github.com/jmylchreest/jobctl/pkg/httpclient"
)

type fakeEngine struct {
	state    httpclient.CircuitState
	disabled bool
}

func (f fakeEngine) BaseURL() string                       { return "http://engine:65445" }
func (f fakeEngine) CircuitEnabled() bool                  { return !f.disabled }
func (f fakeEngine) CircuitState() httpclient.CircuitState { return f.state }

type fakeWatch struct{ next time.Time }

func (f fakeWatch) NextRun() time.Time { return f.next }

type failingRuns struct{}

func (failingRuns) GetByID(context.Context, models.ULID) (*models.Run, error) {
	return nil, errors.New("database is locked")
}

func (failingRuns) List(context.Context, int, int) ([]*models.Run, int64, error) {
	return nil, 0, errors.New("database is locked")
}

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.Run{}, &models.OutcomeRecord{}))
	return db
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	var se huma.StatusError
	require.True(t, errors.As(err, &se), "expected a huma status error, got %v", err)
	return se.GetStatus()
}

func TestHealthHandler_GetLivez(t *testing.T) {
	out, err := NewHealthHandler("1.0.0").GetLivez(context.Background(), &LivezInput{})
	require.NoError(t, err)
	assert.Equal(t, "ok", out.Body.Status)
}

func TestHealthHandler_GetReadyz(t *testing.T) {
	t.Run("not ready without dependencies", func(t *testing.T) {
		out, err := NewHealthHandler("1.0.0").GetReadyz(context.Background(), &ReadyzInput{})
		require.NoError(t, err)
		assert.Equal(t, "not_ready", out.Body.Status)
		assert.Equal(t, "not_configured", out.Body.Components["database"])
		assert.Equal(t, "not_configured", out.Body.Components["engine"])
	})

	t.Run("ready", func(t *testing.T) {
		h := NewHealthHandler("1.0.0").WithDB(setupDB(t)).WithEngine(fakeEngine{})
		out, err := h.GetReadyz(context.Background(), &ReadyzInput{})
		require.NoError(t, err)
		assert.Equal(t, "ready", out.Body.Status)
	})

	t.Run("open circuit is not ready", func(t *testing.T) {
		h := NewHealthHandler("1.0.0").WithDB(setupDB(t)).WithEngine(fakeEngine{state: httpclient.CircuitOpen})
		out, err := h.GetReadyz(context.Background(), &ReadyzInput{})
		require.NoError(t, err)
		assert.Equal(t, "not_ready", out.Body.Status)
		assert.Equal(t, "degraded", out.Body.Components["engine"])
	})
}

func TestHealthHandler_GetHealth(t *testing.T) {
	next := time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC)
	h := NewHealthHandler("1.0.0").
		WithDB(setupDB(t)).
		WithEngine(fakeEngine{state: httpclient.CircuitHalfOpen}).
		WithWatch(fakeWatch{next: next})

	out, err := h.GetHealth(context.Background(), &HealthInput{})
	require.NoError(t, err)

	body := out.Body
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "1.0.0", body.Version)
	assert.NotEmpty(t, body.Uptime)
	assert.NotZero(t, body.CPUInfo.Cores)
	assert.Positive(t, body.Memory.Goroutines)
	assert.Equal(t, "ok", body.Components.Database.Status)
	assert.Equal(t, 1, body.Components.Database.ConnectionPoolSize)
	assert.Equal(t, "half-open", body.Components.Engine.CircuitState)
	assert.Equal(t, "http://engine:65445", body.Components.Engine.BaseURL)
	require.NotNil(t, body.Components.Watch)
	require.NotNil(t, body.Components.Watch.NextRun)
	assert.Equal(t, next, *body.Components.Watch.NextRun)
	assert.Equal(t, map[string]string{"database": "ok", "engine": "ok"}, body.Checks)
}

func TestHealthHandler_GetHealth_CircuitDisabled(t *testing.T) {
	h := NewHealthHandler("1.0.0").WithDB(setupDB(t)).WithEngine(fakeEngine{disabled: true})

	out, err := h.GetHealth(context.Background(), &HealthInput{})
	require.NoError(t, err)
	assert.Equal(t, "healthy", out.Body.Status)
	assert.Equal(t, "ok", out.Body.Components.Engine.Status)
	assert.Equal(t, "disabled", out.Body.Components.Engine.CircuitState)
}

func TestHealthHandler_GetHealth_Degraded(t *testing.T) {
	h := NewHealthHandler("1.0.0").WithEngine(fakeEngine{state: httpclient.CircuitOpen}).WithWatch(fakeWatch{})

	out, err := h.GetHealth(context.Background(), &HealthInput{})
	require.NoError(t, err)
	assert.Equal(t, "degraded", out.Body.Status)
	assert.Equal(t, "not_configured", out.Body.Components.Database.Status)
	require.NotNil(t, out.Body.Components.Watch)
	assert.Nil(t, out.Body.Components.Watch.NextRun)
}

func seedRuns(t *testing.T, runs repository.RunRepository, n int) []*models.Run {
	t.Helper()
	ctx := context.Background()
	start := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	var created []*models.Run
	for i := range n {
		run := &models.Run{
			WorkflowID: "wf-1",
			Trigger:    models.RunTriggerLaunch,
			Status:     models.RunStatusRunning,
			StartedAt:  start.Add(time.Duration(i) * time.Minute),
			Total:      1,
		}
		require.NoError(t, runs.Create(ctx, run))
		created = append(created, run)
	}
	return created
}

func TestRunHandler_List(t *testing.T) {
	runs := repository.NewRunRepository(setupDB(t))
	seedRuns(t, runs, 3)
	h := NewRunHandler(runs)

	out, err := h.List(context.Background(), &ListRunsInput{Offset: 0, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, out.Body.Runs, 2)
	assert.Equal(t, PaginationMeta{CurrentPage: 1, PageSize: 2, TotalItems: 3, TotalPages: 2}, out.Body.Pagination)

	out, err = h.List(context.Background(), &ListRunsInput{Offset: 2, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, out.Body.Runs, 1)
	assert.Equal(t, 2, out.Body.Pagination.CurrentPage)
}

func TestRunHandler_GetByID(t *testing.T) {
	runs := repository.NewRunRepository(setupDB(t))
	run := seedRuns(t, runs, 1)[0]

	completed := run.StartedAt.Add(time.Minute)
	run.Status = models.RunStatusSucceeded
	run.CompletedAt = &completed
	run.Succeeded = 1
	require.NoError(t, runs.Complete(context.Background(), run, []models.OutcomeRecord{{
		ItemIndex:  0,
		WorkflowID: "wf-1",
		InputRef:   "/media/a.mov",
		JobID:      "job-1",
		Status:     models.OutcomeSucceeded,
		Result:     "/out/a.mxf",
		LaunchedAt: run.StartedAt,
	}}))

	h := NewRunHandler(runs)

	out, err := h.GetByID(context.Background(), &GetRunInput{ID: run.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusSucceeded, out.Body.Status)
	require.Len(t, out.Body.Outcomes, 1)
	assert.Equal(t, "/media/a.mov", out.Body.Outcomes[0].Input)
	assert.Equal(t, "/out/a.mxf", out.Body.Outcomes[0].Result)

	_, err = h.GetByID(context.Background(), &GetRunInput{ID: "not-a-ulid"})
	assert.Equal(t, http.StatusBadRequest, statusOf(t, err))

	_, err = h.GetByID(context.Background(), &GetRunInput{ID: models.NewULID().String()})
	assert.Equal(t, http.StatusNotFound, statusOf(t, err))
}

func TestRunHandler_RepositoryErrors(t *testing.T) {
	h := NewRunHandler(failingRuns{})

	_, err := h.List(context.Background(), &ListRunsInput{Limit: 10})
	assert.Equal(t, http.StatusInternalServerError, statusOf(t, err))

	_, err = h.GetByID(context.Background(), &GetRunInput{ID: models.NewULID().String()})
	assert.Equal(t, http.StatusInternalServerError, statusOf(t, err))
}
