package handlers

import (
	"context"
	"fmt"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/jobctl/internal/models"
)

// RunReader reads run history.
type RunReader interface {
	GetByID(ctx context.Context, id models.ULID) (*models.Run, error)
	List(ctx context.Context, offset, limit int) ([]*models.Run, int64, error)
}

// RunHandler handles run history endpoints.
type RunHandler struct {
	runs RunReader
}

// NewRunHandler creates a new run handler.
func NewRunHandler(runs RunReader) *RunHandler {
	return &RunHandler{runs: runs}
}

// Register registers the run routes with the API.
func (h *RunHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listRuns",
		Method:      "GET",
		Path:        "/api/v1/runs",
		Summary:     "List runs",
		Description: "Returns launch runs newest first, without their outcomes",
		Tags:        []string{"Runs"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID: "getRun",
		Method:      "GET",
		Path:        "/api/v1/runs/{id}",
		Summary:     "Get run",
		Description: "Returns a run with one outcome per input item",
		Tags:        []string{"Runs"},
	}, h.GetByID)
}

// ListRunsInput is the input for listing runs.
type ListRunsInput struct {
	Offset int `query:"offset" default:"0" minimum:"0" doc:"Offset for pagination"`
	Limit  int `query:"limit" default:"50" minimum:"1" maximum:"1000" doc:"Limit for pagination"`
}

// ListRunsOutput is the output for listing runs.
type ListRunsOutput struct {
	Body struct {
		Runs       []RunResponse  `json:"runs"`
		Pagination PaginationMeta `json:"pagination"`
	}
}

// List returns a page of runs.
func (h *RunHandler) List(ctx context.Context, input *ListRunsInput) (*ListRunsOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 50
	}

	runs, total, err := h.runs.List(ctx, input.Offset, limit)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list runs", err)
	}

	resp := &ListRunsOutput{}
	resp.Body.Runs = make([]RunResponse, 0, len(runs))
	for _, r := range runs {
		resp.Body.Runs = append(resp.Body.Runs, RunFromModel(r))
	}
	resp.Body.Pagination = paginationMeta(input.Offset, limit, total)

	return resp, nil
}

// GetRunInput is the input for getting a run.
type GetRunInput struct {
	ID string `path:"id" doc:"Run ID (ULID)"`
}

// GetRunOutput is the output for getting a run.
type GetRunOutput struct {
	Body RunResponse
}

// GetByID returns a run by ID.
func (h *RunHandler) GetByID(ctx context.Context, input *GetRunInput) (*GetRunOutput, error) {
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid ID format", err)
	}

	run, err := h.runs.GetByID(ctx, id)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to get run", err)
	}
	if run == nil {
		return nil, huma.Error404NotFound(fmt.Sprintf("run %s not found", input.ID))
	}

	return &GetRunOutput{Body: RunFromModel(run)}, nil
}
