// Package handlers provides the status API handlers.
package handlers

import (
	"time"

	"github.com/jmylchreest/jobctl/internal/models"
)

// PaginationMeta contains pagination metadata in responses.
type PaginationMeta struct {
	CurrentPage int   `json:"current_page"`
	PageSize    int   `json:"page_size"`
	TotalItems  int64 `json:"total_items"`
	TotalPages  int64 `json:"total_pages"`
}

func paginationMeta(offset, limit int, total int64) PaginationMeta {
	totalPages := total / int64(limit)
	if total%int64(limit) > 0 {
		totalPages++
	}
	return PaginationMeta{
		CurrentPage: (offset / limit) + 1,
		PageSize:    limit,
		TotalItems:  total,
		TotalPages:  totalPages,
	}
}

// Health types

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status        string            `json:"status" enum:"healthy,degraded"`
	Timestamp     string            `json:"timestamp"`
	Version       string            `json:"version"`
	Uptime        string            `json:"uptime"`
	UptimeSeconds float64           `json:"uptime_seconds"`
	CPUInfo       CPUInfo           `json:"cpu_info"`
	Memory        MemoryInfo        `json:"memory"`
	Components    HealthComponents  `json:"components"`
	Checks        map[string]string `json:"checks,omitempty"`
}

// CPUInfo holds load averages.
type CPUInfo struct {
	Cores              int     `json:"cores"`
	Load1Min           float64 `json:"load_1min"`
	Load5Min           float64 `json:"load_5min"`
	Load15Min          float64 `json:"load_15min"`
	LoadPercentage1Min float64 `json:"load_percentage_1min"`
}

// MemoryInfo holds system and process memory usage.
type MemoryInfo struct {
	TotalMemoryMB     float64 `json:"total_memory_mb"`
	UsedMemoryMB      float64 `json:"used_memory_mb"`
	AvailableMemoryMB float64 `json:"available_memory_mb"`
	ProcessMemoryMB   float64 `json:"process_memory_mb"`
	ProcessPercentage float64 `json:"process_percentage"`
	Goroutines        int     `json:"goroutines"`
}

// HealthComponents reports the dependencies of the service.
type HealthComponents struct {
	Database DatabaseHealth `json:"database"`
	Engine   EngineHealth   `json:"engine"`
	Watch    *WatchHealth   `json:"watch,omitempty"`
}

// DatabaseHealth reports the run history database.
type DatabaseHealth struct {
	Status                 string  `json:"status" enum:"ok,error,not_configured"`
	ResponseTimeMS         float64 `json:"response_time_ms"`
	ConnectionPoolSize     int     `json:"connection_pool_size"`
	ActiveConnections      int     `json:"active_connections"`
	IdleConnections        int     `json:"idle_connections"`
	PoolUtilizationPercent float64 `json:"pool_utilization_percent"`
}

// EngineHealth reports the workflow engine client.
type EngineHealth struct {
	Status       string `json:"status" enum:"ok,degraded,not_configured"`
	BaseURL      string `json:"base_url,omitempty"`
	CircuitState string `json:"circuit_state,omitempty" enum:"disabled,closed,open,half-open"`
}

// WatchHealth reports the watch schedule.
type WatchHealth struct {
	NextRun *time.Time `json:"next_run,omitempty"`
}

// LivezResponse is the liveness probe response.
type LivezResponse struct {
	Status string `json:"status"`
}

// ReadyzResponse is the readiness probe response.
type ReadyzResponse struct {
	Status     string            `json:"status" enum:"ready,not_ready"`
	Components map[string]string `json:"components"`
}

// Run types

// RunResponse represents a run in API responses.
type RunResponse struct {
	ID          models.ULID       `json:"id"`
	WorkflowID  string            `json:"workflow_id"`
	EngineURL   string            `json:"engine_url,omitempty"`
	Trigger     models.RunTrigger `json:"trigger"`
	Status      models.RunStatus  `json:"status"`
	StartedAt   time.Time         `json:"started_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	Total       int               `json:"total"`
	Succeeded   int               `json:"succeeded"`
	Failed      int               `json:"failed"`
	ReportPath  string            `json:"report_path,omitempty"`
	Outcomes    []OutcomeResponse `json:"outcomes,omitempty"`
}

// RunFromModel converts a model to a response. Outcomes are included when
// they were loaded.
func RunFromModel(r *models.Run) RunResponse {
	resp := RunResponse{
		ID:          r.ID,
		WorkflowID:  r.WorkflowID,
		EngineURL:   r.EngineURL,
		Trigger:     r.Trigger,
		Status:      r.Status,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		Total:       r.Total,
		Succeeded:   r.Succeeded,
		Failed:      r.Failed,
		ReportPath:  r.ReportPath,
	}
	if len(r.Outcomes) > 0 {
		resp.Outcomes = make([]OutcomeResponse, 0, len(r.Outcomes))
		for i := range r.Outcomes {
			resp.Outcomes = append(resp.Outcomes, OutcomeFromModel(&r.Outcomes[i]))
		}
	}
	return resp
}

// OutcomeResponse is one item of a run.
type OutcomeResponse struct {
	Index         int                  `json:"index"`
	Input         string               `json:"input"`
	JobID         string               `json:"job_id,omitempty"`
	CorrelationID string               `json:"correlation_id,omitempty"`
	Status        models.OutcomeStatus `json:"status"`
	Result        string               `json:"result,omitempty"`
	EngineStatus  string               `json:"engine_status,omitempty"`
	Message       string               `json:"message,omitempty"`
	LaunchedAt    time.Time            `json:"launched_at"`
	CompletedAt   *time.Time           `json:"completed_at,omitempty"`
	DurationMs    int64                `json:"duration_ms"`
}

// OutcomeFromModel converts a model to a response.
func OutcomeFromModel(o *models.OutcomeRecord) OutcomeResponse {
	return OutcomeResponse{
		Index:         o.ItemIndex,
		Input:         o.InputRef,
		JobID:         o.JobID,
		CorrelationID: o.CorrelationID,
		Status:        o.Status,
		Result:        o.Result,
		EngineStatus:  o.EngineStatus,
		Message:       o.Message,
		LaunchedAt:    o.LaunchedAt,
		CompletedAt:   o.CompletedAt,
		DurationMs:    o.DurationMs,
	}
}
