package models

import "time"

// RunStatus represents the status of a launch run.
type RunStatus string

const (
	// RunStatusRunning indicates items are still being processed.
	RunStatusRunning RunStatus = "running"
	// RunStatusSucceeded indicates every item succeeded.
	RunStatusSucceeded RunStatus = "succeeded"
	// RunStatusFailed indicates at least one item did not succeed.
	RunStatusFailed RunStatus = "failed"
)

// RunTrigger identifies what started a run.
type RunTrigger string

const (
	// RunTriggerLaunch is a run started from the launch command.
	RunTriggerLaunch RunTrigger = "launch"
	// RunTriggerWatch is a run started by the watch schedule.
	RunTriggerWatch RunTrigger = "watch"
)

// Run is one invocation of the coordinator over a list of input items.
type Run struct {
	BaseModel

	// WorkflowID is the engine workflow every item of the run was submitted to.
	WorkflowID string `gorm:"not null;size:255;index" json:"workflow_id"`

	// EngineURL is the base URL of the engine the run talked to.
	EngineURL string `gorm:"size:1024" json:"engine_url"`

	Trigger RunTrigger `gorm:"not null;size:20" json:"trigger"`
	Status  RunStatus  `gorm:"not null;default:'running';size:20;index" json:"status"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`

	// ReportPath is the report artifact written for the run, if any.
	ReportPath string `gorm:"size:2048" json:"report_path,omitempty"`

	Outcomes []OutcomeRecord `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE" json:"outcomes,omitempty"`
}

// TableName returns the table name for Run.
func (Run) TableName() string {
	return "runs"
}

// IsFinished returns true once the run has a verdict.
func (r *Run) IsFinished() bool {
	return r.Status == RunStatusSucceeded || r.Status == RunStatusFailed
}

// OutcomeRecord is the persisted form of a JobOutcome.
type OutcomeRecord struct {
	BaseModel

	RunID         ULID          `gorm:"type:varchar(26);not null;index" json:"run_id"`
	ItemIndex     int           `json:"item_index"`
	WorkflowID    string        `gorm:"not null;size:255;index:idx_outcome_workflow_input" json:"workflow_id"`
	InputRef      string        `gorm:"not null;size:2048;index:idx_outcome_workflow_input" json:"input"`
	JobID         string        `gorm:"size:255;index" json:"job_id,omitempty"`
	CorrelationID string        `gorm:"size:64" json:"correlation_id,omitempty"`
	Status        OutcomeStatus `gorm:"not null;size:32;index" json:"status"`
	Result        string        `gorm:"type:text" json:"result,omitempty"`
	EngineStatus  string        `gorm:"size:64" json:"engine_status,omitempty"`
	Message       string        `gorm:"size:4096" json:"message,omitempty"`
	LaunchedAt    time.Time     `json:"launched_at"`
	CompletedAt   *time.Time    `json:"completed_at,omitempty"`
	DurationMs    int64         `json:"duration_ms"`
}

// TableName returns the table name for OutcomeRecord.
func (OutcomeRecord) TableName() string {
	return "job_outcomes"
}

// NewOutcomeRecord converts an outcome into its persisted form. now is used
// for the duration when the completion time is unknown.
func NewOutcomeRecord(workflowID string, o JobOutcome, now time.Time) OutcomeRecord {
	rec := OutcomeRecord{
		ItemIndex:     o.Index,
		WorkflowID:    workflowID,
		InputRef:      o.InputRef,
		JobID:         o.JobID(),
		CorrelationID: o.CorrelationID,
		Status:        o.Status,
		Result:        o.Result,
		EngineStatus:  o.LastEngineStatus,
		Message:       o.Message,
		LaunchedAt:    o.LaunchedAt,
		DurationMs:    o.Duration(now).Milliseconds(),
	}
	if !o.CompletedAt.IsZero() {
		completed := o.CompletedAt
		rec.CompletedAt = &completed
	}
	return rec
}
