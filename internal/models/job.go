package models

import (
	"slices"
	"strings"
	"time"
)

// Variable is a named string value attached to a job. Variables are used both
// as job input parameters and by the engine to report computed outputs.
type Variable struct {
	Name string `json:"name"`
	Data string `json:"data"`
}

// ParseVariable parses a "NAME=DATA" pair. DATA may be empty and may itself
// contain '=' characters.
func ParseVariable(s string) (Variable, error) {
	name, data, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !ok {
		return Variable{}, &ValidationError{Field: "variable", Message: "expected NAME=DATA, got " + s}
	}
	if name == "" {
		return Variable{}, ErrVariableNameRequired
	}
	return Variable{Name: name, Data: data}, nil
}

// JobRequest describes one job to submit. Variable order is preserved on the
// wire; names may repeat and the engine keeps the last one.
type JobRequest struct {
	WorkflowID string     `json:"wf_id"`
	InputRef   string     `json:"input"`
	StartProc  string     `json:"start_proc,omitempty"`
	Priority   string     `json:"priority,omitempty"`
	Variables  []Variable `json:"variables,omitempty"`
}

// Validate checks the required fields of the request.
func (r JobRequest) Validate() error {
	if strings.TrimSpace(r.WorkflowID) == "" {
		return ErrWorkflowIDRequired
	}
	if strings.TrimSpace(r.InputRef) == "" {
		return ErrInputRequired
	}
	for _, v := range r.Variables {
		if v.Name == "" {
			return ErrVariableNameRequired
		}
	}
	return nil
}

// WithPrependedVariables returns a copy of the request whose variable list
// starts with vars followed by the request's own variables. The receiver is
// left untouched.
func (r JobRequest) WithPrependedVariables(vars []Variable) JobRequest {
	out := r
	out.Variables = make([]Variable, 0, len(vars)+len(r.Variables))
	out.Variables = append(out.Variables, vars...)
	out.Variables = append(out.Variables, r.Variables...)
	return out
}

// WithAppendedVariables returns a copy of the request with vars added after
// the existing variables.
func (r JobRequest) WithAppendedVariables(vars []Variable) JobRequest {
	out := r
	out.Variables = append(slices.Clone(r.Variables), vars...)
	return out
}

// JobHandle identifies a job the engine accepted.
type JobHandle struct {
	JobID       string    `json:"job_id"`
	InputRef    string    `json:"input"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// OutcomeStatus is the terminal status of one input item.
type OutcomeStatus string

const (
	// OutcomeSucceeded means the job finished and its output variable was extracted.
	OutcomeSucceeded OutcomeStatus = "succeeded"
	// OutcomeFailed means the engine reported failure, the output variable was
	// missing, polling failed too often, or the item panicked.
	OutcomeFailed OutcomeStatus = "failed"
	// OutcomeTimedOut means the wall-clock poll budget ran out while the job was still running.
	OutcomeTimedOut OutcomeStatus = "timed_out"
	// OutcomeSubmissionFailed means the job was never accepted by the engine.
	OutcomeSubmissionFailed OutcomeStatus = "submission_failed"
)

// JobOutcome is the single terminal record produced for one input item.
type JobOutcome struct {
	Index         int           `json:"index"`
	InputRef      string        `json:"input"`
	CorrelationID string        `json:"correlation_id,omitempty"`
	Handle        *JobHandle    `json:"handle,omitempty"`
	Status        OutcomeStatus `json:"status"`
	// Result holds the extracted output variable; set only when Status is succeeded.
	Result string `json:"result,omitempty"`
	// LastEngineStatus is the last status string the engine reported, if any.
	LastEngineStatus string    `json:"last_engine_status,omitempty"`
	Message          string    `json:"message,omitempty"`
	LaunchedAt       time.Time `json:"launched_at"`
	// CompletedAt is zero when the completion time is unknown.
	CompletedAt time.Time `json:"completed_at"`
}

// Succeeded reports whether the outcome is a success.
func (o JobOutcome) Succeeded() bool {
	return o.Status == OutcomeSucceeded
}

// JobID returns the engine job id, or "" if the job was never submitted.
func (o JobOutcome) JobID() string {
	if o.Handle == nil {
		return ""
	}
	return o.Handle.JobID
}

// Duration returns completion minus launch time. An unknown completion time
// is replaced by now.
func (o JobOutcome) Duration(now time.Time) time.Duration {
	end := o.CompletedAt
	if end.IsZero() {
		end = now
	}
	if o.LaunchedAt.IsZero() || end.Before(o.LaunchedAt) {
		return 0
	}
	return end.Sub(o.LaunchedAt)
}
