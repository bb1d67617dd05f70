package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"

	"github.com/jmylchreest/jobctl/internal/models"
)

// Job detail statuses reported by GET /getjobdetails.
const (
	StatusFinished = "finished"
	StatusErrored  = "error"
	StatusFailed   = "failed"
)

// Priority is passed through to the engine opaquely. Numeric values are
// encoded as JSON numbers and anything else as a JSON string.
type Priority string

// MarshalJSON implements json.Marshaler.
func (p Priority) MarshalJSON() ([]byte, error) {
	s := strings.TrimSpace(string(p))
	if isJSONNumber(s) {
		return []byte(s), nil
	}
	return json.Marshal(string(p))
}

func isJSONNumber(s string) bool {
	if s == "" {
		return false
	}
	if c := s[0]; c != '-' && (c < '0' || c > '9') {
		return false
	}
	return json.Valid([]byte(s))
}

// SubmitRequest is the body of POST /jobs.
type SubmitRequest struct {
	WorkflowID string            `json:"wf_id"`
	InputFile  string            `json:"inputfile"`
	StartProc  string            `json:"start_proc"`
	Priority   Priority          `json:"priority,omitempty"`
	Variables  []models.Variable `json:"variables"`
}

// NewSubmitRequest converts a job request to its wire form.
func NewSubmitRequest(req models.JobRequest) SubmitRequest {
	vars := req.Variables
	if vars == nil {
		vars = []models.Variable{}
	}
	return SubmitRequest{
		WorkflowID: req.WorkflowID,
		InputFile:  req.InputRef,
		StartProc:  req.StartProc,
		Priority:   Priority(req.Priority),
		Variables:  vars,
	}
}

// Scalar decodes a JSON string, number or boolean into its textual form.
// The engine is not consistent about quoting ids and states.
type Scalar string

// UnmarshalJSON implements json.Unmarshaler.
func (s *Scalar) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*s = ""
	case len(data) > 0 && data[0] == '"':
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = Scalar(str)
	case len(data) > 0 && (data[0] == '{' || data[0] == '['):
		return fmt.Errorf("expected scalar, got %s", truncate(string(data), 32))
	default:
		*s = Scalar(data)
	}
	return nil
}

// String returns the textual value.
func (s Scalar) String() string {
	return string(s)
}

// HistoryEntry is one finished job in the GET /jobs history.
type HistoryEntry struct {
	JobID   Scalar          `json:"job_id"`
	State   *Scalar         `json:"state"`
	Result  json.RawMessage `json:"result"`
	EndTime string          `json:"end_time"`
}

// ResultString returns the result field as text. String results are
// unquoted; anything else is returned as raw JSON.
func (e HistoryEntry) ResultString() string {
	r := gjson.ParseBytes(e.Result)
	if r.Type == gjson.String {
		return r.Str
	}
	return r.Raw
}

// HistoryResponse is the body of GET /jobs?jobid=.
type HistoryResponse struct {
	History []HistoryEntry `json:"history"`
}

// Find returns the entry for jobID that carries a state. A job without such
// an entry has not finished yet.
func (h *HistoryResponse) Find(jobID string) (HistoryEntry, bool) {
	for _, entry := range h.History {
		if entry.JobID.String() == jobID && entry.State != nil {
			return entry, true
		}
	}
	return HistoryEntry{}, false
}

// Ticket is one running job in GET /tickets.
type Ticket struct {
	JobID     Scalar            `json:"job_id"`
	Variables []models.Variable `json:"variables"`
}

// TicketsResponse is the body of GET /tickets.
type TicketsResponse struct {
	Tickets struct {
		Running []Ticket `json:"running"`
	} `json:"tickets"`
}

// JobDetails is the body of GET /getjobdetails. The workflow object is kept
// raw and queried on demand.
type JobDetails struct {
	Status string
	raw    []byte
}

func parseJobDetails(body []byte) (*JobDetails, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("decoding engine response: invalid JSON")
	}
	return &JobDetails{
		Status: gjson.GetBytes(body, "status").String(),
		raw:    body,
	}, nil
}

// IsFinished reports a successful terminal status.
func (d *JobDetails) IsFinished() bool {
	return strings.EqualFold(d.Status, StatusFinished)
}

// IsFailed reports an explicit failure status.
func (d *JobDetails) IsFailed() bool {
	return strings.EqualFold(d.Status, StatusErrored) || strings.EqualFold(d.Status, StatusFailed)
}

// OutputVariable scans wf_object.nodes[].properties.variables[] and returns
// the data of the first variable called name.
func (d *JobDetails) OutputVariable(name string) (string, bool) {
	var (
		value string
		found bool
	)
	gjson.GetBytes(d.raw, "wf_object.nodes").ForEach(func(_, node gjson.Result) bool {
		node.Get("properties.variables").ForEach(func(_, v gjson.Result) bool {
			if v.Get("name").String() != name {
				return true
			}
			data := v.Get("data")
			if data.Type == gjson.String {
				value = data.Str
			} else {
				value = data.Raw
			}
			found = true
			return false
		})
		return !found
	})
	return value, found
}

var submitResponseSchema = jsonschema.MustCompileString("submit-response.json", `{
	"type": "object",
	"required": ["job_id"],
	"properties": {
		"job_id": {"type": ["string", "integer"], "minLength": 1}
	}
}`)

func parseSubmitResponse(body []byte) (string, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("%w: decoding response: %v", ErrNoJobID, err)
	}
	if err := submitResponseSchema.Validate(doc); err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoJobID, err)
	}
	return gjson.GetBytes(body, "job_id").String(), nil
}
