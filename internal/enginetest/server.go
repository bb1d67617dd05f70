// Package enginetest provides a scriptable in-process workflow engine for
// tests. Each submitted job follows a Script: a sequence of Steps served one
// per status request, repeating the last step once the sequence runs out.
package enginetest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/jmylchreest/jobctl/internal/models"
)

// Step is one scripted answer to a status request.
type Step struct {
	// HTTPStatus, when non-zero, makes the request fail with this code.
	HTTPStatus int

	// Status is returned by /getjobdetails ("running", "finished", "error").
	Status string

	// Variables are placed in the workflow object returned by /getjobdetails.
	Variables []models.Variable

	// State, when non-empty, makes /jobs?jobid= report the job as finished
	// with this state. Numeric states are encoded as JSON numbers.
	State string

	// Result and EndTime are returned with a finished history entry.
	Result  string
	EndTime string
}

// Running is a step reporting a job still in progress.
func Running() Step {
	return Step{Status: "running"}
}

// Finished is a details step reporting success with the given output variable.
func Finished(name, data string) Step {
	return Step{Status: "finished", Variables: []models.Variable{{Name: name, Data: data}}}
}

// Failed is a details step reporting an engine error.
func Failed() Step {
	return Step{Status: "error"}
}

// HTTPError is a step answering with the given status code.
func HTTPError(code int) Step {
	return Step{HTTPStatus: code}
}

// Script controls how the engine treats one input.
type Script struct {
	// SubmitStatus, when non-zero, makes submission fail with this code.
	SubmitStatus int

	// NoJobID makes submission succeed without returning a job id.
	NoJobID bool

	Steps []Step
}

// Submission is a recorded POST /jobs body.
type Submission struct {
	WorkflowID string            `json:"wf_id"`
	InputFile  string            `json:"inputfile"`
	StartProc  string            `json:"start_proc"`
	Priority   any               `json:"priority"`
	Variables  []models.Variable `json:"variables"`
	JobID      string            `json:"-"`
}

type job struct {
	id     string
	input  string
	script Script
	polls  int
}

// Server is a fake engine backed by httptest.
type Server struct {
	*httptest.Server

	mu             sync.Mutex
	defaultScript  Script
	scripts        map[string]Script
	jobs           map[string]*job
	submissions    []Submission
	tickets        []ticket
	ticketsStatus  int
	nextID         int
	statusRequests int
}

type ticket struct {
	JobID     string            `json:"job_id"`
	Variables []models.Variable `json:"variables"`
}

// NewServer starts a fake engine. The default script finishes every job
// immediately without output variables. Call Close when done.
func NewServer() *Server {
	s := &Server{
		defaultScript: Script{Steps: []Step{{Status: "finished", State: "1"}}},
		scripts:       make(map[string]Script),
		jobs:          make(map[string]*job),
	}

	r := chi.NewRouter()
	r.Post("/jobs", s.handleSubmit)
	r.Get("/jobs", s.handleHistory)
	r.Get("/tickets", s.handleTickets)
	r.Get("/getjobdetails", s.handleDetails)

	s.Server = httptest.NewServer(r)
	return s
}

// SetDefaultScript sets the script used for inputs without their own.
func (s *Server) SetDefaultScript(script Script) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaultScript = script
}

// SetScript sets the script for one input file.
func (s *Server) SetScript(input string, script Script) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[input] = script
}

// AddRunningTicket registers a running job visible through /tickets.
func (s *Server) AddRunningTicket(jobID string, vars ...models.Variable) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets = append(s.tickets, ticket{JobID: jobID, Variables: vars})
}

// SetTicketsStatus makes /tickets fail with the given code. Zero restores it.
func (s *Server) SetTicketsStatus(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticketsStatus = code
}

// Submissions returns every accepted or rejected submission in arrival order.
func (s *Server) Submissions() []Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Submission, len(s.submissions))
	copy(out, s.submissions)
	return out
}

// Polls returns how many status requests were made for jobID.
func (s *Server) Polls(jobID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[jobID]; ok {
		return j.polls
	}
	return 0
}

// StatusRequests returns how many status requests were made for any job id,
// including ids the engine never issued.
func (s *Server) StatusRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusRequests
}

// JobIDFor returns the job id assigned to input, if any.
func (s *Server) JobIDFor(input string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.input == input {
			return j.id, true
		}
	}
	return "", false
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var sub Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	script, ok := s.scripts[sub.InputFile]
	if !ok {
		script = s.defaultScript
	}

	if script.SubmitStatus != 0 {
		s.submissions = append(s.submissions, sub)
		s.mu.Unlock()
		http.Error(w, "submission rejected", script.SubmitStatus)
		return
	}
	if script.NoJobID {
		s.submissions = append(s.submissions, sub)
		s.mu.Unlock()
		writeJSON(w, map[string]any{"status": "queued"})
		return
	}

	s.nextID++
	id := fmt.Sprintf("job-%04d", s.nextID)
	sub.JobID = id
	s.submissions = append(s.submissions, sub)
	s.jobs[id] = &job{id: id, input: sub.InputFile, script: script}
	s.mu.Unlock()

	writeJSON(w, map[string]string{"job_id": id})
}

// step advances the job's script and returns the step to serve.
func (s *Server) step(jobID string) (Step, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.statusRequests++
	j, ok := s.jobs[jobID]
	if !ok {
		return Step{}, false
	}
	steps := j.script.Steps
	j.polls++
	if len(steps) == 0 {
		return Step{Status: "running"}, true
	}
	idx := j.polls - 1
	if idx >= len(steps) {
		idx = len(steps) - 1
	}
	return steps[idx], true
}

func (s *Server) handleDetails(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("jobid")
	st, ok := s.step(jobID)
	if !ok {
		http.Error(w, "unknown job", http.StatusNotFound)
		return
	}
	if st.HTTPStatus != 0 {
		http.Error(w, "scripted failure", st.HTTPStatus)
		return
	}

	vars := st.Variables
	if vars == nil {
		vars = []models.Variable{}
	}
	writeJSON(w, map[string]any{
		"job_id": jobID,
		"status": st.Status,
		"wf_object": map[string]any{
			"nodes": []any{
				map[string]any{"properties": map[string]any{"variables": []models.Variable{}}},
				map[string]any{"properties": map[string]any{"variables": vars}},
			},
		},
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("jobid")
	st, ok := s.step(jobID)
	if !ok {
		writeJSON(w, map[string]any{"history": []any{}})
		return
	}
	if st.HTTPStatus != 0 {
		http.Error(w, "scripted failure", st.HTTPStatus)
		return
	}
	if st.State == "" {
		writeJSON(w, map[string]any{"history": []any{}})
		return
	}

	var state any = st.State
	if n, err := strconv.Atoi(st.State); err == nil {
		state = n
	}
	writeJSON(w, map[string]any{
		"history": []any{
			map[string]any{"job_id": "other", "state": 1},
			map[string]any{
				"job_id":   jobID,
				"state":    state,
				"result":   st.Result,
				"end_time": st.EndTime,
			},
		},
	})
}

func (s *Server) handleTickets(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	code := s.ticketsStatus
	running := make([]ticket, len(s.tickets))
	copy(running, s.tickets)
	s.mu.Unlock()

	if code != 0 {
		http.Error(w, "scripted failure", code)
		return
	}
	writeJSON(w, map[string]any{"tickets": map[string]any{"running": running}})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
