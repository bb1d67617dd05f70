// Package engine talks to the workflow engine's JSON REST API.
//
// Every transport problem (connection error, timeout, exhausted retries or a
// non-2xx response) is reported as an error wrapping ErrUnreachable, so that
// callers can tell "could not ask" apart from the application-level statuses
// the engine returns in response bodies.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/jmylchreest/jobctl/internal/config"
	"github.com/jmylchreest/jobctl/internal/version"
	"github.com/jmylchreest/jobctl/pkg/httpclient"
)

// Engine API paths relative to the base URL.
const (
	PathJobs       = "/jobs"
	PathTickets    = "/tickets"
	PathJobDetails = "/getjobdetails"
)

// DefaultMaxResponseSize bounds how much of a response body is read.
const DefaultMaxResponseSize = 32 << 20

var (
	// ErrUnreachable is wrapped by every transport-level failure.
	ErrUnreachable = errors.New("engine unreachable")

	// ErrNoJobID is returned when a submission response carries no job id.
	ErrNoJobID = errors.New("engine returned no job id")
)

// StatusError describes a non-2xx response. It unwraps to ErrUnreachable.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Unwrap lets errors.Is match ErrUnreachable.
func (e *StatusError) Unwrap() error {
	return ErrUnreachable
}

// Response is a fully read engine response.
type Response struct {
	StatusCode int
	Body       []byte
}

// Decode unmarshals the response body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decoding engine response: %w", err)
	}
	return nil
}

// Client issues requests against one engine base URL. It is safe for
// concurrent use. The underlying HTTP client shares only its connection pool
// between calls unless a circuit breaker was configured.
type Client struct {
	baseURL string
	http    *httpclient.Client
	logger  *slog.Logger
}

// NewClient creates a client for baseURL using the given resilient HTTP client.
func NewClient(baseURL string, httpClient *httpclient.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if httpClient == nil {
		httpClient = httpclient.New(defaultHTTPConfig())
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		logger:  logger,
	}
}

// NewClientFromConfig builds the HTTP client stack from engine configuration.
func NewClientFromConfig(cfg config.EngineConfig, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	codes, err := httpclient.ParseStatusCodes(cfg.RetryStatusCodes)
	if err != nil {
		return nil, fmt.Errorf("parsing retry status codes: %w", err)
	}

	hc := defaultHTTPConfig()
	hc.Timeout = cfg.Timeout
	hc.Retry = httpclient.RetryPolicy{
		Attempts: cfg.RetryAttempts,
		Backoff: httpclient.Backoff{
			Initial:    cfg.RetryDelay,
			Max:        cfg.RetryMaxDelay,
			Multiplier: cfg.BackoffMultiplier,
		},
		StatusCodes: codes,
	}
	hc.MaxResponseSize = DefaultMaxResponseSize
	hc.Logger = logger.With(slog.String("component", "httpclient"))
	if cfg.CircuitThreshold > 0 {
		hc.Breaker = httpclient.BreakerConfig{
			Threshold: cfg.CircuitThreshold,
			Cooldown:  cfg.CircuitCooldown,
			Probes:    httpclient.DefaultCircuitHalfOpenMax,
		}
	}
	hc.UserAgent = version.UserAgent()
	if cfg.UserAgent != "" {
		hc.UserAgent = cfg.UserAgent
	}

	return NewClient(cfg.BaseURL, httpclient.New(hc), logger), nil
}

// defaultHTTPConfig is httpclient.DefaultConfig without the circuit breaker.
// A breaker shared by every in-flight job would let one job's failing status
// requests reject the submissions and polls of all the others.
func defaultHTTPConfig() httpclient.Config {
	hc := httpclient.DefaultConfig()
	hc.Breaker = httpclient.BreakerConfig{}
	return hc
}

// CircuitEnabled reports whether engine requests pass through a circuit breaker.
func (c *Client) CircuitEnabled() bool {
	return c.http.CircuitEnabled()
}

// CircuitState returns the state of the client's circuit breaker.
func (c *Client) CircuitState() httpclient.CircuitState {
	return c.http.CircuitState()
}

// BaseURL returns the engine base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Get issues a GET request for path with the given query parameters.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	resp, err := c.http.Get(ctx, target)
	if err != nil {
		return nil, c.transportError(ctx, http.MethodGet, path, err)
	}
	return c.readResponse(http.MethodGet, path, resp)
}

// Post issues a POST request with body encoded as JSON.
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding request body: %w", err)
	}

	resp, err := c.http.Post(ctx, c.baseURL+path, "application/json", payload)
	if err != nil {
		return nil, c.transportError(ctx, http.MethodPost, path, err)
	}
	return c.readResponse(http.MethodPost, path, resp)
}

func (c *Client) transportError(ctx context.Context, method, path string, err error) error {
	// Cancellation is the caller's decision, not an engine failure.
	if ctx.Err() != nil {
		return fmt.Errorf("%s %s: %w", method, path, ctx.Err())
	}
	c.logger.Debug("engine request failed",
		slog.String("method", method),
		slog.String("path", path),
		slog.String("error", err.Error()),
	)
	return fmt.Errorf("%w: %s %s: %v", ErrUnreachable, method, path, err)
}

func (c *Client) readResponse(method, path string, resp *http.Response) (*Response, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: reading body: %v", ErrUnreachable, method, path, err)
	}

	out := &Response{StatusCode: resp.StatusCode, Body: body}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return out, &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       truncate(string(body), 512),
		}
	}
	return out, nil
}

// SubmitJob posts a job and returns the engine job id.
func (c *Client) SubmitJob(ctx context.Context, req SubmitRequest) (string, error) {
	resp, err := c.Post(ctx, PathJobs, req)
	if err != nil {
		return "", err
	}
	return parseSubmitResponse(resp.Body)
}

// JobHistory fetches the finished-job history entries for jobID.
func (c *Client) JobHistory(ctx context.Context, jobID string) (*HistoryResponse, error) {
	resp, err := c.Get(ctx, PathJobs, url.Values{"jobid": {jobID}})
	if err != nil {
		return nil, err
	}
	var out HistoryResponse
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RunningTickets fetches the tickets of currently running jobs.
func (c *Client) RunningTickets(ctx context.Context) ([]Ticket, error) {
	resp, err := c.Get(ctx, PathTickets, nil)
	if err != nil {
		return nil, err
	}
	var out TicketsResponse
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	return out.Tickets.Running, nil
}

// JobDetails fetches the detailed status and workflow object of jobID.
func (c *Client) JobDetails(ctx context.Context, jobID string) (*JobDetails, error) {
	resp, err := c.Get(ctx, PathJobDetails, url.Values{"jobid": {jobID}})
	if err != nil {
		return nil, err
	}
	return parseJobDetails(resp.Body)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
