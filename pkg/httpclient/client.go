// Package httpclient is a small resilient HTTP client for talking to a single
// upstream service. Each attempt is bounded by a timeout; transport errors and
// configured status codes are retried with exponential backoff; a circuit
// breaker shared by all callers of one Client stops hammering an upstream that
// keeps failing. Compressed responses are decoded transparently.
package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

var (
	ErrCircuitOpen      = errors.New("circuit breaker is open")
	ErrMaxRetries       = errors.New("max retries exceeded")
	ErrResponseTooLarge = errors.New("response body exceeds maximum size limit")
)

const (
	DefaultTimeout            = 10 * time.Second
	DefaultRetryAttempts      = 3
	DefaultRetryDelay         = 500 * time.Millisecond
	DefaultRetryMaxDelay      = 5 * time.Second
	DefaultBackoffMultiplier  = 2.0
	DefaultRetryStatusCodes   = "500,502-504"
	DefaultCircuitThreshold   = 10
	DefaultCircuitTimeout     = 30 * time.Second
	DefaultCircuitHalfOpenMax = 1
	DefaultUserAgentHeader    = "jobctl-httpclient/1.0"
)

const (
	HeaderAcceptEncoding  = "Accept-Encoding"
	HeaderContentEncoding = "Content-Encoding"
	HeaderContentType     = "Content-Type"
	HeaderUserAgent       = "User-Agent"

	EncodingGzip    = "gzip"
	EncodingDeflate = "deflate"
	EncodingBrotli  = "br"

	acceptEncoding = "gzip, deflate, br"
)

// BreakerConfig configures the circuit breaker. A zero Threshold disables it.
type BreakerConfig struct {
	Threshold int
	Cooldown  time.Duration
	Probes    int
}

// Config holds the client configuration.
type Config struct {
	// Timeout bounds every single attempt, not the whole retry sequence.
	Timeout time.Duration
	Retry   RetryPolicy
	Breaker BreakerConfig

	UserAgent  string
	Decompress bool

	// MaxResponseSize caps the decoded body size. Zero disables the cap.
	MaxResponseSize int64

	Logger *slog.Logger

	// BaseClient replaces the default http.Client, e.g. for custom transports.
	BaseClient *http.Client
}

// DefaultConfig returns the configuration used for the workflow engine.
func DefaultConfig() Config {
	return Config{
		Timeout: DefaultTimeout,
		Retry: RetryPolicy{
			Attempts: DefaultRetryAttempts,
			Backoff: Backoff{
				Initial:    DefaultRetryDelay,
				Max:        DefaultRetryMaxDelay,
				Multiplier: DefaultBackoffMultiplier,
			},
			StatusCodes: MustParseStatusCodes(DefaultRetryStatusCodes),
		},
		Breaker: BreakerConfig{
			Threshold: DefaultCircuitThreshold,
			Cooldown:  DefaultCircuitTimeout,
			Probes:    DefaultCircuitHalfOpenMax,
		},
		UserAgent:  DefaultUserAgentHeader,
		Decompress: true,
	}
}

// Client is safe for concurrent use.
type Client struct {
	cfg     Config
	hc      *http.Client
	breaker *CircuitBreaker
	logger  *slog.Logger
}

// New creates a client. Missing logger and retry status codes are defaulted.
func New(cfg Config) *Client {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Retry.StatusCodes.IsEmpty() {
		cfg.Retry.StatusCodes = MustParseStatusCodes(DefaultRetryStatusCodes)
	}

	hc := cfg.BaseClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}

	c := &Client{cfg: cfg, hc: hc, logger: cfg.Logger}
	if cfg.Breaker.Threshold > 0 {
		c.breaker = NewCircuitBreaker(cfg.Breaker.Threshold, cfg.Breaker.Cooldown, cfg.Breaker.Probes)
	}
	return c
}

// Do sends req, retrying according to the retry policy. A request with a
// body is only retried when it can be replayed through req.GetBody, which
// http.NewRequest arranges for in-memory bodies.
//
// Non-retryable responses, including 4xx, are returned with a nil error and
// the caller owns the body.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	req = req.Clone(ctx)
	if req.Header.Get(HeaderUserAgent) == "" && c.cfg.UserAgent != "" {
		req.Header.Set(HeaderUserAgent, c.cfg.UserAgent)
	}
	if c.cfg.Decompress && req.Header.Get(HeaderAcceptEncoding) == "" {
		req.Header.Set(HeaderAcceptEncoding, acceptEncoding)
	}

	log := c.logger.With(slog.String("method", req.Method), slog.String("url", req.URL.String()))

	var lastErr error
	for attempt := 0; attempt <= c.cfg.Retry.Attempts; attempt++ {
		if attempt > 0 {
			delay := c.cfg.Retry.Backoff.Delay(attempt)
			log.Debug("retrying request", slog.Int("attempt", attempt), slog.Duration("delay", delay))
			if err := sleep(ctx, delay); err != nil {
				return nil, err
			}
			next, err := replay(req)
			if err != nil {
				return nil, err
			}
			req = next
		}

		resp, err := c.attempt(req, log.With(slog.Int("attempt", attempt)))
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %v", ErrMaxRetries, lastErr)
}

// attempt sends req once. A non-nil error means the attempt may be retried.
func (c *Client) attempt(req *http.Request, log *slog.Logger) (*http.Response, error) {
	if c.breaker != nil && !c.breaker.Allow() {
		log.Warn("circuit breaker open, skipping request")
		return nil, ErrCircuitOpen
	}

	start := time.Now()
	resp, err := c.hc.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		c.failure()
		log.Warn("request failed", slog.Duration("duration", elapsed), slog.String("error", err.Error()))
		return nil, err
	}

	if c.cfg.Retry.StatusCodes.Contains(resp.StatusCode) {
		c.failure()
		log.Warn("retryable status code", slog.Int("status", resp.StatusCode), slog.Duration("duration", elapsed))
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		return nil, fmt.Errorf("retryable status code: %d", resp.StatusCode)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		c.failure()
	} else if c.breaker != nil {
		c.breaker.Success()
	}
	log.Debug("request completed", slog.Int("status", resp.StatusCode), slog.Duration("duration", elapsed))

	if c.cfg.Decompress {
		if err := decodeBody(resp); err != nil {
			log.Warn("cannot decode response body, returning it raw", slog.String("error", err.Error()))
		}
	}
	if c.cfg.MaxResponseSize > 0 {
		capBody(resp, c.cfg.MaxResponseSize)
	}
	return resp, nil
}

func (c *Client) failure() {
	if c.breaker != nil {
		c.breaker.Failure()
	}
}

// replay returns req with a fresh body for another attempt.
func replay(req *http.Request) (*http.Request, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return req, nil
	}
	if req.GetBody == nil {
		return nil, fmt.Errorf("request body for %s %s cannot be replayed", req.Method, req.URL)
	}
	b, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("rewinding request body: %w", err)
	}
	next := *req
	next.Body = b
	return &next, nil
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	return c.Do(req)
}

// Post performs a POST request. The body is held in memory so every retry
// sends the same bytes.
func (c *Client) Post(ctx context.Context, url, contentType string, payload []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if contentType != "" {
		req.Header.Set(HeaderContentType, contentType)
	}
	return c.Do(req)
}

// CircuitEnabled reports whether requests are gated by a circuit breaker.
func (c *Client) CircuitEnabled() bool {
	return c.breaker != nil
}

// CircuitState returns the breaker state, CircuitClosed when it is disabled.
func (c *Client) CircuitState() CircuitState {
	if c.breaker == nil {
		return CircuitClosed
	}
	return c.breaker.State()
}
