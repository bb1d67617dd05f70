package httpclient

import (
	"context"
	"math"
	"time"
)

// RetryPolicy decides whether and when a failed attempt is repeated.
type RetryPolicy struct {
	// Attempts is the number of retries after the first try.
	Attempts int

	Backoff Backoff

	// StatusCodes are the responses treated as transient. Nil means
	// DefaultRetryStatusCodes.
	StatusCodes *StatusCodeSet
}

// Backoff is an exponential delay schedule.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// Delay returns the wait before the given retry (1 for the first retry).
func (b Backoff) Delay(retry int) time.Duration {
	if retry < 1 || b.Initial <= 0 {
		return 0
	}
	mult := max(b.Multiplier, 1)
	d := float64(b.Initial) * math.Pow(mult, float64(retry-1))
	if b.Max > 0 && d > float64(b.Max) {
		return b.Max
	}
	return time.Duration(d)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
