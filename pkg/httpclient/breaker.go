package httpclient

import (
	"sync"
	"time"
)

// CircuitState is the state of a CircuitBreaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

var circuitStateNames = [...]string{
	CircuitClosed:   "closed",
	CircuitOpen:     "open",
	CircuitHalfOpen: "half-open",
}

func (s CircuitState) String() string {
	if s < 0 || int(s) >= len(circuitStateNames) {
		return "unknown"
	}
	return circuitStateNames[s]
}

// CircuitBreaker stops traffic to an engine that keeps failing. After
// threshold consecutive failures it opens; once cooldown has passed it lets
// up to probes requests through, and the first outcome of those decides
// whether it closes again or reopens.
type CircuitBreaker struct {
	threshold int
	cooldown  time.Duration
	probes    int
	now       func() time.Time

	mu       sync.Mutex
	state    CircuitState
	failures int
	inFlight int
	openedAt time.Time
}

// NewCircuitBreaker creates a closed breaker. Non-positive threshold and
// probes fall back to the package defaults.
func NewCircuitBreaker(threshold int, cooldown time.Duration, probes int) *CircuitBreaker {
	if threshold <= 0 {
		threshold = DefaultCircuitThreshold
	}
	if probes <= 0 {
		probes = DefaultCircuitHalfOpenMax
	}
	return &CircuitBreaker{
		threshold: threshold,
		cooldown:  cooldown,
		probes:    probes,
		now:       time.Now,
	}
}

// Allow reports whether a request may be sent now.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitOpen && cb.now().Sub(cb.openedAt) >= cb.cooldown {
		cb.state = CircuitHalfOpen
		cb.inFlight = 0
	}

	switch cb.state {
	case CircuitClosed:
		return true
	case CircuitHalfOpen:
		if cb.inFlight >= cb.probes {
			return false
		}
		cb.inFlight++
		return true
	default:
		return false
	}
}

// Success records a request that reached the engine and got a usable answer.
func (cb *CircuitBreaker) Success() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	cb.inFlight = 0
	cb.state = CircuitClosed
}

// Failure records a transport error or a server-side failure.
func (cb *CircuitBreaker) Failure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	if cb.state == CircuitHalfOpen || cb.failures >= cb.threshold {
		cb.state = CircuitOpen
		cb.openedAt = cb.now()
	}
}

// State returns the current state without advancing it.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the current consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Reset closes the breaker and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = CircuitClosed
	cb.failures = 0
	cb.inFlight = 0
}
