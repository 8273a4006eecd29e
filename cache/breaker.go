// backend/cache/breaker.go
package cache

import (
	"sync"
	"time"
)

// Breaker defaults. Five consecutive failures open the breaker; after the
// cool-down a single trial operation is let through.
const (
	DefaultFailureThreshold = 5
	DefaultCoolDown         = 30 * time.Second
)

// BreakerStatus is the observable state of a circuit breaker.
type BreakerStatus struct {
	IsOpen   bool `json:"is_open"`
	Failures int  `json:"failures"`
}

// CircuitBreaker guards a named resource against cascading retries. It is
// closed (operations pass, failures counted), open (operations refused until
// the cool-down elapses), or half-open (one trial allowed; success closes it,
// failure re-opens it). Safe for concurrent callers.
type CircuitBreaker struct {
	name      string
	threshold int
	coolDown  time.Duration

	mu         sync.Mutex
	failures   int
	open       bool
	openedAt   time.Time
	halfOpen   bool
	trialInUse bool
}

// NewCacheCircuitBreaker returns a breaker for the named resource with the
// default threshold and cool-down. Independent breakers can coexist per
// logical resource ("cache", "snapshots", ...).
func NewCacheCircuitBreaker(name string) *CircuitBreaker {
	return NewCircuitBreaker(name, DefaultFailureThreshold, DefaultCoolDown)
}

// NewCircuitBreaker returns a breaker with explicit tunables. Non-positive
// values fall back to the defaults.
func NewCircuitBreaker(name string, threshold int, coolDown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	if coolDown <= 0 {
		coolDown = DefaultCoolDown
	}
	return &CircuitBreaker{name: name, threshold: threshold, coolDown: coolDown}
}

// Name returns the resource name the breaker was created for.
func (cb *CircuitBreaker) Name() string { return cb.name }

// Allow reports whether an operation may proceed. When the breaker is open and
// the cool-down has elapsed it admits exactly one trial operation (half-open).
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !cb.open {
		return nil
	}
	if time.Since(cb.openedAt) >= cb.coolDown && !cb.trialInUse {
		cb.halfOpen = true
		cb.trialInUse = true
		return nil
	}
	return &BreakerOpenError{Name: cb.name, Failures: cb.failures}
}

// RecordSuccess resets the breaker to closed.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.open = false
	cb.halfOpen = false
	cb.trialInUse = false
}

// RecordFailure counts a failure; crossing the threshold (or failing the
// half-open trial) opens the breaker and restarts the cool-down.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures++
	if cb.halfOpen || cb.failures >= cb.threshold {
		cb.open = true
		cb.openedAt = time.Now()
	}
	cb.halfOpen = false
	cb.trialInUse = false
}

// Do runs op under the breaker: refused immediately with a BreakerOpenError
// when open, otherwise op's result is recorded and returned.
func (cb *CircuitBreaker) Do(op func() error) error {
	if err := cb.Allow(); err != nil {
		return err
	}
	if err := op(); err != nil {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return nil
}

// Status returns the breaker's observable state.
func (cb *CircuitBreaker) Status() BreakerStatus {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return BreakerStatus{IsOpen: cb.open, Failures: cb.failures}
}
