package orchestrator

import (
	"sync"
	"time"
)

// Breaker states reported by CircuitBreaker.State.
const (
	BreakerClosed   = "closed"
	BreakerOpen     = "open"
	BreakerHalfOpen = "half-open"
)

// CircuitBreaker stops calls to a provider after consecutive transient
// failures. Once Cooldown has passed a single trial call is let through;
// its outcome closes or re-opens the breaker.
type CircuitBreaker struct {
	mu                  sync.Mutex
	ConsecutiveFailures int
	Threshold           int
	Cooldown            time.Duration
	Open                bool
	openedAt            time.Time
	now                 func() time.Time
}

// NewCircuitBreaker creates a circuit breaker with the given threshold.
// A zero cooldown keeps the breaker open until RecordSuccess or Reset.
func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 3 // default
	}
	return &CircuitBreaker{
		Threshold: threshold,
		Cooldown:  cooldown,
		now:       time.Now,
	}
}

// RecordFailure increments the failure counter.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.ConsecutiveFailures++
	if cb.ConsecutiveFailures >= cb.Threshold {
		cb.Open = true
		cb.openedAt = cb.now()
	}
}

// RecordSuccess resets the failure counter.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.ConsecutiveFailures = 0
	cb.Open = false
}

// Allow reports whether a call may proceed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if !cb.Open {
		return true
	}
	if cb.Cooldown > 0 && cb.now().Sub(cb.openedAt) >= cb.Cooldown {
		// Restart the cooldown so only one trial goes through.
		cb.openedAt = cb.now()
		return true
	}
	return false
}

// State returns closed, open or half-open.
func (cb *CircuitBreaker) State() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch {
	case !cb.Open:
		return BreakerClosed
	case cb.Cooldown > 0 && cb.now().Sub(cb.openedAt) >= cb.Cooldown:
		return BreakerHalfOpen
	default:
		return BreakerOpen
	}
}

// Reset clears the circuit breaker state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.ConsecutiveFailures = 0
	cb.Open = false
}

// GetConsecutiveFailures returns the current failure count (thread-safe).
func (cb *CircuitBreaker) GetConsecutiveFailures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.ConsecutiveFailures
}
