package internal

import (
	"errors"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrCircuitOpen is returned by Do while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker stops export uploads after repeated failures inside a sliding
// window, then lets them through again once the open period has passed.
type CircuitBreaker struct {
	mu           sync.Mutex
	failures     []time.Time
	threshold    int
	window       time.Duration
	openUntil    time.Time
	openDuration time.Duration
	nowFunc      func() time.Time
}

// NewCircuitBreaker clamps threshold to at least one failure.
func NewCircuitBreaker(threshold int, window, openDuration time.Duration) *CircuitBreaker {
	if threshold < 1 {
		threshold = 1
	}
	return &CircuitBreaker{
		threshold:    threshold,
		window:       window,
		openDuration: openDuration,
		failures:     make([]time.Time, 0, threshold),
		nowFunc:      time.Now,
	}
}

// RecordFailure counts a failed upload. Reaching the threshold inside the window
// opens the breaker for openDuration.
func (cb *CircuitBreaker) RecordFailure() {
	if cb == nil {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.nowFunc()
	cutoff := now.Add(-cb.window)
	cb.failures = slices.DeleteFunc(cb.failures, func(at time.Time) bool {
		return !at.After(cutoff)
	})
	cb.failures = append(cb.failures, now)

	if len(cb.failures) >= cb.threshold {
		cb.openUntil = now.Add(cb.openDuration)
		zap.S().Warnw("export circuit breaker opened", "failures", len(cb.failures), "until", cb.openUntil)
	}
}

// RecordSuccess closes the breaker and forgets earlier failures.
func (cb *CircuitBreaker) RecordSuccess() {
	if cb == nil {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = cb.failures[:0]
	cb.openUntil = time.Time{}
}

// IsOpen reports whether calls are currently rejected.
func (cb *CircuitBreaker) IsOpen() bool {
	if cb == nil {
		return false
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.nowFunc().Before(cb.openUntil)
}

// Do runs fn unless the breaker is open, recording the outcome.
func (cb *CircuitBreaker) Do(fn func() error) error {
	if cb.IsOpen() {
		return ErrCircuitOpen
	}
	if err := fn(); err != nil {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return nil
}
