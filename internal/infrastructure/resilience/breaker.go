// Package resilience provides the circuit breakers wrapped around the
// ledger's external dependencies (database, redis, correction queue). A
// breaker keeps a failing dependency from dragging every request down with
// it: after enough consecutive failures calls are rejected immediately until
// a probe succeeds.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/stayops/backend/internal/domain/shared"
)

// ErrOpen is returned by Do when the breaker rejects the call. It wraps
// shared.ErrUnavailable so callers can detect degradation without importing
// this package's internals.
var ErrOpen = fmt.Errorf("circuit breaker open: %w", shared.ErrUnavailable)

// State is the current mode of a circuit breaker
type State int

const (
	// StateClosed allows calls through normally
	StateClosed State = iota
	// StateOpen rejects all calls immediately
	StateOpen
	// StateHalfOpen allows a limited number of probe calls
	StateHalfOpen
)

// String returns the human-readable name for the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config holds circuit breaker tuning
type Config struct {
	// FailureThreshold is the number of consecutive failures before opening
	FailureThreshold int
	// OpenDuration is how long the breaker stays open before probing
	OpenDuration time.Duration
	// HalfOpenMaxProbes is the number of calls allowed while half open
	HalfOpenMaxProbes int
	// SuccessThreshold is the number of consecutive probe successes that
	// close the breaker again
	SuccessThreshold int
}

// DefaultConfig returns the default circuit breaker configuration
func DefaultConfig() Config {
	return Config{
		FailureThreshold:  5,
		OpenDuration:      30 * time.Second,
		HalfOpenMaxProbes: 2,
		SuccessThreshold:  2,
	}
}

// Breaker is a three-state circuit breaker. Safe for concurrent use.
type Breaker struct {
	name   string
	config Config

	mu                   sync.RWMutex
	state                State
	consecutiveFailures  int
	consecutiveSuccesses int
	halfOpenProbes       int
	opens                int64
	rejected             int64
	lastFailureAt        time.Time
	lastStateChangeAt    time.Time
}

// NewBreaker creates a closed breaker. The name identifies the guarded
// dependency in logs and status output.
func NewBreaker(name string, config Config) *Breaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if config.OpenDuration <= 0 {
		config.OpenDuration = DefaultConfig().OpenDuration
	}
	if config.HalfOpenMaxProbes <= 0 {
		config.HalfOpenMaxProbes = DefaultConfig().HalfOpenMaxProbes
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = DefaultConfig().SuccessThreshold
	}
	return &Breaker{
		name:              name,
		config:            config,
		state:             StateClosed,
		lastStateChangeAt: time.Now(),
	}
}

// Name returns the breaker's dependency name
func (b *Breaker) Name() string {
	return b.name
}

// Allow reports whether a call may proceed, moving the breaker from open to
// half open once the open duration has passed
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if now.Sub(b.lastFailureAt) >= b.config.OpenDuration {
			b.transitionTo(StateHalfOpen, now)
			b.halfOpenProbes = 1
			return true
		}
		b.rejected++
		return false
	case StateHalfOpen:
		if b.halfOpenProbes < b.config.HalfOpenMaxProbes {
			b.halfOpenProbes++
			return true
		}
		b.rejected++
		return false
	default:
		return false
	}
}

// RecordSuccess records a successful call. Enough consecutive successes in
// half open close the breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.consecutiveFailures = 0
	case StateHalfOpen:
		b.consecutiveSuccesses++
		b.consecutiveFailures = 0
		if b.consecutiveSuccesses >= b.config.SuccessThreshold {
			b.transitionTo(StateClosed, time.Now())
		}
	}
}

// RecordFailure records a failed call. Reaching the failure threshold opens
// the breaker; any failure while half open reopens it.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.lastFailureAt = now

	switch b.state {
	case StateClosed:
		b.consecutiveFailures++
		b.consecutiveSuccesses = 0
		if b.consecutiveFailures >= b.config.FailureThreshold {
			b.transitionTo(StateOpen, now)
		}
	case StateHalfOpen:
		b.transitionTo(StateOpen, now)
	}
}

// Do runs fn through the breaker. Rejected calls return ErrOpen without
// invoking fn. Context cancellation is not counted against the breaker; it
// says nothing about the dependency's health.
func (b *Breaker) Do(ctx context.Context, fn func() error) error {
	if !b.Allow() {
		return fmt.Errorf("%s: %w", b.name, ErrOpen)
	}

	err := fn()
	if err == nil {
		b.RecordSuccess()
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return err
	}
	b.RecordFailure()
	return err
}

// State returns the current state
func (b *Breaker) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Stats is a point-in-time snapshot of a breaker for the status surface
type Stats struct {
	Name                 string    `json:"name"`
	State                string    `json:"state"`
	ConsecutiveFailures  int       `json:"consecutive_failures"`
	ConsecutiveSuccesses int       `json:"consecutive_successes"`
	Opens                int64     `json:"opens"`
	Rejected             int64     `json:"rejected"`
	LastFailureAt        time.Time `json:"last_failure_at,omitempty"`
	LastStateChangeAt    time.Time `json:"last_state_change_at"`
}

// Stats returns a snapshot of the breaker
func (b *Breaker) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Stats{
		Name:                 b.name,
		State:                b.state.String(),
		ConsecutiveFailures:  b.consecutiveFailures,
		ConsecutiveSuccesses: b.consecutiveSuccesses,
		Opens:                b.opens,
		Rejected:             b.rejected,
		LastFailureAt:        b.lastFailureAt,
		LastStateChangeAt:    b.lastStateChangeAt,
	}
}

// Reset forces the breaker closed. For tests and manual intervention.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.consecutiveFailures = 0
	b.consecutiveSuccesses = 0
	b.halfOpenProbes = 0
	b.lastStateChangeAt = time.Now()
}

// transitionTo changes state. Caller must hold the lock.
func (b *Breaker) transitionTo(newState State, now time.Time) {
	if newState == StateOpen && b.state != StateOpen {
		b.opens++
	}
	b.state = newState
	b.lastStateChangeAt = now
	b.consecutiveSuccesses = 0
	b.halfOpenProbes = 0
	if newState == StateClosed {
		b.consecutiveFailures = 0
	}
}
