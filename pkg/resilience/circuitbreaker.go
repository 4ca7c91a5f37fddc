// Package resilience wraps calls to the upstream article source with a
// circuit breaker, bounded retry with backoff, and a per-call timeout.
package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the breaker rejects a call.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the phase a circuit breaker is in.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig controls when the breaker trips and how it recovers.
type CircuitBreakerConfig struct {
	FailureThreshold int
	ResetTimeout     time.Duration
	HalfOpenProbes   int

	// IsFailure decides whether an error counts against the breaker. Errors
	// that describe the request rather than the upstream, such as a missing
	// article, should return false. Nil means every error counts.
	IsFailure func(error) bool

	// OnStateChange is called with the new state after every transition,
	// outside the breaker's lock.
	OnStateChange func(name string, to State)
}

// CircuitBreaker counts consecutive upstream failures and rejects calls once
// FailureThreshold is reached. After ResetTimeout it lets HalfOpenProbes
// calls through; one success closes it again, one failure re-opens it.
type CircuitBreaker struct {
	name   string
	cfg    CircuitBreakerConfig
	logger *slog.Logger
	now    func() time.Time

	mu          sync.Mutex
	state       State
	failures    int
	openedAt    time.Time
	probesInUse int
}

// NewCircuitBreaker creates a closed breaker. Zero config values fall back to
// five failures, a thirty second reset and a single probe.
func NewCircuitBreaker(name string, cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenProbes <= 0 {
		cfg.HalfOpenProbes = 1
	}
	return &CircuitBreaker{
		name:   name,
		cfg:    cfg,
		logger: slog.Default().With("component", "circuit-breaker", "name", name),
		now:    time.Now,
	}
}

// Name returns the breaker's name.
func (cb *CircuitBreaker) Name() string { return cb.name }

// Execute runs fn unless the breaker is open and records its outcome.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn()
	cb.record(err)
	return err
}

// State returns the breaker's current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset closes the breaker and clears its failure count.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	changed := cb.state != StateClosed
	cb.state = StateClosed
	cb.failures = 0
	cb.probesInUse = 0
	cb.mu.Unlock()
	if changed {
		cb.notify(StateClosed)
	}
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	switch cb.state {
	case StateOpen:
		wait := cb.cfg.ResetTimeout - cb.now().Sub(cb.openedAt)
		if wait > 0 {
			cb.mu.Unlock()
			return fmt.Errorf("%w: %s (retry in %v)", ErrCircuitOpen, cb.name, wait.Round(time.Millisecond))
		}
		cb.state = StateHalfOpen
		cb.probesInUse = 1
		cb.mu.Unlock()
		cb.logger.Info("circuit half-open, probing upstream")
		cb.notify(StateHalfOpen)
		return nil
	case StateHalfOpen:
		if cb.probesInUse >= cb.cfg.HalfOpenProbes {
			cb.mu.Unlock()
			return fmt.Errorf("%w: %s (probe in flight)", ErrCircuitOpen, cb.name)
		}
		cb.probesInUse++
	}
	cb.mu.Unlock()
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	failed := err != nil && (cb.cfg.IsFailure == nil || cb.cfg.IsFailure(err))

	cb.mu.Lock()
	prev := cb.state
	if !failed {
		cb.failures = 0
		if cb.state == StateHalfOpen {
			cb.state = StateClosed
			cb.probesInUse = 0
		}
	} else {
		cb.failures++
		switch {
		case cb.state == StateHalfOpen,
			cb.state == StateClosed && cb.failures >= cb.cfg.FailureThreshold:
			cb.state = StateOpen
			cb.openedAt = cb.now()
			cb.probesInUse = 0
		}
	}
	next, failures := cb.state, cb.failures
	cb.mu.Unlock()

	if next == prev {
		return
	}
	if next == StateOpen {
		cb.logger.Warn("circuit opened", "consecutive_failures", failures, "error", err)
	} else {
		cb.logger.Info("circuit closed, upstream recovered")
	}
	cb.notify(next)
}

func (cb *CircuitBreaker) notify(to State) {
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.name, to)
	}
}
