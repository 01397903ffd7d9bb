// Package resilience guards external collaborator calls (payment provider,
// push gateway) with a circuit breaker so a failing dependency cannot pile
// up retries against it; the Money State Machine (C5) wraps every provider
// call with this breaker.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is one of Closed, Open, HalfOpen.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// ErrOpen is returned without calling the wrapped function when the breaker
// is open.
var ErrOpen = errors.New("circuit breaker is open")

// Config tunes the breaker.
type Config struct {
	MaxFailures   int
	Timeout       time.Duration
	HalfOpenMax   int
	OnStateChange func(from, to State)
}

// CircuitBreaker wraps calls to a single external collaborator.
type CircuitBreaker struct {
	cfg Config

	mu          sync.Mutex
	state       State
	failures    int
	halfOpenInF int
	openedAt    time.Time
}

// New builds a breaker starting Closed.
func New(cfg Config) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 1
	}
	return &CircuitBreaker{cfg: cfg, state: Closed}
}

// Execute runs fn if the breaker allows it, else returns ErrOpen immediately.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}

	err := fn(ctx)
	cb.afterRequest(err == nil)
	return err
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case Open:
		if time.Since(cb.openedAt) >= cb.cfg.Timeout {
			cb.setState(HalfOpen)
			cb.halfOpenInF = 0
			return nil
		}
		return ErrOpen
	case HalfOpen:
		if cb.halfOpenInF >= cb.cfg.HalfOpenMax {
			return ErrOpen
		}
		cb.halfOpenInF++
		return nil
	default:
		return nil
	}
}

func (cb *CircuitBreaker) afterRequest(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if success {
		cb.onSuccess()
	} else {
		cb.onFailure()
	}
}

func (cb *CircuitBreaker) onSuccess() {
	switch cb.state {
	case HalfOpen:
		cb.setState(Closed)
		cb.failures = 0
	case Closed:
		cb.failures = 0
	}
}

func (cb *CircuitBreaker) onFailure() {
	switch cb.state {
	case HalfOpen:
		cb.setState(Open)
		cb.openedAt = time.Now()
	case Closed:
		cb.failures++
		if cb.failures >= cb.cfg.MaxFailures {
			cb.setState(Open)
			cb.openedAt = time.Now()
		}
	}
}

func (cb *CircuitBreaker) setState(next State) {
	prev := cb.state
	cb.state = next
	if cb.cfg.OnStateChange != nil && prev != next {
		cb.cfg.OnStateChange(prev, next)
	}
}

// State returns the breaker's current state (for metrics/health checks).
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
