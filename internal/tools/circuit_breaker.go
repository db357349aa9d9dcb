package tools

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// BreakerState represents the circuit breaker state
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	}
	return "closed"
}

// CircuitBreaker keeps one breaker per tool name
type CircuitBreaker struct {
	mu       sync.Mutex
	breakers map[string]*breaker

	failureThreshold int
	successThreshold int
	cooldown         time.Duration
	now              func() time.Time
	logger           *logrus.Logger
}

type breaker struct {
	failures    int
	successes   int
	lastFailure time.Time
	state       BreakerState
	trial       bool
}

// NewCircuitBreaker opens a tool's breaker after failureThreshold consecutive failures
// and lets a trial call through once cooldown has passed
func NewCircuitBreaker(failureThreshold int, cooldown time.Duration, logger *logrus.Logger) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &CircuitBreaker{
		breakers:         make(map[string]*breaker),
		failureThreshold: failureThreshold,
		successThreshold: 2,
		cooldown:         cooldown,
		now:              time.Now,
		logger:           logger,
	}
}

// Allow reports whether a call to key may proceed. A half-open breaker admits one
// trial call at a time; every call that was allowed must be followed by Record or Release.
func (cb *CircuitBreaker) Allow(key string) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	b := cb.get(key)
	switch cb.stateLocked(b) {
	case StateOpen:
		return false
	case StateHalfOpen:
		if b.trial {
			return false
		}
		b.trial = true
	}
	return true
}

// Release ends an allowed call without counting its outcome
func (cb *CircuitBreaker) Release(key string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if b, ok := cb.breakers[key]; ok {
		b.trial = false
	}
}

// Record updates key's breaker with the outcome of a call
func (cb *CircuitBreaker) Record(key string, failed bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	b := cb.get(key)
	state := cb.stateLocked(b)
	b.trial = false

	if failed {
		b.failures++
		b.lastFailure = cb.now()
		switch state {
		case StateClosed:
			if b.failures >= cb.failureThreshold {
				b.state = StateOpen
				cb.logger.WithFields(logrus.Fields{"tool": key, "failures": b.failures}).Warn("Opening tool circuit breaker")
			}
		case StateHalfOpen:
			b.state = StateOpen
			cb.logger.WithField("tool", key).Warn("Re-opening tool circuit breaker after failed trial call")
		}
		return
	}

	b.successes++
	switch state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		if b.successes >= cb.successThreshold {
			b.state = StateClosed
			b.failures = 0
			b.successes = 0
			cb.logger.WithField("tool", key).Info("Closing tool circuit breaker")
		}
	}
}

// State returns the current state of key's breaker
func (cb *CircuitBreaker) State(key string) BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	b, ok := cb.breakers[key]
	if !ok {
		return StateClosed
	}
	return cb.stateLocked(b)
}

// Reset closes key's breaker
func (cb *CircuitBreaker) Reset(key string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	delete(cb.breakers, key)
}

func (cb *CircuitBreaker) get(key string) *breaker {
	b, ok := cb.breakers[key]
	if !ok {
		b = &breaker{state: StateClosed}
		cb.breakers[key] = b
	}
	return b
}

// stateLocked moves an open breaker to half-open once the cooldown has elapsed
func (cb *CircuitBreaker) stateLocked(b *breaker) BreakerState {
	if b.state == StateOpen && cb.now().Sub(b.lastFailure) > cb.cooldown {
		b.state = StateHalfOpen
		b.failures = 0
		b.successes = 0
		b.trial = false
	}
	return b.state
}
