package webhook

import (
	"sync"
	"time"
)

type circuitState int

const (
	stateClosed circuitState = iota
	stateOpen
	stateHalfOpen
)

type endpointHealth struct {
	failures    int
	lastFailure time.Time
	state       circuitState
}

// CircuitBreaker stops deliveries to callback hosts that keep failing.
type CircuitBreaker struct {
	mu               sync.Mutex
	endpoints        map[string]*endpointHealth
	failureThreshold int
	recoveryTime     time.Duration
	now              func() time.Time
}

func NewCircuitBreaker() *CircuitBreaker {
	return NewCircuitBreakerWithConfig(5, 10*time.Minute)
}

func NewCircuitBreakerWithConfig(failureThreshold int, recoveryTime time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		endpoints:        make(map[string]*endpointHealth),
		failureThreshold: failureThreshold,
		recoveryTime:     recoveryTime,
		now:              time.Now,
	}
}

// Allow reports whether a delivery to endpoint may be attempted. An open circuit
// moves to half-open once recoveryTime has passed since the last failure.
func (cb *CircuitBreaker) Allow(endpoint string) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	health, ok := cb.endpoints[endpoint]
	if !ok || health.state != stateOpen {
		return true
	}
	if cb.now().Sub(health.lastFailure) > cb.recoveryTime {
		health.state = stateHalfOpen
		return true
	}
	return false
}

func (cb *CircuitBreaker) RecordSuccess(endpoint string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	delete(cb.endpoints, endpoint)
}

func (cb *CircuitBreaker) RecordFailure(endpoint string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	health, ok := cb.endpoints[endpoint]
	if !ok {
		health = &endpointHealth{}
		cb.endpoints[endpoint] = health
	}
	health.failures++
	health.lastFailure = cb.now()

	if health.state == stateHalfOpen || health.failures >= cb.failureThreshold {
		health.state = stateOpen
	}
}

func (cb *CircuitBreaker) IsOpen(endpoint string) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	health, ok := cb.endpoints[endpoint]
	return ok && health.state == stateOpen
}
