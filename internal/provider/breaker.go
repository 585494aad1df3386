package provider

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/scene.cheap/internal/apperror"
)

var ErrCircuitOpen = errors.New("provider: circuit open")

type circuitState int

const (
	stateClosed circuitState = iota
	stateOpen
	stateHalfOpen
)

func (s circuitState) String() string {
	switch s {
	case stateClosed:
		return "closed"
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half_open"
	}
	return "unknown"
}

// Breaker fails calls fast after a run of consecutive transient provider failures.
// After the recovery time one probe call is let through; its outcome closes or
// reopens the circuit.
type Breaker struct {
	next             Generator
	failureThreshold int
	recoveryTime     time.Duration
	now              func() time.Time

	// OnStateChange is called with the new state name after every transition. It runs
	// under the breaker lock and must not call back into the breaker.
	OnStateChange func(state string)

	mu          sync.Mutex
	state       circuitState
	failures    int
	lastFailure time.Time
	probing     bool
}

func NewBreaker(next Generator, failureThreshold int, recoveryTime time.Duration) *Breaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if recoveryTime <= 0 {
		recoveryTime = 30 * time.Second
	}
	return &Breaker{
		next:             next,
		failureThreshold: failureThreshold,
		recoveryTime:     recoveryTime,
		now:              time.Now,
	}
}

// WithClock replaces the breaker's time source.
func (b *Breaker) WithClock(now func() time.Time) *Breaker {
	b.now = now
	return b
}

func (b *Breaker) Generate(ctx context.Context, req Request) (*Response, error) {
	if !b.allow() {
		return nil, apperror.Wrap(ErrCircuitOpen, apperror.ErrOverloaded)
	}
	resp, err := b.next.Generate(ctx, req)
	switch {
	case err == nil:
		b.recordSuccess()
	case countsAsFailure(err):
		b.recordFailure()
	default:
		b.releaseProbe()
	}
	return resp, err
}

// State returns closed, open or half_open.
func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.String()
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateOpen:
		if b.now().Sub(b.lastFailure) < b.recoveryTime {
			return false
		}
		b.transition(stateHalfOpen)
		b.probing = true
		return true
	case stateHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
	return true
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.probing = false
	if b.state != stateClosed {
		b.transition(stateClosed)
	}
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.lastFailure = b.now()
	b.probing = false
	if b.state == stateHalfOpen || b.failures >= b.failureThreshold {
		if b.state != stateOpen {
			b.transition(stateOpen)
		}
	}
}

func (b *Breaker) releaseProbe() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false
	b.failures = 0
}

func (b *Breaker) transition(to circuitState) {
	b.state = to
	if b.OnStateChange != nil {
		b.OnStateChange(to.String())
	}
}

// countsAsFailure reports provider-side trouble. Caller mistakes and parse problems
// say nothing about provider health.
func countsAsFailure(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	switch apperror.Classify(err).Code {
	case apperror.CodeOverloaded, apperror.CodeNetwork, apperror.CodeTimeout, apperror.CodeRateLimit, apperror.CodeUnknown:
		return true
	}
	return false
}
