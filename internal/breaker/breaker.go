// Package breaker implements the circuit breaker guarding the Message Store
// Gateway (C2): a three-state atomic state machine (CLOSED/OPEN/HALF_OPEN)
// trained on consecutive failures rather than an error-rate window.
package breaker

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agency-portal/chat-pipeline/internal/ports"
)

// State is one of the three circuit breaker states.
type State int32

// Supported states.
const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String returns the wire-level name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// ErrOpenState is returned by Execute when the breaker is OPEN.
var ErrOpenState = errors.New("circuit breaker is open")

// ErrHalfOpenLimit is returned when a HALF_OPEN probe slot is not available.
var ErrHalfOpenLimit = errors.New("circuit breaker half-open probe limit reached")

// Breaker is a consecutive-failure circuit breaker: failureThreshold
// consecutive failures trips it OPEN; after resetTimeout it allows up to
// halfOpenMaxCalls concurrent probes in HALF_OPEN; a single success in
// HALF_OPEN closes it, any failure in HALF_OPEN reopens it and restarts the
// reset timer.
type Breaker struct {
	name             string
	failureThreshold uint64
	resetTimeout     time.Duration
	halfOpenMaxCalls int32

	state         atomic.Int32
	lastStateTime atomic.Int64
	generation    atomic.Uint64

	consecutiveFailures atomic.Uint64
	requests            atomic.Uint64
	totalSuccess        atomic.Uint64
	totalFailure        atomic.Uint64

	halfOpenInFlight atomic.Int32

	mu        sync.Mutex
	listeners []func(from, to string)
}

// New constructs a Breaker per the C2 configuration values.
func New(name string, failureThreshold int, resetTimeout time.Duration, halfOpenMaxCalls int) *Breaker {
	b := &Breaker{
		name:             name,
		failureThreshold: nonNegU64(failureThreshold),
		resetTimeout:     resetTimeout,
		halfOpenMaxCalls: clampI32(halfOpenMaxCalls),
	}
	b.state.Store(int32(StateClosed))
	b.lastStateTime.Store(time.Now().UnixNano())
	return b
}

func nonNegU64(v int) uint64 {
	if v <= 0 {
		return 0
	}
	return uint64(v)
}

func clampI32(v int) int32 {
	if v <= 0 {
		return 0
	}
	return int32(v)
}

// Execute runs fn if the breaker allows it, recording the outcome against the
// breaker's state machine.
func (b *Breaker) Execute(fn func() error) (err error) {
	if fn == nil {
		return errors.New("breaker: function cannot be nil")
	}

	generation, halfOpenSlot, err := b.beforeRequest()
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("breaker: panic: %v", r)
		}
		b.afterRequest(generation, halfOpenSlot, err)
	}()

	err = fn()
	return err
}

func (b *Breaker) beforeRequest() (generation uint64, halfOpenSlot bool, err error) {
	state := State(b.state.Load())
	generation = b.generation.Load()

	if state == StateOpen {
		lastStateTime := b.lastStateTime.Load()
		if time.Since(time.Unix(0, lastStateTime)) >= b.resetTimeout {
			if b.state.CompareAndSwap(int32(StateOpen), int32(StateHalfOpen)) {
				b.toHalfOpen()
			}
		}
		state = State(b.state.Load())
	}

	switch state {
	case StateOpen:
		return generation, false, ErrOpenState
	case StateHalfOpen:
		inFlight := b.halfOpenInFlight.Add(1)
		if b.halfOpenMaxCalls > 0 && inFlight > b.halfOpenMaxCalls {
			b.halfOpenInFlight.Add(-1)
			return generation, false, ErrHalfOpenLimit
		}
		return b.generation.Load(), true, nil
	default:
		return generation, false, nil
	}
}

func (b *Breaker) afterRequest(generation uint64, halfOpenSlot bool, err error) {
	if halfOpenSlot {
		b.halfOpenInFlight.Add(-1)
	}

	b.requests.Add(1)
	if generation != b.generation.Load() {
		// Result belongs to a state this breaker has already moved past.
		return
	}

	if err == nil {
		b.onSuccess()
	} else {
		b.onFailure()
	}
}

func (b *Breaker) onSuccess() {
	b.totalSuccess.Add(1)
	b.consecutiveFailures.Store(0)

	if State(b.state.Load()) == StateHalfOpen {
		b.toClosed()
	}
}

func (b *Breaker) onFailure() {
	b.totalFailure.Add(1)

	switch State(b.state.Load()) {
	case StateClosed:
		failures := b.consecutiveFailures.Add(1)
		if failures >= b.failureThreshold {
			b.toOpen()
		}
	case StateHalfOpen:
		b.toOpen()
	}
}

func (b *Breaker) toOpen() {
	prev := State(b.state.Load())
	swapped := b.state.CompareAndSwap(int32(StateClosed), int32(StateOpen))
	if !swapped {
		swapped = b.state.CompareAndSwap(int32(StateHalfOpen), int32(StateOpen))
		prev = StateHalfOpen
	} else {
		prev = StateClosed
	}
	if swapped {
		b.lastStateTime.Store(time.Now().UnixNano())
		b.generation.Add(1)
		b.notify(prev, StateOpen)
	}
}

func (b *Breaker) toHalfOpen() {
	b.lastStateTime.Store(time.Now().UnixNano())
	b.generation.Add(1)
	b.consecutiveFailures.Store(0)
	b.halfOpenInFlight.Store(0)
	b.notify(StateOpen, StateHalfOpen)
}

func (b *Breaker) toClosed() {
	if b.state.CompareAndSwap(int32(StateHalfOpen), int32(StateClosed)) {
		b.lastStateTime.Store(time.Now().UnixNano())
		b.generation.Add(1)
		b.consecutiveFailures.Store(0)
		b.notify(StateHalfOpen, StateClosed)
	}
}

func (b *Breaker) notify(from, to State) {
	b.mu.Lock()
	listeners := append([]func(from, to string){}, b.listeners...)
	b.mu.Unlock()
	for _, l := range listeners {
		l(from.String(), to.String())
	}
}

// OnStateChange registers a callback invoked after every state transition.
func (b *Breaker) OnStateChange(fn func(from, to string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, fn)
}

// GetState returns the current breaker state as its wire-level name.
func (b *Breaker) GetState() string {
	return State(b.state.Load()).String()
}

// GetStats reports point-in-time counters.
func (b *Breaker) GetStats() ports.CircuitBreakerStats {
	return ports.CircuitBreakerStats{
		Requests:            b.requests.Load(),
		TotalSuccess:        b.totalSuccess.Load(),
		TotalFailure:        b.totalFailure.Load(),
		ConsecutiveFailures: b.consecutiveFailures.Load(),
		State:               b.GetState(),
	}
}
