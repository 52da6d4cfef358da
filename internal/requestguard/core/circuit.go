// Package core provides a circuit breaker for the counter store.
package core

import (
	"sync/atomic"
	"time"
)

// BreakerState represents breaker state.
type BreakerState int32

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

// BreakerOptions configures breaker thresholds.
type BreakerOptions struct {
	FailureThreshold int64
	OpenDuration     time.Duration
	HalfOpenMaxCalls int64
}

// StoreBreaker trips after repeated store failures so the guards skip the
// store and fail open immediately instead of waiting on a dead backend.
type StoreBreaker struct {
	state     atomic.Int32
	openUntil atomic.Int64
	failures  atomic.Int64
	probes    atomic.Int64
	opts      BreakerOptions
}

// NewStoreBreaker constructs a breaker with defaults.
func NewStoreBreaker(opts BreakerOptions) *StoreBreaker {
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = 10
	}
	if opts.OpenDuration <= 0 {
		opts.OpenDuration = 200 * time.Millisecond
	}
	if opts.HalfOpenMaxCalls <= 0 {
		opts.HalfOpenMaxCalls = 5
	}
	breaker := &StoreBreaker{opts: opts}
	breaker.state.Store(int32(BreakerClosed))
	return breaker
}

// Allow reports whether the store call should proceed.
func (b *StoreBreaker) Allow() bool {
	if b == nil {
		return true
	}
	switch BreakerState(b.state.Load()) {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if time.Now().UnixNano() >= b.openUntil.Load() {
			b.state.Store(int32(BreakerHalfOpen))
			b.probes.Store(0)
			return true
		}
		return false
	case BreakerHalfOpen:
		if b.probes.Add(1) <= b.opts.HalfOpenMaxCalls {
			return true
		}
		b.probes.Add(-1)
		return false
	default:
		return true
	}
}

// OnSuccess records a successful store call.
func (b *StoreBreaker) OnSuccess() {
	if b == nil {
		return
	}
	switch BreakerState(b.state.Load()) {
	case BreakerHalfOpen:
		b.probes.Add(-1)
		b.failures.Store(0)
		b.state.Store(int32(BreakerClosed))
	case BreakerClosed:
		b.failures.Store(0)
	}
}

// OnFailure records a failed store call and updates state.
func (b *StoreBreaker) OnFailure() {
	if b == nil {
		return
	}
	if BreakerState(b.state.Load()) == BreakerHalfOpen {
		b.probes.Add(-1)
		b.failures.Store(b.opts.FailureThreshold)
		b.trip()
		return
	}
	if b.failures.Add(1) >= b.opts.FailureThreshold {
		b.trip()
	}
}

// State returns the current breaker state.
func (b *StoreBreaker) State() BreakerState {
	if b == nil {
		return BreakerClosed
	}
	return BreakerState(b.state.Load())
}

func (b *StoreBreaker) trip() {
	b.openUntil.Store(time.Now().Add(b.opts.OpenDuration).UnixNano())
	b.state.Store(int32(BreakerOpen))
}
