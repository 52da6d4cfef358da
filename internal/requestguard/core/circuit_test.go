package core_test

import (
	"testing"
	"time"

	"requestguard/internal/requestguard/core"
)

func TestStoreBreaker_OpensAfterThreshold(t *testing.T) {
	t.Parallel()

	breaker := core.NewStoreBreaker(core.BreakerOptions{FailureThreshold: 3, OpenDuration: time.Minute})
	for i := 0; i < 2; i++ {
		breaker.OnFailure()
	}
	if breaker.State() != core.BreakerClosed {
		t.Fatalf("state %v before the threshold", breaker.State())
	}
	breaker.OnFailure()
	if breaker.State() != core.BreakerOpen {
		t.Fatalf("state %v after the threshold", breaker.State())
	}
	if breaker.Allow() {
		t.Fatal("open breaker must reject calls")
	}
}

func TestStoreBreaker_SuccessResetsFailureCount(t *testing.T) {
	t.Parallel()

	breaker := core.NewStoreBreaker(core.BreakerOptions{FailureThreshold: 3, OpenDuration: time.Minute})
	breaker.OnFailure()
	breaker.OnFailure()
	breaker.OnSuccess()
	breaker.OnFailure()
	breaker.OnFailure()
	if breaker.State() != core.BreakerClosed {
		t.Fatalf("state %v, want closed after the reset", breaker.State())
	}
}

func TestStoreBreaker_HalfOpenRecovery(t *testing.T) {
	t.Parallel()

	breaker := core.NewStoreBreaker(core.BreakerOptions{FailureThreshold: 1, OpenDuration: 10 * time.Millisecond})
	breaker.OnFailure()
	if breaker.State() != core.BreakerOpen {
		t.Fatalf("state %v, want open", breaker.State())
	}

	time.Sleep(20 * time.Millisecond)
	if !breaker.Allow() {
		t.Fatal("expected a probe after the open window")
	}
	if breaker.State() != core.BreakerHalfOpen {
		t.Fatalf("state %v, want half-open", breaker.State())
	}
	breaker.OnSuccess()
	if breaker.State() != core.BreakerClosed {
		t.Fatalf("state %v, want closed after a good probe", breaker.State())
	}
}

func TestStoreBreaker_HalfOpenFailureReopens(t *testing.T) {
	t.Parallel()

	breaker := core.NewStoreBreaker(core.BreakerOptions{FailureThreshold: 1, OpenDuration: 10 * time.Millisecond})
	breaker.OnFailure()
	time.Sleep(20 * time.Millisecond)
	if !breaker.Allow() {
		t.Fatal("expected a probe after the open window")
	}
	breaker.OnFailure()
	if breaker.State() != core.BreakerOpen {
		t.Fatalf("state %v, want open after a failed probe", breaker.State())
	}
	if breaker.Allow() {
		t.Fatal("reopened breaker must reject calls")
	}
}

func TestStoreBreaker_HalfOpenLimitsProbes(t *testing.T) {
	t.Parallel()

	breaker := core.NewStoreBreaker(core.BreakerOptions{
		FailureThreshold: 1,
		OpenDuration:     10 * time.Millisecond,
		HalfOpenMaxCalls: 2,
	})
	breaker.OnFailure()
	time.Sleep(20 * time.Millisecond)

	if !breaker.Allow() {
		t.Fatal("transition call should pass")
	}
	if !breaker.Allow() || !breaker.Allow() {
		t.Fatal("probes within the half-open budget should pass")
	}
	if breaker.Allow() {
		t.Fatal("probe beyond the half-open budget should be rejected")
	}
}

func TestStoreBreaker_NilReceiver(t *testing.T) {
	t.Parallel()

	var breaker *core.StoreBreaker
	if !breaker.Allow() {
		t.Fatal("nil breaker must allow")
	}
	breaker.OnSuccess()
	breaker.OnFailure()
	if breaker.State() != core.BreakerClosed {
		t.Fatalf("nil breaker state %v", breaker.State())
	}
}
