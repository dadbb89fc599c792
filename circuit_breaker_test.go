package intention

import (
	"testing"
	"time"
)

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 3,
		RecoveryTimeout:  time.Minute,
		SuccessThreshold: 1,
	})

	if !cb.Allow() {
		t.Fatal("fresh breaker refused dispatch")
	}

	cb.RecordFailure()
	cb.RecordFailure()
	if cb.State() != StateClosed {
		t.Error("breaker opened below threshold")
	}

	cb.RecordFailure()
	if cb.State() != StateOpen {
		t.Error("breaker did not open at threshold")
	}
	if cb.Allow() {
		t.Error("open breaker allowed dispatch")
	}
}

func TestCircuitBreakerRecovery(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		RecoveryTimeout:  10 * time.Millisecond,
		SuccessThreshold: 2,
	})

	cb.RecordFailure()
	if cb.State() != StateOpen {
		t.Fatal("breaker did not open")
	}

	time.Sleep(20 * time.Millisecond)

	if !cb.Allow() {
		t.Fatal("breaker refused probe after recovery timeout")
	}
	if cb.State() != StateHalfOpen {
		t.Fatalf("State() = %v, want half-open", cb.State())
	}

	cb.RecordSuccess()
	if cb.State() != StateHalfOpen {
		t.Error("breaker closed before success threshold")
	}
	cb.RecordSuccess()
	if cb.State() != StateClosed {
		t.Error("breaker did not close after enough successful probes")
	}
}

func TestCircuitBreakerReopensOnHalfOpenFailure(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		RecoveryTimeout:  10 * time.Millisecond,
		SuccessThreshold: 2,
	})

	cb.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	if !cb.Allow() {
		t.Fatal("breaker refused probe after recovery timeout")
	}

	cb.RecordFailure()
	if cb.State() != StateOpen {
		t.Error("half-open failure did not reopen the breaker")
	}
	if cb.Allow() {
		t.Error("reopened breaker allowed dispatch")
	}
}

func TestCircuitBreakerDefaults(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{})

	for i := 0; i < 4; i++ {
		cb.RecordFailure()
	}
	if cb.State() != StateClosed {
		t.Error("breaker opened below the default threshold")
	}
	cb.RecordFailure()
	if cb.State() != StateOpen {
		t.Error("breaker did not open at the default threshold")
	}
}
