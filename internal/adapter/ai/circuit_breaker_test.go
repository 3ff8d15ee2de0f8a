package ai

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker("openai")

	assert.True(t, cb.ShouldAttempt(), "new breaker must allow attempts")
	assert.Equal(t, CircuitClosed, cb.State())

	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, CircuitClosed, cb.State(), "two failures stay under the threshold")

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())
	assert.False(t, cb.ShouldAttempt(), "open breaker must block attempts")
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker("anthropic")

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()

	assert.Equal(t, CircuitClosed, cb.State(), "success breaks the failure streak")
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker("openai")
	cb.recoveryTimeout = 50 * time.Millisecond

	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	assert.False(t, cb.ShouldAttempt())

	time.Sleep(100 * time.Millisecond)

	assert.True(t, cb.ShouldAttempt(), "recovery timeout must admit a probe")
	assert.Equal(t, CircuitHalfOpen, cb.State())

	cb.RecordSuccess()
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker("openai")
	cb.recoveryTimeout = 50 * time.Millisecond

	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	time.Sleep(100 * time.Millisecond)

	assert.True(t, cb.ShouldAttempt(), "recovery timeout must admit a probe")
	cb.RecordFailure()

	assert.Equal(t, CircuitOpen, cb.State(), "a failed probe reopens immediately")
	assert.False(t, cb.ShouldAttempt(), "reopened breaker blocks until the next timeout")
}

func TestCircuitBreakerManager_ReusesBreakers(t *testing.T) {
	t.Parallel()
	m := NewCircuitBreakerManager()

	a := m.GetBreaker("openai")
	b := m.GetBreaker("openai")
	assert.Same(t, a, b, "one breaker instance per provider")

	c := m.GetBreaker("anthropic")
	assert.NotSame(t, a, c)
}

func TestCircuitState_String(t *testing.T) {
	t.Parallel()
	cases := map[CircuitState]string{
		CircuitClosed:    "closed",
		CircuitOpen:      "open",
		CircuitHalfOpen:  "half-open",
		CircuitState(42): "unknown",
	}
	for state, want := range cases {
		assert.Equal(t, want, state.String())
	}
}
