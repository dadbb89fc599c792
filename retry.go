package intention

import (
	"errors"
	"time"

	"github.com/nelson-n/intention/internal/backoff"
)

// RetryState is the per-call record of retry progress. It lives only for the
// duration of one Execute and is threaded through the dispatch loop.
type RetryState struct {
	Attempt   int
	LastKind  ErrorKind
	NextDelay time.Duration
}

// RetryPolicy decides whether a failed attempt should run again and how long
// to wait first. Safe for concurrent use.
type RetryPolicy struct {
	initialBackoff time.Duration
	maxBackoff     time.Duration
	multiplier     float64
	jitter         float64
	strategy       backoff.Strategy
}

// NewRetryPolicy creates a policy using exponential backoff with jitter.
func NewRetryPolicy(initialBackoff, maxBackoff time.Duration, multiplier, jitter float64) *RetryPolicy {
	return &RetryPolicy{
		initialBackoff: initialBackoff,
		maxBackoff:     maxBackoff,
		multiplier:     multiplier,
		jitter:         jitter,
		strategy:       backoff.ExponentialJitter{},
	}
}

// NewRetryPolicyWithStrategy creates a policy with a specific backoff strategy.
func NewRetryPolicyWithStrategy(initialBackoff, maxBackoff time.Duration, multiplier, jitter float64, strategy backoff.Strategy) *RetryPolicy {
	p := NewRetryPolicy(initialBackoff, maxBackoff, multiplier, jitter)
	p.strategy = strategy
	return p
}

// Next classifies err and reports whether another attempt may run, advancing
// the state when it does. Fatal and malformed errors never retry here:
// malformed responses go through the repairer instead. Provider retry-after
// hints take precedence over the computed backoff.
func (p *RetryPolicy) Next(state *RetryState, err error, maxRetries int) (time.Duration, bool) {
	kind := Classify(err)
	state.LastKind = kind

	if kind == KindFatal || kind == KindMalformed {
		return 0, false
	}
	if state.Attempt >= maxRetries {
		return 0, false
	}

	var delay time.Duration
	if kind == KindRateLimited {
		var pe *ProviderError
		if errors.As(err, &pe) && pe.RetryAfter > 0 {
			delay = pe.RetryAfter
			if delay > time.Hour {
				delay = time.Hour
			}
		}
	}
	if delay == 0 {
		delay = p.strategy.Calculate(state.Attempt, p.initialBackoff, p.maxBackoff, p.multiplier, p.jitter)
	}

	state.Attempt++
	state.NextDelay = delay
	return delay, true
}
