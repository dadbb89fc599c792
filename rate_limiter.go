package intention

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// TokenBucket bounds outbound call rate for one provider. Tokens refill
// continuously at refillPerSec up to capacity; refill is computed lazily from
// elapsed wall-clock time at each access, so an idle bucket does no work.
// All state is mutated under the bucket's own mutex; buckets for different
// providers never contend.
type TokenBucket struct {
	mu           sync.Mutex
	capacity     float64
	tokens       float64
	refillPerSec float64
	lastRefill   time.Time
}

// NewTokenBucket creates a full bucket refilling at refillPerSec tokens/second.
func NewTokenBucket(capacity, refillPerSec float64) *TokenBucket {
	return &TokenBucket{
		capacity:     capacity,
		tokens:       capacity,
		refillPerSec: refillPerSec,
		lastRefill:   time.Now(),
	}
}

func (b *TokenBucket) refillLocked(now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * b.refillPerSec
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastRefill = now
}

// TryAcquire debits cost tokens if available, without blocking.
func (b *TokenBucket) TryAcquire(cost float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked(time.Now())
	if b.tokens >= cost {
		b.tokens -= cost
		return true
	}
	return false
}

// Acquire debits cost tokens, blocking until enough accumulate or ctx is
// done. The wait sleeps for the elapsed-time deficit rather than polling.
// Returns ErrRateLimitTimeout when ctx expires first.
func (b *TokenBucket) Acquire(ctx context.Context, cost float64) error {
	if cost > b.capacity {
		return &Error{
			Type:    ErrorTypeValidation,
			Message: fmt.Sprintf("requested cost %.2f exceeds bucket capacity %.2f", cost, b.capacity),
		}
	}

	for {
		b.mu.Lock()
		now := time.Now()
		b.refillLocked(now)
		if b.tokens >= cost {
			b.tokens -= cost
			b.mu.Unlock()
			return nil
		}
		deficit := cost - b.tokens
		b.mu.Unlock()

		// A bucket that never refills cannot satisfy the deficit; failing
		// here beats polling until the deadline.
		if b.refillPerSec <= 0 {
			return &Error{
				Type:    ErrorTypeValidation,
				Message: fmt.Sprintf("bucket does not refill; %.2f tokens can never accumulate", deficit),
			}
		}

		wait := time.Duration(deficit / b.refillPerSec * float64(time.Second))
		if wait < time.Millisecond {
			wait = time.Millisecond
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
			// Re-check under the lock; a concurrent caller may have taken
			// the tokens this wait accumulated.
		case <-ctx.Done():
			timer.Stop()
			return &Error{
				Type:    ErrorTypeRateLimitTimeout,
				Message: "rate limit admission wait exceeded deadline",
				Cause:   ctx.Err(),
			}
		}
	}
}

// Tokens reports the currently available tokens after a lazy refill.
func (b *TokenBucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked(time.Now())
	return b.tokens
}

// Capacity reports the bucket's configured capacity.
func (b *TokenBucket) Capacity() float64 {
	return b.capacity
}
