package intention

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestFallbackRateLimitKeepsProviderLimits(t *testing.T) {
	provider := &stubProvider{send: okResponse(1)}
	// The lax fallback arrives after the tight per-provider limit; the
	// tight limit must survive.
	c := newTestCoordinator(provider,
		WithRateLimit("stub", 1, 0.001),
		WithFallbackRateLimit(1000, 1000),
	)

	if _, err := c.Execute(context.Background(), askAction("first"), "s"); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Execute(ctx, askAction("second"), "s")
	if !errors.Is(err, ErrRateLimitTimeout) {
		t.Errorf("tight provider limit not enforced, got %v", err)
	}
	if provider.callCount() != 1 {
		t.Errorf("provider calls = %d, want 1", provider.callCount())
	}

	// The fallback still governs providers without their own bucket.
	limiter, name := c.limiters.For("other")
	if limiter == nil || name != "default" {
		t.Error("fallback bucket missing for unregistered provider")
	}
	if limiter.Capacity() != 1000 {
		t.Errorf("fallback capacity = %.2f, want 1000", limiter.Capacity())
	}
}

func TestDefaultBudgetKeepsScopeBudgets(t *testing.T) {
	provider := &stubProvider{send: okResponse(1)}
	// Changing the default budget after a scope budget must not erase it.
	c := newTestCoordinator(provider,
		WithBudget("capped", 10, time.Hour),
		WithDefaultBudget(0, 0),
		WithDefaultCostEstimate(20),
	)

	_, err := c.Execute(context.Background(), askAction("q"), "capped")
	if !errors.Is(err, ErrBudgetExceeded) {
		t.Errorf("scope budget not enforced, got %v", err)
	}
	if provider.callCount() != 0 {
		t.Errorf("provider calls = %d, want 0", provider.callCount())
	}
}

func TestDefaultBudgetAppliesToNewScopes(t *testing.T) {
	c := newTestCoordinator(&stubProvider{send: okResponse(1)},
		WithDefaultBudget(30, time.Hour),
	)

	_, limit, _ := c.Costs().Snapshot("fresh")
	if limit != 30 {
		t.Errorf("limit = %.2f, want default 30", limit)
	}
}

func TestWithRedisStoreLoggerOrder(t *testing.T) {
	logger := &recordingLogger{}
	client := redis.NewClient(&redis.Options{})

	// The logger arrives after the store option; the store must still
	// pick it up.
	c := newTestCoordinator(&stubProvider{send: okResponse(1)},
		WithRedisStore(client),
		WithLogger(logger),
	)

	rs, ok := c.store.(*RedisStore)
	if !ok {
		t.Fatalf("store is %T, want *RedisStore", c.store)
	}
	if rs.logger != logger {
		t.Error("redis store did not resolve the coordinator logger")
	}
}

func TestValidateConfigurationRejectsBadLimiter(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"zero refill", WithRateLimit("p", 10, 0)},
		{"negative refill", WithRateLimit("p", 10, -1)},
		{"zero capacity", WithRateLimit("p", 0, 1)},
		{"bad fallback", WithFallbackRateLimit(10, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCoordinator(&stubProvider{send: okResponse(1)}, tt.opt)
			if c.IsValid() {
				t.Fatal("configuration with a non-refilling limiter validated")
			}
			if err := c.ValidationError(); !strings.Contains(err.Error(), "rate limiter") {
				t.Errorf("ValidationError() = %v", err)
			}
		})
	}
}
