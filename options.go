package intention

import (
	"fmt"
	"time"

	"github.com/nelson-n/intention/internal/backoff"
	"github.com/redis/go-redis/v9"
)

// WithProvider registers a provider adapter. The first registered provider
// becomes the default.
func WithProvider(p Provider) Option {
	return func(c *Coordinator) {
		c.providers[p.ID()] = p
		if c.defaultProvider == "" {
			c.defaultProvider = p.ID()
		}
	}
}

// WithDefaultProvider selects which registered provider handles actions that
// name none.
func WithDefaultProvider(providerID string) Option {
	return func(c *Coordinator) {
		c.defaultProvider = providerID
	}
}

// WithTemplate registers a template.
func WithTemplate(t Template) Option {
	return func(c *Coordinator) {
		c.templates.Register(t)
	}
}

// WithStore sets a custom cache store implementation.
func WithStore(store Store) Option {
	return func(c *Coordinator) {
		c.store = store
	}
}

// WithMemoryStore enables the in-process cache bounded to maxEntries
// (0 for unbounded).
func WithMemoryStore(maxEntries int) Option {
	return func(c *Coordinator) {
		if maxEntries > 0 {
			c.store = NewMemoryStore(WithMaxEntries(maxEntries))
		} else {
			c.store = NewMemoryStore()
		}
	}
}

// WithRedisStore uses a shared Redis instance as the cache store. The store
// logs through the coordinator's logger, whichever order the options arrive in.
func WithRedisStore(client *redis.Client) Option {
	return func(c *Coordinator) {
		c.store = NewRedisStore(client, c.logger)
	}
}

// WithDefaultTTL sets the cache TTL used when neither the template nor the
// request supplies one.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(c *Coordinator) {
		c.defaultTTL = ttl
	}
}

// WithRateLimit installs a token bucket for one provider: capacity tokens,
// refilling at refillPerSec tokens/second.
func WithRateLimit(providerID string, capacity, refillPerSec float64) Option {
	return func(c *Coordinator) {
		c.limiters.Register(providerID, NewTokenBucket(capacity, refillPerSec))
	}
}

// WithFallbackRateLimit installs the bucket used by providers without their
// own limit. Per-provider limits installed with WithRateLimit are kept
// regardless of option order.
func WithFallbackRateLimit(capacity, refillPerSec float64) Option {
	return func(c *Coordinator) {
		c.limiters.SetFallback(NewTokenBucket(capacity, refillPerSec))
	}
}

// WithAdmissionCost sets the token cost debited per provider call. Batch
// dispatches can weigh heavier than 1.
func WithAdmissionCost(cost float64) Option {
	return func(c *Coordinator) {
		c.admissionCost = cost
	}
}

// WithBudget installs a spend cap for one scope over the given period.
func WithBudget(scope string, limit float64, period time.Duration) Option {
	return func(c *Coordinator) {
		c.costs.SetBudget(scope, limit, period)
	}
}

// WithDefaultBudget sets the budget unknown scopes start with. Scope budgets
// installed with WithBudget are kept regardless of option order.
func WithDefaultBudget(limit float64, period time.Duration) Option {
	return func(c *Coordinator) {
		c.costs.SetDefaults(limit, period)
	}
}

// WithDefaultCostEstimate sets the advisory pre-check cost used when a
// template supplies none.
func WithDefaultCostEstimate(estimate float64) Option {
	return func(c *Coordinator) {
		c.defaultEstimate = estimate
	}
}

// WithMaxRetries sets the maximum number of retry attempts.
func WithMaxRetries(n int) Option {
	return func(c *Coordinator) {
		c.maxRetries = n
	}
}

// WithRetryPolicy sets a custom retry policy.
func WithRetryPolicy(p *RetryPolicy) Option {
	return func(c *Coordinator) {
		c.retryPolicy = p
	}
}

// WithBackoff configures the retry backoff schedule.
func WithBackoff(initial, max time.Duration, multiplier, jitter float64) Option {
	return func(c *Coordinator) {
		c.retryPolicy = NewRetryPolicy(initial, max, multiplier, jitter)
	}
}

// WithBackoffStrategy configures the backoff schedule with a specific strategy.
func WithBackoffStrategy(initial, max time.Duration, multiplier, jitter float64, strategy backoff.Strategy) Option {
	return func(c *Coordinator) {
		c.retryPolicy = NewRetryPolicyWithStrategy(initial, max, multiplier, jitter, strategy)
	}
}

// WithRepairAttempts bounds structural repair passes for malformed responses.
func WithRepairAttempts(n int) Option {
	return func(c *Coordinator) {
		c.repairer = NewRepairer(n)
	}
}

// WithCircuitBreaker enables a per-provider circuit breaker with the given
// configuration.
func WithCircuitBreaker(config CircuitBreakerConfig) Option {
	return func(c *Coordinator) {
		cfg := config
		c.breakerConfig = &cfg
	}
}

// WithMetrics enables Prometheus metrics collection on the default registerer.
func WithMetrics() Option {
	return func(c *Coordinator) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector.
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Coordinator) {
		c.metrics = collector
	}
}

// WithLogger sets the logger for debug output.
func WithLogger(logger Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithDebug enables debug logging with default configuration.
func WithDebug() Option {
	return func(c *Coordinator) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
		if c.logger == nil {
			c.logger = NewDevelopmentLogger()
		}
	}
}

// WithDebugConfig sets custom debug configuration.
func WithDebugConfig(config *DebugConfig) Option {
	return func(c *Coordinator) {
		c.debug = config
	}
}

// WithRequestIDGenerator sets a custom function for generating request IDs.
func WithRequestIDGenerator(gen func() string) Option {
	return func(c *Coordinator) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.RequestIDGen = gen
	}
}

// ValidateConfiguration validates the coordinator configuration and returns
// an error if invalid.
func (c *Coordinator) ValidateConfiguration() error {
	var errs []string

	if len(c.providers) == 0 {
		errs = append(errs, "at least one provider must be registered")
	}
	if c.defaultProvider != "" {
		if _, ok := c.providers[c.defaultProvider]; !ok {
			errs = append(errs, fmt.Sprintf("default provider %q is not registered", c.defaultProvider))
		}
	}
	if c.maxRetries < 0 {
		errs = append(errs, "maxRetries must be non-negative")
	}
	if c.defaultTTL <= 0 {
		errs = append(errs, "defaultTTL must be positive")
	}
	if c.admissionCost <= 0 {
		errs = append(errs, "admissionCost must be positive")
	}
	if c.defaultEstimate < 0 {
		errs = append(errs, "defaultCostEstimate must be non-negative")
	}
	if c.store == nil {
		errs = append(errs, "cache store cannot be nil")
	}
	for name, bucket := range c.limiters.snapshot() {
		if bucket.capacity <= 0 {
			errs = append(errs, fmt.Sprintf("rate limiter %q: capacity must be positive", name))
		}
		if bucket.refillPerSec <= 0 {
			errs = append(errs, fmt.Sprintf("rate limiter %q: refill rate must be positive", name))
		}
	}
	if c.retryPolicy == nil {
		errs = append(errs, "retry policy cannot be nil")
	}
	if c.breakerConfig != nil {
		if c.breakerConfig.FailureThreshold < 0 {
			errs = append(errs, "circuitBreaker FailureThreshold must be non-negative")
		}
		if c.breakerConfig.RecoveryTimeout < 0 {
			errs = append(errs, "circuitBreaker RecoveryTimeout must be non-negative")
		}
	}
	if c.debug != nil && c.debug.Enabled && c.logger == nil {
		errs = append(errs, "logger must be set when debug is enabled")
	}

	if len(errs) > 0 {
		return &Error{
			Type:    ErrorTypeValidation,
			Message: "configuration validation failed",
			Cause:   fmt.Errorf("validation errors: %v", errs),
		}
	}
	return nil
}
