package intention

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector provides Prometheus metrics for the request lifecycle and
// each resilience layer. All recorder methods are nil-safe so instrumentation
// points never need guarding.
type MetricsCollector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec
	cacheSize   *prometheus.GaugeVec

	flightShared *prometheus.CounterVec

	rateLimiterTokens *prometheus.GaugeVec

	retriesTotal *prometheus.CounterVec
	repairsTotal *prometheus.CounterVec

	budgetRefusals *prometheus.CounterVec
	costSpent      *prometheus.CounterVec

	circuitBreakerState *prometheus.GaugeVec

	errorsTotal *prometheus.CounterVec

	registry prometheus.Registerer
}

// NewMetricsCollector creates a collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using the supplied registerer.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	return &MetricsCollector{
		requestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "intention_requests_total",
				Help: "Total number of coordinator executions",
			},
			[]string{"provider", "template", "outcome"},
		),
		requestDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "intention_request_duration_seconds",
				Help:    "Duration of coordinator executions in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "template", "outcome"},
		),
		requestsInFlight: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "intention_requests_in_flight",
				Help: "Number of executions currently in flight",
			},
			[]string{"provider", "template"},
		),
		cacheHits: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "intention_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"provider", "template"},
		),
		cacheMisses: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "intention_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"provider", "template"},
		),
		cacheSize: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "intention_cache_size",
				Help: "Current number of entries in the cache store",
			},
			[]string{"store"},
		),
		flightShared: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "intention_singleflight_shared_total",
				Help: "Total number of callers that attached to an in-flight request",
			},
			[]string{"provider", "template"},
		),
		rateLimiterTokens: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "intention_rate_limiter_tokens",
				Help: "Current number of available rate limiter tokens",
			},
			[]string{"provider"},
		),
		retriesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "intention_retries_total",
				Help: "Total number of retry attempts",
			},
			[]string{"provider", "kind"},
		),
		repairsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "intention_repairs_total",
				Help: "Total number of response repair attempts",
			},
			[]string{"template", "outcome"},
		),
		budgetRefusals: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "intention_budget_refusals_total",
				Help: "Total number of dispatches refused by budget pre-check",
			},
			[]string{"scope"},
		),
		costSpent: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "intention_cost_spent_total",
				Help: "Total cost committed per budget scope",
			},
			[]string{"scope"},
		),
		circuitBreakerState: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "intention_circuit_breaker_state",
				Help: "Current state of provider circuit breaker (0=closed, 1=open, 2=half-open)",
			},
			[]string{"provider"},
		),
		errorsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "intention_errors_total",
				Help: "Total number of classified errors",
			},
			[]string{"type", "provider"},
		),
		registry: registry,
	}
}

// RecordRequest records execution count and duration.
func (mc *MetricsCollector) RecordRequest(provider, template, outcome string, duration time.Duration) {
	if mc == nil {
		return
	}
	mc.requestsTotal.WithLabelValues(provider, template, outcome).Inc()
	mc.requestDuration.WithLabelValues(provider, template, outcome).Observe(duration.Seconds())
}

// RecordRequestStart increments the in-flight gauge.
func (mc *MetricsCollector) RecordRequestStart(provider, template string) {
	if mc == nil {
		return
	}
	mc.requestsInFlight.WithLabelValues(provider, template).Inc()
}

// RecordRequestEnd decrements the in-flight gauge.
func (mc *MetricsCollector) RecordRequestEnd(provider, template string) {
	if mc == nil {
		return
	}
	mc.requestsInFlight.WithLabelValues(provider, template).Dec()
}

// RecordCacheHit increments the cache hit counter.
func (mc *MetricsCollector) RecordCacheHit(provider, template string) {
	if mc == nil {
		return
	}
	mc.cacheHits.WithLabelValues(provider, template).Inc()
}

// RecordCacheMiss increments the cache miss counter.
func (mc *MetricsCollector) RecordCacheMiss(provider, template string) {
	if mc == nil {
		return
	}
	mc.cacheMisses.WithLabelValues(provider, template).Inc()
}

// RecordCacheSize sets the cache size gauge.
func (mc *MetricsCollector) RecordCacheSize(store string, size int) {
	if mc == nil {
		return
	}
	mc.cacheSize.WithLabelValues(store).Set(float64(size))
}

// RecordFlightShared counts a caller that attached to an in-flight request.
func (mc *MetricsCollector) RecordFlightShared(provider, template string) {
	if mc == nil {
		return
	}
	mc.flightShared.WithLabelValues(provider, template).Inc()
}

// RecordRateLimiterTokens sets the available token gauge for a provider.
func (mc *MetricsCollector) RecordRateLimiterTokens(provider string, tokens float64) {
	if mc == nil {
		return
	}
	mc.rateLimiterTokens.WithLabelValues(provider).Set(tokens)
}

// RecordRetry increments the retry counter for a failure kind.
func (mc *MetricsCollector) RecordRetry(provider string, kind ErrorKind) {
	if mc == nil {
		return
	}
	mc.retriesTotal.WithLabelValues(provider, kind.String()).Inc()
}

// RecordRepair counts a repair attempt outcome ("repaired" or "failed").
func (mc *MetricsCollector) RecordRepair(template, outcome string) {
	if mc == nil {
		return
	}
	mc.repairsTotal.WithLabelValues(template, outcome).Inc()
}

// RecordBudgetRefusal counts a dispatch refused by the budget pre-check.
func (mc *MetricsCollector) RecordBudgetRefusal(scope string) {
	if mc == nil {
		return
	}
	mc.budgetRefusals.WithLabelValues(scope).Inc()
}

// RecordCostSpent adds committed spend for a scope.
func (mc *MetricsCollector) RecordCostSpent(scope string, cost float64) {
	if mc == nil {
		return
	}
	mc.costSpent.WithLabelValues(scope).Add(cost)
}

// RecordCircuitBreakerState sets the breaker state gauge for a provider.
func (mc *MetricsCollector) RecordCircuitBreakerState(provider string, state CircuitState) {
	if mc == nil {
		return
	}
	mc.circuitBreakerState.WithLabelValues(provider).Set(float64(state))
}

// RecordError increments the error counter by classified type.
func (mc *MetricsCollector) RecordError(errorType, provider string) {
	if mc == nil {
		return
	}
	mc.errorsTotal.WithLabelValues(errorType, provider).Inc()
}

// Registry exposes the registerer metrics were registered on.
func (mc *MetricsCollector) Registry() prometheus.Registerer {
	return mc.registry
}
