package intention

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nelson-n/intention/internal/flight"
)

// Coordinator is the single entry point callers invoke with a logical
// request. It layers response caching, single-flight coalescing, per-provider
// rate limiting and circuit breaking, budget enforcement and classified
// retries around the provider adapters. It is safe for concurrent use.
type Coordinator struct {
	providers       map[string]Provider
	defaultProvider string

	templates *Registry

	store      Store
	defaultTTL time.Duration

	limiters      *LimiterRegistry
	admissionCost float64

	costs           *CostTracker
	defaultEstimate float64

	retryPolicy *RetryPolicy
	maxRetries  int
	repairer    *Repairer

	breakerConfig *CircuitBreakerConfig
	breakerMu     sync.Mutex
	breakers      map[string]*CircuitBreaker

	flights *flight.Group

	metrics *MetricsCollector
	logger  Logger
	debug   *DebugConfig

	validationError error
}

// New constructs a Coordinator using the provided functional options. A best
// effort validation is performed; call IsValid / ValidationError for errors.
func New(options ...Option) *Coordinator {
	c := &Coordinator{
		providers:       map[string]Provider{},
		templates:       NewRegistry(),
		store:           NewMemoryStore(),
		defaultTTL:      5 * time.Minute,
		limiters:        NewLimiterRegistry(nil),
		admissionCost:   1,
		costs:           NewCostTracker(0, 0),
		defaultEstimate: 1,
		retryPolicy:     NewRetryPolicy(100*time.Millisecond, 10*time.Second, 2.0, 0.1),
		maxRetries:      3,
		repairer:        NewRepairer(2),
		breakers:        map[string]*CircuitBreaker{},
		flights:         flight.New(),
		debug:           DefaultDebugConfig(),
	}

	for _, option := range options {
		option(c)
	}

	// The logger may have been configured after the store option ran.
	if rs, ok := c.store.(*RedisStore); ok && rs.logger == nil {
		rs.logger = c.logger
	}

	if err := c.ValidateConfiguration(); err != nil {
		c.validationError = err
	}

	return c
}

// IsValid reports whether configuration validation passed at construction.
func (c *Coordinator) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *Coordinator) ValidationError() error {
	return c.validationError
}

// Templates exposes the template registry for registration.
func (c *Coordinator) Templates() *Registry {
	return c.templates
}

// Costs exposes the cost tracker, for budget administration and inspection.
func (c *Coordinator) Costs() *CostTracker {
	return c.costs
}

// InvalidateProvider removes every cached response for a provider.
func (c *Coordinator) InvalidateProvider(ctx context.Context, providerID string) {
	c.store.InvalidatePrefix(ctx, ProviderPrefix(providerID))
}

// InvalidateTemplate removes every cached response for one template version
// under a provider.
func (c *Coordinator) InvalidateTemplate(ctx context.Context, providerID, template, version string) {
	c.store.InvalidatePrefix(ctx, TemplatePrefix(providerID, template, version))
}

// Execute runs a logical request end to end: render, fingerprint, cache
// lookup, single-flight admission, rate limiting, budget pre-check, dispatch
// with retries, cost commit and cache store. Concurrent callers with the same
// fingerprint share one provider call and receive the same outcome. Respects
// per-request controls installed by WithBypassCache / WithForceRefresh /
// WithCacheTTL; the overall deadline is the ctx deadline.
func (c *Coordinator) Execute(ctx context.Context, action Action, scope string) (*ValidatedResponse, error) {
	start := time.Now()

	var requestID string
	if c.debug != nil && c.debug.Enabled && c.debug.RequestIDGen != nil {
		requestID = c.debug.RequestIDGen()
	}

	tpl, ok := c.templates.Get(action.Template)
	if !ok {
		return nil, &Error{
			Type:    ErrorTypeTemplate,
			Message: fmt.Sprintf("template %q is not registered", action.Template),
			Cause:   ErrTemplateNotFound,
		}
	}

	providerID := action.Provider
	if providerID == "" {
		providerID = c.defaultProvider
	}
	provider, ok := c.providers[providerID]
	if !ok {
		return nil, &Error{
			Type:    ErrorTypeValidation,
			Message: fmt.Sprintf("provider %q is not registered", providerID),
			Cause:   ErrProviderNotFound,
		}
	}

	payload, schema, err := tpl.Render(action.Input)
	if err != nil {
		c.metrics.RecordError(ErrorTypeTemplate, providerID)
		return nil, err
	}

	fp, err := NewFingerprint(provider.ID(), tpl.Name(), tpl.Version(), payload, action.Params)
	if err != nil {
		c.metrics.RecordError(ErrorTypeTemplate, providerID)
		return nil, err
	}

	if c.debug != nil && c.debug.Enabled && c.debug.LogRequests && c.logger != nil {
		c.logger.Debug("starting request",
			"requestID", requestID, "template", tpl.Name(), "provider", providerID,
			"scope", scope, "fingerprint", string(fp))
	}

	c.metrics.RecordRequestStart(providerID, tpl.Name())
	defer c.metrics.RecordRequestEnd(providerID, tpl.Name())

	ec := execControlFrom(ctx)

	if !ec.BypassCache && !ec.ForceRefresh {
		if entry, found := c.store.Get(ctx, fp); found {
			if c.debug != nil && c.debug.Enabled && c.debug.LogCache && c.logger != nil {
				c.logger.Debug("cache hit", "requestID", requestID, "fingerprint", string(fp))
			}
			c.metrics.RecordCacheHit(providerID, tpl.Name())
			c.metrics.RecordRequest(providerID, tpl.Name(), "cache_hit", time.Since(start))

			cached := entry.Response.clone()
			cached.Cached = true
			return cached, nil
		}
		c.metrics.RecordCacheMiss(providerID, tpl.Name())
		if c.debug != nil && c.debug.Enabled && c.debug.LogCache && c.logger != nil {
			c.logger.Debug("cache miss", "requestID", requestID, "fingerprint", string(fp))
		}
	}

	val, err, shared := c.flights.Do(ctx, string(fp), func() (any, error) {
		return c.dispatch(ctx, dispatchRequest{
			requestID: requestID,
			provider:  provider,
			template:  tpl,
			payload:   payload,
			schema:    schema,
			fp:        fp,
			scope:     scope,
			control:   ec,
		})
	})
	if shared {
		c.metrics.RecordFlightShared(providerID, tpl.Name())
		if c.debug != nil && c.debug.Enabled && c.debug.LogRequests && c.logger != nil {
			c.logger.Debug("attached to in-flight request", "requestID", requestID, "fingerprint", string(fp))
		}
	}

	outcome := "success"
	if err != nil {
		outcome = errorOutcome(err)
		c.metrics.RecordError(outcome, providerID)
	}
	c.metrics.RecordRequest(providerID, tpl.Name(), outcome, time.Since(start))

	if err != nil {
		return nil, err
	}
	return val.(*ValidatedResponse), nil
}

// dispatchRequest bundles everything the owner of a single-flight entry needs.
type dispatchRequest struct {
	requestID string
	provider  Provider
	template  Template
	payload   Payload
	schema    *ResponseSchema
	fp        Fingerprint
	scope     string
	control   ExecControl
}

// dispatch performs admission, the provider call with retries, cost commit
// and cache store. It runs exactly once per in-flight fingerprint.
func (c *Coordinator) dispatch(ctx context.Context, req dispatchRequest) (*ValidatedResponse, error) {
	providerID := req.provider.ID()

	// Rate-limit admission. Blocks until tokens accumulate or the caller's
	// deadline expires.
	if limiter, name := c.limiters.For(providerID); limiter != nil {
		if err := limiter.Acquire(ctx, c.admissionCost); err != nil {
			if c.debug != nil && c.debug.Enabled && c.debug.LogRateLimit && c.logger != nil {
				c.logger.Warn("rate limit admission failed", "requestID", req.requestID, "provider", providerID)
			}
			return nil, c.annotate(err, req, nil)
		}
		c.metrics.RecordRateLimiterTokens(name, limiter.Tokens())
	}

	// Advisory budget pre-check.
	estimate := c.estimateFor(req.template)
	if err := c.costs.PreCheck(req.scope, estimate); err != nil {
		c.metrics.RecordBudgetRefusal(req.scope)
		return nil, c.annotate(err, req, nil)
	}

	breaker := c.breakerFor(providerID)
	if breaker != nil && !breaker.Allow() {
		if c.debug != nil && c.debug.Enabled && c.debug.LogCircuit && c.logger != nil {
			c.logger.Warn("circuit breaker open", "requestID", req.requestID, "provider", providerID)
		}
		c.metrics.RecordCircuitBreakerState(providerID, breaker.State())
		return nil, &Error{
			Type:        ErrorTypeCircuitOpen,
			Message:     "provider circuit breaker is open",
			Cause:       ErrCircuitOpen,
			Fingerprint: req.fp,
			Provider:    providerID,
			Scope:       req.scope,
			Timestamp:   time.Now(),
		}
	}

	// A dispatched provider call is never forcibly interrupted: its result,
	// once obtained, is still cached and cost-committed even if the original
	// caller gave up. Caller cancellation only aborts waits between attempts.
	sendCtx := context.WithoutCancel(ctx)
	maxRetries := c.retriesFor(req.template)
	state := &RetryState{}

	for {
		resp, err := req.provider.Send(sendCtx, req.payload)
		if err == nil {
			return c.settle(sendCtx, req, resp, state, breaker)
		}

		if breaker != nil {
			breaker.RecordFailure()
			c.metrics.RecordCircuitBreakerState(providerID, breaker.State())
		}

		delay, retry := c.retryPolicy.Next(state, err, maxRetries)
		if !retry {
			return nil, c.annotate(wrapProviderError(err), req, state)
		}

		c.metrics.RecordRetry(providerID, state.LastKind)
		if c.debug != nil && c.debug.Enabled && c.debug.LogRetries && c.logger != nil {
			c.logger.Info("scheduling retry",
				"requestID", req.requestID, "provider", providerID,
				"attempt", state.Attempt, "maxRetries", maxRetries,
				"kind", state.LastKind.String(), "backoff", delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, c.annotate(&Error{
				Type:    wrapKind(state.LastKind),
				Message: "canceled while waiting to retry",
				Cause:   ctx.Err(),
			}, req, state)
		}
	}
}

// settle validates (and if necessary repairs) a provider response, commits
// its cost exactly once and stores the result. Runs after the attempt that
// ultimately produced a response.
func (c *Coordinator) settle(ctx context.Context, req dispatchRequest, resp *ProviderResponse, state *RetryState, breaker *CircuitBreaker) (*ValidatedResponse, error) {
	providerID := req.provider.ID()

	fields, repaired, verr := c.repairer.Validate(resp.Raw, req.schema)
	if repaired {
		c.metrics.RecordRepair(req.template.Name(), "repaired")
	}
	if verr != nil {
		c.metrics.RecordRepair(req.template.Name(), "failed")
		if breaker != nil {
			breaker.RecordFailure()
			c.metrics.RecordCircuitBreakerState(providerID, breaker.State())
		}
		// The call happened; its spend is accounted even though the response
		// is unusable.
		c.commitCost(req.scope, resp.Cost)
		return nil, c.annotate(&Error{
			Type:        ErrorTypeRepairFailed,
			Message:     "response unrepairable after bounded attempts",
			Cause:       verr,
			RawResponse: resp.Raw,
		}, req, state)
	}

	if breaker != nil {
		breaker.RecordSuccess()
		c.metrics.RecordCircuitBreakerState(providerID, breaker.State())
	}

	over := c.commitCost(req.scope, resp.Cost)
	if over && c.logger != nil {
		c.logger.Warn("scope over budget after commit", "scope", req.scope, "cost", resp.Cost)
	}

	result := &ValidatedResponse{
		Fingerprint: req.fp,
		Provider:    providerID,
		Template:    req.template.Name(),
		Raw:         resp.Raw,
		Fields:      fields,
		Cost:        resp.Cost,
		Repaired:    repaired,
	}

	if !req.control.BypassCache {
		ttl := c.ttlFor(req.template, req.control)
		// Store a copy: the caller owns the returned response.
		c.store.Put(ctx, req.fp, &CacheEntry{Response: result.clone(), Version: 1}, ttl)
		if ms, ok := c.store.(*MemoryStore); ok {
			c.metrics.RecordCacheSize("memory", ms.Len())
		}
		if c.debug != nil && c.debug.Enabled && c.debug.LogCache && c.logger != nil {
			c.logger.Debug("response cached", "requestID", req.requestID, "fingerprint", string(req.fp), "ttl", ttl)
		}
	}

	return result, nil
}

func (c *Coordinator) commitCost(scope string, cost float64) bool {
	over := c.costs.Commit(scope, cost)
	c.metrics.RecordCostSpent(scope, cost)
	return over
}

func (c *Coordinator) breakerFor(providerID string) *CircuitBreaker {
	if c.breakerConfig == nil {
		return nil
	}
	c.breakerMu.Lock()
	defer c.breakerMu.Unlock()
	if cb, ok := c.breakers[providerID]; ok {
		return cb
	}
	cb := NewCircuitBreaker(*c.breakerConfig)
	c.breakers[providerID] = cb
	return cb
}

func (c *Coordinator) estimateFor(tpl Template) float64 {
	if ce, ok := tpl.(CostEstimator); ok {
		if est := ce.EstimateCost(); est > 0 {
			return est
		}
	}
	return c.defaultEstimate
}

func (c *Coordinator) ttlFor(tpl Template, ec ExecControl) time.Duration {
	if ec.TTL > 0 {
		return ec.TTL
	}
	if ta, ok := tpl.(TTLAdviser); ok {
		if ttl := ta.CacheTTL(); ttl > 0 {
			return ttl
		}
	}
	return c.defaultTTL
}

func (c *Coordinator) retriesFor(tpl Template) int {
	if ra, ok := tpl.(RetryAdviser); ok {
		if n := ra.MaxRetries(); n > 0 {
			return n
		}
	}
	return c.maxRetries
}

// annotate fills request context into a classified error before it surfaces.
func (c *Coordinator) annotate(err error, req dispatchRequest, state *RetryState) error {
	e, ok := err.(*Error)
	if !ok {
		return err
	}
	if e.Fingerprint == "" {
		e.Fingerprint = req.fp
	}
	if e.Provider == "" {
		e.Provider = req.provider.ID()
	}
	if e.Scope == "" {
		e.Scope = req.scope
	}
	if state != nil {
		e.Attempt = state.Attempt
		e.MaxRetries = c.retriesFor(req.template)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	return e
}

// wrapProviderError converts a terminal dispatch error into the caller-facing
// tagged form.
func wrapProviderError(err error) *Error {
	kind := Classify(err)
	return &Error{
		Type:    wrapKind(kind),
		Message: "provider call failed",
		Cause:   err,
	}
}

func wrapKind(kind ErrorKind) string {
	switch kind {
	case KindRateLimited:
		return ErrorTypeProviderRateLimited
	case KindFatal:
		return ErrorTypeProviderFatal
	case KindMalformed:
		return ErrorTypeRepairFailed
	default:
		return ErrorTypeProviderTransient
	}
}

// errorOutcome maps an error onto a metrics outcome label.
func errorOutcome(err error) string {
	if e, ok := err.(*Error); ok {
		return e.Type
	}
	return "Internal"
}
