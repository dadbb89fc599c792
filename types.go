package intention

import (
	"context"
	"time"
)

// Payload is the provider-ready request body produced by a Template. The core
// treats it as opaque bytes; only the Fingerprinter inspects it, and only to
// canonicalize JSON for identity purposes.
type Payload []byte

// ModelParams carries the model-level knobs that participate in request
// identity. Equal logical requests with different params must not collide.
type ModelParams struct {
	Model       string         `json:"model,omitempty"`
	Temperature float64        `json:"temperature,omitempty"`
	MaxTokens   int            `json:"max_tokens,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// Action is a logical request: a template name, the input it renders, and the
// model parameters to dispatch with. Provider selects the adapter by ID and
// falls back to the coordinator default when empty.
type Action struct {
	Template string
	Provider string
	Input    map[string]any
	Params   ModelParams
}

// Template renders a user action into a provider-ready payload plus the schema
// the response must satisfy. Render is expected to be pure.
type Template interface {
	Name() string
	Version() string
	Render(input map[string]any) (Payload, *ResponseSchema, error)
}

// Optional Template refinements. The coordinator probes for these and falls
// back to its configured defaults when a template does not implement them.
type (
	// TTLAdviser supplies a per-template cache freshness window.
	TTLAdviser interface{ CacheTTL() time.Duration }
	// RetryAdviser bounds retry attempts for a template's requests.
	RetryAdviser interface{ MaxRetries() int }
	// CostEstimator supplies the advisory cost used for budget pre-checks.
	CostEstimator interface{ EstimateCost() float64 }
)

// Provider is the adapter capability the core depends on: send a payload,
// receive a raw response or a classified *ProviderError.
type Provider interface {
	ID() string
	Send(ctx context.Context, payload Payload) (*ProviderResponse, error)
}

// ProviderResponse is the raw outcome of one provider call. Cost is the actual
// spend as accounted by the adapter; the core does not compute it.
type ProviderResponse struct {
	Raw   []byte
	Model string
	Cost  float64
	Meta  map[string]any
}

// ValidatedResponse is what Execute hands back to callers: the raw provider
// output plus the schema-validated fields parsed from it.
type ValidatedResponse struct {
	Fingerprint Fingerprint    `json:"fingerprint"`
	Provider    string         `json:"provider"`
	Template    string         `json:"template"`
	Raw         []byte         `json:"raw"`
	Fields      map[string]any `json:"fields"`
	Cost        float64        `json:"cost"`
	Repaired    bool           `json:"repaired,omitempty"`
	Cached      bool           `json:"cached,omitempty"`
}

// clone returns a copy whose Fields map and Raw slice are independent of the
// receiver, so callers mutating a response cannot pollute the cached entry.
func (r *ValidatedResponse) clone() *ValidatedResponse {
	cp := *r
	if r.Fields != nil {
		cp.Fields = make(map[string]any, len(r.Fields))
		for k, v := range r.Fields {
			cp.Fields[k] = v
		}
	}
	if r.Raw != nil {
		cp.Raw = append([]byte(nil), r.Raw...)
	}
	return &cp
}

// CacheEntry is a stored response. Owned exclusively by the Store; mutated
// only through Put/Invalidate.
type CacheEntry struct {
	Fingerprint Fingerprint        `json:"fingerprint"`
	Response    *ValidatedResponse `json:"response"`
	CreatedAt   time.Time          `json:"created_at"`
	ExpiresAt   time.Time          `json:"expires_at"`
	Version     int                `json:"version"`
}

// Store is the pluggable cache backend contract. A Get whose entry has passed
// ExpiresAt is a miss and the entry is lazily evicted. Implementations decide
// their own consistency; the coordinator is agnostic to which backend is used.
type Store interface {
	Get(ctx context.Context, fp Fingerprint) (*CacheEntry, bool)
	Put(ctx context.Context, fp Fingerprint, entry *CacheEntry, ttl time.Duration)
	Invalidate(ctx context.Context, fp Fingerprint)
	InvalidatePrefix(ctx context.Context, prefix string)
	Clear(ctx context.Context)
}

// Context keys for per-request execution control
type contextKey string

const execControlKey contextKey = "intention_exec_control"

// ExecControl holds per-request overrides recognized by Execute. The overall
// deadline is the context deadline itself.
type ExecControl struct {
	BypassCache  bool
	ForceRefresh bool
	TTL          time.Duration
}

// WithBypassCache skips both cache lookup and cache store for this request.
func WithBypassCache(ctx context.Context) context.Context {
	ec := execControlFrom(ctx)
	ec.BypassCache = true
	return context.WithValue(ctx, execControlKey, ec)
}

// WithForceRefresh skips the cache lookup but stores the fresh result.
func WithForceRefresh(ctx context.Context) context.Context {
	ec := execControlFrom(ctx)
	ec.ForceRefresh = true
	return context.WithValue(ctx, execControlKey, ec)
}

// WithCacheTTL overrides the entry TTL used when this request's result is stored.
func WithCacheTTL(ctx context.Context, ttl time.Duration) context.Context {
	ec := execControlFrom(ctx)
	ec.TTL = ttl
	return context.WithValue(ctx, execControlKey, ec)
}

func execControlFrom(ctx context.Context) ExecControl {
	if ec, ok := ctx.Value(execControlKey).(ExecControl); ok {
		return ec
	}
	return ExecControl{}
}

// Option represents a configuration option
type Option func(*Coordinator)

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
	SuccessThreshold int
}

// CircuitState represents the state of the circuit breaker
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)
