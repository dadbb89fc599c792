package intention

import "sync"

// LimiterRegistry maps provider IDs to their token buckets. Providers without
// a registered bucket use the fallback; a nil fallback means no local rate
// limiting for that provider.
type LimiterRegistry struct {
	mu       sync.RWMutex
	limiters map[string]*TokenBucket
	fallback *TokenBucket
}

// NewLimiterRegistry creates a registry with an optional fallback bucket.
func NewLimiterRegistry(fallback *TokenBucket) *LimiterRegistry {
	return &LimiterRegistry{
		limiters: make(map[string]*TokenBucket),
		fallback: fallback,
	}
}

// Register adds a bucket for the given provider, replacing any existing one.
func (r *LimiterRegistry) Register(providerID string, bucket *TokenBucket) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limiters[providerID] = bucket
}

// SetFallback installs the bucket used by providers without their own limit,
// leaving registered per-provider buckets in place.
func (r *LimiterRegistry) SetFallback(bucket *TokenBucket) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = bucket
}

// For returns the bucket governing providerID, or the fallback when none is
// registered. The second return names the bucket for metrics labels.
func (r *LimiterRegistry) For(providerID string) (*TokenBucket, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if bucket, exists := r.limiters[providerID]; exists {
		return bucket, providerID
	}
	return r.fallback, "default"
}

// snapshot returns every configured bucket keyed by its metrics label, for
// configuration validation.
func (r *LimiterRegistry) snapshot() map[string]*TokenBucket {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]*TokenBucket, len(r.limiters)+1)
	for id, bucket := range r.limiters {
		out[id] = bucket
	}
	if r.fallback != nil {
		out["default"] = r.fallback
	}
	return out
}
