package cache

import "time"

// Policy configures per-namespace caching TTLs.
//
// TTLs are a caller convention: the cache itself only sees the duration it is
// handed on Set.
type Policy struct {
	// DefaultTTL is the TTL to use when neither an override nor a namespace TTL applies.
	DefaultTTL time.Duration

	// MaxTTL is the maximum allowed TTL. Larger TTLs are clamped to this.
	// If zero, no maximum is enforced.
	MaxTTL time.Duration

	// NamespaceTTLs holds the default TTL for each namespace.
	NamespaceTTLs map[string]time.Duration
}

// DefaultPolicy returns the default caching policy.
// OCR output never changes for a given image and lives for 24h; model output
// is treated as more perishable and lives for 1h.
func DefaultPolicy() Policy {
	return Policy{
		DefaultTTL: time.Hour,
		NamespaceTTLs: map[string]time.Duration{
			NamespaceOCR:      24 * time.Hour,
			NamespaceAnalysis: time.Hour,
			NamespacePath:     time.Hour,
		},
	}
}

// EffectiveTTL returns the TTL to use for namespace, applying defaults and clamping.
func (p Policy) EffectiveTTL(namespace string, override time.Duration) time.Duration {
	ttl := override
	if ttl <= 0 {
		ttl = p.NamespaceTTLs[namespace]
	}
	if ttl <= 0 {
		ttl = p.DefaultTTL
	}

	// Clamp to MaxTTL if set
	if p.MaxTTL > 0 && ttl > p.MaxTTL {
		ttl = p.MaxTTL
	}

	return ttl
}

// WithNamespaceTTL returns a copy of p with namespace's TTL set.
func (p Policy) WithNamespaceTTL(namespace string, ttl time.Duration) Policy {
	ttls := make(map[string]time.Duration, len(p.NamespaceTTLs)+1)
	for k, v := range p.NamespaceTTLs {
		ttls[k] = v
	}
	ttls[namespace] = ttl
	p.NamespaceTTLs = ttls
	return p
}
