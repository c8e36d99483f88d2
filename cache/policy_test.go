package cache

import (
	"testing"
	"time"
)

func TestPolicy_DefaultPolicy(t *testing.T) {
	p := DefaultPolicy()

	if p.DefaultTTL != time.Hour {
		t.Errorf("DefaultTTL = %v, want 1h", p.DefaultTTL)
	}
	if p.MaxTTL != 0 {
		t.Errorf("MaxTTL = %v, want 0", p.MaxTTL)
	}
	if got := p.EffectiveTTL(NamespaceOCR, 0); got != 24*time.Hour {
		t.Errorf("ocr TTL = %v, want 24h", got)
	}
	if got := p.EffectiveTTL(NamespaceAnalysis, 0); got != time.Hour {
		t.Errorf("analysis TTL = %v, want 1h", got)
	}
	if got := p.EffectiveTTL(NamespacePath, 0); got != time.Hour {
		t.Errorf("path TTL = %v, want 1h", got)
	}
}

func TestPolicy_TTLMatrix(t *testing.T) {
	tests := []struct {
		name      string
		policy    Policy
		namespace string
		override  time.Duration
		want      time.Duration
	}{
		{
			name:      "override wins",
			policy:    DefaultPolicy(),
			namespace: NamespaceOCR,
			override:  time.Minute,
			want:      time.Minute,
		},
		{
			name:      "negative override falls back to namespace",
			policy:    DefaultPolicy(),
			namespace: NamespaceOCR,
			override:  -time.Second,
			want:      24 * time.Hour,
		},
		{
			name:      "unknown namespace uses default",
			policy:    DefaultPolicy(),
			namespace: "custom",
			want:      time.Hour,
		},
		{
			name:      "clamped to max",
			policy:    Policy{DefaultTTL: time.Minute, MaxTTL: 2 * time.Hour, NamespaceTTLs: map[string]time.Duration{NamespaceOCR: 24 * time.Hour}},
			namespace: NamespaceOCR,
			want:      2 * time.Hour,
		},
		{
			name:      "override clamped to max",
			policy:    Policy{DefaultTTL: time.Minute, MaxTTL: time.Hour},
			namespace: NamespaceAnalysis,
			override:  3 * time.Hour,
			want:      time.Hour,
		},
		{
			name:      "zero policy yields zero",
			policy:    Policy{},
			namespace: NamespaceAnalysis,
			want:      0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.EffectiveTTL(tt.namespace, tt.override); got != tt.want {
				t.Errorf("EffectiveTTL(%q, %v) = %v, want %v", tt.namespace, tt.override, got, tt.want)
			}
		})
	}
}

func TestPolicy_WithNamespaceTTL(t *testing.T) {
	base := DefaultPolicy()
	custom := base.WithNamespaceTTL(NamespaceAnalysis, 10*time.Minute)

	if got := custom.EffectiveTTL(NamespaceAnalysis, 0); got != 10*time.Minute {
		t.Errorf("custom analysis TTL = %v, want 10m", got)
	}
	if got := base.EffectiveTTL(NamespaceAnalysis, 0); got != time.Hour {
		t.Errorf("base policy was mutated: analysis TTL = %v, want 1h", got)
	}
}
