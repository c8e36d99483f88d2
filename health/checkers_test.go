package health

import (
	"context"
	"testing"
	"time"

	"github.com/jonwraymond/upstreamguard/cache"
	"github.com/jonwraymond/upstreamguard/monitor"
)

type fakeCache struct {
	entries int
	maxSize int
}

func (f fakeCache) Stats() cache.Stats { return cache.Stats{TotalEntries: f.entries} }
func (f fakeCache) MaxSize() int       { return f.maxSize }

func TestCacheChecker(t *testing.T) {
	tests := []struct {
		name    string
		entries int
		want    Status
	}{
		{"empty", 0, StatusHealthy},
		{"below threshold", 94, StatusHealthy},
		{"at threshold", 95, StatusDegraded},
		{"full", 100, StatusDegraded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCacheChecker(fakeCache{entries: tt.entries, maxSize: 100}, 0)
			r := c.Check(context.Background())
			if r.Status != tt.want {
				t.Errorf("Status = %v, want %v (%s)", r.Status, tt.want, r.Message)
			}
			if r.Details["max_size"] != 100 {
				t.Errorf("Details[max_size] = %v, want 100", r.Details["max_size"])
			}
		})
	}
}

func TestCacheChecker_RealCache(t *testing.T) {
	c := cache.NewMemoryCache[any](cache.WithMaxSize[any](2), cache.WithSweepInterval[any](-1))
	defer c.Close()
	checker := NewCacheChecker(c, 0)

	_ = c.Set(context.Background(), "ocr:a", "x", time.Minute)
	if got := checker.Check(context.Background()).Status; got != StatusHealthy {
		t.Errorf("half full Status = %v, want healthy", got)
	}

	_ = c.Set(context.Background(), "ocr:b", "y", time.Minute)
	if got := checker.Check(context.Background()).Status; got != StatusDegraded {
		t.Errorf("full Status = %v, want degraded", got)
	}
}

func TestCacheChecker_ContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewCacheChecker(fakeCache{maxSize: 10}, 0).Check(ctx)
	if r.Status != StatusUnhealthy {
		t.Errorf("Status = %v, want unhealthy", r.Status)
	}
}

type fakeCalls []monitor.CallStat

func (f fakeCalls) Stats() []monitor.CallStat { return f }

func TestInFlightChecker(t *testing.T) {
	tests := []struct {
		name  string
		calls fakeCalls
		want  Status
	}{
		{"idle", nil, StatusHealthy},
		{"normal", fakeCalls{{Endpoint: "ocr"}}, StatusHealthy},
		{"near timeout", fakeCalls{{Endpoint: "ocr"}, {Endpoint: "analyze", NearTimeout: true}}, StatusDegraded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewInFlightChecker(tt.calls).Check(context.Background())
			if r.Status != tt.want {
				t.Errorf("Status = %v, want %v", r.Status, tt.want)
			}
			if r.Details["in_flight"] != len(tt.calls) {
				t.Errorf("Details[in_flight] = %v, want %d", r.Details["in_flight"], len(tt.calls))
			}
		})
	}
}

func TestInFlightChecker_Monitor(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	m := monitor.New(nil, monitor.WithClock(func() time.Time { return now }))
	checker := NewInFlightChecker(m)

	m.Start("call-1", "generate_path", 10*time.Second)
	if got := checker.Check(context.Background()).Status; got != StatusHealthy {
		t.Errorf("fresh call Status = %v, want healthy", got)
	}

	now = now.Add(9 * time.Second)
	r := checker.Check(context.Background())
	if r.Status != StatusDegraded {
		t.Errorf("slow call Status = %v, want degraded", r.Status)
	}
	if eps, _ := r.Details["slow_endpoints"].([]string); len(eps) != 1 || eps[0] != "generate_path" {
		t.Errorf("slow_endpoints = %v", r.Details["slow_endpoints"])
	}
}
