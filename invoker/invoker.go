package invoker

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/upstreamguard/cache"
	"github.com/jonwraymond/upstreamguard/config"
	"github.com/jonwraymond/upstreamguard/monitor"
	"github.com/jonwraymond/upstreamguard/observe"
	"github.com/jonwraymond/upstreamguard/resilience"
)

// ErrNilOp is returned when a Request has no operation.
var ErrNilOp = errors.New("invoker: request has no operation")

// Invoker runs upstream calls through the cache and the resilience stages.
// It is safe for concurrent use.
type Invoker struct {
	cache     *cache.MemoryCache[any]
	ownsCache bool

	keyer    cache.Keyer
	monitor  *monitor.Monitor
	policy   cache.Policy
	timeouts config.Timeouts
	inst     *observe.Instrumentation
	logger   observe.Logger
	retry    *resilience.Retry

	breakerCfg  *resilience.CircuitBreakerConfig
	bulkheadCfg *resilience.BulkheadConfig

	singleFlight bool
	group        singleflight.Group

	mu        sync.Mutex
	breakers  map[string]*resilience.CircuitBreaker
	bulkheads map[string]*resilience.Bulkhead
}

type settings struct {
	keyer        cache.Keyer
	monitor      *monitor.Monitor
	policy       *cache.Policy
	retry        *resilience.RetryConfig
	timeouts     *config.Timeouts
	inst         *observe.Instrumentation
	breaker      *resilience.CircuitBreakerConfig
	bulkhead     *resilience.BulkheadConfig
	singleFlight bool
}

// Option configures an Invoker.
type Option func(*settings)

// WithKeyer replaces the default cache.DefaultKeyer.
func WithKeyer(k cache.Keyer) Option {
	return func(s *settings) { s.keyer = k }
}

// WithMonitor sets the call monitor. By default the invoker creates its own.
func WithMonitor(m *monitor.Monitor) Option {
	return func(s *settings) { s.monitor = m }
}

// WithPolicy sets the namespace TTL policy.
func WithPolicy(p cache.Policy) Option {
	return func(s *settings) { s.policy = &p }
}

// WithRetryConfig sets the default retry behavior.
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(s *settings) { s.retry = &cfg }
}

// WithTimeouts sets the per-class timeouts.
func WithTimeouts(t config.Timeouts) Option {
	return func(s *settings) { s.timeouts = &t }
}

// WithInstrumentation sets tracing, metrics and logging for calls.
func WithInstrumentation(inst *observe.Instrumentation) Option {
	return func(s *settings) { s.inst = inst }
}

// WithCircuitBreakers enables one circuit breaker per namespace built from cfg.
// cfg.Name is replaced by the namespace.
func WithCircuitBreakers(cfg resilience.CircuitBreakerConfig) Option {
	return func(s *settings) { s.breaker = &cfg }
}

// WithBulkhead caps concurrent upstream calls per namespace.
// maxConcurrent <= 0 disables the bulkhead.
func WithBulkhead(maxConcurrent int, maxWait time.Duration) Option {
	return func(s *settings) {
		if maxConcurrent <= 0 {
			s.bulkhead = nil
			return
		}
		s.bulkhead = &resilience.BulkheadConfig{MaxConcurrent: maxConcurrent, MaxWait: maxWait}
	}
}

// WithSingleFlight coalesces concurrent misses for the same key into one
// upstream call. Each waiter returns early with its own ctx error when ctx is
// done; the shared call keeps the first caller's context values but not its
// cancellation.
func WithSingleFlight(enabled bool) Option {
	return func(s *settings) { s.singleFlight = enabled }
}

// FromConfig returns the options described by cfg.
func FromConfig(cfg *config.Config) []Option {
	opts := []Option{
		WithPolicy(cfg.CachePolicy()),
		WithRetryConfig(cfg.RetryConfig()),
		WithTimeouts(cfg.Timeouts),
		WithBulkhead(cfg.Bulkhead.MaxConcurrent, cfg.Bulkhead.MaxWait),
		WithSingleFlight(cfg.Cache.SingleFlight),
	}
	if bc, ok := cfg.BreakerConfig(); ok {
		opts = append(opts, WithCircuitBreakers(bc))
	}
	return opts
}

// New creates an Invoker over c. A nil c is replaced by a default cache that
// the Invoker owns and closes on Close.
func New(c *cache.MemoryCache[any], opts ...Option) *Invoker {
	var s settings
	for _, opt := range opts {
		opt(&s)
	}

	inv := &Invoker{
		cache:        c,
		keyer:        s.keyer,
		monitor:      s.monitor,
		inst:         s.inst,
		breakerCfg:   s.breaker,
		bulkheadCfg:  s.bulkhead,
		singleFlight: s.singleFlight,
		breakers:     make(map[string]*resilience.CircuitBreaker),
		bulkheads:    make(map[string]*resilience.Bulkhead),
	}

	if inv.cache == nil {
		inv.cache = cache.NewMemoryCache[any]()
		inv.ownsCache = true
	}
	if inv.keyer == nil {
		inv.keyer = cache.NewDefaultKeyer()
	}
	if inv.inst == nil {
		inv.inst = observe.NewNoopInstrumentation()
	}
	inv.logger = inv.inst.Logger().With(observe.Field{Key: "component", Value: "invoker"})
	if inv.monitor == nil {
		inv.monitor = monitor.New(inv.inst.Logger())
	}

	inv.policy = cache.DefaultPolicy()
	if s.policy != nil {
		inv.policy = *s.policy
	}

	defaults := config.Default()
	inv.timeouts = defaults.Timeouts
	if s.timeouts != nil {
		inv.timeouts = *s.timeouts
	}

	retryCfg := defaults.RetryConfig()
	if s.retry != nil {
		retryCfg = *s.retry
	}
	inv.retry = inv.newRetry(retryCfg)

	return inv
}

// Cache returns the underlying cache.
func (inv *Invoker) Cache() *cache.MemoryCache[any] {
	return inv.cache
}

// Monitor returns the call monitor.
func (inv *Invoker) Monitor() *monitor.Monitor {
	return inv.monitor
}

// CacheStats returns a snapshot of cache statistics.
func (inv *Invoker) CacheStats() cache.Stats {
	return inv.cache.Stats()
}

// CacheDebug returns cache statistics plus the per-entry listing.
func (inv *Invoker) CacheDebug() cache.DebugInfo {
	return inv.cache.DebugInfo()
}

// InFlight lists calls that are currently running, longest first.
func (inv *Invoker) InFlight() []monitor.CallStat {
	return inv.monitor.Stats()
}

// ClearCache removes every cached result and resets the hit and miss counters.
func (inv *Invoker) ClearCache(ctx context.Context) error {
	if err := inv.cache.Clear(ctx); err != nil {
		return err
	}
	inv.logger.Info(ctx, "cache cleared")
	return nil
}

// Breakers returns the state of every circuit breaker created so far.
func (inv *Invoker) Breakers() map[string]resilience.CircuitBreakerMetrics {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	out := make(map[string]resilience.CircuitBreakerMetrics, len(inv.breakers))
	for ns, cb := range inv.breakers {
		out[ns] = cb.Metrics()
	}
	return out
}

// Close releases the cache if the Invoker created it.
func (inv *Invoker) Close() error {
	if inv.ownsCache {
		return inv.cache.Close()
	}
	return nil
}

// newRetry builds a Retry that logs each retry at debug level unless cfg
// brings its own OnRetry.
func (inv *Invoker) newRetry(cfg resilience.RetryConfig) *resilience.Retry {
	if cfg.OnRetry == nil {
		logger := inv.logger
		cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
			logger.Debug(context.Background(), "retrying upstream call",
				observe.Field{Key: "attempt", Value: attempt},
				observe.Field{Key: "delay_ms", Value: delay.Milliseconds()},
				observe.Field{Key: "error", Value: err.Error()},
			)
		}
	}
	return resilience.NewRetry(cfg)
}

func (inv *Invoker) executor(namespace string, timeout time.Duration, retry *resilience.Retry) *resilience.Executor {
	opts := []resilience.ExecutorOption{
		resilience.WithRetry(retry),
		resilience.WithTimeout(timeout),
	}
	if cb := inv.breaker(namespace); cb != nil {
		opts = append(opts, resilience.WithCircuitBreaker(cb))
	}
	if bh := inv.bulkhead(namespace); bh != nil {
		opts = append(opts, resilience.WithBulkhead(bh))
	}
	return resilience.NewExecutor(opts...)
}

func (inv *Invoker) breaker(namespace string) *resilience.CircuitBreaker {
	if inv.breakerCfg == nil {
		return nil
	}

	inv.mu.Lock()
	defer inv.mu.Unlock()

	if cb, ok := inv.breakers[namespace]; ok {
		return cb
	}

	cfg := *inv.breakerCfg
	cfg.Name = namespace
	userHook := cfg.OnStateChange
	logger := inv.logger
	cfg.OnStateChange = func(name string, from, to resilience.State) {
		logger.Warn(context.Background(), "circuit breaker state changed",
			observe.Field{Key: "namespace", Value: name},
			observe.Field{Key: "from", Value: from.String()},
			observe.Field{Key: "to", Value: to.String()},
		)
		if userHook != nil {
			userHook(name, from, to)
		}
	}

	cb := resilience.NewCircuitBreaker(cfg)
	inv.breakers[namespace] = cb
	return cb
}

func (inv *Invoker) bulkhead(namespace string) *resilience.Bulkhead {
	if inv.bulkheadCfg == nil {
		return nil
	}

	inv.mu.Lock()
	defer inv.mu.Unlock()

	if bh, ok := inv.bulkheads[namespace]; ok {
		return bh
	}
	bh := resilience.NewBulkhead(*inv.bulkheadCfg)
	inv.bulkheads[namespace] = bh
	return bh
}
