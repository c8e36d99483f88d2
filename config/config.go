// Package config loads the upstreamguard configuration.
//
// Configuration comes from three layers, applied in order: Default(), an
// optional YAML file (LoadFile) whose content is expanded with
// ExpandEnvStrict, and UPSTREAM_* environment overrides (ApplyEnv).
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jonwraymond/upstreamguard/cache"
	"github.com/jonwraymond/upstreamguard/observe"
	"github.com/jonwraymond/upstreamguard/resilience"
)

var (
	// ErrMissingEnv is returned when ${VAR} names an unset variable.
	ErrMissingEnv = errors.New("config: missing required environment variables")

	// ErrInvalid wraps every validation failure.
	ErrInvalid = errors.New("config: invalid configuration")
)

// Call classes with their own default timeout.
const (
	ClassOCR          = "ocr"
	ClassAnalyze      = "analyze"
	ClassGeneratePath = "generate_path"
)

// Config is the complete configuration.
type Config struct {
	Cache    CacheConfig    `yaml:"cache"`
	Timeouts Timeouts       `yaml:"timeouts"`
	Retry    RetryConfig    `yaml:"retry"`
	Breaker  BreakerConfig  `yaml:"breaker"`
	Bulkhead BulkheadConfig `yaml:"bulkhead"`
	Observe  observe.Config `yaml:"observe"`
	Server   ServerConfig   `yaml:"server"`
}

// CacheConfig configures the result cache.
type CacheConfig struct {
	MaxSize       int                      `yaml:"max_size"`
	DefaultTTL    time.Duration            `yaml:"default_ttl"`
	MaxTTL        time.Duration            `yaml:"max_ttl"`
	SweepInterval time.Duration            `yaml:"sweep_interval"`
	NamespaceTTLs map[string]time.Duration `yaml:"namespace_ttls"`
	SingleFlight  bool                     `yaml:"single_flight"`
}

// Timeouts holds the per-class call timeouts.
type Timeouts struct {
	OCR          time.Duration `yaml:"ocr"`
	Analyze      time.Duration `yaml:"analyze"`
	GeneratePath time.Duration `yaml:"generate_path"`
	Default      time.Duration `yaml:"default"`
}

// RetryConfig configures retries. MaxRetries 0 means a single attempt.
type RetryConfig struct {
	MaxRetries    int           `yaml:"max_retries"`
	BaseDelay     time.Duration `yaml:"base_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
	Jitter        bool          `yaml:"jitter"`
}

// BreakerConfig configures the per-namespace circuit breakers.
type BreakerConfig struct {
	Enabled      bool          `yaml:"enabled"`
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// BulkheadConfig caps concurrent calls per namespace. MaxConcurrent 0 disables it.
type BulkheadConfig struct {
	MaxConcurrent int           `yaml:"max_concurrent"`
	MaxWait       time.Duration `yaml:"max_wait"`
}

// ServerConfig configures the ops HTTP server.
type ServerConfig struct {
	ListenAddr      string        `yaml:"listen_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Cache: CacheConfig{
			MaxSize:       cache.DefaultMaxSize,
			DefaultTTL:    cache.DefaultTTL,
			SweepInterval: cache.DefaultSweepInterval,
			NamespaceTTLs: map[string]time.Duration{
				cache.NamespaceOCR:      24 * time.Hour,
				cache.NamespaceAnalysis: time.Hour,
				cache.NamespacePath:     time.Hour,
			},
		},
		Timeouts: Timeouts{
			OCR:          30 * time.Second,
			Analyze:      60 * time.Second,
			GeneratePath: 60 * time.Second,
			Default:      30 * time.Second,
		},
		Retry: RetryConfig{
			MaxRetries:    3,
			BaseDelay:     time.Second,
			MaxDelay:      10 * time.Second,
			BackoffFactor: 2,
		},
		Breaker: BreakerConfig{
			Enabled:      true,
			MaxFailures:  5,
			ResetTimeout: 30 * time.Second,
		},
		Observe: observe.Config{
			ServiceName: "upstreamd",
			Tracing:     observe.TracingConfig{Exporter: "none", SamplePct: 1},
			Metrics:     observe.MetricsConfig{Enabled: true, Exporter: "prometheus"},
			Logging:     observe.LoggingConfig{Enabled: true, Level: "info"},
		},
		Server: ServerConfig{
			ListenAddr:      ":8081",
			ShutdownTimeout: 10 * time.Second,
		},
	}
}

// LoadFile reads a YAML file over Default(). ${VAR} references are expanded
// strictly before parsing.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over Default().
func Parse(data []byte) (*Config, error) {
	expanded, err := ExpandEnvStrict(string(data))
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Load builds the effective configuration: defaults, then the file at path
// if path is non-empty, then environment overrides. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// For returns the timeout for a call class. Unknown classes use Default.
func (t Timeouts) For(class string) time.Duration {
	var d time.Duration
	switch class {
	case ClassOCR:
		d = t.OCR
	case ClassAnalyze:
		d = t.Analyze
	case ClassGeneratePath:
		d = t.GeneratePath
	}
	if d <= 0 {
		d = t.Default
	}
	if d <= 0 {
		d = resilience.DefaultTimeout
	}
	return d
}

// Validate checks the configuration for values no component can accept.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
		}
	}

	check(c.Cache.MaxSize > 0, "cache.max_size must be positive, got %d", c.Cache.MaxSize)
	check(c.Cache.DefaultTTL > 0, "cache.default_ttl must be positive, got %s", c.Cache.DefaultTTL)
	check(c.Cache.MaxTTL >= 0, "cache.max_ttl must not be negative, got %s", c.Cache.MaxTTL)
	for ns, ttl := range c.Cache.NamespaceTTLs {
		check(ttl > 0, "cache.namespace_ttls[%s] must be positive, got %s", ns, ttl)
	}

	check(c.Timeouts.Default > 0, "timeouts.default must be positive, got %s", c.Timeouts.Default)
	check(c.Timeouts.OCR >= 0 && c.Timeouts.Analyze >= 0 && c.Timeouts.GeneratePath >= 0,
		"timeouts must not be negative")

	check(c.Retry.MaxRetries >= 0, "retry.max_retries must not be negative, got %d", c.Retry.MaxRetries)
	check(c.Retry.BaseDelay > 0, "retry.base_delay must be positive, got %s", c.Retry.BaseDelay)
	check(c.Retry.MaxDelay >= c.Retry.BaseDelay, "retry.max_delay %s is below base_delay %s", c.Retry.MaxDelay, c.Retry.BaseDelay)
	check(c.Retry.BackoffFactor >= 1, "retry.backoff_factor must be at least 1, got %v", c.Retry.BackoffFactor)

	if c.Breaker.Enabled {
		check(c.Breaker.MaxFailures > 0, "breaker.max_failures must be positive, got %d", c.Breaker.MaxFailures)
		check(c.Breaker.ResetTimeout > 0, "breaker.reset_timeout must be positive, got %s", c.Breaker.ResetTimeout)
	}
	check(c.Bulkhead.MaxConcurrent >= 0, "bulkhead.max_concurrent must not be negative, got %d", c.Bulkhead.MaxConcurrent)

	check(c.Server.ListenAddr != "", "server.listen_addr is required")

	if err := c.Observe.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("%w: observe: %w", ErrInvalid, err))
	}

	return errors.Join(errs...)
}

// CacheOptions adapts the cache section for cache.NewMemoryCache.
func (c *Config) CacheOptions() []cache.Option[any] {
	return []cache.Option[any]{
		cache.WithMaxSize[any](c.Cache.MaxSize),
		cache.WithDefaultTTL[any](c.Cache.DefaultTTL),
		cache.WithSweepInterval[any](c.Cache.SweepInterval),
	}
}

// CachePolicy adapts the cache section into a namespace TTL policy.
func (c *Config) CachePolicy() cache.Policy {
	p := cache.DefaultPolicy()
	p.DefaultTTL = c.Cache.DefaultTTL
	p.MaxTTL = c.Cache.MaxTTL
	for ns, ttl := range c.Cache.NamespaceTTLs {
		p = p.WithNamespaceTTL(ns, ttl)
	}
	return p
}

// RetryConfig adapts the retry section for resilience.NewRetry.
func (c *Config) RetryConfig() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxRetries:    c.Retry.MaxRetries,
		BaseDelay:     c.Retry.BaseDelay,
		MaxDelay:      c.Retry.MaxDelay,
		BackoffFactor: c.Retry.BackoffFactor,
		Jitter:        c.Retry.Jitter,
		RetryIf:       resilience.IsRetryable,
	}
}

// BreakerConfig adapts the breaker section. ok is false when breakers are disabled.
func (c *Config) BreakerConfig() (cfg resilience.CircuitBreakerConfig, ok bool) {
	if !c.Breaker.Enabled {
		return resilience.CircuitBreakerConfig{}, false
	}
	return resilience.CircuitBreakerConfig{
		MaxFailures:  c.Breaker.MaxFailures,
		ResetTimeout: c.Breaker.ResetTimeout,
	}, true
}

// YAML renders the configuration as YAML.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
