package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "UPSTREAM_"

// ApplyEnv applies UPSTREAM_* environment overrides to cfg.
// Unset or empty variables leave the field alone; malformed values are errors.
func ApplyEnv(cfg *Config) error {
	var errs []error

	envInt(&errs, "CACHE_MAX_SIZE", &cfg.Cache.MaxSize)
	envDuration(&errs, "CACHE_DEFAULT_TTL", &cfg.Cache.DefaultTTL)
	envDuration(&errs, "CACHE_MAX_TTL", &cfg.Cache.MaxTTL)
	envDuration(&errs, "CACHE_SWEEP_INTERVAL", &cfg.Cache.SweepInterval)
	envBool(&errs, "CACHE_SINGLE_FLIGHT", &cfg.Cache.SingleFlight)

	envDuration(&errs, "TIMEOUT_OCR", &cfg.Timeouts.OCR)
	envDuration(&errs, "TIMEOUT_ANALYZE", &cfg.Timeouts.Analyze)
	envDuration(&errs, "TIMEOUT_GENERATE_PATH", &cfg.Timeouts.GeneratePath)
	envDuration(&errs, "TIMEOUT_DEFAULT", &cfg.Timeouts.Default)

	envInt(&errs, "RETRY_MAX_RETRIES", &cfg.Retry.MaxRetries)
	envDuration(&errs, "RETRY_BASE_DELAY", &cfg.Retry.BaseDelay)
	envDuration(&errs, "RETRY_MAX_DELAY", &cfg.Retry.MaxDelay)
	envFloat(&errs, "RETRY_BACKOFF_FACTOR", &cfg.Retry.BackoffFactor)
	envBool(&errs, "RETRY_JITTER", &cfg.Retry.Jitter)

	envBool(&errs, "BREAKER_ENABLED", &cfg.Breaker.Enabled)
	envInt(&errs, "BULKHEAD_MAX_CONCURRENT", &cfg.Bulkhead.MaxConcurrent)

	envString("LOG_LEVEL", &cfg.Observe.Logging.Level)
	envString("TRACING_EXPORTER", &cfg.Observe.Tracing.Exporter)
	envString("METRICS_EXPORTER", &cfg.Observe.Metrics.Exporter)
	envString("LISTEN_ADDR", &cfg.Server.ListenAddr)

	return errors.Join(errs...)
}

func lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + name)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func envString(name string, dst *string) {
	if v, ok := lookup(name); ok {
		*dst = v
	}
}

func envInt(errs *[]error, name string, dst *int) {
	v, ok := lookup(name)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%w: %s%s=%q is not an integer", ErrInvalid, EnvPrefix, name, v))
		return
	}
	*dst = n
}

func envFloat(errs *[]error, name string, dst *float64) {
	v, ok := lookup(name)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%w: %s%s=%q is not a number", ErrInvalid, EnvPrefix, name, v))
		return
	}
	*dst = f
}

func envBool(errs *[]error, name string, dst *bool) {
	v, ok := lookup(name)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%w: %s%s=%q is not a boolean", ErrInvalid, EnvPrefix, name, v))
		return
	}
	*dst = b
}

func envDuration(errs *[]error, name string, dst *time.Duration) {
	v, ok := lookup(name)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%w: %s%s=%q is not a duration", ErrInvalid, EnvPrefix, name, v))
		return
	}
	*dst = d
}
