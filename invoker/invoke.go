package invoker

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/upstreamguard/cache"
	"github.com/jonwraymond/upstreamguard/config"
	"github.com/jonwraymond/upstreamguard/observe"
	"github.com/jonwraymond/upstreamguard/resilience"
)

// Request describes one cacheable upstream call.
type Request[T any] struct {
	// Namespace scopes the cache key and selects the TTL, breaker and bulkhead.
	Namespace string

	// Class selects the timeout from config.Timeouts. Defaults to Namespace.
	Class string

	// Endpoint names the upstream operation in logs and spans.
	// Defaults to Namespace.
	Endpoint string

	// Payload identifies the call. It is hashed into the cache key and never logged.
	Payload any

	// Keyer overrides the Invoker's keyer for this call.
	Keyer cache.Keyer

	// Op performs the upstream call. It must honor ctx cancellation.
	Op func(ctx context.Context) (T, error)

	// TTL overrides the namespace TTL when positive.
	TTL time.Duration

	// Timeout overrides the per-attempt class timeout when positive.
	Timeout time.Duration

	// Retry overrides the Invoker's retry behavior for this call.
	Retry *resilience.RetryConfig
}

// Invoke returns the cached result for req or calls the upstream.
//
// Errors from the keyer and from the upstream are returned unchanged.
// Failed calls are never cached.
func Invoke[T any](ctx context.Context, inv *Invoker, req Request[T]) (T, error) {
	var zero T
	if req.Op == nil {
		return zero, ErrNilOp
	}

	keyer := req.Keyer
	if keyer == nil {
		keyer = inv.keyer
	}
	key, err := keyer.Key(req.Namespace, req.Payload)
	if err != nil {
		return zero, err
	}

	if v, ok := lookup[T](ctx, inv, req.Namespace, key); ok {
		return v, nil
	}

	if !inv.singleFlight {
		return call(ctx, inv, req, key)
	}

	// The shared call outlives any single waiter; its attempts stay bounded
	// by the class timeout and the retry policy.
	flightCtx := context.WithoutCancel(ctx)
	ch := inv.group.DoChan(key, func() (any, error) {
		// A flight that finished just before this one may have filled the cache.
		if v, ok := peek[T](flightCtx, inv, key); ok {
			return v, nil
		}
		return call(flightCtx, inv, req, key)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		// The flight keeps running for the other waiters.
		return zero, ctx.Err()
	}
	if res.Err != nil {
		return zero, res.Err
	}
	if v, ok := res.Val.(T); ok {
		return v, nil
	}
	// Same key, different result type: run our own call.
	return call(ctx, inv, req, key)
}

func lookup[T any](ctx context.Context, inv *Invoker, namespace, key string) (T, bool) {
	raw, ok := inv.cache.Get(ctx, key)
	if ok {
		if v, typed := raw.(T); typed {
			inv.inst.CacheLookup(ctx, namespace, true)
			return v, true
		}
		inv.logger.Warn(ctx, "cached value has unexpected type, treating as miss",
			observe.Field{Key: "key", Value: key},
		)
	}
	inv.inst.CacheLookup(ctx, namespace, false)
	var zero T
	return zero, false
}

// peek checks the cache without touching hit or miss counters.
func peek[T any](ctx context.Context, inv *Invoker, key string) (T, bool) {
	raw, ok := inv.cache.Peek(ctx, key)
	if !ok {
		var zero T
		return zero, false
	}
	v, typed := raw.(T)
	return v, typed
}

func call[T any](ctx context.Context, inv *Invoker, req Request[T], key string) (T, error) {
	var zero T

	class := req.Class
	if class == "" {
		class = req.Namespace
	}
	endpoint := req.Endpoint
	if endpoint == "" {
		endpoint = req.Namespace
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = inv.timeouts.For(class)
	}
	retry := inv.retry
	if req.Retry != nil {
		retry = inv.newRetry(*req.Retry)
	}

	exec := inv.executor(req.Namespace, timeout, retry)
	meta := observe.CallMeta{Namespace: req.Namespace, Endpoint: endpoint, Key: key}

	id := inv.monitor.Start("", endpoint, timeout)
	callCtx, span := inv.inst.StartCall(ctx, meta)
	start := time.Now()

	v, err := resilience.Do(callCtx, exec, req.Op)

	inv.inst.EndCall(callCtx, span, meta, time.Since(start), err)
	if err != nil {
		inv.monitor.End(ctx, id, false, err)
		return zero, err
	}

	ttl := inv.policy.EffectiveTTL(req.Namespace, req.TTL)
	if serr := inv.cache.Set(ctx, key, v, ttl); serr != nil {
		inv.logger.Warn(ctx, "failed to cache upstream result",
			observe.Field{Key: "key", Value: key},
			observe.Field{Key: "error", Value: serr.Error()},
		)
	}
	inv.monitor.End(ctx, id, true, nil)
	return v, nil
}

// OCR runs a text-recognition call in the ocr namespace.
func OCR[T any](ctx context.Context, inv *Invoker, payload any, op func(context.Context) (T, error)) (T, error) {
	return Invoke(ctx, inv, Request[T]{
		Namespace: cache.NamespaceOCR,
		Class:     config.ClassOCR,
		Endpoint:  "ocr",
		Payload:   payload,
		Op:        op,
	})
}

// Analyze runs a content-analysis call in the analysis namespace.
func Analyze[T any](ctx context.Context, inv *Invoker, payload any, op func(context.Context) (T, error)) (T, error) {
	return Invoke(ctx, inv, Request[T]{
		Namespace: cache.NamespaceAnalysis,
		Class:     config.ClassAnalyze,
		Endpoint:  "analyze",
		Payload:   payload,
		Op:        op,
	})
}

// GeneratePath runs a learning-path generation call in the path namespace.
func GeneratePath[T any](ctx context.Context, inv *Invoker, payload any, op func(context.Context) (T, error)) (T, error) {
	return Invoke(ctx, inv, Request[T]{
		Namespace: cache.NamespacePath,
		Class:     config.ClassGeneratePath,
		Endpoint:  "generate_path",
		Payload:   payload,
		Op:        op,
	})
}
