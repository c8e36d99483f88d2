// Package health reports whether the upstream call layer is fit to serve.
//
// A Checker inspects one component and returns a Result with a Status of
// Healthy, Degraded or Unhealthy. An Aggregator runs its registered checkers
// concurrently under a shared deadline and folds their results into a single
// status.
//
// Two checkers cover the call layer itself:
//
//   - CacheChecker reports Degraded once the result cache is nearly full,
//     because further misses will start evicting entries.
//   - InFlightChecker reports Degraded while any upstream call has used most
//     of its timeout.
//
// # HTTP Endpoints
//
//	mux := http.NewServeMux()
//	health.RegisterHandlers(mux, agg)
//
// registers /healthz (liveness), /readyz (readiness), /health (detailed JSON)
// and /health/{name} (a single checker). Degraded components still answer 200
// so that a slow upstream does not take the service out of rotation.
package health
