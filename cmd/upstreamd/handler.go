package main

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonwraymond/upstreamguard/cache"
	"github.com/jonwraymond/upstreamguard/health"
	"github.com/jonwraymond/upstreamguard/invoker"
	"github.com/jonwraymond/upstreamguard/monitor"
	"github.com/jonwraymond/upstreamguard/observe"
)

type breakerView struct {
	State               string `json:"state"`
	Requests            uint32 `json:"requests"`
	ConsecutiveFailures uint32 `json:"consecutive_failures"`
	TotalFailures       uint32 `json:"total_failures"`
}

type callsResponse struct {
	InFlight []monitor.CallStat     `json:"in_flight"`
	Breakers map[string]breakerView `json:"breakers"`
}

type clearResponse struct {
	Cleared bool        `json:"cleared"`
	Stats   cache.Stats `json:"stats"`
}

func newHandler(inv *invoker.Invoker, gatherer prometheus.Gatherer, logger observe.Logger) http.Handler {
	agg := health.NewAggregator(health.AggregatorConfig{})
	agg.Register(health.NewCacheChecker(inv.Cache(), 0))
	agg.Register(health.NewInFlightChecker(inv.Monitor()))

	mux := http.NewServeMux()
	health.RegisterHandlers(mux, agg)

	mux.HandleFunc("GET /debug/cache", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, inv.CacheDebug())
	})

	mux.HandleFunc("GET /debug/calls", func(w http.ResponseWriter, r *http.Request) {
		resp := callsResponse{
			InFlight: inv.InFlight(),
			Breakers: make(map[string]breakerView),
		}
		for ns, m := range inv.Breakers() {
			resp.Breakers[ns] = breakerView{
				State:               m.State.String(),
				Requests:            m.Requests,
				ConsecutiveFailures: m.ConsecutiveFailures,
				TotalFailures:       m.TotalFailures,
			}
		}
		writeJSON(w, http.StatusOK, resp)
	})

	mux.HandleFunc("POST /debug/cache/clear", func(w http.ResponseWriter, r *http.Request) {
		if err := inv.ClearCache(r.Context()); err != nil {
			logger.Error(r.Context(), "cache clear failed", observe.Field{Key: "error", Value: err})
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, clearResponse{Cleared: true, Stats: inv.CacheStats()})
	})

	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return mux
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
