package health

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestMux(checkers ...Checker) *http.ServeMux {
	agg := NewAggregator(AggregatorConfig{})
	for _, c := range checkers {
		agg.Register(c)
	}
	mux := http.NewServeMux()
	RegisterHandlers(mux, agg)
	return mux
}

func serve(mux *http.ServeMux, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestLivenessHandler(t *testing.T) {
	rec := serve(newTestMux(staticChecker("down", Unhealthy("down", nil))), "/healthz")

	if rec.Code != http.StatusOK {
		t.Errorf("Status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Body.String() != "OK" {
		t.Errorf("Body = %q, want OK", rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/plain" {
		t.Errorf("Content-Type = %q, want text/plain", ct)
	}
}

func TestReadinessHandler(t *testing.T) {
	tests := []struct {
		name     string
		result   Result
		wantCode int
		wantBody string
	}{
		{"healthy", Healthy("ok"), http.StatusOK, "OK"},
		{"degraded", Degraded("slow"), http.StatusOK, "DEGRADED"},
		{"unhealthy", Unhealthy("down", nil), http.StatusServiceUnavailable, "UNHEALTHY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(newTestMux(staticChecker("c", tt.result)), "/readyz")

			if rec.Code != tt.wantCode {
				t.Errorf("Status = %d, want %d", rec.Code, tt.wantCode)
			}
			if rec.Body.String() != tt.wantBody {
				t.Errorf("Body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestDetailedHandler(t *testing.T) {
	mux := newTestMux(
		staticChecker("cache", Healthy("cache 10.0% full").WithDetails(map[string]any{"entries": 10})),
		staticChecker("upstream_calls", Unhealthy("stuck", errors.New("deadline"))),
	)

	rec := serve(mux, "/health")

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var body struct {
		Status string `json:"status"`
		Checks map[string]struct {
			Status  string         `json:"status"`
			Message string         `json:"message"`
			Details map[string]any `json:"details"`
			Error   string         `json:"error"`
		} `json:"checks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if body.Status != "unhealthy" {
		t.Errorf("status = %q, want unhealthy", body.Status)
	}
	if c := body.Checks["cache"]; c.Status != "healthy" || c.Details["entries"] != float64(10) {
		t.Errorf("cache check = %+v", c)
	}
	if c := body.Checks["upstream_calls"]; c.Error != "deadline" {
		t.Errorf("upstream_calls error = %q, want deadline", c.Error)
	}
}

func TestSingleCheckHandler(t *testing.T) {
	mux := newTestMux(staticChecker("cache", Degraded("cache 96.0% full")))

	rec := serve(mux, "/health/cache")
	if rec.Code != http.StatusOK {
		t.Errorf("Status = %d, want %d", rec.Code, http.StatusOK)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "degraded" {
		t.Errorf("status = %v, want degraded", body["status"])
	}

	rec = serve(mux, "/health/missing")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing checker Status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}
