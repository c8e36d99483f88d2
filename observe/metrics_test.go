package observe

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newManualMetrics(t *testing.T) (Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func sumValue(t *testing.T, m *metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("expected Sum[int64], got %T", m.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestMetrics_RecordCall(t *testing.T) {
	m, reader := newManualMetrics(t)
	meta := CallMeta{Namespace: "ocr"}

	m.RecordCall(context.Background(), meta, 100*time.Millisecond, nil)
	m.RecordCall(context.Background(), meta, 200*time.Millisecond, errors.New("fail"))

	rm := collect(t, reader)

	total := findMetric(rm, MetricCallTotal)
	if total == nil {
		t.Fatalf("%s metric not found", MetricCallTotal)
	}
	if got := sumValue(t, total); got != 2 {
		t.Errorf("%s = %d, want 2", MetricCallTotal, got)
	}

	errs := findMetric(rm, MetricCallErrors)
	if errs == nil {
		t.Fatalf("%s metric not found", MetricCallErrors)
	}
	if got := sumValue(t, errs); got != 1 {
		t.Errorf("%s = %d, want 1", MetricCallErrors, got)
	}

	dur := findMetric(rm, MetricCallDuration)
	if dur == nil {
		t.Fatalf("%s metric not found", MetricCallDuration)
	}
	hist, ok := dur.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("expected Histogram[float64], got %T", dur.Data)
	}
	if len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 2 {
		t.Errorf("histogram data points = %+v, want one point with count 2", hist.DataPoints)
	}
	if hist.DataPoints[0].Sum != 300 {
		t.Errorf("histogram sum = %v, want 300", hist.DataPoints[0].Sum)
	}
}

func TestMetrics_RecordCacheLookup(t *testing.T) {
	m, reader := newManualMetrics(t)

	m.RecordCacheLookup(context.Background(), "analysis", true)
	m.RecordCacheLookup(context.Background(), "analysis", false)
	m.RecordCacheLookup(context.Background(), "analysis", true)

	found := findMetric(collect(t, reader), MetricCacheLookup)
	if found == nil {
		t.Fatalf("%s metric not found", MetricCacheLookup)
	}

	sum := found.Data.(metricdata.Sum[int64])
	byResult := map[string]int64{}
	for _, dp := range sum.DataPoints {
		v, _ := dp.Attributes.Value(attribute.Key("result"))
		byResult[v.AsString()] += dp.Value
	}
	if byResult["hit"] != 2 || byResult["miss"] != 1 {
		t.Errorf("lookups = %v, want hit=2 miss=1", byResult)
	}
}
