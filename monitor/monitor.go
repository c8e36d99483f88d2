// Package monitor tracks in-flight upstream calls.
//
// A Monitor records when each call started and how long it was allowed to
// run, logs one line per finished call, and can list the calls that are
// still running. It is purely observational: nothing it does changes the
// outcome of a call.
package monitor

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonwraymond/upstreamguard/observe"
)

// NearTimeoutRatio is the fraction of its timeout after which an in-flight
// call is reported as near its timeout.
const NearTimeoutRatio = 0.8

// Record describes one in-flight call. It is created by Start, removed by
// End and never mutated in between.
type Record struct {
	ID        string
	Endpoint  string
	StartedAt time.Time
	Deadline  time.Time
	Timeout   time.Duration
}

// CallStat is a point-in-time view of an in-flight call.
type CallStat struct {
	ID          string        `json:"id"`
	Endpoint    string        `json:"endpoint"`
	Elapsed     time.Duration `json:"elapsed"`
	Timeout     time.Duration `json:"timeout"`
	NearTimeout bool          `json:"near_timeout"`
}

// Monitor is safe for concurrent use.
type Monitor struct {
	logger observe.Logger
	now    func() time.Time

	mu      sync.Mutex
	records map[string]Record
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

// New creates a Monitor that logs finished calls to logger.
// A nil logger discards the log lines.
func New(logger observe.Logger, opts ...Option) *Monitor {
	if logger == nil {
		logger = observe.NewNopLogger()
	}
	m := &Monitor{
		logger:  logger,
		now:     time.Now,
		records: make(map[string]Record),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start records the beginning of a call and returns its id.
// An empty id is replaced by a random UUID.
func (m *Monitor) Start(id, endpoint string, timeout time.Duration) string {
	if id == "" {
		id = uuid.NewString()
	}
	now := m.now()

	m.mu.Lock()
	m.records[id] = Record{
		ID:        id,
		Endpoint:  endpoint,
		StartedAt: now,
		Deadline:  now.Add(timeout),
		Timeout:   timeout,
	}
	m.mu.Unlock()

	return id
}

// End finishes the call with the given id, logs its outcome and forgets it.
// Unknown ids are ignored.
func (m *Monitor) End(ctx context.Context, id string, success bool, err error) {
	m.mu.Lock()
	rec, ok := m.records[id]
	if ok {
		delete(m.records, id)
	}
	m.mu.Unlock()

	if !ok {
		return
	}

	elapsed := m.now().Sub(rec.StartedAt)
	fields := []observe.Field{
		{Key: "call_id", Value: rec.ID},
		{Key: "endpoint", Value: rec.Endpoint},
		{Key: "elapsed_ms", Value: elapsed.Milliseconds()},
		{Key: "timeout_ms", Value: rec.Timeout.Milliseconds()},
		{Key: "success", Value: success},
		{Key: "timed_out", Value: elapsed >= rec.Timeout},
	}
	if err != nil {
		fields = append(fields, observe.Field{Key: "error", Value: err.Error()})
	}

	if success {
		m.logger.Info(ctx, "upstream call finished", fields...)
		return
	}
	m.logger.Warn(ctx, "upstream call failed", fields...)
}

// Get returns the record for an in-flight call.
func (m *Monitor) Get(id string) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	return rec, ok
}

// Stats lists in-flight calls, longest-running first.
func (m *Monitor) Stats() []CallStat {
	now := m.now()

	m.mu.Lock()
	stats := make([]CallStat, 0, len(m.records))
	for _, rec := range m.records {
		elapsed := now.Sub(rec.StartedAt)
		stats = append(stats, CallStat{
			ID:          rec.ID,
			Endpoint:    rec.Endpoint,
			Elapsed:     elapsed,
			Timeout:     rec.Timeout,
			NearTimeout: float64(elapsed) >= NearTimeoutRatio*float64(rec.Timeout),
		})
	}
	m.mu.Unlock()

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Elapsed != stats[j].Elapsed {
			return stats[i].Elapsed > stats[j].Elapsed
		}
		return stats[i].ID < stats[j].ID
	})
	return stats
}

// Len returns the number of in-flight calls.
func (m *Monitor) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}
