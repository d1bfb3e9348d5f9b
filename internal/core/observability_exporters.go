package core

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

var expvarSeq uint64

// OperationStats aggregates one operation's outcomes.
type OperationStats struct {
	Success int64   `json:"success"`
	Errors  int64   `json:"errors"`
	TotalMS float64 `json:"total_ms"`
}

// ExpvarMetricsSnapshot is a read-only view of the recorded metrics:
// per-operation outcome stats plus counted domain events (reaped workers,
// reclaimed trials, skipped history trials).
type ExpvarMetricsSnapshot struct {
	Operations map[string]OperationStats `json:"operations"`
	Events     map[string]int64          `json:"events_total"`
	RecordedAt time.Time                 `json:"recorded_at"`
}

// ExpvarMetricsRecorder publishes service metrics via expvar for deployments
// that prefer process-local metrics.
type ExpvarMetricsRecorder struct {
	name       string
	mu         sync.Mutex
	operations map[string]OperationStats
	events     map[string]int64
}

// NewExpvarMetricsRecorder constructs an expvar-backed recorder and publishes
// it under the supplied name. When name is empty, a unique identifier is
// generated.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		id := atomic.AddUint64(&expvarSeq, 1)
		name = fmt.Sprintf("searchcore_service_metrics_%d", id)
	}
	rec := &ExpvarMetricsRecorder{
		name:       name,
		operations: make(map[string]OperationStats),
		events:     make(map[string]int64),
	}
	expvar.Publish(name, expvar.Func(func() any {
		return rec.Snapshot()
	}))
	return rec
}

// Name returns the expvar export name associated with the recorder.
func (r *ExpvarMetricsRecorder) Name() string {
	return r.name
}

// Snapshot returns an immutable copy of the aggregated metrics.
func (r *ExpvarMetricsRecorder) Snapshot() ExpvarMetricsSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	operations := make(map[string]OperationStats, len(r.operations))
	for op, stats := range r.operations {
		operations[op] = stats
	}
	events := make(map[string]int64, len(r.events))
	for event, count := range r.events {
		events[event] = count
	}

	return ExpvarMetricsSnapshot{
		Operations: operations,
		Events:     events,
		RecordedAt: time.Now().UTC(),
	}
}

// Observe records a service operation outcome.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	r.mu.Lock()
	stats := r.operations[operation]
	if success {
		stats.Success++
	} else {
		stats.Errors++
	}
	stats.TotalMS += float64(duration) / float64(time.Millisecond)
	r.operations[operation] = stats
	r.mu.Unlock()
}

// AddEvent counts a domain event occurrence.
func (r *ExpvarMetricsRecorder) AddEvent(_ context.Context, event string, delta int64) {
	if event == "" || delta == 0 {
		return
	}
	r.mu.Lock()
	r.events[event] += delta
	r.mu.Unlock()
}

// JSONTraceEntry is one serialized span emitted by JSONTraceTracer.
type JSONTraceEntry struct {
	Operation  string    `json:"operation"`
	Status     string    `json:"status"`
	DurationMS float64   `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
}

// JSONTraceTracer serializes spans to a writer and retains them for
// inspection.
type JSONTraceTracer struct {
	mu      sync.Mutex
	entries []JSONTraceEntry
	enc     *json.Encoder
}

// NewJSONTracer constructs a tracer that writes spans as JSON lines to the
// writer. Encoded spans are retained for later inspection via Entries().
func NewJSONTracer(w io.Writer) *JSONTraceTracer {
	var enc *json.Encoder
	if w != nil {
		enc = json.NewEncoder(w)
	}
	return &JSONTraceTracer{enc: enc}
}

// Entries returns a copy of all recorded spans.
func (t *JSONTraceTracer) Entries() []JSONTraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]JSONTraceEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Start implements the Tracer interface.
func (t *JSONTraceTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return ctx, &jsonTraceSpan{tracer: t, operation: operation, started: time.Now().UTC()}
}

func (t *JSONTraceTracer) record(entry JSONTraceEntry) {
	t.mu.Lock()
	t.entries = append(t.entries, entry)
	if t.enc != nil {
		_ = t.enc.Encode(entry)
	}
	t.mu.Unlock()
}

type jsonTraceSpan struct {
	tracer    *JSONTraceTracer
	operation string
	started   time.Time
}

func (s *jsonTraceSpan) End(err error) {
	status := "success"
	var errMsg string
	if err != nil {
		status = "error"
		errMsg = err.Error()
	}
	ended := time.Now().UTC()
	s.tracer.record(JSONTraceEntry{
		Operation:  s.operation,
		Status:     status,
		DurationMS: float64(ended.Sub(s.started)) / float64(time.Millisecond),
		Error:      errMsg,
		StartedAt:  s.started,
		EndedAt:    ended,
	})
}
