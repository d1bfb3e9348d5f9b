package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestExpvarMetricsRecorder(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	ctx := context.Background()

	rec.Observe(ctx, "acquire_trial", true, 20*time.Millisecond)
	rec.Observe(ctx, "acquire_trial", true, 30*time.Millisecond)
	rec.Observe(ctx, "acquire_trial", false, 5*time.Millisecond)
	rec.Observe(ctx, "", true, time.Millisecond) // ignored

	rec.AddEvent(ctx, EventWorkersReaped, 2)
	rec.AddEvent(ctx, EventWorkersReaped, 1)
	rec.AddEvent(ctx, EventHistoryTrialsSkipped, 4)
	rec.AddEvent(ctx, "", 7)                   // ignored
	rec.AddEvent(ctx, EventTrialsReclaimed, 0) // ignored

	snap := rec.Snapshot()
	stats := snap.Operations["acquire_trial"]
	if stats.Success != 2 || stats.Errors != 1 {
		t.Fatalf("unexpected result counts: %+v", snap.Operations)
	}
	if stats.TotalMS != 55 {
		t.Fatalf("durations should accumulate, got %v", stats.TotalMS)
	}
	if snap.Events[EventWorkersReaped] != 3 || snap.Events[EventHistoryTrialsSkipped] != 4 {
		t.Fatalf("unexpected event counts: %+v", snap.Events)
	}
	if _, ok := snap.Events[EventTrialsReclaimed]; ok {
		t.Fatalf("zero deltas must not create event entries")
	}
	if !strings.HasPrefix(rec.Name(), "searchcore_service_metrics_") {
		t.Fatalf("generated name missing prefix: %s", rec.Name())
	}
}

func TestJSONTracerWritesEntries(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)

	_, span := tracer.Start(context.Background(), "register_trial")
	span.End(nil)
	_, span = tracer.Start(context.Background(), "release_trial")
	span.End(errors.New("boom"))

	entries := tracer.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Operation != "register_trial" || entries[0].Status != "success" {
		t.Fatalf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].Status != "error" || entries[1].Error != "boom" {
		t.Fatalf("unexpected second entry: %+v", entries[1])
	}

	dec := json.NewDecoder(&buf)
	var decoded JSONTraceEntry
	if err := dec.Decode(&decoded); err != nil {
		t.Fatalf("decode first line: %v", err)
	}
	if decoded.Operation != "register_trial" {
		t.Fatalf("serialized entry mismatch: %+v", decoded)
	}
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	ctx := context.Background()
	rec.Observe(ctx, "suggest_trial", true, 100*time.Millisecond)
	rec.Observe(ctx, "suggest_trial", false, 50*time.Millisecond)
	rec.AddEvent(ctx, EventTrialsReclaimed, 3)
	rec.AddEvent(ctx, EventTrialsReclaimed, -1) // ignored

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var counter, events *dto.MetricFamily
	for _, fam := range families {
		switch fam.GetName() {
		case "searchcore_service_operation_results_total":
			counter = fam
		case "searchcore_service_events_total":
			events = fam
		}
	}
	if counter == nil {
		t.Fatalf("results counter not registered")
	}
	total := 0.0
	for _, m := range counter.GetMetric() {
		total += m.GetCounter().GetValue()
	}
	if total != 2 {
		t.Fatalf("expected 2 recorded outcomes, got %v", total)
	}
	if events == nil || len(events.GetMetric()) != 1 {
		t.Fatalf("events counter not exported: %v", events)
	}
	if got := events.GetMetric()[0].GetCounter().GetValue(); got != 3 {
		t.Fatalf("expected 3 reclaimed trials counted, got %v", got)
	}

	// duplicate registration is reported
	if _, err := NewPrometheusMetricsRecorder(reg); err == nil {
		t.Fatalf("re-registering the collectors must fail")
	}
}

func TestClockFunc(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := ClockFunc(func() time.Time { return fixed })
	if !clock.Now().Equal(fixed) {
		t.Fatalf("clock func must delegate")
	}
}
