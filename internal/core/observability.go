package core

import (
	"context"
	"time"
)

// Logger is the minimal structured logging contract used by the service.
// Arguments are alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// NewNoopLogger returns a logger that discards everything.
func NewNoopLogger() Logger { return noopLogger{} }

// Clock abstracts time acquisition for deterministic tests.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a plain function to the Clock interface.
type ClockFunc func() time.Time

// Now invokes the wrapped function.
func (f ClockFunc) Now() time.Time { return f() }

// Domain events counted by AddEvent.
const (
	EventWorkersReaped        = "workers_reaped"
	EventTrialsReclaimed      = "trials_reclaimed"
	EventHistoryTrialsSkipped = "history_trials_skipped"
	EventAncestorsInvalidated = "history_ancestors_invalidated"
)

// MetricsRecorder receives one observation per service operation plus
// counted domain events (reaped workers, reclaimed trials, skipped history).
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
	AddEvent(ctx context.Context, event string, delta int64)
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}
func (noopMetrics) AddEvent(context.Context, string, int64)              {}

// Tracer starts spans around service operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan terminates a span, carrying the operation's final error.
type TraceSpan interface {
	End(err error)
}

type noopTracer struct{}

type noopSpan struct{}

func (noopSpan) End(error) {}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}
