package core

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetricsRecorder exports per-operation latency histograms and
// result counters through a Prometheus registerer.
type PrometheusMetricsRecorder struct {
	durations *prometheus.HistogramVec
	results   *prometheus.CounterVec
	events    *prometheus.CounterVec
}

// NewPrometheusMetricsRecorder registers the service collectors with reg
// (DefaultRegisterer when nil) and returns the recorder.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) (*PrometheusMetricsRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	rec := &PrometheusMetricsRecorder{
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "searchcore",
			Subsystem: "service",
			Name:      "operation_duration_seconds",
			Help:      "Latency of service operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "searchcore",
			Subsystem: "service",
			Name:      "operation_results_total",
			Help:      "Service operation outcomes by status.",
		}, []string{"operation", "status"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "searchcore",
			Subsystem: "service",
			Name:      "events_total",
			Help:      "Domain events: reaped workers, reclaimed trials, skipped history.",
		}, []string{"event"}),
	}
	for _, c := range []prometheus.Collector{rec.durations, rec.results, rec.events} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// Observe records a service operation outcome.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	r.durations.WithLabelValues(operation).Observe(duration.Seconds())
	r.results.WithLabelValues(operation, status).Inc()
}

// AddEvent counts a domain event occurrence.
func (r *PrometheusMetricsRecorder) AddEvent(_ context.Context, event string, delta int64) {
	if event == "" || delta <= 0 {
		return
	}
	r.events.WithLabelValues(event).Add(float64(delta))
}
