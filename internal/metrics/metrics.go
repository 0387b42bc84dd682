package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"browsercron/internal/core"
)

// RegistryStats is the view of the schedule registry exported as gauges.
type RegistryStats interface {
	Count() int
	FiredCount() int64
	SkippedCount() int64
}

// PoolStats is the view of the execution pool exported as gauges.
type PoolStats interface {
	Active() int
	QueueSize() int
}

// PrometheusMetrics owns a dedicated registry so /metrics only carries
// process and scheduler series.
type PrometheusMetrics struct {
	registry    *prometheus.Registry
	namespace   string
	runsTotal   *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
}

func New(namespace string) *PrometheusMetrics {
	reg := prometheus.NewRegistry()
	m := &PrometheusMetrics{
		registry:  reg,
		namespace: namespace,
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of finished automation runs",
			},
			[]string{"status", "trigger"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Wall time of automation runs",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"status"},
		),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.runsTotal,
		m.runDuration,
	)
	return m
}

// ObserveScheduler registers gauges read from the registry and pool on every scrape.
func (m *PrometheusMetrics) ObserveScheduler(r RegistryStats, p PoolStats) {
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: m.namespace,
			Name:      "scheduled_configs",
			Help:      "Number of configurations holding a timer",
		}, func() float64 { return float64(r.Count()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: m.namespace,
			Name:      "timer_fires_total",
			Help:      "Timer fires handed to the execution pool",
		}, func() float64 { return float64(r.FiredCount()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: m.namespace,
			Name:      "skipped_fires_total",
			Help:      "Timer fires dropped because the previous run was still executing or the queue was full",
		}, func() float64 { return float64(r.SkippedCount()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: m.namespace,
			Name:      "pool_queue_depth",
			Help:      "Runs waiting for a worker",
		}, func() float64 { return float64(p.QueueSize()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: m.namespace,
			Name:      "pool_active_runs",
			Help:      "Runs currently executing on the pool",
		}, func() float64 { return float64(p.Active()) }),
	)
}

func (m *PrometheusMetrics) RecordRun(result *core.RunResult) {
	m.runsTotal.WithLabelValues(string(result.Status), string(result.Trigger)).Inc()
	m.runDuration.WithLabelValues(string(result.Status)).Observe(result.Duration().Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Sink wraps next so every finished result handed to it is also recorded.
func (m *PrometheusMetrics) Sink(next core.ResultSink) core.ResultSink {
	return &recordingSink{next: next, metrics: m}
}

type recordingSink struct {
	next    core.ResultSink
	metrics *PrometheusMetrics
}

func (s *recordingSink) SaveResult(ctx context.Context, result *core.RunResult) error {
	if result.Finished() {
		s.metrics.RecordRun(result)
	}
	return s.next.SaveResult(ctx, result)
}
