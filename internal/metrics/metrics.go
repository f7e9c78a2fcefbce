// Package metrics provides Prometheus metrics for the model manager.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ollama_manager"

// Metrics holds all Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	// Completion metrics
	CompletionsTotal       *prometheus.CounterVec
	CompletionDuration     prometheus.Histogram
	CompletionsInFlight    prometheus.Gauge
	CompletionQueueWaiting prometheus.Gauge

	// Runner metrics
	RunnerInvocationsTotal *prometheus.CounterVec

	// History store metrics
	HistoryWritesTotal *prometheus.CounterVec

	// Host resource gauges
	HostCPUPercent    prometheus.Gauge
	HostMemoryPercent prometheus.Gauge
	HostGPUPercent    prometheus.Gauge
}

// New creates all collectors on a dedicated registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{registry: reg}

	m.CompletionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completions_total",
			Help:      "Chat completions by outcome category (ok for success).",
		},
		[]string{"category"},
	)

	m.CompletionDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "completion_duration_seconds",
			Help:      "Wall time of chat completions, including queueing.",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	m.CompletionsInFlight = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "completions_in_flight",
			Help:      "Completions currently running against the runner.",
		},
	)

	m.CompletionQueueWaiting = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "completion_queue_waiting",
			Help:      "Completions waiting for a runner slot.",
		},
	)

	m.RunnerInvocationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runner_invocations_total",
			Help:      "Runner process invocations by subcommand and status.",
		},
		[]string{"command", "status"},
	)

	m.HistoryWritesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_writes_total",
			Help:      "History store appends by status.",
		},
		[]string{"status"},
	)

	m.HostCPUPercent = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "host_cpu_percent",
		Help:      "Last sampled host CPU utilisation.",
	})
	m.HostMemoryPercent = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "host_memory_percent",
		Help:      "Last sampled host memory utilisation.",
	})
	m.HostGPUPercent = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "host_gpu_percent",
		Help:      "Last sampled GPU utilisation (0 when no GPU is detected).",
	})

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordCompletion records one finished completion.
func (m *Metrics) RecordCompletion(category string, duration time.Duration) {
	if category == "" {
		category = "ok"
	}
	m.CompletionsTotal.WithLabelValues(category).Inc()
	m.CompletionDuration.Observe(duration.Seconds())
}

// RecordRunner records one runner invocation.
func (m *Metrics) RecordRunner(command, status string) {
	m.RunnerInvocationsTotal.WithLabelValues(command, status).Inc()
}

// RecordHistoryWrite records one history append.
func (m *Metrics) RecordHistoryWrite(err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.HistoryWritesTotal.WithLabelValues(status).Inc()
}

// UpdateHost sets the host resource gauges.
func (m *Metrics) UpdateHost(cpu, memory, gpu float64) {
	m.HostCPUPercent.Set(cpu)
	m.HostMemoryPercent.Set(memory)
	m.HostGPUPercent.Set(gpu)
}
