package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	registry *prometheus.Registry

	// Session metrics
	SessionsActive  prometheus.Gauge
	SessionsTotal   prometheus.Counter
	SessionDuration prometheus.Histogram

	// Supervisor metrics
	SupervisorDecisionsTotal *prometheus.CounterVec
	IterationCapOverrides    prometheus.Counter

	// Worker metrics
	WorkerRunsTotal   *prometheus.CounterVec
	WorkerRunDuration *prometheus.HistogramVec

	// Tool metrics
	ToolCallsTotal *prometheus.CounterVec

	// Memory metrics
	MemorySearchesTotal prometheus.Counter
	MemoryWritesTotal   prometheus.Counter
}

// New creates and registers all metrics
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		SessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "selia_sessions_active",
				Help: "Number of currently running chat sessions",
			},
		),
		SessionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "selia_sessions_total",
				Help: "Total number of chat sessions started",
			},
		),
		SessionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "selia_session_duration_seconds",
				Help:    "Duration of chat sessions in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),

		SupervisorDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "selia_supervisor_decisions_total",
				Help: "Total number of supervisor routing decisions",
			},
			[]string{"next"},
		),
		IterationCapOverrides: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "selia_iteration_cap_overrides_total",
				Help: "Times the iteration cap forced a FINISH decision",
			},
		),

		WorkerRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "selia_worker_runs_total",
				Help: "Total number of worker node executions",
			},
			[]string{"worker", "status"},
		),
		WorkerRunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "selia_worker_run_duration_seconds",
				Help:    "Duration of worker node executions in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"worker"},
		),

		ToolCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "selia_tool_calls_total",
				Help: "Total number of MCP tool invocations",
			},
			[]string{"tool", "status"},
		),

		MemorySearchesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "selia_memory_searches_total",
				Help: "Total number of long-term memory searches",
			},
		),
		MemoryWritesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "selia_memory_writes_total",
				Help: "Total number of long-term memory writes",
			},
		),
	}

	m.registry.MustRegister(
		m.SessionsActive,
		m.SessionsTotal,
		m.SessionDuration,
		m.SupervisorDecisionsTotal,
		m.IterationCapOverrides,
		m.WorkerRunsTotal,
		m.WorkerRunDuration,
		m.ToolCallsTotal,
		m.MemorySearchesTotal,
		m.MemoryWritesTotal,
	)

	return m
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
