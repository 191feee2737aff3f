package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveSessions  prometheus.Gauge
	StreamClients   prometheus.Gauge
	TasksEnqueued   *prometheus.CounterVec
	TaskEvents      *prometheus.CounterVec
	PollerRuns      *prometheus.CounterVec
	Dispatches      *prometheus.CounterVec
	PlanEvents      *prometheus.CounterVec
	DispatchLatency prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of active chat sessions.",
		}),
		StreamClients: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_clients",
			Help:      "Number of connected event-stream clients.",
		}),
		TasksEnqueued: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_enqueued_total",
			Help:      "Background tasks enqueued by type.",
		}, []string{"type"}),
		TaskEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_events_total",
			Help:      "Task lifecycle events by kind.",
		}, []string{"event"}),
		PollerRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poller_runs_total",
			Help:      "Poller invocations by agent and outcome.",
		}, []string{"agent", "outcome"}),
		Dispatches: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_total",
			Help:      "Dispatch runs by outcome.",
		}, []string{"outcome"}),
		PlanEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plan_events_total",
			Help:      "Plan engine events by kind.",
		}, []string{"event"}),
		DispatchLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_latency_ms",
			Help:      "Latency of one dispatched conversational turn in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		}),
	}
}

func (m *Metrics) ObserveDispatchLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.DispatchLatency.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObserveTaskEvent(event string) {
	if m == nil {
		return
	}
	m.TaskEvents.WithLabelValues(event).Inc()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
