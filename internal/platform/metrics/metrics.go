// Package metrics holds the Prometheus instruments for the registry.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	FlowsRun        *prometheus.CounterVec
	FlowDuration    *prometheus.HistogramVec
	CommitConflicts prometheus.Counter
	DNSTasks        prometheus.Counter
	DeletionTasks   prometheus.Counter
	SessionsActive  prometheus.Gauge
}

// New creates and registers all metrics on the given registerer. Pass a
// fresh prometheus.NewRegistry() in tests to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FlowsRun: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "registryd_flows_run_total",
			Help: "EPP flows executed, by verb, resource kind, and result code.",
		}, []string{"verb", "kind", "code"}),
		FlowDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "registryd_flow_duration_seconds",
			Help:    "EPP flow execution time, by verb and resource kind.",
			Buckets: prometheus.DefBuckets,
		}, []string{"verb", "kind"}),
		CommitConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "registryd_commit_conflicts_total",
			Help: "Flow commits aborted by the optimistic concurrency check.",
		}),
		DNSTasks: factory.NewCounter(prometheus.CounterOpts{
			Name: "registryd_dns_refresh_tasks_total",
			Help: "DNS refresh tasks enqueued after flow commits.",
		}),
		DeletionTasks: factory.NewCounter(prometheus.CounterOpts{
			Name: "registryd_async_deletion_tasks_total",
			Help: "Async deletion tasks enqueued after flow commits.",
		}),
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "registryd_sessions_active",
			Help: "Currently open EPP sessions.",
		}),
	}
}

// ObserveFlow records one completed flow execution.
func (m *Metrics) ObserveFlow(verb, kind string, code int, elapsed time.Duration) {
	m.FlowsRun.WithLabelValues(verb, kind, strconv.Itoa(code)).Inc()
	m.FlowDuration.WithLabelValues(verb, kind).Observe(elapsed.Seconds())
}
