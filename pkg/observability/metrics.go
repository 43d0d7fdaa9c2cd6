package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aretw0/arbor/pkg/domain"
)

// Namespace prefixes every metric name.
const Namespace = "arbor"

// Metrics holds the collectors describing workflow execution.
type Metrics struct {
	gatherer prometheus.Gatherer

	NodeVisits   *prometheus.CounterVec
	NodeErrors   *prometheus.CounterVec
	NodeDuration *prometheus.HistogramVec
	Runs         *prometheus.CounterVec
	Resumes      *prometheus.CounterVec
	Recoveries   *prometheus.CounterVec
	Snapshots    *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// uses a fresh private registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		gatherer: reg,
		NodeVisits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "node_visits_total",
			Help:      "Total number of node executions.",
		}, []string{"workflow", "node_id", "node_type"}),
		NodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "node_errors_total",
			Help:      "Total number of node executions that returned an error.",
		}, []string{"workflow", "node_id"}),
		NodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "node_duration_seconds",
			Help:      "Time spent executing a node, model calls included.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"workflow", "node_type"}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "run_outcomes_total",
			Help:      "Runs leaving the RUNNING status, by the status they reached.",
		}, []string{"workflow", "status"}),
		Resumes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "resumes_total",
			Help:      "Total number of suspended runs fed with input.",
		}, []string{"workflow"}),
		Recoveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "recoveries_total",
			Help:      "Total number of failures recovered from history.",
		}, []string{"workflow"}),
		Snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "snapshots_total",
			Help:      "Total number of state snapshots recorded.",
		}, []string{"workflow"}),
	}
	reg.MustRegister(m.NodeVisits, m.NodeErrors, m.NodeDuration, m.Runs, m.Resumes, m.Recoveries, m.Snapshots)
	return m
}

// Hooks returns lifecycle hooks that update the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	outcome := func(_ context.Context, e *domain.StateEvent) {
		m.Runs.WithLabelValues(e.Workflow, string(e.Status)).Inc()
	}
	return domain.LifecycleHooks{
		OnNodeEnter: func(_ context.Context, e *domain.NodeEvent) {
			m.NodeVisits.WithLabelValues(e.Workflow, e.NodeID, e.NodeType).Inc()
		},
		OnNodeLeave: func(_ context.Context, e *domain.NodeEvent) {
			m.NodeDuration.WithLabelValues(e.Workflow, e.NodeType).Observe(e.Duration.Seconds())
			if e.Err != nil {
				m.NodeErrors.WithLabelValues(e.Workflow, e.NodeID).Inc()
			}
		},
		OnSuspend:   outcome,
		OnTerminate: outcome,
		OnFail:      outcome,
		OnResume: func(_ context.Context, e *domain.StateEvent) {
			m.Resumes.WithLabelValues(e.Workflow).Inc()
		},
		OnRecover: func(_ context.Context, e *domain.StateEvent) {
			m.Recoveries.WithLabelValues(e.Workflow).Inc()
		},
		OnSnapshot: func(_ context.Context, e *domain.StateEvent) {
			m.Snapshots.WithLabelValues(e.Workflow).Inc()
		},
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
