package reconcile

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/linnemanlabs/dispatch/internal/assignment"
)

// Metrics holds Prometheus metrics for the reconciliation loop.
type Metrics struct {
	RefreshesTotal     *prometheus.CounterVec
	RefreshDuration    prometheus.Histogram
	WorkingSetSize     prometheus.Gauge
	NormalizeRejects   prometheus.Counter
	VisibleAlerts      prometheus.Gauge
	AssignRequests     *prometheus.CounterVec
	AssignConflicts    prometheus.Counter
	AssignmentsTotal   *prometheus.CounterVec
	AssignmentDuration *prometheus.HistogramVec
}

// NewMetrics registers and returns reconcile metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RefreshesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_refreshes_total",
			Help: "Total feed refreshes by result.",
		}, []string{"result"}),
		RefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dispatch_refresh_duration_seconds",
			Help:    "Duration of feed refreshes in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms .. ~25s
		}),
		WorkingSetSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dispatch_working_set_alerts",
			Help: "Alerts in the working set after the last successful refresh.",
		}),
		NormalizeRejects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_normalize_rejects_total",
			Help: "Feed entries dropped by normalization.",
		}),
		VisibleAlerts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dispatch_visible_alerts",
			Help: "Alerts passing the current filter.",
		}),
		AssignRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_assign_requests_total",
			Help: "Assignment requests started, by kind.",
		}, []string{"kind"}),
		AssignConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_assign_conflicts_total",
			Help: "Assignment requests refused because one was already active.",
		}),
		AssignmentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_assignments_total",
			Help: "Settled assignments by outcome.",
		}, []string{"outcome"}),
		AssignmentDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dispatch_assignment_duration_seconds",
			Help:    "Time from request to settle in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms .. ~25s
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.RefreshesTotal,
		m.RefreshDuration,
		m.WorkingSetSize,
		m.NormalizeRejects,
		m.VisibleAlerts,
		m.AssignRequests,
		m.AssignConflicts,
		m.AssignmentsTotal,
		m.AssignmentDuration,
	)

	return m
}

// Hooks returns orchestrator Hooks that update the corresponding metrics.
func (m *Metrics) Hooks() Hooks {
	return Hooks{
		OnRefresh: func(d time.Duration, alerts, rejected int, err error) {
			result := "success"
			if err != nil {
				result = "error"
			}
			m.RefreshesTotal.WithLabelValues(result).Inc()
			m.RefreshDuration.Observe(d.Seconds())
			if err == nil {
				m.WorkingSetSize.Set(float64(alerts))
				m.NormalizeRejects.Add(float64(rejected))
			}
		},
		OnView: func(visible int) {
			m.VisibleAlerts.Set(float64(visible))
		},
	}
}

// AssignmentHooks returns tracker Hooks that update the assignment metrics.
func (m *Metrics) AssignmentHooks() assignment.Hooks {
	return assignment.Hooks{
		OnRequest: func(_ string, retry bool) {
			kind := "request"
			if retry {
				kind = "retry"
			}
			m.AssignRequests.WithLabelValues(kind).Inc()
		},
		OnConflict: func(string) {
			m.AssignConflicts.Inc()
		},
		OnSettle: func(e assignment.Event) {
			m.AssignmentsTotal.WithLabelValues(string(e.State.Kind)).Inc()
			m.AssignmentDuration.WithLabelValues(string(e.State.Kind)).Observe(e.Duration.Seconds())
		},
	}
}
