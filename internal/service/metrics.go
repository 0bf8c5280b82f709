package service

import (
	"time"

	"github.com/Rrens/inspection-service/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the session lifecycle instruments. A nil *Metrics is valid and records nothing.
type Metrics struct {
	sessionsCreated   prometheus.Counter
	sessionsFinalized prometheus.Counter
	sessionsPurged    prometheus.Counter
	finalizeFailures  *prometheus.CounterVec
	finalizeDuration  prometheus.Histogram
}

// NewMetrics registers the session metrics with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		sessionsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "inspection_sessions_created_total",
			Help: "Number of inspection sessions created.",
		}),
		sessionsFinalized: f.NewCounter(prometheus.CounterOpts{
			Name: "inspection_sessions_finalized_total",
			Help: "Number of inspection sessions finalized into a report.",
		}),
		sessionsPurged: f.NewCounter(prometheus.CounterOpts{
			Name: "inspection_sessions_purged_total",
			Help: "Number of open sessions removed by the retention janitor.",
		}),
		finalizeFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "inspection_finalize_failures_total",
			Help: "Number of failed finalize attempts by error kind.",
		}, []string{"kind"}),
		finalizeDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "inspection_finalize_duration_seconds",
			Help:    "Time spent rendering and publishing a report.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) sessionCreated() {
	if m == nil {
		return
	}
	m.sessionsCreated.Inc()
}

func (m *Metrics) sessionFinalized(d time.Duration) {
	if m == nil {
		return
	}
	m.sessionsFinalized.Inc()
	m.finalizeDuration.Observe(d.Seconds())
}

func (m *Metrics) finalizeFailed(err error) {
	if m == nil {
		return
	}
	m.finalizeFailures.WithLabelValues(string(domain.KindOf(err))).Inc()
}

func (m *Metrics) sessionsPurgedAdd(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.sessionsPurged.Add(float64(n))
}
