package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	operations    *prometheus.CounterVec
	retries       *prometheus.CounterVec
	opDuration    *prometheus.HistogramVec
	phaseDuration *prometheus.HistogramVec
	lockWait      prometheus.Histogram
	writes        prometheus.Counter
	suspensions   *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "caseflow",
			Name:      "operations_total",
			Help:      "Operations finished, by operation and result kind.",
		}, []string{"operation", "result"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "caseflow",
			Name:      "operation_retries_total",
			Help:      "Retry attempts after a retryable failure.",
		}, []string{"operation"}),
		opDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "caseflow",
			Name:      "operation_duration_seconds",
			Help:      "Wall time per operation, retries included.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		}, []string{"operation"}),
		phaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "caseflow",
			Name:      "phase_duration_seconds",
			Help:      "Wall time per phase run.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"phase"}),
		lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "caseflow",
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting for a case lock.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		writes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "caseflow",
			Name:      "case_writes_total",
			Help:      "Successful case saves.",
		}),
		suspensions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "caseflow",
			Name:      "case_suspensions_total",
			Help:      "Cases suspended after a required operation failed, by phase.",
		}, []string{"phase"}),
	}
	reg.MustRegister(m.operations, m.retries, m.opDuration, m.phaseDuration, m.lockWait, m.writes, m.suspensions)
	return m
}

func (m *Metrics) operationDone(r OperationResult) {
	if m == nil {
		return
	}
	result := "ok"
	if !r.OK {
		result = string(r.Kind)
	}
	m.operations.WithLabelValues(r.Name, result).Inc()
	m.opDuration.WithLabelValues(r.Name).Observe(r.Duration().Seconds())
}

func (m *Metrics) retry(op string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(op).Inc()
}

func (m *Metrics) phaseDone(phase string, d time.Duration) {
	if m == nil {
		return
	}
	m.phaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

func (m *Metrics) write() {
	if m == nil {
		return
	}
	m.writes.Inc()
}

func (m *Metrics) suspended(phase string) {
	if m == nil {
		return
	}
	m.suspensions.WithLabelValues(phase).Inc()
}

// ObserveLockWait records one lock acquisition. Pass it to
// locktable.WithWaitObserver.
func (m *Metrics) ObserveLockWait(d time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.Observe(d.Seconds())
}
