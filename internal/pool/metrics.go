package pool

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the pool's Prometheus collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	attempts    *prometheus.CounterVec
	leaseErrors *prometheus.CounterVec
	queueLen    prometheus.Gauge
	retrySize   prometheus.Gauge
	inFlight    prometheus.Gauge
	duration    prometheus.Histogram
	runs        prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		attempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "envpool",
			Name:      "attempts_total",
			Help:      "Job attempts by outcome.",
		}, []string{"outcome"}),
		leaseErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "envpool",
			Name:      "lease_errors_total",
			Help:      "Failed environment provider calls by operation.",
		}, []string{"op"}),
		queueLen: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "envpool",
			Name:      "job_queue_length",
			Help:      "Jobs not yet attempted.",
		}),
		retrySize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "envpool",
			Name:      "retry_queue_size",
			Help:      "Failed jobs waiting for another attempt.",
		}),
		inFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "envpool",
			Name:      "in_flight",
			Help:      "Jobs currently held by workers.",
		}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "envpool",
			Name:      "attempt_duration_seconds",
			Help:      "Wall time of one attempt including lease acquisition and release.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		runs: f.NewCounter(prometheus.CounterOpts{
			Namespace: "envpool",
			Name:      "runs_total",
			Help:      "Completed pool runs.",
		}),
	}
}

func (m *Metrics) observeAttempt(outcome Outcome, d time.Duration) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(string(outcome)).Inc()
	m.duration.Observe(d.Seconds())
}

func (m *Metrics) leaseError(op string) {
	if m == nil {
		return
	}
	m.leaseErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) gauges(queueLen, retrySize, inFlight int) {
	if m == nil {
		return
	}
	m.queueLen.Set(float64(queueLen))
	m.retrySize.Set(float64(retrySize))
	m.inFlight.Set(float64(inFlight))
}

func (m *Metrics) runDone() {
	if m == nil {
		return
	}
	m.runs.Inc()
}
