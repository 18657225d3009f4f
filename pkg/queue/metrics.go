package queue

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Job outcomes reported by the worker runtime.
const (
	OutcomeCompleted    = "completed"
	OutcomeRetried      = "retried"
	OutcomeDeadLettered = "dead_lettered"
	OutcomeReleased     = "released"
)

// Metrics holds the Prometheus collectors of the dispatch layer.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	enqueuedTotal  *prometheus.CounterVec
	rejectedTotal  *prometheus.CounterVec
	dedupedTotal   *prometheus.CounterVec
	processedTotal *prometheus.CounterVec
	claimErrors    *prometheus.CounterVec
	inFlight       *prometheus.GaugeVec
	duration       *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		enqueuedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campusjobs_jobs_enqueued_total",
			Help: "Total number of jobs durably enqueued",
		}, []string{"queue"}),
		rejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campusjobs_jobs_rejected_total",
			Help: "Total number of enqueue calls against unregistered queues",
		}, []string{"queue"}),
		dedupedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campusjobs_jobs_deduplicated_total",
			Help: "Total number of enqueue calls collapsed by a dedup key",
		}, []string{"queue"}),
		processedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campusjobs_jobs_processed_total",
			Help: "Total number of job executions by outcome",
		}, []string{"queue", "outcome"}),
		claimErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campusjobs_claim_errors_total",
			Help: "Total number of failed claim calls against the broker",
		}, []string{"queue"}),
		inFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "campusjobs_jobs_in_flight",
			Help: "Number of jobs currently being executed",
		}, []string{"queue"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "campusjobs_job_duration_seconds",
			Help:    "Handler execution time",
			Buckets: prometheus.DefBuckets,
		}, []string{"queue"}),
	}

	for _, c := range []prometheus.Collector{
		m.enqueuedTotal, m.rejectedTotal, m.dedupedTotal,
		m.processedTotal, m.claimErrors, m.inFlight, m.duration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *Metrics) enqueued(queue string) {
	if m == nil {
		return
	}
	m.enqueuedTotal.WithLabelValues(queue).Inc()
}

func (m *Metrics) enqueueRejected(queue string) {
	if m == nil {
		return
	}
	m.rejectedTotal.WithLabelValues(queue).Inc()
}

func (m *Metrics) enqueueDeduplicated(queue string) {
	if m == nil {
		return
	}
	m.dedupedTotal.WithLabelValues(queue).Inc()
}

func (m *Metrics) processed(queue, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.processedTotal.WithLabelValues(queue, outcome).Inc()
	if outcome != OutcomeReleased {
		m.duration.WithLabelValues(queue).Observe(d.Seconds())
	}
}

func (m *Metrics) claimFailed(queue string) {
	if m == nil {
		return
	}
	m.claimErrors.WithLabelValues(queue).Inc()
}

func (m *Metrics) started(queue string) {
	if m == nil {
		return
	}
	m.inFlight.WithLabelValues(queue).Inc()
}

func (m *Metrics) finished(queue string) {
	if m == nil {
		return
	}
	m.inFlight.WithLabelValues(queue).Dec()
}

// EnqueuedCounter returns the enqueued-jobs counter of queue.
func (m *Metrics) EnqueuedCounter(queue string) prometheus.Counter {
	return m.enqueuedTotal.WithLabelValues(queue)
}

// RejectedCounter returns the rejected-enqueue counter of queue.
func (m *Metrics) RejectedCounter(queue string) prometheus.Counter {
	return m.rejectedTotal.WithLabelValues(queue)
}

// DeduplicatedCounter returns the collapsed-enqueue counter of queue.
func (m *Metrics) DeduplicatedCounter(queue string) prometheus.Counter {
	return m.dedupedTotal.WithLabelValues(queue)
}

// ProcessedCounter returns the processed-jobs counter of queue for outcome.
func (m *Metrics) ProcessedCounter(queue, outcome string) prometheus.Counter {
	return m.processedTotal.WithLabelValues(queue, outcome)
}

// ClaimErrorCounter returns the failed-claim counter of queue.
func (m *Metrics) ClaimErrorCounter(queue string) prometheus.Counter {
	return m.claimErrors.WithLabelValues(queue)
}
