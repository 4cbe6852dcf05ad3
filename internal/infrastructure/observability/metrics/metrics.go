// Package metrics exposes Prometheus collectors for report resolution.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "reportcache"

// Generation outcome label values.
const (
	OutcomeGenerated = "generated"
	OutcomeSkipped   = "skipped"
)

// Metrics holds the resolution, generation and quota collectors.
type Metrics struct {
	resolutions        *prometheus.CounterVec
	generations        *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec
	quotaDenials       *prometheus.CounterVec
	quotaRefunds       prometheus.Counter
	refundFailures     prometheus.Counter
	joins              prometheus.Counter
}

// NewMetrics creates the collectors and registers them on reg when it is
// non-nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Total number of resolved requests by kind, provenance and reason.",
		}, []string{"kind", "provenance", "reason"}),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Total number of generation attempts by provider and outcome.",
		}, []string{"provider", "outcome"}),
		generationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Duration of calls to the generator.",
			Buckets:   []float64{1, 5, 10, 20, 30, 45, 60, 90, 120},
		}, []string{"provider"}),
		quotaDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_denials_total",
			Help:      "Total number of generation requests denied by quota, by tier.",
		}, []string{"tier"}),
		quotaRefunds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_refunds_total",
			Help:      "Total number of quota units given back after a failed or shared generation.",
		}),
		refundFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_refund_failures_total",
			Help:      "Total number of quota units that could not be given back.",
		}),
		joins: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_joins_total",
			Help:      "Total number of requests served by a generation another request started.",
		}),
	}

	if reg != nil {
		for _, collector := range []prometheus.Collector{
			m.resolutions, m.generations, m.generationDuration, m.quotaDenials, m.quotaRefunds, m.refundFailures, m.joins,
		} {
			if err := reg.Register(collector); err != nil {
				return nil, err
			}
		}
	}

	return m, nil
}

// RecordResolution counts a successfully resolved request.
func (m *Metrics) RecordResolution(kind, provenance, reason string) {
	m.resolutions.WithLabelValues(kind, provenance, reason).Inc()
}

// RecordGeneration counts a generation attempt. outcome is OutcomeGenerated,
// OutcomeSkipped or a failure kind.
func (m *Metrics) RecordGeneration(provider, outcome string, duration time.Duration) {
	m.generations.WithLabelValues(provider, outcome).Inc()
	if outcome != OutcomeSkipped {
		m.generationDuration.WithLabelValues(provider).Observe(duration.Seconds())
	}
}

func (m *Metrics) RecordQuotaDenied(tier string) {
	m.quotaDenials.WithLabelValues(tier).Inc()
}

func (m *Metrics) RecordQuotaRefund() {
	m.quotaRefunds.Inc()
}

// RecordRefundFailure counts a unit that stayed charged because its
// release failed.
func (m *Metrics) RecordRefundFailure() {
	m.refundFailures.Inc()
}

func (m *Metrics) RecordJoin() {
	m.joins.Inc()
}
