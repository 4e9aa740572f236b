// Package metrics holds the Prometheus collectors of the authority. A nil
// *Metrics is valid and records nothing, so components never need to check
// whether metrics are enabled.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "authority"

type Metrics struct {
	tokensIssued   *prometheus.CounterVec
	tokensRevoked  *prometheus.CounterVec
	sweepDeletions *prometheus.CounterVec
	sweepSkips     *prometheus.CounterVec
	sweepFailures  *prometheus.CounterVec
	sweepDuration  prometheus.Histogram
	jwksFetches    *prometheus.CounterVec
}

// New creates the collectors and registers them together with the Go and
// process collectors.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		tokensIssued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tokens_issued_total",
				Help:      "Total number of tokens issued",
			},
			[]string{"kind", "grant_type"},
		),
		tokensRevoked: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tokens_revoked_total",
				Help:      "Total number of tokens revoked",
			},
			[]string{"kind"},
		),
		sweepDeletions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sweeper_deleted_total",
				Help:      "Total number of expired entities deleted by the sweeper",
			},
			[]string{"family"},
		),
		sweepSkips: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sweeper_skipped_total",
				Help:      "Total number of expired entities kept because they are not deletable",
			},
			[]string{"family"},
		),
		sweepFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sweeper_failures_total",
				Help:      "Total number of sweeper deletions or scans that failed",
			},
			[]string{"family"},
		),
		sweepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sweeper_duration_seconds",
				Help:      "Duration of a full sweeper pass in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
		),
		jwksFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jwks_fetches_total",
				Help:      "Total number of remote JWK Set fetches",
			},
			[]string{"result"},
		),
	}

	for _, c := range []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.tokensIssued,
		m.tokensRevoked,
		m.sweepDeletions,
		m.sweepSkips,
		m.sweepFailures,
		m.sweepDuration,
		m.jwksFetches,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *Metrics) TokenIssued(kind, grantType string) {
	if m == nil {
		return
	}
	m.tokensIssued.WithLabelValues(kind, grantType).Inc()
}

func (m *Metrics) TokenRevoked(kind string) {
	if m == nil {
		return
	}
	m.tokensRevoked.WithLabelValues(kind).Inc()
}

// SweptFamily records the outcome of sweeping one entity family.
func (m *Metrics) SweptFamily(family string, deleted, skipped, failed int) {
	if m == nil {
		return
	}
	m.sweepDeletions.WithLabelValues(family).Add(float64(deleted))
	m.sweepSkips.WithLabelValues(family).Add(float64(skipped))
	m.sweepFailures.WithLabelValues(family).Add(float64(failed))
}

func (m *Metrics) SweepDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(d.Seconds())
}

func (m *Metrics) JWKSFetched(err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.jwksFetches.WithLabelValues(result).Inc()
}
