package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/medbridge/satusehat-bridge/internal/domain"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	OrdersBridged     prometheus.Counter
	OrdersSkipped     *prometheus.CounterVec
	OrdersFailed      prometheus.Counter
	RunDuration       prometheus.Histogram
	RunCandidates     prometheus.Gauge
	TokenRefreshTotal prometheus.Counter
}

// New registers all instruments with the given Prometheus registerer and
// returns the populated Metrics struct.
// Using a custom registry (instead of prometheus.DefaultRegisterer) keeps
// tests isolated and avoids global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OrdersBridged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bridge_orders_sent_total",
			Help: "Total number of lab orders successfully bridged to SATUSEHAT.",
		}),

		OrdersSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_orders_skipped_total",
			Help: "Total number of candidates skipped, by reason.",
		}, []string{"reason"}),

		OrdersFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bridge_orders_failed_total",
			Help: "Total number of candidates whose dispatch or marker write failed.",
		}),

		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bridge_run_seconds",
			Help:    "Duration of one complete bridging run.",
			Buckets: prometheus.DefBuckets,
		}),

		RunCandidates: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bridge_run_candidates",
			Help: "Number of candidates discovered by the most recent run.",
		}),

		TokenRefreshTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bridge_token_refresh_total",
			Help: "Total number of SATUSEHAT credential exchanges performed.",
		}),
	}

	reg.MustRegister(
		m.OrdersBridged,
		m.OrdersSkipped,
		m.OrdersFailed,
		m.RunDuration,
		m.RunCandidates,
		m.TokenRefreshTotal,
	)

	return m
}

// PipelineHooks returns the metric callbacks expected by pipeline.MetricHooks.
// Centralises the prometheus observation calls so the pipeline stays
// metrics-agnostic.
func (m *Metrics) PipelineHooks() (
	onOutcome func(domain.Outcome),
	onRun func(candidates int, elapsed time.Duration),
) {
	onOutcome = func(o domain.Outcome) {
		switch o {
		case domain.OutcomeSent:
			m.OrdersBridged.Inc()
		case domain.OutcomeSkippedNoMatch:
			m.OrdersSkipped.WithLabelValues("no_match").Inc()
		case domain.OutcomeSkippedInvalid:
			m.OrdersSkipped.WithLabelValues("invalid").Inc()
		case domain.OutcomeFailed:
			m.OrdersFailed.Inc()
		}
	}
	onRun = func(candidates int, elapsed time.Duration) {
		m.RunCandidates.Set(float64(candidates))
		m.RunDuration.Observe(elapsed.Seconds())
	}
	return
}
