// Package metrics provides Prometheus metrics for the escrow daemon.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// EscrowMetrics collects and exposes escrow-related Prometheus metrics.
type EscrowMetrics struct {
	registry *prometheus.Registry

	// Claim metrics
	ClaimsTotal   *prometheus.CounterVec
	ClaimsByState *prometheus.GaugeVec

	// Stake metrics
	JoinsTotal  *prometheus.CounterVec
	StakeVolume *prometheus.CounterVec
	StakeSize   *prometheus.HistogramVec
	LockedOdds  *prometheus.HistogramVec

	// Resolution metrics
	ResolutionsTotal     *prometheus.CounterVec
	ResolutionConfidence *prometheus.HistogramVec
	ClassifierErrors     *prometheus.CounterVec
	ClassifierLatency    *prometheus.HistogramVec

	// Payout metrics
	PayoutsTotal *prometheus.CounterVec
	PayoutVolume *prometheus.CounterVec
	FeesTotal    *prometheus.CounterVec
}

// NewEscrowMetrics creates a new escrow metrics collector.
func NewEscrowMetrics() *EscrowMetrics {
	registry := prometheus.NewRegistry()

	em := &EscrowMetrics{
		registry: registry,

		ClaimsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "escrow_claims_total",
				Help: "Total number of claims opened",
			},
			[]string{"category"},
		),
		ClaimsByState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "escrow_claims_by_state",
				Help: "Current number of claims per lifecycle state",
			},
			[]string{"state"},
		),

		JoinsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "escrow_joins_total",
				Help: "Total number of stakes placed",
			},
			[]string{"side"},
		),
		StakeVolume: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "escrow_stake_volume_units",
				Help: "Total staked volume in smallest currency units",
			},
			[]string{"side"},
		),
		StakeSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "escrow_stake_size_units",
				Help:    "Individual stake size in smallest currency units",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8), // 100 to 1e9
			},
			[]string{"side"},
		),
		LockedOdds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "escrow_locked_odds",
				Help:    "Odds multipliers locked at join time (1000 = 1.000x)",
				Buckets: prometheus.ExponentialBuckets(500, 1.5, 12),
			},
			[]string{"side"},
		),

		ResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "escrow_resolutions_total",
				Help: "Total number of resolution outcomes",
			},
			[]string{"method", "outcome"},
		),
		ResolutionConfidence: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "escrow_resolution_confidence",
				Help:    "Classifier confidence scores (0-100)",
				Buckets: prometheus.LinearBuckets(0, 10, 11),
			},
			[]string{"method"},
		),
		ClassifierErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "escrow_classifier_errors_total",
				Help: "Total number of classifier call failures",
			},
			[]string{"backend"},
		),
		ClassifierLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "escrow_classifier_latency_seconds",
				Help:    "Classifier call latency",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~51s
			},
			[]string{"backend"},
		),

		PayoutsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "escrow_payouts_total",
				Help: "Total number of settled payouts",
			},
			[]string{"side"},
		),
		PayoutVolume: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "escrow_payout_volume_units",
				Help: "Total net payout volume in smallest currency units",
			},
			[]string{"side"},
		),
		FeesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "escrow_fees_total_units",
				Help: "Total protocol fees collected in smallest currency units",
			},
			[]string{},
		),
	}

	em.registerAll()

	return em
}

func (em *EscrowMetrics) registerAll() {
	em.registry.MustRegister(
		em.ClaimsTotal,
		em.ClaimsByState,
		em.JoinsTotal,
		em.StakeVolume,
		em.StakeSize,
		em.LockedOdds,
		em.ResolutionsTotal,
		em.ResolutionConfidence,
		em.ClassifierErrors,
		em.ClassifierLatency,
		em.PayoutsTotal,
		em.PayoutVolume,
		em.FeesTotal,
	)
}

// Registry returns the prometheus registry.
func (em *EscrowMetrics) Registry() *prometheus.Registry {
	return em.registry
}

// --- Helper methods for recording metrics ---

// RecordClaimOpened records a newly opened claim.
func (em *EscrowMetrics) RecordClaimOpened(category string) {
	em.ClaimsTotal.WithLabelValues(category).Inc()
}

// RecordJoin records a stake placed on a side.
func (em *EscrowMetrics) RecordJoin(side string, amount uint64, odds int64) {
	em.JoinsTotal.WithLabelValues(side).Inc()
	em.StakeVolume.WithLabelValues(side).Add(float64(amount))
	em.StakeSize.WithLabelValues(side).Observe(float64(amount))
	em.LockedOdds.WithLabelValues(side).Observe(float64(odds))
}

// RecordResolution records a resolution outcome.
func (em *EscrowMetrics) RecordResolution(method, outcome string, confidence uint8) {
	em.ResolutionsTotal.WithLabelValues(method, outcome).Inc()
	em.ResolutionConfidence.WithLabelValues(method).Observe(float64(confidence))
}

// RecordClassifierError records a classifier call failure.
func (em *EscrowMetrics) RecordClassifierError(backend string) {
	em.ClassifierErrors.WithLabelValues(backend).Inc()
}

// RecordClassifierLatency records a classifier call latency.
func (em *EscrowMetrics) RecordClassifierLatency(backend string, seconds float64) {
	em.ClassifierLatency.WithLabelValues(backend).Observe(seconds)
}

// RecordPayout records a settled payout.
func (em *EscrowMetrics) RecordPayout(side string, net, fee uint64) {
	em.PayoutsTotal.WithLabelValues(side).Inc()
	em.PayoutVolume.WithLabelValues(side).Add(float64(net))
	em.FeesTotal.WithLabelValues().Add(float64(fee))
}

// UpdateClaimStates sets the per-state claim gauges.
func (em *EscrowMetrics) UpdateClaimStates(counts map[string]int) {
	for state, count := range counts {
		em.ClaimsByState.WithLabelValues(state).Set(float64(count))
	}
}

// DecimalToFloat64 safely converts decimal.Decimal to float64 for metrics.
func DecimalToFloat64(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// Global instance for convenience
var defaultMetrics *EscrowMetrics
var once sync.Once

// Default returns the default global metrics instance.
func Default() *EscrowMetrics {
	once.Do(func() {
		defaultMetrics = NewEscrowMetrics()
	})
	return defaultMetrics
}
