// Package metrics defines the Prometheus collectors shared by the entropy
// mixer and the range sampler. A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "audioseed"

// Metrics groups the counters exported by the module.
type Metrics struct {

	// entropy mixing
	ChunksMixed     prometheus.Counter // chunks turned into a new seed
	SamplesAbsorbed prometheus.Counter // audio samples hashed
	SeedUpdates     prometheus.Counter // writes to the seed store
	TimestampSkips  prometheus.Counter // chunks mixed without a clock reading
	MixerErrors     prometheus.Counter // chunks dropped because mixing failed

	// sampling
	Draws              *prometheus.CounterVec // accepted draws; partitioned by entry point and policy
	SentinelRejections *prometheus.CounterVec // sentinel draws discarded; partitioned by policy
	FallbackSeeds      prometheus.Counter     // draws keyed with a one-off random seed
}

// New creates all collectors and registers them with reg. A nil reg creates
// unregistered collectors, which is what most tests want.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ChunksMixed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_mixed_total",
			Help:      "sample chunks absorbed into a new seed",
		}),
		SamplesAbsorbed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_absorbed_total",
			Help:      "audio samples fed into the seed hash",
		}),
		SeedUpdates: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "seed_updates_total",
			Help:      "seeds written to the seed store",
		}),
		TimestampSkips: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timestamp_skips_total",
			Help:      "chunks mixed without a timestamp because the clock failed",
		}),
		MixerErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mixer_errors_total",
			Help:      "chunks dropped because mixing failed",
		}),
		Draws: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "draws_total",
			Help:      "accepted draws; partitioned by entry point and sentinel policy",
		}, []string{"entry", "policy"}),
		SentinelRejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sentinel_rejections_total",
			Help:      "sentinel draws discarded and redrawn; partitioned by policy",
		}, []string{"policy"}),
		FallbackSeeds: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_seeds_total",
			Help:      "draws keyed with a one-off random seed because no mixed seed existed",
		}),
	}
}

// Mixed records one successfully mixed chunk of n samples.
func (m *Metrics) Mixed(n int, timestamped bool) {
	if m == nil {
		return
	}
	m.ChunksMixed.Inc()
	m.SamplesAbsorbed.Add(float64(n))
	m.SeedUpdates.Inc()
	if !timestamped {
		m.TimestampSkips.Inc()
	}
}

// MixFailed records a chunk that could not be mixed.
func (m *Metrics) MixFailed() {
	if m == nil {
		return
	}
	m.MixerErrors.Inc()
}

// Drew records an accepted draw.
func (m *Metrics) Drew(entry, policy string) {
	if m == nil {
		return
	}
	m.Draws.WithLabelValues(entry, policy).Inc()
}

// Rejected records a discarded sentinel draw.
func (m *Metrics) Rejected(policy string) {
	if m == nil {
		return
	}
	m.SentinelRejections.WithLabelValues(policy).Inc()
}

// Fallback records a draw that used a one-off random seed.
func (m *Metrics) Fallback() {
	if m == nil {
		return
	}
	m.FallbackSeeds.Inc()
}
