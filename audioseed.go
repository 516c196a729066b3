// Package audioseed draws bounded random integers from a ChaCha20 generator
// that is continuously reseeded from ambient audio.
//
// A background collector hashes every captured chunk of samples together
// with 32 bytes of OS randomness and the current time into a fresh 256-bit
// seed. Each draw keys a new ChaCha20 stream with the latest seed, or with a
// one-off random seed when nothing has been captured yet, and samples the
// requested range. The values 35 and 26 are sentinels: Sample either never
// returns them (StrictExclusion) or returns them rarely from small ranges
// (ProbabilisticInclusion).
//
// Usage example:
//
//	g := audioseed.New()
//	src := capture.NewReaderSource(os.Stdin, capture.S16LE)
//	g.Start(ctx, src)
//
//	n, err := g.Sample(1, 10, audioseed.StrictExclusion)
//	if err != nil {
//		panic(err)
//	}
//	fmt.Println(n, g.Fingerprint())
package audioseed

import (
	"context"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"pkt.systems/audioseed/capture"
	"pkt.systems/audioseed/entropy"
	"pkt.systems/audioseed/internal/metrics"
	"pkt.systems/audioseed/sampler"
	"pkt.systems/audioseed/seed"
)

// Policy aliases so callers of the facade need not import sampler.
type Policy = sampler.Policy

const (
	StrictExclusion        = sampler.StrictExclusion
	ProbabilisticInclusion = sampler.ProbabilisticInclusion
)

var (
	ErrInvalidRange  = sampler.ErrInvalidRange
	ErrExcludedRange = sampler.ErrExcludedRange
)

type config struct {
	log      zerolog.Logger
	reg      prometheus.Registerer
	random   io.Reader
	clock    entropy.Clock
	fallback func() (seed.Seed, error)
}

// Option configures a Generator.
type Option func(*config)

// WithLogger sets the logger handed to the collector and sampler.
func WithLogger(log zerolog.Logger) Option {
	return func(cfg *config) {
		cfg.log = log
	}
}

// WithRegisterer registers the Prometheus collectors with reg. Without it the
// metrics are kept but not exported.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(cfg *config) {
		cfg.reg = reg
	}
}

// WithRandReader replaces crypto/rand.Reader as the randomness mixed into
// every seed.
func WithRandReader(r io.Reader) Option {
	return func(cfg *config) {
		cfg.random = r
	}
}

// WithClock replaces the clock read while mixing.
func WithClock(c entropy.Clock) Option {
	return func(cfg *config) {
		cfg.clock = c
	}
}

// WithFallbackSeed replaces the function supplying a seed before the first
// chunk has been mixed.
func WithFallbackSeed(fn func() (seed.Seed, error)) Option {
	return func(cfg *config) {
		cfg.fallback = fn
	}
}

// Generator ties one seed store to the mixer that fills it and the sampler
// that reads it.
type Generator struct {
	store   *seed.Store
	mixer   *entropy.Mixer
	sampler *sampler.Sampler
}

// New returns a Generator with an empty seed store.
func New(opts ...Option) *Generator {
	cfg := config{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	m := metrics.New(cfg.reg)
	store := seed.NewStore()
	return &Generator{
		store: store,
		mixer: entropy.NewMixer(store,
			entropy.WithLogger(cfg.log),
			entropy.WithMetrics(m),
			entropy.WithRandom(cfg.random),
			entropy.WithClock(cfg.clock),
		),
		sampler: sampler.New(store,
			sampler.WithLogger(cfg.log),
			sampler.WithMetrics(m),
			sampler.WithFallback(cfg.fallback),
		),
	}
}

// Start begins collecting entropy from src on a background goroutine. The
// returned collector reports when and why collection stopped; sampling keeps
// working either way.
func (g *Generator) Start(ctx context.Context, src capture.Source) *entropy.Collector {
	return entropy.NewCollector(g.mixer, src).Start(ctx)
}

// Mix folds one chunk into the seed synchronously. It is meant for callers
// that drive capture themselves instead of handing a Source to Start.
func (g *Generator) Mix(chunk capture.Chunk) error {
	_, err := g.mixer.Absorb(chunk)
	return err
}

// Sample draws from [min, max] applying policy to the sentinel values.
func (g *Generator) Sample(min, max uint32, policy Policy) (uint32, error) {
	return g.sampler.Sample(min, max, policy)
}

// Uniform draws from [min, max] with no sentinel policy.
func (g *Generator) Uniform(min, max uint32) (uint32, error) {
	return g.sampler.Uniform(min, max)
}

// Fingerprint returns a 10-character hex digest of the live seed.
func (g *Generator) Fingerprint() string {
	return g.sampler.Fingerprint()
}

// Store exposes the seed store, mainly to observe reseeding.
func (g *Generator) Store() *seed.Store {
	return g.store
}
