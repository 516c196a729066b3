// Package sampler draws integers from an inclusive range with a ChaCha20 RNG
// keyed by the freshest mixed seed. The sentinel values 35 and 26 are subject
// to a caller-selected policy instead of plain uniform sampling.
package sampler

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/rs/zerolog"

	"pkt.systems/audioseed/internal/chacharand"
	"pkt.systems/audioseed/internal/metrics"
	"pkt.systems/audioseed/seed"
)

var (
	// ErrInvalidRange is returned when min is greater than max.
	ErrInvalidRange = errors.New("audioseed/sampler: min cannot be greater than max")
	// ErrExcludedRange is returned when the strict policy is asked to draw
	// from a range holding nothing but sentinels.
	ErrExcludedRange = errors.New("audioseed/sampler: range contains only excluded sentinel values")
	// ErrUnknownPolicy is returned by ParsePolicy.
	ErrUnknownPolicy = errors.New("audioseed/sampler: unknown sentinel policy")
)

// Policy selects how sentinel draws are treated.
type Policy int

const (
	// StrictExclusion redraws every sentinel regardless of range size.
	StrictExclusion Policy = iota
	// ProbabilisticInclusion accepts a sentinel with probability
	// 1/(2*rangeSize) when the range holds at most five values and redraws it
	// otherwise.
	ProbabilisticInclusion
)

// smallRange is the largest range size for which ProbabilisticInclusion may
// return a sentinel.
const smallRange = 5

var sentinels = [...]uint32{35, 26}

func isSentinel(v uint32) bool {
	for _, s := range sentinels {
		if v == s {
			return true
		}
	}
	return false
}

func (p Policy) String() string {
	switch p {
	case StrictExclusion:
		return "strict"
	case ProbabilisticInclusion:
		return "probabilistic"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy maps "strict" or "probabilistic" (and their long forms
// "strict-exclusion" and "probabilistic-inclusion") to a Policy.
func ParsePolicy(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "strict", "strict-exclusion":
		return StrictExclusion, nil
	case "probabilistic", "probabilistic-inclusion":
		return ProbabilisticInclusion, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
	}
}

// Sampler is safe for concurrent use. Every call builds its own RNG from a
// copy of the current seed, so calls share nothing but the store.
type Sampler struct {
	store    *seed.Store
	fallback func() (seed.Seed, error)
	metrics  *metrics.Metrics
	log      zerolog.Logger
}

// Option configures a Sampler.
type Option func(*Sampler)

// WithMetrics records draws, rejections and fallbacks in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sampler) {
		s.metrics = m
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Sampler) {
		s.log = log
	}
}

// WithFallback replaces the function that supplies a one-off seed when the
// store is still empty. The default is seed.Generate.
func WithFallback(fn func() (seed.Seed, error)) Option {
	return func(s *Sampler) {
		if fn != nil {
			s.fallback = fn
		}
	}
}

// New returns a Sampler reading seeds from store.
func New(store *seed.Store, opts ...Option) *Sampler {
	s := &Sampler{
		store:    store,
		fallback: seed.Generate,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// current returns a copy of the stored seed, or a fresh random seed when
// nothing has been mixed yet. Fallback seeds are never reused.
func (s *Sampler) current() (seed.Seed, error) {
	if cur, ok := s.store.Current(); ok {
		return cur, nil
	}
	fb, err := s.fallback()
	if err != nil {
		return seed.Seed{}, fmt.Errorf("audioseed/sampler: fallback seed: %w", err)
	}
	s.metrics.Fallback()
	s.log.Debug().Msg("no mixed seed yet, using random fallback")
	return fb, nil
}

func (s *Sampler) newRand() (*rand.Rand, error) {
	key, err := s.current()
	if err != nil {
		return nil, err
	}
	defer key.Zero()
	return chacharand.NewRand(key)
}

// between draws uniformly from [min, max]; min <= max must hold.
func between(r *rand.Rand, min, max uint32) uint32 {
	n := uint64(max) - uint64(min) + 1
	return uint32(uint64(min) + r.Uint64N(n))
}

// Uniform draws an integer uniformly from [min, max] without any sentinel
// policy.
func (s *Sampler) Uniform(min, max uint32) (uint32, error) {
	if min > max {
		return 0, ErrInvalidRange
	}
	r, err := s.newRand()
	if err != nil {
		return 0, err
	}
	v := between(r, min, max)
	s.metrics.Drew("uniform", "none")
	return v, nil
}

// Sample draws an integer from [min, max] and applies policy to the sentinel
// values 35 and 26.
//
// With StrictExclusion a sentinel is never returned. With
// ProbabilisticInclusion a sentinel drawn from a range of at most five values
// is kept if a second draw from [1, 2*rangeSize] comes up 1; every other
// sentinel draw is discarded and the value is drawn again.
func (s *Sampler) Sample(min, max uint32, policy Policy) (uint32, error) {
	if min > max {
		return 0, ErrInvalidRange
	}
	switch policy {
	case StrictExclusion, ProbabilisticInclusion:
	default:
		return 0, fmt.Errorf("%w: %v", ErrUnknownPolicy, policy)
	}
	if policy == StrictExclusion && onlySentinels(min, max) {
		return 0, ErrExcludedRange
	}

	r, err := s.newRand()
	if err != nil {
		return 0, err
	}
	rangeSize := uint64(max) - uint64(min) + 1
	label := policy.String()
	for {
		v := between(r, min, max)
		if !isSentinel(v) {
			s.metrics.Drew("sample", label)
			return v, nil
		}
		if policy == ProbabilisticInclusion && rangeSize <= smallRange {
			if r.Uint64N(2*rangeSize)+1 == 1 {
				s.metrics.Drew("sample", label)
				return v, nil
			}
		}
		s.metrics.Rejected(label)
	}
}

// onlySentinels reports whether every value in [min, max] is a sentinel.
func onlySentinels(min, max uint32) bool {
	if uint64(max)-uint64(min)+1 > uint64(len(sentinels)) {
		return false
	}
	for v := uint64(min); v <= uint64(max); v++ {
		if !isSentinel(uint32(v)) {
			return false
		}
	}
	return true
}

// Fingerprint returns the first 10 hex characters of the SHA-256 digest of the
// current seed (or of a one-off fallback seed when none has been mixed). It
// lets an operator see that reseeding happens without exposing the seed.
// When the configured fallback fails, an OS random seed is fingerprinted
// instead.
func (s *Sampler) Fingerprint() string {
	cur, err := s.current()
	if err != nil {
		s.log.Warn().Err(err).Msg("fingerprinting an OS random seed instead")
		cur = seed.MustGenerate()
	}
	defer cur.Zero()
	return cur.Fingerprint()
}
