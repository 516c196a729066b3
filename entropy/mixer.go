// Package entropy derives fresh 256-bit seeds from captured audio, OS
// randomness and the clock, and publishes them to a seed.Store from a single
// background goroutine.
package entropy

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/rs/zerolog"

	"pkt.systems/audioseed/capture"
	"pkt.systems/audioseed/internal/metrics"
	"pkt.systems/audioseed/seed"
)

// randomBytes is how much independent randomness is folded into every seed.
const randomBytes = 32

var (
	// ErrTimestampUnavailable is returned by a Clock that cannot be read. The
	// mixer skips the timestamp when it sees it.
	ErrTimestampUnavailable = errors.New("audioseed/entropy: timestamp unavailable")
	// ErrEntropySourceUnavailable indicates that the capture source could not
	// be started.
	ErrEntropySourceUnavailable = errors.New("audioseed/entropy: entropy source unavailable")
)

// Clock returns a nanosecond timestamp relative to an arbitrary epoch.
type Clock func() (uint64, error)

// SystemClock reads wall-clock nanoseconds since the Unix epoch. A clock set
// before 1970 reports ErrTimestampUnavailable.
func SystemClock() (uint64, error) {
	ns := time.Now().UnixNano()
	if ns < 0 {
		return 0, ErrTimestampUnavailable
	}
	return uint64(ns), nil
}

// Mixer hashes sample chunks into seeds. It is used by one goroutine at a
// time.
type Mixer struct {
	store   *seed.Store
	random  io.Reader
	clock   Clock
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// Option configures a Mixer.
type Option func(*Mixer)

// WithRandom replaces crypto/rand.Reader as the independent randomness.
func WithRandom(r io.Reader) Option {
	return func(m *Mixer) {
		if r != nil {
			m.random = r
		}
	}
}

// WithClock replaces SystemClock.
func WithClock(c Clock) Option {
	return func(m *Mixer) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithMetrics records mixed chunks, seed updates and failures in mt.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Mixer) {
		m.metrics = mt
	}
}

// WithLogger sets the logger for the mixer and any collector driving it.
func WithLogger(log zerolog.Logger) Option {
	return func(m *Mixer) {
		m.log = log
	}
}

// NewMixer returns a Mixer writing seeds to store.
func NewMixer(store *seed.Store, opts ...Option) *Mixer {
	m := &Mixer{
		store:  store,
		random: rand.Reader,
		clock:  SystemClock,
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Digest computes the seed for chunk without publishing it. The hash input is
// every sample as a little-endian float32, then 32 random bytes, then the
// clock reading as a 128-bit little-endian integer. timestamped is false when
// the clock could not be read and the last step was skipped.
func (m *Mixer) Digest(chunk capture.Chunk) (s seed.Seed, timestamped bool, err error) {
	h := sha256.New()
	var word [4]byte
	for _, sample := range chunk {
		binary.LittleEndian.PutUint32(word[:], math.Float32bits(sample))
		h.Write(word[:])
	}

	var extra [randomBytes]byte
	if _, err := io.ReadFull(m.random, extra[:]); err != nil {
		return seed.Seed{}, false, fmt.Errorf("audioseed/entropy: read randomness: %w", err)
	}
	h.Write(extra[:])
	clear(extra[:])

	ns, err := m.clock()
	if err == nil {
		var stamp [16]byte
		binary.LittleEndian.PutUint64(stamp[:8], ns)
		h.Write(stamp[:])
		timestamped = true
	} else {
		m.log.Debug().Err(err).Msg("mixing without timestamp")
	}

	h.Sum(s[:0])
	return s, timestamped, nil
}

// Absorb mixes chunk and replaces the stored seed with the result. The store
// is only touched after hashing has finished. On error the store is left as
// it was.
func (m *Mixer) Absorb(chunk capture.Chunk) (seed.Seed, error) {
	s, timestamped, err := m.Digest(chunk)
	if err != nil {
		m.metrics.MixFailed()
		return seed.Seed{}, err
	}
	m.store.Write(s)
	m.metrics.Mixed(len(chunk), timestamped)
	return s, nil
}
