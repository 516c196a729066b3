package entropy

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"pkt.systems/audioseed/capture"
	"pkt.systems/audioseed/internal/metrics"
	"pkt.systems/audioseed/seed"
)

func fixedClock(ns uint64) Clock {
	return func() (uint64, error) { return ns, nil }
}

func brokenClock() (uint64, error) { return 0, ErrTimestampUnavailable }

func fixedRandom() io.Reader {
	return bytes.NewReader(bytes.Repeat([]byte{0xa5}, randomBytes))
}

func TestDigestMatchesDefinition(t *testing.T) {
	chunk := capture.Chunk{0, 0.5, -1, 1}
	const ns = 1_700_000_000_123_456_789

	m := NewMixer(seed.NewStore(), WithRandom(fixedRandom()), WithClock(fixedClock(ns)))
	got, timestamped, err := m.Digest(chunk)
	if err != nil {
		t.Fatalf("Digest() error = %v", err)
	}
	if !timestamped {
		t.Fatalf("expected timestamp to be absorbed")
	}

	h := sha256.New()
	for _, v := range chunk {
		h.Write(binary.LittleEndian.AppendUint32(nil, math.Float32bits(v)))
	}
	h.Write(bytes.Repeat([]byte{0xa5}, randomBytes))
	stamp := binary.LittleEndian.AppendUint64(nil, ns)
	h.Write(append(stamp, make([]byte, 8)...))
	var want seed.Seed
	copy(want[:], h.Sum(nil))

	if got != want {
		t.Fatalf("digest = %x, want %x", got, want)
	}
}

func TestDigestSkipsBrokenClock(t *testing.T) {
	chunk := capture.Chunk{0.1, 0.2}
	with := NewMixer(seed.NewStore(), WithRandom(fixedRandom()), WithClock(fixedClock(42)))
	without := NewMixer(seed.NewStore(), WithRandom(fixedRandom()), WithClock(brokenClock))

	a, _, err := with.Digest(chunk)
	if err != nil {
		t.Fatalf("Digest() error = %v", err)
	}
	b, timestamped, err := without.Digest(chunk)
	if err != nil {
		t.Fatalf("Digest() with broken clock error = %v", err)
	}
	if timestamped {
		t.Fatalf("broken clock reported as timestamped")
	}
	if a == b {
		t.Fatalf("skipping the timestamp did not change the digest")
	}
}

func TestDigestDependsOnSamples(t *testing.T) {
	a, _, _ := NewMixer(seed.NewStore(), WithRandom(fixedRandom()), WithClock(fixedClock(1))).Digest(capture.Chunk{0.1})
	b, _, _ := NewMixer(seed.NewStore(), WithRandom(fixedRandom()), WithClock(fixedClock(1))).Digest(capture.Chunk{0.2})
	if a == b {
		t.Fatalf("different samples produced the same digest")
	}
}

func TestAbsorbWritesStore(t *testing.T) {
	st := seed.NewStore()
	mt := metrics.New(nil)
	m := NewMixer(st, WithMetrics(mt), WithClock(brokenClock))

	s, err := m.Absorb(capture.Chunk{0.25, -0.25, 0.5})
	if err != nil {
		t.Fatalf("Absorb() error = %v", err)
	}
	cur, ok := st.Current()
	if !ok || cur != s {
		t.Fatalf("store holds %x, %v; want %x", cur, ok, s)
	}
	if got := testutil.ToFloat64(mt.SamplesAbsorbed); got != 3 {
		t.Fatalf("samples absorbed = %v, want 3", got)
	}
	if got := testutil.ToFloat64(mt.TimestampSkips); got != 1 {
		t.Fatalf("timestamp skips = %v, want 1", got)
	}
}

func TestAbsorbRandomFailureLeavesStore(t *testing.T) {
	st := seed.NewStore()
	mt := metrics.New(nil)
	m := NewMixer(st, WithMetrics(mt), WithRandom(bytes.NewReader(nil)))

	if _, err := m.Absorb(capture.Chunk{1}); !errors.Is(err, io.EOF) {
		t.Fatalf("Absorb() error = %v, want io.EOF", err)
	}
	if _, ok := st.Current(); ok {
		t.Fatalf("store written despite mixing failure")
	}
	if got := testutil.ToFloat64(mt.MixerErrors); got != 1 {
		t.Fatalf("mixer errors = %v, want 1", got)
	}
}

func TestSystemClock(t *testing.T) {
	ns, err := SystemClock()
	if err != nil {
		t.Fatalf("SystemClock() error = %v", err)
	}
	if ns == 0 {
		t.Fatalf("SystemClock() returned zero")
	}
}

func waitDone(t *testing.T, c *Collector) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("collector did not stop")
	}
}

func s16Capture(samples int) []byte {
	buf := make([]byte, 0, 2*samples)
	for i := 0; i < samples; i++ {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(i*7919))
	}
	return buf
}

func TestCollectorMixesEveryChunk(t *testing.T) {
	st := seed.NewStore()
	mt := metrics.New(nil)
	src := capture.NewReaderSource(bytes.NewReader(s16Capture(64)), capture.S16LE, capture.WithChunkSamples(16))

	c := NewCollector(NewMixer(st, WithMetrics(mt)), src).Start(context.Background())
	waitDone(t, c)
	if c.Err() != nil {
		t.Fatalf("Err() = %v", c.Err())
	}
	if st.Generation() != 4 {
		t.Fatalf("generation = %d, want 4", st.Generation())
	}
	if got := testutil.ToFloat64(mt.ChunksMixed); got != 4 {
		t.Fatalf("chunks mixed = %v, want 4", got)
	}
	if err := c.Run(context.Background()); !errors.Is(err, errCollectorStarted) {
		t.Fatalf("second Run() error = %v", err)
	}
}

// lineWriter hands every zerolog event to a channel.
type lineWriter chan string

func (w lineWriter) Write(p []byte) (int, error) {
	w <- string(p)
	return len(p), nil
}

func TestCollectorRepeatedStartIsLogged(t *testing.T) {
	lines := make(lineWriter, 64)
	m := NewMixer(seed.NewStore(), WithLogger(zerolog.New(lines)))
	c := NewCollector(m, capture.NewReaderSource(bytes.NewReader(s16Capture(8)), capture.S16LE)).Start(context.Background())
	waitDone(t, c)

	if again := c.Start(context.Background()); again != c {
		t.Fatalf("Start() returned a different collector")
	}
	for {
		select {
		case line := <-lines:
			if bytes.Contains([]byte(line), []byte(errCollectorStarted.Error())) {
				return
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("repeated Start was not logged")
		}
	}
}

func TestCollectorReseedChangesFingerprint(t *testing.T) {
	st := seed.NewStore()
	first := NewCollector(NewMixer(st), capture.NewReaderSource(bytes.NewReader(s16Capture(8)), capture.S16LE)).Start(context.Background())
	waitDone(t, first)
	before, ok := st.Current()
	if !ok {
		t.Fatalf("no seed after first collection")
	}

	second := NewCollector(NewMixer(st), capture.NewReaderSource(bytes.NewReader(s16Capture(9)), capture.S16LE)).Start(context.Background())
	waitDone(t, second)
	after, _ := st.Current()
	if before.Fingerprint() == after.Fingerprint() {
		t.Fatalf("fingerprint unchanged after mixing new audio")
	}
}

func TestCollectorSourceUnavailable(t *testing.T) {
	st := seed.NewStore()
	c := NewCollector(NewMixer(st), capture.None("no input device"))
	err := c.Run(context.Background())
	if !errors.Is(err, ErrEntropySourceUnavailable) || !errors.Is(err, capture.ErrNoDevice) {
		t.Fatalf("Run() error = %v", err)
	}
	waitDone(t, c)
	if !errors.Is(c.Err(), ErrEntropySourceUnavailable) {
		t.Fatalf("Err() = %v", c.Err())
	}
	if _, ok := st.Current(); ok {
		t.Fatalf("store written without a source")
	}
}

func TestCollectorDropsFailedChunks(t *testing.T) {
	st := seed.NewStore()
	// randomness for exactly one chunk, the second chunk fails to mix
	m := NewMixer(st, WithRandom(bytes.NewReader(make([]byte, randomBytes))))
	src := capture.NewReaderSource(bytes.NewReader(s16Capture(2)), capture.S16LE, capture.WithChunkSamples(1))

	c := NewCollector(m, src).Start(context.Background())
	waitDone(t, c)
	if c.Err() != nil {
		t.Fatalf("Err() = %v", c.Err())
	}
	if st.Generation() != 1 {
		t.Fatalf("generation = %d, want 1", st.Generation())
	}
}

func TestCollectorStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	st := seed.NewStore()
	c := NewCollector(NewMixer(st), capture.NewTickerSource(time.Millisecond)).Start(ctx)

	deadline := time.After(5 * time.Second)
	for st.Generation() < 3 {
		select {
		case <-deadline:
			t.Fatalf("ticker source produced no seeds")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	waitDone(t, c)
	if c.Err() != nil {
		t.Fatalf("Err() = %v after cancel", c.Err())
	}
}
