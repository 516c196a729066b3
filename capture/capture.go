// Package capture delivers audio samples to the entropy mixer. Device access
// is left to whatever produces the raw PCM (arecord, parec, a recording on
// disk); this package decodes it into normalized float32 chunks and hands
// them over on a channel.
package capture

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoDevice indicates that no capture device is available.
	ErrNoDevice = errors.New("audioseed/capture: no capture device")
	// ErrUnknownFormat indicates an unsupported sample format name.
	ErrUnknownFormat = errors.New("audioseed/capture: unknown sample format")
	// ErrAlreadyStreaming indicates a second Stream call on a one-shot source.
	ErrAlreadyStreaming = errors.New("audioseed/capture: source already streaming")
)

// Chunk is an ordered run of samples in [-1, 1] captured together.
type Chunk []float32

// Source produces sample chunks asynchronously.
type Source interface {
	// Name identifies the source in logs.
	Name() string
	// Stream starts delivery. The returned channel is closed when the source
	// is exhausted or ctx is done. An error means the source could not be
	// started and nothing will ever be delivered.
	Stream(ctx context.Context) (<-chan Chunk, error)
}

type noneSource struct {
	reason string
}

// None returns a Source that always fails to start with ErrNoDevice. It
// stands in for a machine without a usable input device.
func None(reason string) Source {
	return noneSource{reason: reason}
}

func (n noneSource) Name() string { return "none" }

func (n noneSource) Stream(context.Context) (<-chan Chunk, error) {
	if n.reason == "" {
		return nil, ErrNoDevice
	}
	return nil, fmt.Errorf("%w: %s", ErrNoDevice, n.reason)
}

// TickerSource emits an empty chunk on every tick. Mixing an empty chunk
// still folds fresh OS randomness and the clock into the seed, so the seed
// keeps moving without any audio.
type TickerSource struct {
	interval time.Duration
}

// NewTickerSource returns a TickerSource firing every interval.
func NewTickerSource(interval time.Duration) *TickerSource {
	return &TickerSource{interval: interval}
}

// Name implements Source.
func (t *TickerSource) Name() string { return "ticker" }

// Stream implements Source.
func (t *TickerSource) Stream(ctx context.Context) (<-chan Chunk, error) {
	if t.interval <= 0 {
		return nil, fmt.Errorf("audioseed/capture: ticker interval must be positive, got %v", t.interval)
	}
	out := make(chan Chunk)
	go func() {
		defer close(out)
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			select {
			case out <- Chunk{}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
