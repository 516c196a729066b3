package entropy

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"pkt.systems/audioseed/capture"
)

var errCollectorStarted = errors.New("audioseed/entropy: collector already started")

// Collector feeds every chunk from a capture.Source through a Mixer on one
// goroutine. Failures stay inside the collector: a source that cannot start
// ends collection, a chunk that cannot be mixed is dropped, and the store
// simply keeps its last seed in both cases.
type Collector struct {
	mixer  *Mixer
	source capture.Source

	started atomic.Bool
	done    chan struct{}
	err     error
}

// NewCollector prepares a collector; call Start or Run to begin.
func NewCollector(mixer *Mixer, source capture.Source) *Collector {
	return &Collector{
		mixer:  mixer,
		source: source,
		done:   make(chan struct{}),
	}
}

// Start runs the collector on its own goroutine and returns c. A Collector
// runs at most once; later calls only log errCollectorStarted.
func (c *Collector) Start(ctx context.Context) *Collector {
	go func() {
		if err := c.Run(ctx); errors.Is(err, errCollectorStarted) {
			c.mixer.log.Warn().Err(err).Str("source", c.source.Name()).Msg("ignoring repeated start")
		}
	}()
	return c
}

// Done is closed when collection has stopped.
func (c *Collector) Done() <-chan struct{} {
	return c.done
}

// Err reports why collection stopped: nil when the source ran dry or ctx was
// cancelled, ErrEntropySourceUnavailable when the source never started. It
// must only be called after Done is closed.
func (c *Collector) Err() error {
	return c.err
}

// Run mixes chunks until the source is exhausted or ctx is done. It may be
// called once per Collector.
func (c *Collector) Run(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return errCollectorStarted
	}
	defer close(c.done)
	c.err = c.run(ctx)
	return c.err
}

func (c *Collector) run(ctx context.Context) error {
	log := c.mixer.log.With().Str("source", c.source.Name()).Logger()

	chunks, err := c.source.Stream(ctx)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrEntropySourceUnavailable, err)
		log.Warn().Err(err).Msg("entropy collection not started, sampling will use random fallback seeds")
		return err
	}
	log.Info().Msg("entropy collection started")

	var mixed uint64
	for {
		select {
		case <-ctx.Done():
			log.Info().Uint64("chunks", mixed).Msg("entropy collection cancelled")
			return nil
		case chunk, ok := <-chunks:
			if !ok {
				log.Info().Uint64("chunks", mixed).Msg("entropy source closed")
				return nil
			}
			if _, err := c.mixer.Absorb(chunk); err != nil {
				log.Error().Err(err).Msg("dropping chunk")
				continue
			}
			mixed++
			if mixed == 1 {
				log.Debug().Msg("first seed mixed")
			}
		}
	}
}
