package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"pkt.systems/audioseed/compression"
)

const (
	defaultChunkSamples = 1024
	defaultBuffer       = 64
)

type config struct {
	name         string
	chunkSamples int
	buffer       int
	log          zerolog.Logger
}

// Option configures a ReaderSource.
type Option func(*config)

func applyOptions(opts []Option) config {
	cfg := config{
		name:         "reader",
		chunkSamples: defaultChunkSamples,
		buffer:       defaultBuffer,
		log:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithChunkSamples sets how many samples make up one chunk.
func WithChunkSamples(n int) Option {
	return func(cfg *config) {
		if n < 1 {
			panic(fmt.Sprintf("audioseed/capture: chunk size must be >= 1, got %d", n))
		}
		cfg.chunkSamples = n
	}
}

// WithBuffer sets how many decoded chunks may wait for the mixer before the
// reader stops reading.
func WithBuffer(n int) Option {
	return func(cfg *config) {
		if n < 0 {
			n = 0
		}
		cfg.buffer = n
	}
}

// WithName overrides the name reported in logs.
func WithName(name string) Option {
	return func(cfg *config) {
		cfg.name = name
	}
}

// WithLogger sets the logger used for read errors.
func WithLogger(log zerolog.Logger) Option {
	return func(cfg *config) {
		cfg.log = log
	}
}

// ReaderSource decodes raw interleaved PCM from an io.Reader. It can be
// streamed once.
type ReaderSource struct {
	r      io.Reader
	closer io.Closer
	format Format
	cfg    config

	started atomic.Bool
	errMu   sync.Mutex
	err     error
}

// NewReaderSource reads samples encoded as format from r.
func NewReaderSource(r io.Reader, format Format, opts ...Option) *ReaderSource {
	return &ReaderSource{r: r, format: format, cfg: applyOptions(opts)}
}

// OpenFile replays a recorded capture. Files ending in .gz, .sz or .lz4 are
// decompressed on the fly.
func OpenFile(path string, format Format, opts ...Option) (*ReaderSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}
	opts = append([]Option{WithName(path)}, opts...)
	adapter, ok := compression.ForPath(path)
	if !ok {
		src := NewReaderSource(f, format, opts...)
		src.closer = f
		return src, nil
	}
	rc, err := adapter.WrapReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open capture %s: %w", adapter.Name(), err)
	}
	src := NewReaderSource(rc, format, opts...)
	src.closer = closers{rc, f}
	return src, nil
}

type closers []io.Closer

func (cs closers) Close() error {
	var errs []error
	for _, c := range cs {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// Name implements Source.
func (s *ReaderSource) Name() string { return s.cfg.name }

// Err reports why delivery stopped. It is nil for a clean end of input or a
// cancelled context, and only meaningful once the stream channel is closed.
func (s *ReaderSource) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Stream implements Source. A blocked Read on the underlying reader is not
// interrupted by ctx; the loop notices cancellation once the read returns.
func (s *ReaderSource) Stream(ctx context.Context) (<-chan Chunk, error) {
	if s.format == nil {
		return nil, fmt.Errorf("%w: nil format", ErrUnknownFormat)
	}
	if !s.started.CompareAndSwap(false, true) {
		return nil, ErrAlreadyStreaming
	}
	out := make(chan Chunk, s.cfg.buffer)
	go s.run(ctx, out)
	return out, nil
}

func (s *ReaderSource) run(ctx context.Context, out chan<- Chunk) {
	defer close(out)
	if s.closer != nil {
		defer s.closer.Close()
	}
	size := s.format.Size()
	buf := make([]byte, s.cfg.chunkSamples*size)
	for {
		if ctx.Err() != nil {
			return
		}
		n, err := io.ReadFull(s.r, buf)
		if samples := n / size; samples > 0 {
			chunk := make(Chunk, samples)
			for i := range chunk {
				chunk[i] = s.format.Decode(buf[i*size:])
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
		switch {
		case err == nil:
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			s.cfg.log.Debug().Str("source", s.cfg.name).Msg("capture input ended")
			return
		default:
			s.cfg.log.Warn().Err(err).Str("source", s.cfg.name).Msg("capture read failed")
			s.errMu.Lock()
			s.err = err
			s.errMu.Unlock()
			return
		}
	}
}
