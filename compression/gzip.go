package compression

import (
	"bufio"
	"compress/gzip"
	"io"
	"sync"
)

// Gzip returns an adapter using gzip at the provided level. If level is 0,
// gzip.BestSpeed is used.
func Gzip(level int) Adapter {
	if level == 0 {
		level = gzip.BestSpeed
	}
	adapter := &gzipAdapter{level: level}
	adapter.writerPool.New = func() any {
		w, err := gzip.NewWriterLevel(io.Discard, level)
		if err != nil {
			panic(err)
		}
		return w
	}
	return adapter
}

var defaultGzip = Gzip(gzip.BestSpeed)

// GzipDefault exposes a gzip adapter using BestSpeed.
func GzipDefault() Adapter { return defaultGzip }

type gzipAdapter struct {
	level      int
	writerPool sync.Pool
	readerPool sync.Pool
}

func (a *gzipAdapter) Name() string { return "gzip" }

func (a *gzipAdapter) WrapWriter(w io.Writer) (io.WriteCloser, error) {
	gw := a.writerPool.Get().(*gzip.Writer)
	gw.Reset(w)
	return &pooledGzipWriter{Writer: gw, pool: &a.writerPool}, nil
}

// WrapReader reads the gzip header eagerly, so a corrupt recording fails
// here rather than on the first chunk.
func (a *gzipAdapter) WrapReader(r io.Reader) (io.ReadCloser, error) {
	br := bufio.NewReader(r)
	if gr, ok := a.readerPool.Get().(*gzip.Reader); ok {
		if err := gr.Reset(br); err != nil {
			a.readerPool.Put(gr)
			return nil, err
		}
		return &pooledGzipReader{Reader: gr, pool: &a.readerPool}, nil
	}
	gr, err := gzip.NewReader(br)
	if err != nil {
		return nil, err
	}
	return &pooledGzipReader{Reader: gr, pool: &a.readerPool}, nil
}

type pooledGzipWriter struct {
	*gzip.Writer
	pool *sync.Pool
}

func (w *pooledGzipWriter) Close() error {
	err := w.Writer.Close()
	w.Writer.Reset(io.Discard)
	w.pool.Put(w.Writer)
	return err
}

type pooledGzipReader struct {
	*gzip.Reader
	pool *sync.Pool
}

func (r *pooledGzipReader) Close() error {
	err := r.Reader.Close()
	r.pool.Put(r.Reader)
	return err
}
