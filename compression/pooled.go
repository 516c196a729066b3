package compression

import (
	"bytes"
	"io"
	"sync"

	"github.com/golang/snappy"
	"github.com/pierrec/lz4/v4"
)

// Snappy returns a pooled adapter using the snappy framing format.
func Snappy() Adapter {
	return newPooled("snappy",
		func() resetWriter { return snappy.NewBufferedWriter(io.Discard) },
		func() resetReader { return snappy.NewReader(bytes.NewReader(nil)) },
	)
}

// LZ4 returns a pooled adapter using the LZ4 frame format.
func LZ4() Adapter {
	return newPooled("lz4",
		func() resetWriter { return lz4.NewWriter(io.Discard) },
		func() resetReader { return lz4.NewReader(bytes.NewReader(nil)) },
	)
}

type resetWriter interface {
	io.WriteCloser
	Reset(io.Writer)
}

type resetReader interface {
	io.Reader
	Reset(io.Reader)
}

// pooledAdapter recycles codec readers and writers between recordings.
type pooledAdapter struct {
	name    string
	writers sync.Pool
	readers sync.Pool
}

func newPooled(name string, newWriter func() resetWriter, newReader func() resetReader) *pooledAdapter {
	a := &pooledAdapter{name: name}
	a.writers.New = func() any { return newWriter() }
	a.readers.New = func() any { return newReader() }
	return a
}

func (a *pooledAdapter) Name() string { return a.name }

func (a *pooledAdapter) WrapWriter(w io.Writer) (io.WriteCloser, error) {
	cw := a.writers.Get().(resetWriter)
	cw.Reset(w)
	return &pooledWriter{resetWriter: cw, pool: &a.writers}, nil
}

func (a *pooledAdapter) WrapReader(r io.Reader) (io.ReadCloser, error) {
	cr := a.readers.Get().(resetReader)
	cr.Reset(r)
	return &pooledReader{reader: cr, pool: &a.readers}, nil
}

type pooledWriter struct {
	resetWriter
	pool *sync.Pool
}

func (w *pooledWriter) Close() error {
	err := w.resetWriter.Close()
	w.resetWriter.Reset(io.Discard)
	w.pool.Put(w.resetWriter)
	return err
}

type pooledReader struct {
	reader resetReader
	pool   *sync.Pool
}

func (r *pooledReader) Read(p []byte) (int, error) {
	return r.reader.Read(p)
}

func (r *pooledReader) Close() error {
	r.reader.Reset(bytes.NewReader(nil))
	r.pool.Put(r.reader)
	return nil
}
