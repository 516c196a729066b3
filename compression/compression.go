// Package compression wraps recorded capture streams with a compression
// stage. Recordings are chosen by file extension so a capture can be replayed
// from `.gz`, `.sz` or `.lz4` files without extra flags.
package compression

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// ErrUnknownCodec indicates a codec name or extension with no adapter.
var ErrUnknownCodec = errors.New("audioseed/compression: unknown codec")

// Adapter wraps streams with compression/decompression stages.
type Adapter interface {
	Name() string
	WrapWriter(io.Writer) (io.WriteCloser, error)
	WrapReader(io.Reader) (io.ReadCloser, error)
}

// ByName returns the adapter registered as name ("gzip", "snappy" or "lz4").
func ByName(name string) (Adapter, error) {
	switch strings.ToLower(name) {
	case "gzip", "gz":
		return GzipDefault(), nil
	case "snappy", "sz":
		return Snappy(), nil
	case "lz4":
		return LZ4(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

// ForPath picks an adapter from the extension of path. ok is false when the
// extension does not name a codec, meaning the file is stored raw.
func ForPath(path string) (adapter Adapter, ok bool) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return nil, false
	}
	adapter, err := ByName(ext)
	if err != nil {
		return nil, false
	}
	return adapter, true
}
