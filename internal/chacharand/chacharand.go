// Package chacharand turns the ChaCha20 keystream into a deterministic
// math/rand/v2 source. Two sources built from the same key yield the same
// sequence of values.
package chacharand

import (
	"encoding/binary"
	"fmt"
	"math/rand/v2"

	"golang.org/x/crypto/chacha20"
)

// KeySize is the ChaCha20 key length in bytes.
const KeySize = chacha20.KeySize

// bufSize is a whole number of 64-byte ChaCha20 blocks.
const bufSize = 8 * 64

// Source reads little-endian words off a ChaCha20 keystream with a zero
// nonce and the block counter starting at zero. A Source is not safe for
// concurrent use.
type Source struct {
	stream *chacha20.Cipher
	buf    [bufSize]byte
	ptr    int
}

var _ rand.Source = (*Source)(nil)

// New keys a Source with key.
func New(key [KeySize]byte) (*Source, error) {
	var nonce [chacha20.NonceSize]byte
	stream, err := chacha20.NewUnauthenticatedCipher(key[:], nonce[:])
	if err != nil {
		return nil, fmt.Errorf("audioseed/chacharand: %w", err)
	}
	return &Source{stream: stream, ptr: bufSize}, nil
}

// NewRand returns a *rand.Rand drawing from a fresh Source keyed with key.
func NewRand(key [KeySize]byte) (*rand.Rand, error) {
	src, err := New(key)
	if err != nil {
		return nil, err
	}
	return rand.New(src), nil
}

func (s *Source) refill() {
	clear(s.buf[:])
	s.stream.XORKeyStream(s.buf[:], s.buf[:])
	s.ptr = 0
}

// Uint64 implements rand.Source.
func (s *Source) Uint64() uint64 {
	if s.ptr+8 > bufSize {
		s.refill()
	}
	v := binary.LittleEndian.Uint64(s.buf[s.ptr:])
	s.ptr += 8
	return v
}

// Read fills p with keystream bytes. It always returns len(p) and a nil
// error.
func (s *Source) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if s.ptr == bufSize {
			s.refill()
		}
		c := copy(p[n:], s.buf[s.ptr:])
		s.ptr += c
		n += c
	}
	return n, nil
}
