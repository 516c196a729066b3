package chacharand

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"testing"

	"golang.org/x/crypto/chacha20"
)

func randomKey(t *testing.T) [KeySize]byte {
	t.Helper()
	var key [KeySize]byte
	if _, err := rand.Read(key[:]); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	return key
}

func TestSourceMatchesKeystream(t *testing.T) {
	key := randomKey(t)
	src, err := New(key)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	var nonce [chacha20.NonceSize]byte
	c, err := chacha20.NewUnauthenticatedCipher(key[:], nonce[:])
	if err != nil {
		t.Fatalf("NewUnauthenticatedCipher: %v", err)
	}
	want := make([]byte, 3*bufSize)
	c.XORKeyStream(want, want)

	for i := 0; i < len(want)/8; i++ {
		got := src.Uint64()
		if exp := binary.LittleEndian.Uint64(want[i*8:]); got != exp {
			t.Fatalf("word %d: got %x want %x", i, got, exp)
		}
	}
}

func TestSameKeySameSequence(t *testing.T) {
	key := randomKey(t)
	a, err := NewRand(key)
	if err != nil {
		t.Fatalf("NewRand() error = %v", err)
	}
	b, err := NewRand(key)
	if err != nil {
		t.Fatalf("NewRand() error = %v", err)
	}
	for i := 0; i < 1000; i++ {
		if x, y := a.Uint32N(1000), b.Uint32N(1000); x != y {
			t.Fatalf("draw %d diverged: %d != %d", i, x, y)
		}
	}
}

func TestDifferentKeysDiverge(t *testing.T) {
	a, _ := New(randomKey(t))
	b, _ := New(randomKey(t))
	same := 0
	for i := 0; i < 16; i++ {
		if a.Uint64() == b.Uint64() {
			same++
		}
	}
	if same == 16 {
		t.Fatalf("independent keys produced identical output")
	}
}

func TestReadSpansRefills(t *testing.T) {
	key := randomKey(t)
	src, _ := New(key)
	got := make([]byte, bufSize+13)
	if n, err := src.Read(got); err != nil || n != len(got) {
		t.Fatalf("Read() = %d, %v", n, err)
	}

	var nonce [chacha20.NonceSize]byte
	c, _ := chacha20.NewUnauthenticatedCipher(key[:], nonce[:])
	want := make([]byte, len(got))
	c.XORKeyStream(want, want)
	if !bytes.Equal(got, want) {
		t.Fatalf("Read output does not match keystream")
	}
}
