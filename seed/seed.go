// Package seed holds the 256-bit seed value type and the store that publishes
// the most recently mixed seed to concurrent readers.
package seed

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// Size is the length of a seed in bytes.
const Size = 32

// fingerprintChars is the number of hex characters kept by Fingerprint.
const fingerprintChars = 10

// Seed is a 256-bit value used to key the deterministic RNG. Seeds are passed
// by value; a stored seed is never modified in place.
type Seed [Size]byte

var (
	// ErrInvalidLength indicates that the provided byte slice did not contain
	// exactly 32 bytes.
	ErrInvalidLength = errors.New("audioseed/seed: invalid seed length")
)

// Generate draws a fresh seed from the operating system CSPRNG.
func Generate() (Seed, error) {
	var s Seed
	if _, err := rand.Read(s[:]); err != nil {
		return Seed{}, fmt.Errorf("generate seed: %w", err)
	}
	return s, nil
}

// MustGenerate is the panic-on-error variant of Generate.
func MustGenerate() Seed {
	s, err := Generate()
	if err != nil {
		panic(err)
	}
	return s
}

// FromBytes copies b into a Seed. Returns an error if b does not contain
// exactly 32 bytes.
func FromBytes(b []byte) (Seed, error) {
	if len(b) != Size {
		return Seed{}, fmt.Errorf("%w: got %d bytes", ErrInvalidLength, len(b))
	}
	var s Seed
	copy(s[:], b)
	return s, nil
}

// FromHex decodes a hex string into a Seed.
func FromHex(encoded string) (Seed, error) {
	data, err := hex.DecodeString(encoded)
	if err != nil {
		return Seed{}, fmt.Errorf("decode seed hex: %w", err)
	}
	return FromBytes(data)
}

// EncodeToHex exports the seed as a hex string.
func (s Seed) EncodeToHex() string {
	return hex.EncodeToString(s[:])
}

// Fingerprint hashes the seed with SHA-256 and returns the first 10 lowercase
// hex characters of the digest. It identifies a seed without revealing it.
func (s Seed) Fingerprint() string {
	sum := sha256.Sum256(s[:])
	return hex.EncodeToString(sum[:])[:fingerprintChars]
}

// Zero overwrites the seed material with zeros.
func (s *Seed) Zero() {
	for i := range s {
		s[i] = 0
	}
}
