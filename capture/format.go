package capture

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// Format converts one encoded sample into a float32 in [-1, 1]. Each sample
// representation has its own implementation, picked when the stream is
// configured.
type Format interface {
	Name() string
	// Size is the number of bytes per sample.
	Size() int
	// Decode converts the first Size() bytes of b.
	Decode(b []byte) float32
}

var (
	// F32LE is 32-bit IEEE-754 float, little-endian; passed through as is.
	F32LE Format = f32le{}
	// S16LE is signed 16-bit little-endian PCM.
	S16LE Format = s16le{}
	// S32LE is signed 32-bit little-endian PCM.
	S32LE Format = s32le{}
	// U16LE is unsigned 16-bit little-endian PCM centred on 0x8000.
	U16LE Format = u16le{}
	// U8 is unsigned 8-bit PCM centred on 0x80.
	U8 Format = u8{}
)

var formats = []Format{F32LE, S16LE, S32LE, U16LE, U8}

// ParseFormat looks a format up by name. Names follow the ALSA spelling used
// by `arecord -f`, e.g. "FLOAT_LE", "S16_LE", and the short forms "f32le",
// "s16le".
func ParseFormat(name string) (Format, error) {
	key := strings.ToLower(strings.NewReplacer("_", "", "-", "").Replace(name))
	switch key {
	case "floatle", "float32le":
		return F32LE, nil
	}
	for _, f := range formats {
		if f.Name() == key {
			return f, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, name)
}

type f32le struct{}

func (f32le) Name() string { return "f32le" }
func (f32le) Size() int    { return 4 }
func (f32le) Decode(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

type s16le struct{}

func (s16le) Name() string { return "s16le" }
func (s16le) Size() int    { return 2 }
func (s16le) Decode(b []byte) float32 {
	return float32(int16(binary.LittleEndian.Uint16(b))) / (1 << 15)
}

type s32le struct{}

func (s32le) Name() string { return "s32le" }
func (s32le) Size() int    { return 4 }
func (s32le) Decode(b []byte) float32 {
	return float32(float64(int32(binary.LittleEndian.Uint32(b))) / (1 << 31))
}

type u16le struct{}

func (u16le) Name() string { return "u16le" }
func (u16le) Size() int    { return 2 }
func (u16le) Decode(b []byte) float32 {
	return float32(int32(binary.LittleEndian.Uint16(b))-(1<<15)) / (1 << 15)
}

type u8 struct{}

func (u8) Name() string { return "u8" }
func (u8) Size() int    { return 1 }
func (u8) Decode(b []byte) float32 {
	return float32(int16(b[0])-(1<<7)) / (1 << 7)
}
