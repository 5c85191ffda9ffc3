package densestore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"math"
	"strings"
	"sync"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// Compression is the codec applied to stored slabs.
type Compression uint8

const (
	Uncompressed Compression = iota
	Snappy
	Zstd
)

func (c Compression) String() string {
	switch c {
	case Uncompressed:
		return "none"
	case Snappy:
		return "snappy"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// ErrUnknownCompression is returned for codec names or values outside the known set.
var ErrUnknownCompression = errors.New("unknown compression")

// ParseCompression converts a configuration name to a Compression.
func ParseCompression(name string) (Compression, error) {
	switch strings.ToLower(name) {
	case "", "none", "uncompressed":
		return Uncompressed, nil
	case "snappy":
		return Snappy, nil
	case "zstd", "zstandard":
		return Zstd, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownCompression, name)
	}
}

var (
	zstdOnce sync.Once
	zstdEnc  *zstd.Encoder
	zstdDec  *zstd.Decoder
	zstdErr  error
)

// zstdCodecs returns the shared encoder and decoder. EncodeAll and DecodeAll
// may be called concurrently.
func zstdCodecs() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEnc, zstdErr = zstd.NewWriter(nil)
		if zstdErr != nil {
			return
		}
		zstdDec, zstdErr = zstd.NewReader(nil)
	})
	return zstdEnc, zstdDec, zstdErr
}

// Stored slabs start with a header of one compression byte and the CRC32 of
// the payload, little endian.
const headerSize = 5

// encodeSlab serializes little-endian float32 samples with the given codec.
func encodeSlab(samples []float32, compress Compression) ([]byte, error) {
	raw := floatBytes(samples)

	var payload []byte
	switch compress {
	case Uncompressed:
		payload = raw
	case Snappy:
		payload = snappy.Encode(nil, raw)
	case Zstd:
		enc, _, err := zstdCodecs()
		if err != nil {
			return nil, fmt.Errorf("zstd encode: %w", err)
		}
		payload = enc.EncodeAll(raw, nil)
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownCompression, compress)
	}

	out := make([]byte, headerSize+len(payload))
	out[0] = byte(compress)
	binary.LittleEndian.PutUint32(out[1:headerSize], crc32.ChecksumIEEE(payload))
	copy(out[headerSize:], payload)
	return out, nil
}

// decodeSlab returns the raw little-endian sample bytes of a stored slab.
func decodeSlab(stored []byte) ([]byte, error) {
	if len(stored) < headerSize {
		return nil, fmt.Errorf("stored slab of %d bytes is shorter than its header", len(stored))
	}
	compress := Compression(stored[0])
	payload := stored[headerSize:]
	if want, got := binary.LittleEndian.Uint32(stored[1:headerSize]), crc32.ChecksumIEEE(payload); want != got {
		return nil, fmt.Errorf("bad slab checksum: stored %x got %x", want, got)
	}

	switch compress {
	case Uncompressed:
		return payload, nil
	case Snappy:
		raw, err := snappy.Decode(nil, payload)
		if err != nil {
			return nil, fmt.Errorf("snappy decode: %w", err)
		}
		return raw, nil
	case Zstd:
		_, dec, err := zstdCodecs()
		if err != nil {
			return nil, fmt.Errorf("zstd decode: %w", err)
		}
		raw, err := dec.DecodeAll(payload, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decode: %w", err)
		}
		return raw, nil
	default:
		return nil, fmt.Errorf("%w: stored slab uses %v", ErrUnknownCompression, compress)
	}
}

func floatBytes(samples []float32) []byte {
	out := make([]byte, 4*len(samples))
	for i, v := range samples {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(v))
	}
	return out
}

func bytesFloats(raw []byte) ([]float32, error) {
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("slab of %d bytes is not a whole number of float32 samples", len(raw))
	}
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return out, nil
}
