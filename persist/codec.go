package persist

import (
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec compresses snapshot payloads. Implementations must be safe
// for concurrent use.
//
// Snapshot containers are self-describing: the codec name is stored
// in the header, and Load selects the codec by name. Renaming a codec
// is a breaking change for existing snapshots.
type Codec interface {
	Name() string
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

// ByName returns a built-in codec by its stable name.
func ByName(name string) (Codec, bool) {
	switch name {
	case "none":
		return None{}, true
	case "zstd":
		return defaultZstd, true
	case "lz4":
		return LZ4{}, true
	default:
		return nil, false
	}
}

// None stores payloads uncompressed.
type None struct{}

// Name returns "none".
func (None) Name() string { return "none" }

func (None) Compress(data []byte) ([]byte, error) { return data, nil }

func (None) Decompress(data []byte) ([]byte, error) { return data, nil }

// Zstd compresses payloads with zstandard.
type Zstd struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

var defaultZstd = NewZstd()

// NewZstd creates a zstd codec with default settings.
func NewZstd() *Zstd {
	// No variadic options are passed, so construction cannot fail.
	enc, _ := zstd.NewWriter(nil)
	dec, _ := zstd.NewReader(nil)
	return &Zstd{enc: enc, dec: dec}
}

// Name returns "zstd".
func (*Zstd) Name() string { return "zstd" }

func (c *Zstd) Compress(data []byte) ([]byte, error) {
	return c.enc.EncodeAll(data, nil), nil
}

func (c *Zstd) Decompress(data []byte) ([]byte, error) {
	out, err := c.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("persist: zstd decompress: %w", err)
	}
	return out, nil
}

// LZ4 compresses payloads with LZ4 blocks. Each payload carries an
// 8-byte header: uncompressed length and compressed length. A
// compressed length of zero marks an incompressible payload stored raw.
type LZ4 struct{}

const lz4HeaderSize = 8

// Name returns "lz4".
func (LZ4) Name() string { return "lz4" }

func (LZ4) Compress(data []byte) ([]byte, error) {
	bound := lz4.CompressBlockBound(len(data))
	compressed := make([]byte, bound)

	n, err := lz4.CompressBlock(data, compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("persist: lz4 compress: %w", err)
	}

	// n == 0 means incompressible, store raw.
	if n == 0 || n >= len(data) {
		out := make([]byte, lz4HeaderSize+len(data))
		binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
		binary.LittleEndian.PutUint32(out[4:], 0)
		copy(out[lz4HeaderSize:], data)
		return out, nil
	}

	out := make([]byte, lz4HeaderSize+n)
	binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
	binary.LittleEndian.PutUint32(out[4:], uint32(n))
	copy(out[lz4HeaderSize:], compressed[:n])
	return out, nil
}

func (LZ4) Decompress(data []byte) ([]byte, error) {
	if len(data) < lz4HeaderSize {
		return nil, fmt.Errorf("persist: lz4 payload too small: %w", ErrChecksum)
	}

	uncompressedLen := binary.LittleEndian.Uint32(data[0:])
	compressedLen := binary.LittleEndian.Uint32(data[4:])

	if compressedLen == 0 {
		if uint32(len(data)-lz4HeaderSize) < uncompressedLen {
			return nil, fmt.Errorf("persist: lz4 raw payload truncated: %w", ErrChecksum)
		}
		return data[lz4HeaderSize : lz4HeaderSize+uncompressedLen], nil
	}

	if uint32(len(data)-lz4HeaderSize) < compressedLen {
		return nil, fmt.Errorf("persist: lz4 payload truncated: %w", ErrChecksum)
	}

	out := make([]byte, uncompressedLen)
	n, err := lz4.UncompressBlock(data[lz4HeaderSize:lz4HeaderSize+compressedLen], out)
	if err != nil {
		return nil, fmt.Errorf("persist: lz4 decompress: %w", err)
	}
	if uint32(n) != uncompressedLen {
		return nil, fmt.Errorf("persist: lz4 size mismatch: %w", ErrChecksum)
	}
	return out, nil
}
