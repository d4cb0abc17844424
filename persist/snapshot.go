// Package persist writes point-in-time index snapshots to a blob store
// and reads them back.
//
// A snapshot is a single self-describing blob:
//
//	magic    uint32  "LXSN"
//	version  uint32  container format version
//	gen      uint64  writer generation the snapshot reflects
//	codec    string  length-prefixed codec name
//	payload  bytes   length-prefixed, compressed index state
//	checksum uint32  CRC32 (IEEE) of all preceding bytes
package persist

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"log/slog"
	"time"

	"github.com/hupe1980/lexgo/blobstore"
	"github.com/hupe1980/lexgo/index"
	"github.com/hupe1980/lexgo/resource"
)

const (
	// snapshotMagic identifies snapshot blobs (ASCII "LXSN").
	snapshotMagic = 0x4C58534E
	// snapshotVersion is the current container format version.
	snapshotVersion = 1
)

var (
	// ErrInvalidMagic is returned when a blob is not a snapshot.
	ErrInvalidMagic = errors.New("invalid snapshot magic")
	// ErrInvalidVersion is returned for snapshots written by an
	// unsupported container version.
	ErrInvalidVersion = errors.New("unsupported snapshot version")
	// ErrChecksum is returned when a snapshot fails integrity checks.
	ErrChecksum = errors.New("snapshot checksum mismatch")
	// ErrUnknownCodec is returned when a snapshot names a codec that
	// is not registered.
	ErrUnknownCodec = errors.New("unknown snapshot codec")
)

// Snapshotter saves and loads index snapshots through a blob store.
type Snapshotter struct {
	store  blobstore.Store
	codec  Codec
	ctrl   *resource.Controller
	logger *slog.Logger
}

// SnapshotterOption configures a Snapshotter.
type SnapshotterOption func(*Snapshotter)

// WithCodec sets the compression codec for new snapshots.
// Default: zstd. Loading always selects the codec named in the blob.
func WithCodec(c Codec) SnapshotterOption {
	return func(s *Snapshotter) {
		s.codec = c
	}
}

// WithResourceController throttles snapshot IO through ctrl.
func WithResourceController(ctrl *resource.Controller) SnapshotterOption {
	return func(s *Snapshotter) {
		s.ctrl = ctrl
	}
}

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(logger *slog.Logger) SnapshotterOption {
	return func(s *Snapshotter) {
		s.logger = logger
	}
}

// NewSnapshotter creates a Snapshotter writing to store.
func NewSnapshotter(store blobstore.Store, opts ...SnapshotterOption) *Snapshotter {
	s := &Snapshotter{
		store: store,
		codec: defaultZstd,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	return s
}

// Save writes st as the named snapshot blob. generation is the writer
// generation the state reflects and is stored in the container header.
func (s *Snapshotter) Save(ctx context.Context, name string, st *index.State, generation uint64) error {
	start := time.Now()

	payload, err := marshalState(st)
	if err != nil {
		return err
	}

	compressed, err := s.codec.Compress(payload)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	writeUint32(&buf, snapshotMagic)
	writeUint32(&buf, snapshotVersion)
	var genBytes [8]byte
	binary.LittleEndian.PutUint64(genBytes[:], generation)
	buf.Write(genBytes[:])
	writeString(&buf, s.codec.Name())
	writeBytes(&buf, compressed)
	writeUint32(&buf, crc32.ChecksumIEEE(buf.Bytes()))

	if err := s.ctrl.AcquireIO(ctx, buf.Len()); err != nil {
		return err
	}
	if err := s.store.Put(ctx, name, buf.Bytes()); err != nil {
		return err
	}

	s.logger.Debug("snapshot saved",
		slog.String("name", name),
		slog.Uint64("generation", generation),
		slog.String("codec", s.codec.Name()),
		slog.Int("raw_bytes", len(payload)),
		slog.Int("stored_bytes", buf.Len()),
		slog.Duration("took", time.Since(start)),
	)
	return nil
}

// Load reads the named snapshot and returns the decoded state along
// with the writer generation recorded at save time.
func (s *Snapshotter) Load(ctx context.Context, name string) (*index.State, uint64, error) {
	blob, err := s.store.Get(ctx, name)
	if err != nil {
		return nil, 0, err
	}
	if err := s.ctrl.AcquireIO(ctx, len(blob)); err != nil {
		return nil, 0, err
	}

	// Trailing checksum covers everything before it.
	if len(blob) < 4 {
		return nil, 0, fmt.Errorf("persist: %q: blob too small: %w", name, ErrInvalidMagic)
	}
	body, sum := blob[:len(blob)-4], binary.LittleEndian.Uint32(blob[len(blob)-4:])
	if crc32.ChecksumIEEE(body) != sum {
		return nil, 0, fmt.Errorf("persist: %q: %w", name, ErrChecksum)
	}

	r := &payloadReader{data: body}
	magic, err := r.uint32()
	if err != nil {
		return nil, 0, err
	}
	if magic != snapshotMagic {
		return nil, 0, fmt.Errorf("persist: %q: got 0x%08x: %w", name, magic, ErrInvalidMagic)
	}
	version, err := r.uint32()
	if err != nil {
		return nil, 0, err
	}
	if version != snapshotVersion {
		return nil, 0, fmt.Errorf("persist: %q: got %d: %w", name, version, ErrInvalidVersion)
	}

	if r.off+8 > len(r.data) {
		return nil, 0, fmt.Errorf("persist: %q: header truncated: %w", name, ErrChecksum)
	}
	generation := binary.LittleEndian.Uint64(r.data[r.off:])
	r.off += 8

	codecName, err := r.string()
	if err != nil {
		return nil, 0, err
	}
	codec, ok := ByName(codecName)
	if !ok {
		return nil, 0, fmt.Errorf("persist: %q: codec %q: %w", name, codecName, ErrUnknownCodec)
	}

	compressed, err := r.bytes()
	if err != nil {
		return nil, 0, err
	}
	payload, err := codec.Decompress(compressed)
	if err != nil {
		return nil, 0, err
	}

	st, err := unmarshalState(payload)
	if err != nil {
		return nil, 0, err
	}
	return st, generation, nil
}
