package store

import (
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

// FileKind classifies the source file at snapshot time. Platform file-type
// handles are not serializable, so the kind is captured once into this
// closed set and never carried past the snapshot boundary.
type FileKind uint8

const (
	KindFile FileKind = iota
	KindDir
	KindSymlink
	KindUnknown
)

func (k FileKind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDir:
		return "dir"
	case KindSymlink:
		return "symlink"
	default:
		return "unknown"
	}
}

// kindOf maps fs.FileInfo to a FileKind.
func kindOf(info fs.FileInfo) FileKind {
	mode := info.Mode()
	switch {
	case mode.IsRegular():
		return KindFile
	case mode.IsDir():
		return KindDir
	case mode&fs.ModeSymlink != 0:
		return KindSymlink
	default:
		return KindUnknown
	}
}

// Snapshot is a serializable capture of filesystem attributes at backup
// time. Each timestamp is optional; not every filesystem exposes all three.
type Snapshot struct {
	created  *time.Time
	modified *time.Time
	accessed *time.Time
	size     uint64
	kind     FileKind
}

// snapshotOf captures a Snapshot from fs.FileInfo. The portable FileInfo
// surface only guarantees the modification time; creation and access times
// are left unset.
func snapshotOf(info fs.FileInfo) Snapshot {
	mod := info.ModTime()
	s := Snapshot{
		modified: &mod,
		kind:     kindOf(info),
	}
	if size := info.Size(); size > 0 {
		s.size = uint64(size)
	}
	return s
}

// Created returns the creation time, or nil if the filesystem did not
// expose one.
func (s Snapshot) Created() *time.Time { return s.created }

// Modified returns the last modification time, or nil if unavailable.
func (s Snapshot) Modified() *time.Time { return s.modified }

// Accessed returns the last access time, or nil if unavailable.
func (s Snapshot) Accessed() *time.Time { return s.accessed }

// Size returns the source file's byte length at snapshot time.
func (s Snapshot) Size() uint64 { return s.size }

// Kind returns the source file's classification at snapshot time.
func (s Snapshot) Kind() FileKind { return s.kind }

// EncodeMsgpack writes the snapshot as a fixed five-element array.
func (s *Snapshot) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeArrayLen(5); err != nil {
		return err
	}
	for _, t := range []*time.Time{s.created, s.modified, s.accessed} {
		if err := encodeOptionalTime(enc, t); err != nil {
			return err
		}
	}
	if err := enc.EncodeUint64(s.size); err != nil {
		return err
	}
	return enc.EncodeUint8(uint8(s.kind))
}

// DecodeMsgpack reads the five-element array written by EncodeMsgpack.
func (s *Snapshot) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return err
	}
	if n != 5 {
		return fmt.Errorf("snapshot: expected 5 fields, got %d", n)
	}
	for _, t := range []**time.Time{&s.created, &s.modified, &s.accessed} {
		if *t, err = decodeOptionalTime(dec); err != nil {
			return err
		}
	}
	if s.size, err = dec.DecodeUint64(); err != nil {
		return err
	}
	kind, err := dec.DecodeUint8()
	if err != nil {
		return err
	}
	if kind > uint8(KindUnknown) {
		return fmt.Errorf("snapshot: unknown file kind %d", kind)
	}
	s.kind = FileKind(kind)
	return nil
}

func encodeOptionalTime(enc *msgpack.Encoder, t *time.Time) error {
	if t == nil {
		return enc.EncodeNil()
	}
	return enc.EncodeTime(*t)
}

func decodeOptionalTime(dec *msgpack.Decoder) (*time.Time, error) {
	code, err := dec.PeekCode()
	if err != nil {
		return nil, err
	}
	if code == msgpcode.Nil {
		return nil, dec.DecodeNil()
	}
	t, err := dec.DecodeTime()
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Metadata describes one backup's provenance: which source file it came
// from, what that file looked like at capture time, and which backup
// version this is. It never contains file bytes.
type Metadata struct {
	version       Version
	backupCreated int64 // seconds since epoch
	path          string
	snapshot      Snapshot
}

// NewMetadata captures a full metadata record for the file at path, stamped
// with the current time. It fails if the path does not exist or its
// attributes cannot be read.
func NewMetadata(path string, version Version) (*Metadata, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading metadata for %s: %w", path, err)
	}
	return NewMetadataFromInfo(path, time.Now().Unix(), info, version), nil
}

// NewMetadataFromInfo builds a record from attributes the caller already
// read, avoiding a second stat and the race between two reads. Used when
// file bytes and attributes were extracted together.
func NewMetadataFromInfo(path string, backupCreated int64, info fs.FileInfo, version Version) *Metadata {
	return &Metadata{
		version:       version,
		backupCreated: backupCreated,
		path:          path,
		snapshot:      snapshotOf(info),
	}
}

// Refresh replaces only the embedded filesystem snapshot. Path and version
// are untouched.
func (m *Metadata) Refresh(info fs.FileInfo) {
	m.snapshot = snapshotOf(info)
}

// BumpVersion increments the version counter in place. Like
// Version.Increment, it panics on an invalid counter.
func (m *Metadata) BumpVersion() {
	m.version.Increment()
}

// Version returns the backup version counter.
func (m *Metadata) Version() Version { return m.version }

// BackupCreated returns when the backup was taken, in seconds since epoch.
// This is the capture time of the backup, not any timestamp of the source.
func (m *Metadata) BackupCreated() int64 { return m.backupCreated }

// Path returns the absolute path of the source file.
func (m *Metadata) Path() string { return m.path }

// Snapshot returns the filesystem attributes captured at backup time.
func (m *Metadata) Snapshot() Snapshot { return m.snapshot }

// EncodeMsgpack writes the record as a fixed four-element array. Only the
// version's raw value is persisted; the overflow policy is a call-site
// choice.
func (m *Metadata) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeArrayLen(4); err != nil {
		return err
	}
	if err := enc.EncodeUint32(m.version.Value()); err != nil {
		return err
	}
	if err := enc.EncodeInt64(m.backupCreated); err != nil {
		return err
	}
	if err := enc.EncodeString(m.path); err != nil {
		return err
	}
	return m.snapshot.EncodeMsgpack(enc)
}

// DecodeMsgpack reads the four-element array written by EncodeMsgpack.
// Decoded versions carry the Wrap policy, the default for containers
// produced by this package.
func (m *Metadata) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return err
	}
	if n != 4 {
		return fmt.Errorf("metadata: expected 4 fields, got %d", n)
	}
	raw, err := dec.DecodeUint32()
	if err != nil {
		return err
	}
	m.version = versionWithValue(raw, Wrap)
	if m.backupCreated, err = dec.DecodeInt64(); err != nil {
		return err
	}
	if m.path, err = dec.DecodeString(); err != nil {
		return err
	}
	return m.snapshot.DecodeMsgpack(dec)
}

// encode serializes the record with msgpack. The encoded length is what a
// container header declares as MetaSize.
func (m *Metadata) encode() ([]byte, error) {
	b, err := msgpack.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding metadata: %w", err)
	}
	return b, nil
}

// decodeMetadata deserializes a metadata block.
func decodeMetadata(b []byte) (*Metadata, error) {
	var m Metadata
	if err := msgpack.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decoding metadata: %w", err)
	}
	return &m, nil
}
