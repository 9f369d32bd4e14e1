package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"snapstore/internal/codec"
)

// maxMetaSize bounds the metadata allocation when reading an entry, so a
// corrupt header cannot demand an absurd buffer.
const maxMetaSize = 16 << 20

// Entry is one indexed backup: its header and metadata, plus where the
// compressed container lives on disk. Payload bytes are never part of the
// index.
type Entry struct {
	// Name is the container's file name within the store directory.
	Name   string
	Header Header
	Meta   *Metadata
	// Path is the container's full on-disk path.
	Path string
}

// SkippedEntry records a store entry that could not be indexed during a
// scan, along with why.
type SkippedEntry struct {
	Path string
	Err  error
}

// Store indexes a directory of compressed containers. The index is built by
// reading only each container's leading bytes, header plus metadata, so
// browsing backup history stays cheap regardless of backed-up file size.
type Store struct {
	dir     string
	codec   codec.Codec
	logger  Logger
	entries map[string]Entry
	skipped []SkippedEntry
}

// Open scans the store directory and builds the index. It fails if the
// directory cannot be listed; entries that cannot be read or parsed are
// skipped, logged, and reported through Skipped rather than failing the
// whole scan.
func Open(dir string, cdc codec.Codec, logger Logger) (*Store, error) {
	if logger == nil {
		logger = NewNopLogger()
	}
	s := &Store{dir: dir, codec: cdc, logger: logger}
	if err := s.Refresh(); err != nil {
		return nil, err
	}
	return s, nil
}

// Dir returns the store directory this index describes.
func (s *Store) Dir() string { return s.dir }

// Refresh re-scans the store directory and replaces the index.
func (s *Store) Refresh() error {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("listing store directory: %w", err)
	}

	entries := make(map[string]Entry, len(dirEntries))
	var skipped []SkippedEntry

	for _, de := range dirEntries {
		if !de.Type().IsRegular() {
			continue
		}
		path := filepath.Join(s.dir, de.Name())
		entry, err := ReadEntry(path, s.codec)
		if err != nil {
			s.logger.Warn("skipping unreadable store entry", "path", path, "error", err)
			skipped = append(skipped, SkippedEntry{Path: path, Err: err})
			continue
		}
		entries[entry.Name] = entry
	}

	s.entries = entries
	s.skipped = skipped
	return nil
}

// Reindex re-reads a single container and updates its index entry, for
// callers that just wrote one container and don't need a full re-scan.
func (s *Store) Reindex(name string) error {
	entry, err := ReadEntry(filepath.Join(s.dir, name), s.codec)
	if err != nil {
		return err
	}
	s.entries[name] = entry
	return nil
}

// Entry looks up an indexed container by its store file name.
func (s *Store) Entry(name string) (Entry, bool) {
	e, ok := s.entries[name]
	return e, ok
}

// FindBySource returns the index entry whose metadata records the given
// absolute source path.
func (s *Store) FindBySource(sourcePath string) (Entry, bool) {
	for _, e := range s.entries {
		if e.Meta.Path() == sourcePath {
			return e, true
		}
	}
	return Entry{}, false
}

// Entries returns the indexed backups, sorted by store file name.
func (s *Store) Entries() []Entry {
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Skipped returns the entries the last scan could not index.
func (s *Store) Skipped() []SkippedEntry { return s.skipped }

// Len returns the number of indexed backups.
func (s *Store) Len() int { return len(s.entries) }

// ReadEntry reads only the header and metadata block from the leading bytes
// of a compressed container, never the payload. It fails on any I/O,
// format, or decoding problem; callers wanting lenient scans handle the
// error themselves.
func ReadEntry(path string, cdc codec.Codec) (Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return Entry{}, fmt.Errorf("opening container %s: %w", path, err)
	}
	defer f.Close()

	r, err := codec.NewReader(f, cdc)
	if err != nil {
		return Entry{}, fmt.Errorf("opening %s decompressor: %w", cdc, err)
	}
	defer r.Close()

	headerBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		return Entry{}, fmt.Errorf("%w: reading header of %s: %v", ErrFormat, path, err)
	}
	header, err := ParseHeader(headerBuf)
	if err != nil {
		return Entry{}, err
	}
	if header.MetaSize > maxMetaSize {
		return Entry{}, fmt.Errorf("%w: header of %s declares %d metadata bytes", ErrFormat, path, header.MetaSize)
	}

	metaBuf := make([]byte, header.MetaSize)
	if _, err := io.ReadFull(r, metaBuf); err != nil {
		return Entry{}, fmt.Errorf("%w: reading metadata of %s: %v", ErrFormat, path, err)
	}
	meta, err := decodeMetadata(metaBuf)
	if err != nil {
		return Entry{}, err
	}

	return Entry{
		Name:   filepath.Base(path),
		Header: header,
		Meta:   meta,
		Path:   path,
	}, nil
}
