package store

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"snapstore/internal/codec"
)

// Container is the in-memory, uncompressed assembly of one backup: a
// fixed-width header, the metadata block it describes, and the raw source
// bytes. The header is always derived from the other two segments and is
// never set independently.
type Container struct {
	header  Header
	meta    *Metadata
	payload []byte
}

// CreateNew builds a version-1 container from the live file at path.
//
// Attributes are read first, then the bytes are streamed, then the byte
// count is checked against the length the attributes reported. A mismatch
// means the file changed between the two reads and is a hard consistency
// failure, never silently tolerated.
func CreateNew(path string) (*Container, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}

	info, payload, err := extractFileInfo(abs)
	if err != nil {
		return nil, err
	}

	meta := NewMetadataFromInfo(abs, time.Now().Unix(), info, NewVersion(Wrap))
	header, err := deriveHeader(meta, payload)
	if err != nil {
		return nil, err
	}

	return &Container{header: header, meta: meta, payload: payload}, nil
}

// Refresh re-extracts bytes and attributes for the container's source path,
// refreshes the metadata snapshot, bumps the version, and recomputes the
// header. Called when a change notification fires for an already-tracked
// file.
func (c *Container) Refresh() error {
	info, payload, err := extractFileInfo(c.meta.Path())
	if err != nil {
		return err
	}

	c.meta.Refresh(info)
	c.meta.BumpVersion()

	header, err := deriveHeader(c.meta, payload)
	if err != nil {
		return err
	}

	c.header = header
	c.payload = payload
	return nil
}

// Header returns the container's derived header.
func (c *Container) Header() Header { return c.header }

// Meta returns the container's metadata record.
func (c *Container) Meta() *Metadata { return c.meta }

// Payload returns the raw source bytes captured at backup time.
func (c *Container) Payload() []byte { return c.payload }

// Compress flattens the container to header || metadata || payload and runs
// the concatenation through the codec.
//
// The segment lengths are checked against the header before compressing.
// All three were derived together moments earlier, so a mismatch here is a
// bug in this package and panics rather than returning an error.
func (c *Container) Compress(cdc codec.Codec) (*Compressed, error) {
	metaBytes, err := c.meta.encode()
	if err != nil {
		return nil, err
	}

	if uint64(len(metaBytes)) != c.header.MetaSize {
		panic(fmt.Sprintf("store: encoded metadata is %d bytes, header declares %d", len(metaBytes), c.header.MetaSize))
	}
	if uint64(len(c.payload)) != c.header.FileSize {
		panic(fmt.Sprintf("store: payload is %d bytes, header declares %d", len(c.payload), c.header.FileSize))
	}

	total := c.header.TotalSize()
	buf := make([]byte, 0, total)
	buf = c.header.AppendTo(buf)
	buf = append(buf, metaBytes...)
	buf = append(buf, c.payload...)
	if uint64(len(buf)) != total {
		panic(fmt.Sprintf("store: flattened container is %d bytes, expected %d", len(buf), total))
	}

	var out bytes.Buffer
	w, err := codec.NewWriter(&out, cdc)
	if err != nil {
		return nil, fmt.Errorf("opening %s compressor: %w", cdc, err)
	}
	if _, err := w.Write(buf); err != nil {
		return nil, fmt.Errorf("compressing container: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("flushing compressor: %w", err)
	}

	return &Compressed{codec: cdc, data: out.Bytes()}, nil
}

// deriveHeader computes the header for a metadata record and payload.
// Encoding the metadata here exists only to learn its encoded size.
func deriveHeader(meta *Metadata, payload []byte) (Header, error) {
	encoded, err := meta.encode()
	if err != nil {
		return Header{}, err
	}
	return NewHeader(uint64(len(encoded)), uint64(len(payload))), nil
}

// extractFileInfo reads the attributes and full content of the file at
// path. Attributes come first, bytes second, and the byte count must equal
// the length the attributes reported.
func extractFileInfo(path string) (fs.FileInfo, []byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, fmt.Errorf("stat %s: %w", path, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	payload, err := io.ReadAll(bufio.NewReader(f))
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if int64(len(payload)) != info.Size() {
		return nil, nil, fmt.Errorf("%w: %s reported %d bytes but read %d", ErrConsistency, path, info.Size(), len(payload))
	}

	return info, payload, nil
}

// Compressed is the on-disk form of a container: the flattened byte stream
// run through a codec. It is the only artifact that touches the persistent
// store; a Container itself never does.
type Compressed struct {
	codec codec.Codec
	data  []byte
}

// NewCompressed wraps already-compressed bytes, recording the codec that
// produced them.
func NewCompressed(cdc codec.Codec, data []byte) *Compressed {
	return &Compressed{codec: cdc, data: data}
}

// ReadCompressed loads a compressed container file from disk.
func ReadCompressed(path string, cdc codec.Codec) (*Compressed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading container %s: %w", path, err)
	}
	return &Compressed{codec: cdc, data: data}, nil
}

// Bytes returns the compressed container bytes.
func (c *Compressed) Bytes() []byte { return c.data }

// Codec returns the codec that produced (or will decode) the bytes.
func (c *Compressed) Codec() codec.Codec { return c.codec }

// Decompress reverses Compress: it decompresses the buffer, parses the
// header prefix, splits the remainder into metadata and payload, and
// decodes the metadata block.
//
// Unlike the checks in Compress, the length validations here guard against
// real corruption, because the bytes may come straight from disk.
func (c *Compressed) Decompress() (*Container, error) {
	r, err := codec.NewReader(bytes.NewReader(c.data), c.codec)
	if err != nil {
		return nil, fmt.Errorf("opening %s decompressor: %w", c.codec, err)
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("decompressing container: %w", err)
	}
	if err := r.Close(); err != nil {
		return nil, fmt.Errorf("closing decompressor: %w", err)
	}

	header, rest, err := ParseHeaderPrefix(raw)
	if err != nil {
		return nil, err
	}

	if header.MetaSize > uint64(len(rest)) {
		return nil, fmt.Errorf("%w: header declares %d metadata bytes, only %d remain", ErrConsistency, header.MetaSize, len(rest))
	}
	metaBytes := rest[:header.MetaSize]
	payload := rest[header.MetaSize:]
	if uint64(len(payload)) != header.FileSize {
		return nil, fmt.Errorf("%w: header declares %d payload bytes, found %d", ErrConsistency, header.FileSize, len(payload))
	}

	meta, err := decodeMetadata(metaBytes)
	if err != nil {
		return nil, err
	}

	return &Container{header: header, meta: meta, payload: payload}, nil
}

// WriteTo writes the compressed bytes to path, replacing any existing file
// wholesale. The bytes land in a temp file first and are renamed into
// place, so a failed write never leaves a partial container behind.
func (c *Compressed) WriteTo(path string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	w := bufio.NewWriter(tmp)
	if _, err := w.Write(c.data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing container: %w", err)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("flushing container: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	success = true
	return nil
}
