package store

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the exact number of bytes a Header occupies on disk.
const HeaderSize = 16

// Header is the fixed-width prefix of every container. It declares the byte
// length of the metadata block and of the raw payload that follow it, so a
// reader can locate both without any prior knowledge of the content.
//
// Both fields are pinned to 64-bit little-endian rather than the platform's
// native word size, so containers written on one architecture parse
// identically on any other.
type Header struct {
	// MetaSize is the length of the encoded metadata block that follows
	// the header.
	MetaSize uint64
	// FileSize is the length of the raw payload that follows the
	// metadata block.
	FileSize uint64
}

// NewHeader builds a Header from known segment lengths. Callers derive both
// lengths from the metadata and payload they just produced; the header is
// never set independently of them.
func NewHeader(metaSize, fileSize uint64) Header {
	return Header{MetaSize: metaSize, FileSize: fileSize}
}

// ParseHeader decodes a Header from a slice that must be exactly
// HeaderSize bytes long.
func ParseHeader(b []byte) (Header, error) {
	if len(b) != HeaderSize {
		return Header{}, fmt.Errorf("%w: header must be %d bytes, got %d", ErrFormat, HeaderSize, len(b))
	}
	return Header{
		MetaSize: binary.LittleEndian.Uint64(b[0:8]),
		FileSize: binary.LittleEndian.Uint64(b[8:16]),
	}, nil
}

// ParseHeaderPrefix consumes exactly HeaderSize bytes from the front of b
// and returns the decoded Header along with the remaining bytes.
func ParseHeaderPrefix(b []byte) (Header, []byte, error) {
	if len(b) < HeaderSize {
		return Header{}, nil, fmt.Errorf("%w: need %d bytes for header, got %d", ErrFormat, HeaderSize, len(b))
	}
	h, err := ParseHeader(b[:HeaderSize])
	if err != nil {
		return Header{}, nil, err
	}
	return h, b[HeaderSize:], nil
}

// AppendTo appends the header's wire form to buf and returns the extended
// slice.
func (h Header) AppendTo(buf []byte) []byte {
	buf = binary.LittleEndian.AppendUint64(buf, h.MetaSize)
	buf = binary.LittleEndian.AppendUint64(buf, h.FileSize)
	return buf
}

// TotalSize returns the full decompressed container length this header
// declares, including the header itself.
func (h Header) TotalSize() uint64 {
	return HeaderSize + h.MetaSize + h.FileSize
}
