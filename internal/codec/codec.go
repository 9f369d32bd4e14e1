// Package codec maps a compression codec selection onto streaming
// reader/writer pairs. Every codec here provides a reversible,
// deterministic round trip over arbitrary byte streams.
package codec

import (
	"fmt"
	"io"
	"strings"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Codec identifies a compression scheme for container files.
type Codec int

const (
	None Codec = iota
	Gzip
	Snappy
	Zstandard
)

// Default is the codec used when configuration does not name one.
const Default = Gzip

func (c Codec) String() string {
	switch c {
	case None:
		return "none"
	case Gzip:
		return "gzip"
	case Snappy:
		return "snappy"
	case Zstandard:
		return "zstd"
	default:
		return fmt.Sprintf("codec(%d)", int(c))
	}
}

// Parse resolves a codec name from configuration. The empty string selects
// the default.
func Parse(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "":
		return Default, nil
	case "none":
		return None, nil
	case "gzip":
		return Gzip, nil
	case "snappy":
		return Snappy, nil
	case "zstd", "zstandard":
		return Zstandard, nil
	default:
		return None, fmt.Errorf("unknown codec %q", name)
	}
}

// Decompressor is a ReadCloser where Close releases decompressor state but
// does not Close or affect the underlying Reader.
type Decompressor io.ReadCloser

// Compressor is a WriteCloser where Close flushes final content to the
// underlying Writer and releases compressor state, but does not Close the
// Writer itself.
type Compressor io.WriteCloser

// NewReader returns a Decompressor of the Reader encoded with Codec.
func NewReader(r io.Reader, c Codec) (Decompressor, error) {
	switch c {
	case None:
		return io.NopCloser(r), nil
	case Gzip:
		return gzip.NewReader(r)
	case Snappy:
		return io.NopCloser(snappy.NewReader(r)), nil
	case Zstandard:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return dec.IOReadCloser(), nil
	default:
		return nil, fmt.Errorf("unsupported codec %s", c)
	}
}

// NewWriter returns a Compressor wrapping the Writer encoding with Codec.
func NewWriter(w io.Writer, c Codec) (Compressor, error) {
	switch c {
	case None:
		return nopWriteCloser{w}, nil
	case Gzip:
		return gzip.NewWriter(w), nil
	case Snappy:
		return snappy.NewBufferedWriter(w), nil
	case Zstandard:
		return zstd.NewWriter(w)
	default:
		return nil, fmt.Errorf("unsupported codec %s", c)
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
