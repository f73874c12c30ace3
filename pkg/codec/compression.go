package codec

import (
	"compress/gzip"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/iota-uz/gitversions/pkg/serrors"
)

var ErrUnknownCompression = serrors.NewError("CODEC_UNKNOWN_COMPRESSION", "unknown compression format", "")

// Registered compression suffixes: "" (none), "gz" and "zst".
func IsCompression(ext string) bool {
	switch ext {
	case "gz", "zst":
		return true
	}
	return false
}

func NewCompressedReader(r io.Reader, ext string) (io.ReadCloser, error) {
	switch ext {
	case "":
		return io.NopCloser(r), nil
	case "gz":
		return gzip.NewReader(r)
	case "zst":
		d, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return d.IOReadCloser(), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownCompression, ext)
}

func NewCompressedWriter(w io.Writer, ext string) (io.WriteCloser, error) {
	switch ext {
	case "":
		return nopWriteCloser{w}, nil
	case "gz":
		return gzip.NewWriter(w), nil
	case "zst":
		return zstd.NewWriter(w)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownCompression, ext)
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
