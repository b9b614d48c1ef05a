package obs

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"github.com/BadgerOps/chumweb/internal/safety"
)

type codec struct {
	name  string
	magic []byte
	open  func(io.Reader) (io.ReadCloser, error)
}

var codecs = []codec{
	{
		name:  "zstd",
		magic: []byte{0x28, 0xb5, 0x2f, 0xfd},
		open: func(r io.Reader) (io.ReadCloser, error) {
			d, err := zstd.NewReader(r)
			if err != nil {
				return nil, err
			}
			return d.IOReadCloser(), nil
		},
	},
	{
		name:  "xz",
		magic: []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00},
		open: func(r io.Reader) (io.ReadCloser, error) {
			x, err := xz.NewReader(r)
			if err != nil {
				return nil, err
			}
			return io.NopCloser(x), nil
		},
	},
	{
		name:  "gzip",
		magic: []byte{0x1f, 0x8b},
		open: func(r io.Reader) (io.ReadCloser, error) {
			return gzip.NewReader(r)
		},
	},
}

// Decompress detects the compression format by magic number and inflates
// data up to limit bytes. Supports gzip, xz and zstd; anything else is
// returned unchanged so plain primary.xml works too.
func Decompress(data []byte, limit int64) ([]byte, string, error) {
	for _, c := range codecs {
		if !bytes.HasPrefix(data, c.magic) {
			continue
		}
		rc, err := c.open(bytes.NewReader(data))
		if err != nil {
			return nil, c.name, fmt.Errorf("creating %s reader: %w", c.name, err)
		}
		defer func() {
			_ = rc.Close()
		}()

		out, err := safety.ReadAllWithLimit(rc, limit)
		if err != nil {
			if errors.Is(err, safety.ErrBodyTooLarge) {
				return nil, c.name, fmt.Errorf("%s payload exceeded %d bytes after decompression: %w", c.name, limit, err)
			}
			return nil, c.name, fmt.Errorf("decompressing %s: %w", c.name, err)
		}
		return out, c.name, nil
	}
	return data, "none", nil
}
