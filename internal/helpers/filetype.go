// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package helpers

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-multierror"
	"github.com/klauspost/compress/zstd"
)

// Compression identifies how an input file is encoded on disk.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionGzip
	CompressionZstd
)

func (c Compression) String() string {
	switch c {
	case CompressionGzip:
		return "gzip"
	case CompressionZstd:
		return "zstd"
	default:
		return "none"
	}
}

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// DetectCompression sniffs the leading magic bytes. The file extension is
// not trusted since object stores may have already decompressed the body.
func DetectCompression(header []byte) Compression {
	switch {
	case bytes.HasPrefix(header, gzipMagic):
		return CompressionGzip
	case bytes.HasPrefix(header, zstdMagic):
		return CompressionZstd
	default:
		return CompressionNone
	}
}

// IsGzipFile reports whether the file starts with the gzip magic bytes.
func IsGzipFile(filename string) (bool, error) {
	f, err := os.Open(filename)
	if err != nil {
		return false, err
	}
	defer func() { _ = f.Close() }()

	header := make([]byte, len(gzipMagic))
	n, err := io.ReadFull(f, header)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return false, err
	}
	return DetectCompression(header[:n]) == CompressionGzip, nil
}

type multiReadCloser struct {
	io.Reader
	closers []io.Closer
}

func (m *multiReadCloser) Close() error {
	var errs *multierror.Error
	for _, c := range m.closers {
		if err := c.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

type zstdCloser struct{ d *zstd.Decoder }

func (z zstdCloser) Close() error {
	z.d.Close()
	return nil
}

// OpenInput opens a text input, transparently decompressing gzip and zstd.
func OpenInput(filename string) (io.ReadCloser, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	br := bufio.NewReader(file)
	header, _ := br.Peek(len(zstdMagic))

	switch DetectCompression(header) {
	case CompressionGzip:
		gzipReader, err := gzip.NewReader(br)
		if err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("failed to create gzip reader for %s: %w", filename, err)
		}
		return &multiReadCloser{Reader: gzipReader, closers: []io.Closer{gzipReader, file}}, nil
	case CompressionZstd:
		zstdReader, err := zstd.NewReader(br)
		if err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("failed to create zstd reader for %s: %w", filename, err)
		}
		return &multiReadCloser{Reader: zstdReader, closers: []io.Closer{zstdCloser{zstdReader}, file}}, nil
	default:
		return &multiReadCloser{Reader: br, closers: []io.Closer{file}}, nil
	}
}
