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
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectCompression(t *testing.T) {
	assert.Equal(t, CompressionGzip, DetectCompression([]byte{0x1f, 0x8b, 0x08}))
	assert.Equal(t, CompressionZstd, DetectCompression([]byte{0x28, 0xb5, 0x2f, 0xfd, 0x00}))
	assert.Equal(t, CompressionNone, DetectCompression([]byte("plain text")))
	assert.Equal(t, CompressionNone, DetectCompression(nil))
	assert.Equal(t, "gzip", CompressionGzip.String())
}

func writeGzip(t *testing.T, path, content string) {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestOpenInput(t *testing.T) {
	dir := t.TempDir()
	const content = "b\na\nc\n"

	plain := filepath.Join(dir, "plain.txt")
	require.NoError(t, os.WriteFile(plain, []byte(content), 0o644))

	gz := filepath.Join(dir, "lines.txt.gz")
	writeGzip(t, gz, content)

	zst := filepath.Join(dir, "lines.zst")
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(zst, enc.EncodeAll([]byte(content), nil), 0o644))
	require.NoError(t, enc.Close())

	short := filepath.Join(dir, "short.txt")
	require.NoError(t, os.WriteFile(short, []byte("x"), 0o644))

	for path, want := range map[string]string{plain: content, gz: content, zst: content, short: "x"} {
		t.Run(filepath.Base(path), func(t *testing.T) {
			rc, err := OpenInput(path)
			require.NoError(t, err)
			b, err := io.ReadAll(rc)
			require.NoError(t, err)
			require.NoError(t, rc.Close())
			assert.Equal(t, want, string(b))
		})
	}

	_, err = OpenInput(filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestIsGzipFile(t *testing.T) {
	dir := t.TempDir()
	gz := filepath.Join(dir, "a.gz")
	writeGzip(t, gz, "hello\n")
	plain := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(plain, []byte("h"), 0o644))

	ok, err := IsGzipFile(gz)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = IsGzipFile(plain)
	require.NoError(t, err)
	assert.False(t, ok)
}
