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

package cleaner

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestClean_TrimsAndDropsEmpty(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "in.txt", "  b  \n\n\ta\r\n   \nc")
	out := filepath.Join(dir, "out.txt")

	counts, err := Clean(context.Background(), []string{in}, out, Options{})
	require.NoError(t, err)

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "b\na\nc\n", string(got))
	assert.Equal(t, Counts{LinesIn: 5, LinesOut: 3, Empty: 2}, counts)
	assert.Equal(t, int64(2), counts.Dropped())
}

func TestClean_Blacklist(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "in.txt", "keep\nbad#line\nalso keep\nsemi;colon\n")
	out := filepath.Join(dir, "out.txt")

	counts, err := Clean(context.Background(), []string{in}, out, Options{Blacklist: RuneSet("#;")})
	require.NoError(t, err)

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "keep\nalso keep\n", string(got))
	assert.Equal(t, int64(2), counts.Blacklisted)
	assert.Equal(t, int64(2), counts.LinesOut)
}

func TestClean_DeleteChars(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "in.txt", "\"abc\"\n\"\"\nx,y\n")
	out := filepath.Join(dir, "out.txt")

	counts, err := Clean(context.Background(), []string{in}, out, Options{DeleteChars: RuneSet("\",")})
	require.NoError(t, err)

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "abc\nxy\n", string(got))
	assert.Equal(t, int64(1), counts.Empty)
}

func TestClean_MultipleInputsConcatenated(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "z\ny\n")
	b := writeFile(t, dir, "b.txt", "x\n")
	out := filepath.Join(dir, "out.txt")

	counts, err := Clean(context.Background(), []string{a, b}, out, Options{})
	require.NoError(t, err)

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "z\ny\nx\n", string(got))
	assert.Equal(t, int64(3), counts.LinesOut)
}

func TestClean_InvalidUTF8IsSubstituted(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "in.txt", "\xef\xbb\xbfok\nbad\xffbyte\n")
	out := filepath.Join(dir, "out.txt")

	_, err := Clean(context.Background(), []string{in}, out, Options{})
	require.NoError(t, err)

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "ok\nbad�byte\n", string(got))
}

func TestClean_MissingInput(t *testing.T) {
	dir := t.TempDir()
	_, err := Clean(context.Background(), []string{filepath.Join(dir, "nope.txt")}, filepath.Join(dir, "out.txt"), Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestClean_RefusesToOverwriteInput(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "in.txt", " b \na\n")
	link := filepath.Join(dir, "link.txt")
	require.NoError(t, os.Symlink(in, link))
	hard := filepath.Join(dir, "hard.txt")
	require.NoError(t, os.Link(in, hard))
	other := writeFile(t, dir, "other.txt", "z\n")

	tests := []struct {
		name   string
		inputs []string
		output string
	}{
		{"same path", []string{in}, in},
		{"relative spelling", []string{in}, filepath.Join(dir, ".", "in.txt")},
		{"symlink", []string{in}, link},
		{"hard link", []string{in}, hard},
		{"second input", []string{other, in}, in},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			counts, err := Clean(context.Background(), tt.inputs, tt.output, Options{})
			require.ErrorIs(t, err, ErrOutputIsInput)
			assert.Equal(t, Counts{}, counts)

			got, err := os.ReadFile(in)
			require.NoError(t, err)
			assert.Equal(t, " b \na\n", string(got))
		})
	}
}

func TestClean_NoInputs(t *testing.T) {
	_, err := Clean(context.Background(), nil, filepath.Join(t.TempDir(), "out.txt"), Options{})
	assert.Error(t, err)
}

func TestCleanStream_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	input := strings.Repeat("line\n", checkEvery+10)
	var buf bytes.Buffer
	var counts Counts
	err := CleanStream(ctx, strings.NewReader(input), bufio.NewWriter(&buf), Options{}, &counts)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCleanStream_LongLine(t *testing.T) {
	long := strings.Repeat("x", 3*bufferSize)
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	var counts Counts
	require.NoError(t, CleanStream(context.Background(), strings.NewReader(long+"\n"), w, Options{}, &counts))
	require.NoError(t, w.Flush())
	assert.Equal(t, long+"\n", buf.String())
}

func TestClean_GzipInput(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(" b \n\na\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	in := writeFile(t, dir, "in.txt.gz", buf.String())
	out := filepath.Join(dir, "out.txt")

	counts, err := Clean(context.Background(), []string{in}, out, Options{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts.LinesOut)

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "b\na\n", string(got))
}
