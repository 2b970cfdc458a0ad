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

package chunks

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Cursor is a forward-only read position over one chunk. It always holds
// either a current record or is exhausted.
type Cursor struct {
	chunk   Chunk
	closer  io.Closer
	reader  *bufio.Reader
	current string
	line    int64
	done    bool
	err     error
}

// OpenCursor opens the chunk and primes the cursor with its first record.
// An empty chunk yields a cursor that is already Done. If the first record
// cannot be read the file is closed and the error returned.
func OpenCursor(c Chunk) (*Cursor, error) {
	f, err := os.Open(c.Path)
	if err != nil {
		return nil, fmt.Errorf("open chunk %s: %w", c.Path, err)
	}

	return NewCursor(c, f)
}

// NewCursor primes a cursor over an already opened chunk stream. The cursor
// takes ownership of rc; on error rc is closed.
func NewCursor(c Chunk, rc io.ReadCloser) (*Cursor, error) {
	cur := &Cursor{
		chunk:  c,
		closer: rc,
		reader: bufio.NewReaderSize(rc, readBufferSize),
	}
	if err := cur.Advance(); err != nil {
		_ = rc.Close()
		return nil, err
	}
	return cur, nil
}

// Chunk returns the chunk this cursor reads.
func (c *Cursor) Chunk() Chunk {
	return c.chunk
}

// Current returns the record under the cursor. Only valid while !Done().
func (c *Cursor) Current() string {
	return c.current
}

// Done reports whether the cursor is exhausted, by end of chunk or by error.
func (c *Cursor) Done() bool {
	return c.done
}

// Err returns the read error that exhausted the cursor, if any.
func (c *Cursor) Err() error {
	return c.err
}

// Advance moves to the next record. At end of chunk the cursor becomes Done
// and nil is returned. A read error also leaves the cursor Done, and is
// returned and kept in Err.
func (c *Cursor) Advance() error {
	if c.done {
		return c.err
	}

	raw, err := c.reader.ReadString('\n')
	if err != nil && err != io.EOF {
		c.current = ""
		c.done = true
		c.err = fmt.Errorf("read chunk %s after record %d: %w", c.chunk.Path, c.line, err)
		return c.err
	}
	if raw == "" && err == io.EOF {
		c.current = ""
		c.done = true
		return nil
	}

	c.line++
	c.current = strings.TrimSuffix(raw, "\n")
	return nil
}

// Close releases the chunk file. The chunk itself is left on disk.
func (c *Cursor) Close() error {
	if c.closer == nil {
		return nil
	}
	err := c.closer.Close()
	c.closer = nil
	return err
}
