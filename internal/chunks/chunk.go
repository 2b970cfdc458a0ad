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
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
)

const writeBufferSize = 1 << 20

// Chunk is a sealed, sorted spill file.
type Chunk struct {
	// Path is the filesystem path to the chunk file
	Path string

	// Seq is the chunk's position in spill order, starting at 1
	Seq int

	// Lines is the number of records written to the chunk
	Lines int64

	// Bytes is the buffered line content, excluding newlines
	Bytes int64
}

// Name returns the file name for chunk seq of the given job.
func Name(jobID string, seq int) string {
	return fmt.Sprintf("linesort-%s-%06d.chunk", jobID, seq)
}

// Pattern returns a glob matching every chunk file of the given job.
func Pattern(jobID string) string {
	return fmt.Sprintf("linesort-%s-*.chunk", jobID)
}

// WriteChunk writes lines, each followed by '\n', to a new file at path.
// The file must not already exist. On failure nothing is left behind.
func WriteChunk(path string, seq int, lines []string) (Chunk, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return Chunk{}, fmt.Errorf("create chunk %s: %w", path, err)
	}

	var size int64
	bw := bufio.NewWriterSize(f, writeBufferSize)
	for _, line := range lines {
		if _, err = bw.WriteString(line); err != nil {
			break
		}
		if err = bw.WriteByte('\n'); err != nil {
			break
		}
		size += int64(len(line))
	}
	if err == nil {
		err = bw.Flush()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return Chunk{}, fmt.Errorf("write chunk %s: %w", path, err)
	}

	return Chunk{
		Path:  path,
		Seq:   seq,
		Lines: int64(len(lines)),
		Bytes: size,
	}, nil
}

// Remove deletes the chunk files, continuing past failures. Missing files
// are not an error.
func Remove(chunks []Chunk) error {
	var errs *multierror.Error
	for _, c := range chunks {
		if c.Path == "" {
			continue
		}
		if err := os.Remove(c.Path); err != nil && !os.IsNotExist(err) {
			errs = multierror.Append(errs, fmt.Errorf("remove chunk %s: %w", filepath.Base(c.Path), err))
		}
	}
	return errs.ErrorOrNil()
}
