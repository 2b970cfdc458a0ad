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

// Package verify checks that a line-oriented file is in non-decreasing
// byte-lexicographic order.
package verify

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/cardinalhq/linesort/internal/logctx"
)

const (
	readBufferSize = 1 << 20
	checkEvery     = 1 << 16
)

// Options bounds a verification pass.
type Options struct {
	// MaxLines stops the scan after this many lines. Zero means no limit.
	MaxLines int64

	// Strict also rejects a line equal to its predecessor, which is the
	// expected shape of deduplicated output.
	Strict bool
}

// Report is the outcome of one verification pass.
type Report struct {
	Sorted       bool
	LinesChecked int64

	// FirstViolation is the 1-based line number of the first line that is
	// out of order. Zero when Sorted.
	FirstViolation int64

	// Digest is the xxhash of every checked line including its newline.
	// It only covers the whole file when Sorted and MaxLines was not hit.
	Digest uint64
}

// Verify scans path once. A missing file is an error; an empty file is sorted.
func Verify(ctx context.Context, path string, opts Options) (Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return Report{}, fmt.Errorf("open %s for verification: %w", path, err)
	}
	defer f.Close()

	rep, err := VerifyReader(ctx, f, opts)
	if err != nil {
		return rep, fmt.Errorf("verify %s: %w", path, err)
	}

	ll := logctx.FromContext(ctx)
	if rep.Sorted {
		verifiedCounter.Add(ctx, 1)
		ll.Debug("File is sorted",
			slog.String("path", path),
			slog.Int64("lines", rep.LinesChecked))
	} else {
		violationCounter.Add(ctx, 1)
		ll.Warn("File is not sorted",
			slog.String("path", path),
			slog.Int64("firstViolation", rep.FirstViolation))
	}
	return rep, nil
}

// VerifyReader scans r, stopping at the first line that compares below its
// predecessor (or equal to it, when Strict).
func VerifyReader(ctx context.Context, r io.Reader, opts Options) (Report, error) {
	br := bufio.NewReaderSize(r, readBufferSize)
	h := xxhash.New()
	rep := Report{Sorted: true}

	var prev string
	for opts.MaxLines == 0 || rep.LinesChecked < opts.MaxLines {
		if rep.LinesChecked%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return rep, err
			}
		}

		raw, err := br.ReadString('\n')
		if err != nil && err != io.EOF {
			return rep, err
		}
		if raw == "" {
			break
		}
		line := strings.TrimSuffix(raw, "\n")

		rep.LinesChecked++
		if rep.LinesChecked > 1 && (line < prev || (opts.Strict && line == prev)) {
			rep.Sorted = false
			rep.FirstViolation = rep.LinesChecked
			break
		}
		_, _ = h.WriteString(line)
		_, _ = h.WriteString("\n")
		prev = line

		if err == io.EOF {
			break
		}
	}

	rep.Digest = h.Sum64()
	return rep, nil
}
