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

// Package merge combines sorted chunks into one globally sorted output file,
// optionally collapsing duplicate records.
package merge

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/cardinalhq/linesort/internal/chunks"
	"github.com/cardinalhq/linesort/internal/logctx"
)

const (
	writeBufferSize = 1 << 20
	checkEvery      = 1 << 14
)

const (
	StrategyHeap   = "heap"
	StrategyLinear = "linear"
)

// Options controls a single merge.
type Options struct {
	// Deduplicate drops a record equal to the one written just before it.
	Deduplicate bool

	// Strict makes any chunk read failure fatal. By default a failing chunk
	// is treated as exhausted and reported in Result.CursorErrors.
	Strict bool
}

// Result summarizes a merge.
type Result struct {
	LinesRead    int64
	LinesWritten int64
	Duplicates   int64

	// CursorErrors lists chunks that failed mid-merge and were dropped.
	// Non-empty means the output is missing some records.
	CursorErrors []error
}

// Merger interleaves already sorted chunks. Output is non-decreasing (strictly
// increasing with Deduplicate) provided every chunk is sorted; chunks are
// never modified or deleted.
type Merger interface {
	Merge(ctx context.Context, in []chunks.Chunk, output string, opts Options) (Result, error)
}

// OpenFunc opens a cursor on a chunk.
type OpenFunc func(chunks.Chunk) (*chunks.Cursor, error)

// New returns the merger for a strategy name. The empty string selects the heap merger.
func New(strategy string) (Merger, error) {
	switch strategy {
	case "", StrategyHeap:
		return &HeapMerger{}, nil
	case StrategyLinear:
		return &LinearMerger{}, nil
	default:
		return nil, fmt.Errorf("unknown merge strategy %q", strategy)
	}
}

// emitter writes merged records, collapsing adjacent duplicates when asked.
type emitter struct {
	w       *bufio.Writer
	dedup   bool
	last    string
	hasLast bool
	res     *Result
}

func (e *emitter) emit(line string) error {
	e.res.LinesRead++
	if e.dedup && e.hasLast && line == e.last {
		e.res.Duplicates++
		return nil
	}
	if _, err := e.w.WriteString(line); err != nil {
		return err
	}
	if err := e.w.WriteByte('\n'); err != nil {
		return err
	}
	e.last = line
	e.hasLast = true
	e.res.LinesWritten++
	return nil
}

// run opens output and the chunk cursors, drives loop, and finalizes the result.
// loop receives the live cursors in chunk order and a failure callback for
// cursors that break mid-merge.
func run(ctx context.Context, name string, in []chunks.Chunk, output string, opts Options, open OpenFunc,
	loop func(ctx context.Context, cursors []*chunks.Cursor, e *emitter, fail func(*chunks.Cursor, error) error) error,
) (res Result, err error) {
	ll := logctx.FromContext(ctx)
	if open == nil {
		open = chunks.OpenCursor
	}

	fail := func(c chunks.Chunk, cause error) error {
		cursorFailureCounter.Add(ctx, 1)
		if opts.Strict {
			return fmt.Errorf("chunk %d failed: %w", c.Seq, cause)
		}
		ll.Warn("Chunk failed during merge, continuing without it",
			slog.String("chunk", c.Path),
			slog.Int("seq", c.Seq),
			slog.Any("error", cause))
		res.CursorErrors = append(res.CursorErrors, fmt.Errorf("chunk %s: %w", c.Path, cause))
		return nil
	}

	cursors := make([]*chunks.Cursor, 0, len(in))
	defer func() {
		for _, c := range cursors {
			_ = c.Close()
		}
	}()
	for _, c := range in {
		cur, openErr := open(c)
		if openErr != nil {
			if err := fail(c, openErr); err != nil {
				return res, err
			}
			continue
		}
		cursors = append(cursors, cur)
	}

	f, err := os.Create(output)
	if err != nil {
		return res, fmt.Errorf("create merge output %s: %w", output, err)
	}
	bw := bufio.NewWriterSize(f, writeBufferSize)
	e := &emitter{w: bw, dedup: opts.Deduplicate, res: &res}

	loopErr := loop(ctx, cursors, e, func(cur *chunks.Cursor, cause error) error {
		return fail(cur.Chunk(), cause)
	})
	if loopErr == nil {
		loopErr = bw.Flush()
	}
	if closeErr := f.Close(); loopErr == nil && closeErr != nil {
		loopErr = fmt.Errorf("close merge output %s: %w", output, closeErr)
	}

	linesMergedCounter.Add(ctx, res.LinesWritten)
	duplicatesCounter.Add(ctx, res.Duplicates)

	if loopErr != nil {
		return res, loopErr
	}

	ll.Info("Merge complete",
		slog.String("strategy", name),
		slog.Int("chunks", len(in)),
		slog.Int64("linesRead", res.LinesRead),
		slog.Int64("linesWritten", res.LinesWritten),
		slog.Int64("duplicates", res.Duplicates),
		slog.Int("failedChunks", len(res.CursorErrors)))
	return res, nil
}
