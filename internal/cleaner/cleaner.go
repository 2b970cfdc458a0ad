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

// Package cleaner normalizes raw line-oriented text ahead of sorting: every
// line is trimmed, empty lines are dropped, and lines carrying blacklisted
// characters are discarded. The output satisfies the precondition the sort
// engine relies on (UTF-8, no empty lines, no surrounding whitespace).
package cleaner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/cardinalhq/linesort/internal/helpers"
	"github.com/cardinalhq/linesort/internal/logctx"
)

const (
	bufferSize = 1 << 20

	// cancellation is polled every this many lines
	checkEvery = 1 << 16
)

// Options controls which lines survive cleaning.
type Options struct {
	// Blacklist drops any line containing one of these runes.
	Blacklist mapset.Set[rune]

	// DeleteChars removes these runes from every line before trimming.
	DeleteChars mapset.Set[rune]
}

// ErrOutputIsInput is returned when the output path names one of the inputs.
// Nothing is created or truncated in that case.
var ErrOutputIsInput = errors.New("output would overwrite an input")

// Counts reports what happened to the lines of one Clean call.
type Counts struct {
	LinesIn     int64
	LinesOut    int64
	Empty       int64
	Blacklisted int64
}

// Dropped is the number of input lines that did not reach the output.
func (c Counts) Dropped() int64 {
	return c.Empty + c.Blacklisted
}

// RuneSet builds a set from every rune in s. An empty string yields an empty set.
func RuneSet(s string) mapset.Set[rune] {
	return mapset.NewSet([]rune(s)...)
}

// Clean reads inputs in order and writes their cleaned lines, each terminated
// by a single '\n', to output. Gzip and zstd inputs are decompressed. Output
// is created or truncated. Inputs are never modified. On error the partially
// written output is left for the caller to discard.
func Clean(ctx context.Context, inputs []string, output string, opts Options) (Counts, error) {
	var counts Counts
	if len(inputs) == 0 {
		return counts, errors.New("no input files")
	}
	if in, ok := outputIsInput(output, inputs); ok {
		return counts, fmt.Errorf("%w: %s is also input %s", ErrOutputIsInput, output, in)
	}

	out, err := os.Create(output)
	if err != nil {
		return counts, fmt.Errorf("create cleaned output %s: %w", output, err)
	}
	bw := bufio.NewWriterSize(out, bufferSize)

	for _, input := range inputs {
		if err := cleanFile(ctx, input, bw, opts, &counts); err != nil {
			_ = out.Close()
			return counts, err
		}
	}

	if err := bw.Flush(); err != nil {
		_ = out.Close()
		return counts, fmt.Errorf("flush cleaned output %s: %w", output, err)
	}
	if err := out.Close(); err != nil {
		return counts, fmt.Errorf("close cleaned output %s: %w", output, err)
	}

	logctx.FromContext(ctx).Info("Cleaned input",
		slog.Int("files", len(inputs)),
		slog.Int64("linesIn", counts.LinesIn),
		slog.Int64("linesOut", counts.LinesOut),
		slog.Int64("empty", counts.Empty),
		slog.Int64("blacklisted", counts.Blacklisted))

	return counts, nil
}

// outputIsInput reports the input that output resolves to, comparing
// absolute paths and, when both exist, the underlying file so that symlinks
// and hard links are caught too.
func outputIsInput(output string, inputs []string) (string, bool) {
	outAbs, absErr := filepath.Abs(output)
	outInfo, statErr := os.Stat(output)
	for _, in := range inputs {
		if absErr == nil {
			if inAbs, err := filepath.Abs(in); err == nil && inAbs == outAbs {
				return in, true
			}
		}
		if statErr == nil {
			if fi, err := os.Stat(in); err == nil && os.SameFile(fi, outInfo) {
				return in, true
			}
		}
	}
	return "", false
}

func cleanFile(ctx context.Context, input string, w *bufio.Writer, opts Options, counts *Counts) error {
	f, err := helpers.OpenInput(input)
	if err != nil {
		return fmt.Errorf("open input %s: %w", input, err)
	}
	defer func() {
		_ = f.Close()
	}()

	if err := CleanStream(ctx, f, w, opts, counts); err != nil {
		return fmt.Errorf("clean %s: %w", input, err)
	}
	return nil
}

// CleanStream cleans r into w, adding to counts. Invalid UTF-8 is replaced
// with U+FFFD and a leading byte order mark is dropped. w is not flushed.
func CleanStream(ctx context.Context, r io.Reader, w *bufio.Writer, opts Options, counts *Counts) error {
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	br := bufio.NewReaderSize(decoded, bufferSize)

	var in, out, empty, blacklisted int64
	defer func() {
		counts.LinesIn += in
		counts.LinesOut += out
		counts.Empty += empty
		counts.Blacklisted += blacklisted

		linesInCounter.Add(ctx, in)
		linesOutCounter.Add(ctx, out)
		linesDroppedCounter.Add(ctx, empty, otelmetric.WithAttributes(attribute.String("reason", "empty")))
		linesDroppedCounter.Add(ctx, blacklisted, otelmetric.WithAttributes(attribute.String("reason", "blacklist")))
	}()

	for {
		raw, readErr := br.ReadString('\n')
		if readErr != nil && readErr != io.EOF {
			return fmt.Errorf("read line %d: %w", in+1, readErr)
		}
		if raw == "" && readErr == io.EOF {
			return nil
		}

		in++
		if in%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		line, keep, reason := cleanLine(raw, opts)
		switch {
		case keep:
			if _, err := w.WriteString(line); err != nil {
				return fmt.Errorf("write line: %w", err)
			}
			if err := w.WriteByte('\n'); err != nil {
				return fmt.Errorf("write line: %w", err)
			}
			out++
		case reason == dropEmpty:
			empty++
		default:
			blacklisted++
		}

		if readErr == io.EOF {
			return nil
		}
	}
}

type dropReason int

const (
	dropNone dropReason = iota
	dropEmpty
	dropBlacklisted
)

func cleanLine(raw string, opts Options) (string, bool, dropReason) {
	line := raw
	if opts.DeleteChars != nil && opts.DeleteChars.Cardinality() > 0 {
		line = strings.Map(func(r rune) rune {
			if opts.DeleteChars.Contains(r) {
				return -1
			}
			return r
		}, line)
	}

	line = strings.TrimSpace(line)
	if line == "" {
		return "", false, dropEmpty
	}

	if opts.Blacklist != nil && opts.Blacklist.Cardinality() > 0 &&
		strings.ContainsFunc(line, func(r rune) bool { return opts.Blacklist.Contains(r) }) {
		return "", false, dropBlacklisted
	}

	return line, true, dropNone
}
