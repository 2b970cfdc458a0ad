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
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/cardinalhq/linesort/internal/helpers"
	"github.com/cardinalhq/linesort/internal/logctx"
)

const (
	readBufferSize = 1 << 20
	checkEvery     = 1 << 16
)

// Config controls how a Spiller partitions its input.
type Config struct {
	// TempDir receives the chunk files.
	TempDir string

	// JobID is embedded in chunk names so that jobs sharing TempDir never collide.
	JobID string

	// MemoryBudget bounds the buffered line bytes held in memory at once.
	MemoryBudget int64

	// Workers is the number of batches that may be sorted and written
	// concurrently. Values <= 1 spill synchronously.
	Workers int
}

// Spiller partitions line input into sorted chunks.
type Spiller struct {
	cfg         Config
	batchBudget int64
}

// NewSpiller validates cfg and returns a Spiller for it.
//
// With a single worker one batch may use the whole budget. With N workers up
// to N batches are being sorted while one more is filled, so each batch gets
// MemoryBudget/(N+1).
func NewSpiller(cfg Config) (*Spiller, error) {
	if cfg.MemoryBudget <= 0 {
		return nil, fmt.Errorf("memory budget must be positive, got %d", cfg.MemoryBudget)
	}
	if cfg.TempDir == "" {
		return nil, errors.New("temp dir is required")
	}
	if cfg.JobID == "" {
		return nil, errors.New("job id is required")
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}

	budget := cfg.MemoryBudget
	if cfg.Workers > 1 {
		budget = cfg.MemoryBudget / int64(cfg.Workers+1)
		if budget < 1 {
			budget = 1
		}
	}

	return &Spiller{cfg: cfg, batchBudget: budget}, nil
}

// BatchBudget is the byte budget applied to each in-memory batch.
func (s *Spiller) BatchBudget() int64 {
	return s.batchBudget
}

// Spill reads the (already cleaned) file at input and returns its chunks in
// spill order. An empty input yields no chunks. On any error, including
// cancellation, every chunk created so far is removed before returning.
func (s *Spiller) Spill(ctx context.Context, input string) ([]Chunk, error) {
	f, err := os.Open(input)
	if err != nil {
		return nil, fmt.Errorf("open spill input %s: %w", input, err)
	}
	defer func() {
		_ = f.Close()
	}()

	return s.SpillReader(ctx, f)
}

// SpillReader is Spill over an arbitrary reader.
func (s *Spiller) SpillReader(ctx context.Context, r io.Reader) ([]Chunk, error) {
	ll := logctx.FromContext(ctx)

	var (
		mu     sync.Mutex
		sealed []Chunk
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)

	seal := func(seq int, batch []string) error {
		slices.Sort(batch)
		path := filepath.Join(s.cfg.TempDir, Name(s.cfg.JobID, seq))
		c, err := WriteChunk(path, seq, batch)
		if err != nil {
			return err
		}

		mu.Lock()
		sealed = append(sealed, c)
		mu.Unlock()

		chunksSpilledCounter.Add(ctx, 1)
		bytesSpilledCounter.Add(ctx, c.Bytes)
		ll.Debug("Spilled chunk",
			slog.Int("seq", c.Seq),
			slog.Int64("lines", c.Lines),
			slog.Int64("bytes", c.Bytes))
		return nil
	}

	readErr := s.partition(gctx, r, func(seq int, batch []string) error {
		if s.cfg.Workers == 1 {
			return seal(seq, batch)
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return seal(seq, batch)
		})
		return nil
	})
	waitErr := g.Wait()

	slices.SortFunc(sealed, func(a, b Chunk) int { return a.Seq - b.Seq })

	if err := errors.Join(readErr, waitErr); err != nil {
		if rmErr := Remove(sealed); rmErr != nil {
			ll.Warn("Failed to remove chunks after spill error", slog.Any("error", rmErr))
		}
		helpers.RemoveMatching(s.cfg.TempDir, Pattern(s.cfg.JobID))
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}

	ll.Info("Spill complete",
		slog.Int("chunks", len(sealed)),
		slog.Int64("batchBudget", s.batchBudget),
		slog.Int("workers", s.cfg.Workers))
	return sealed, nil
}

// partition reads records from r and hands each full batch to flush.
// A batch is flushed before the record that would push it over budget is
// added, so only a batch holding a single oversized record exceeds it.
func (s *Spiller) partition(ctx context.Context, r io.Reader, flush func(seq int, batch []string) error) error {
	br := bufio.NewReaderSize(r, readBufferSize)

	var (
		batch      []string
		batchBytes int64
		seq        int
		lines      int64
	)

	emit := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		seq++
		err := flush(seq, batch)
		batch = nil
		batchBytes = 0
		return err
	}

	for {
		raw, err := br.ReadString('\n')
		if err != nil && err != io.EOF {
			return fmt.Errorf("read record %d: %w", lines+1, err)
		}
		if raw == "" && err == io.EOF {
			break
		}

		lines++
		if lines%checkEvery == 0 {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
		}

		line := strings.TrimSuffix(strings.TrimSuffix(raw, "\n"), "\r")
		size := int64(len(line))
		if len(batch) > 0 && batchBytes+size > s.batchBudget {
			if flushErr := emit(); flushErr != nil {
				return flushErr
			}
		}
		batch = append(batch, line)
		batchBytes += size

		if err == io.EOF {
			break
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	return emit()
}
