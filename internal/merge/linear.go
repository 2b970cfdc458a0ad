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

package merge

import (
	"context"
	"fmt"

	"github.com/cardinalhq/linesort/internal/chunks"
)

// LinearMerger scans every live cursor for the smallest record on each step.
// It costs O(k) per record and is kept as a simple reference for HeapMerger;
// both produce identical output.
type LinearMerger struct {
	// Open overrides how chunk cursors are opened. Defaults to chunks.OpenCursor.
	Open OpenFunc
}

var _ Merger = (*LinearMerger)(nil)

func (m *LinearMerger) Merge(ctx context.Context, in []chunks.Chunk, output string, opts Options) (Result, error) {
	return run(ctx, StrategyLinear, in, output, opts, m.Open, linearLoop)
}

func linearLoop(ctx context.Context, cursors []*chunks.Cursor, e *emitter, fail func(*chunks.Cursor, error) error) error {
	var n int64
	for {
		n++
		if n%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		var best *chunks.Cursor
		for _, c := range cursors {
			if c.Done() {
				continue
			}
			if best == nil || c.Current() < best.Current() {
				best = c
			}
		}
		if best == nil {
			return ctx.Err()
		}

		if err := e.emit(best.Current()); err != nil {
			return fmt.Errorf("write merged record: %w", err)
		}
		if err := best.Advance(); err != nil {
			if err := fail(best, err); err != nil {
				return err
			}
		}
	}
}
