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
	"container/heap"
	"context"
	"fmt"

	"github.com/cardinalhq/linesort/internal/chunks"
)

// HeapMerger keeps the live cursors in a min-heap keyed by current record,
// so each emitted record costs O(log k) for k chunks.
type HeapMerger struct {
	// Open overrides how chunk cursors are opened. Defaults to chunks.OpenCursor.
	Open OpenFunc
}

var _ Merger = (*HeapMerger)(nil)

func (m *HeapMerger) Merge(ctx context.Context, in []chunks.Chunk, output string, opts Options) (Result, error) {
	return run(ctx, StrategyHeap, in, output, opts, m.Open, heapLoop)
}

func heapLoop(ctx context.Context, cursors []*chunks.Cursor, e *emitter, fail func(*chunks.Cursor, error) error) error {
	h := make(cursorHeap, 0, len(cursors))
	for i, c := range cursors {
		if !c.Done() {
			h = append(h, heapEntry{cursor: c, index: i})
		}
	}
	heap.Init(&h)

	var n int64
	for h.Len() > 0 {
		n++
		if n%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		top := h[0].cursor
		if err := e.emit(top.Current()); err != nil {
			return fmt.Errorf("write merged record: %w", err)
		}

		if err := top.Advance(); err != nil {
			heap.Pop(&h)
			if err := fail(top, err); err != nil {
				return err
			}
			continue
		}
		if top.Done() {
			heap.Pop(&h)
		} else {
			heap.Fix(&h, 0)
		}
	}
	return ctx.Err()
}

type heapEntry struct {
	cursor *chunks.Cursor
	index  int
}

// cursorHeap orders by current record, then by chunk position so that ties
// resolve the same way on every run.
type cursorHeap []heapEntry

func (h cursorHeap) Len() int { return len(h) }

func (h cursorHeap) Less(i, j int) bool {
	a, b := h[i].cursor.Current(), h[j].cursor.Current()
	if a != b {
		return a < b
	}
	return h[i].index < h[j].index
}

func (h cursorHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *cursorHeap) Push(x any) { *h = append(*h, x.(heapEntry)) }

func (h *cursorHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = heapEntry{}
	*h = old[:n-1]
	return item
}
