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

// Package chunks turns an arbitrarily large line file into a set of sorted
// spill files ("chunks") whose individual size is bounded by a memory budget,
// and provides cursors for reading those chunks back one record at a time.
//
// # Chunk lifecycle
//
// A Spiller buffers lines until the next line would push the buffered bytes
// over the budget, sorts the batch byte-lexicographically, and writes it to
// TempDir as
//
//	linesort-<jobID>-<seq>.chunk
//
// Once the file is closed the chunk is sealed and never modified again. A
// chunk belongs to the job that created it; Remove deletes a set of chunks
// and Pattern matches every chunk of a job, which lets callers sweep the
// shared temp dir after an aborted run without touching other jobs.
//
// # Cursors
//
//	cur, err := chunks.OpenCursor(chunk)
//	for !cur.Done() {
//	    use(cur.Current())
//	    if err := cur.Advance(); err != nil {
//	        // cursor is now exhausted; err says why
//	    }
//	}
//	_ = cur.Close()
package chunks
