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

package cmd

import (
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/cardinalhq/linesort/internal/objectstore"
)

const timestampLayout = "20060102_150405"

func stem(p string) string {
	if objectstore.IsRemote(p) {
		p = path.Base(p)
	}
	return strings.TrimSuffix(p, filepath.Ext(p))
}

// defaultSortOutput places the result beside a local input. For a remote
// input the result is written to the working directory.
func defaultSortOutput(input string, dedup bool) string {
	if dedup {
		return stem(input) + "_deduplicated.txt"
	}
	return stem(input) + "_sorted.txt"
}

func defaultMergeOutput(now time.Time) string {
	return "merged_deduplicated_" + now.Format(timestampLayout) + ".txt"
}

func defaultCleanOutput(input string, now time.Time) string {
	return stem(input) + "_cleaned_" + now.Format(timestampLayout) + ".txt"
}
