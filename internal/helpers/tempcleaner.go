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

package helpers

import (
	"log/slog"
	"os"
	"path/filepath"
)

// RemoveMatching deletes every entry in dir whose name matches the glob
// pattern and returns how many were removed. The temp dir is shared with
// other jobs, so callers must pass a pattern scoped to their own files.
func RemoveMatching(dir, pattern string) int {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		slog.Info("Bad temp file pattern (ignoring)", slog.String("pattern", pattern), slog.Any("error", err))
		return 0
	}

	removed := 0
	for _, path := range matches {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			slog.Warn("Failed to remove temp file", slog.String("path", path), slog.Any("error", err))
			continue
		}
		removed++
	}
	return removed
}
