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

package session

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/cardinalhq/linesort/internal/helpers"
	"github.com/cardinalhq/linesort/internal/logctx"
)

// checkDisk requires DiskSafetyFactor times the input size to be free in
// TempDir, since the cleaned copy and the chunks each take about as much
// room as the input. A shortfall is fatal unless AllowLowDisk is set or
// the job's Confirm callback accepts it.
func (r *run) checkDisk(ctx context.Context, inputBytes int64) error {
	factor := r.s.cfg.DiskSafetyFactor
	if factor == 0 || inputBytes == 0 {
		return nil
	}
	ll := logctx.FromContext(ctx)

	usage, err := r.s.diskUsage(r.s.cfg.TempDir)
	if err != nil {
		// Unknown free space is not a reason to refuse the job.
		ll.Warn("Could not determine free disk space", slog.String("dir", r.s.cfg.TempDir), slog.Any("error", err))
		return nil
	}

	needF := float64(inputBytes) * factor
	need := uint64(math.MaxUint64)
	if needF < float64(math.MaxUint64) {
		need = uint64(math.Ceil(needF))
	}
	if usage.FreeBytes >= need {
		return nil
	}

	attrs := []any{
		slog.String("dir", r.s.cfg.TempDir),
		slog.String("need", formatSize(need)),
		slog.String("free", formatSize(usage.FreeBytes)),
	}
	switch {
	case r.s.cfg.AllowLowDisk:
		ll.Warn("Low disk space, continuing anyway", attrs...)
		return nil
	case r.job.Confirm != nil && r.job.Confirm(need, usage.FreeBytes):
		ll.Warn("Low disk space, continuing on confirmation", attrs...)
		return nil
	}

	lowDiskCounter.Add(ctx, 1)
	return stageErr(StagePreflight, fmt.Errorf("%w: need %s in %s, have %s",
		ErrInsufficientDiskSpace,
		formatSize(need),
		r.s.cfg.TempDir,
		formatSize(usage.FreeBytes)),
		r.s.cfg.TempDir)
}

func formatSize(n uint64) string {
	return helpers.FormatBytes(int64(min(n, math.MaxInt64)))
}
