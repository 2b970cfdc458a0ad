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
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/cardinalhq/linesort/internal/merge"
)

const (
	DefaultMemoryBudget     = 2 << 30
	DefaultDiskSafetyFactor = 2.0
)

// Config is the engine configuration for a Session. It is an explicit value
// so that sessions with different settings can run side by side in one process.
type Config struct {
	// MemoryBudget bounds the buffered line bytes the spiller holds at once.
	MemoryBudget int64

	// Deduplicate collapses equal records in the output.
	Deduplicate bool

	// AutoVerify checks the output after merging and re-sorts once if it is
	// out of order.
	AutoVerify bool

	// TempDir is scratch space for the cleaned input and chunk files. It may
	// be shared with other jobs.
	TempDir string

	// Blacklist lists characters; any line containing one is dropped while cleaning.
	Blacklist string

	// DeleteChars lists characters removed from every line before trimming.
	DeleteChars string

	// Workers is how many spill batches may be sorted concurrently.
	Workers int

	// MergeStrategy is "heap" or "linear".
	MergeStrategy string

	// StrictMerge aborts the merge on any chunk read failure instead of
	// continuing without that chunk.
	StrictMerge bool

	// DiskSafetyFactor is the multiple of the total input size that must be
	// free in TempDir before starting. Zero disables the check.
	DiskSafetyFactor float64

	// AllowLowDisk proceeds with a warning when the disk check fails.
	AllowLowDisk bool
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		MemoryBudget:     DefaultMemoryBudget,
		Deduplicate:      true,
		AutoVerify:       true,
		TempDir:          os.TempDir(),
		Workers:          1,
		MergeStrategy:    merge.StrategyHeap,
		DiskSafetyFactor: DefaultDiskSafetyFactor,
	}
}

// Validate reports the first problem with c. It touches no files.
func (c Config) Validate() error {
	if c.MemoryBudget <= 0 {
		return fmt.Errorf("%w: memory budget must be positive, got %d", ErrInvalidConfig, c.MemoryBudget)
	}
	if c.TempDir == "" {
		return fmt.Errorf("%w: temp dir is required", ErrInvalidConfig)
	}
	fi, err := os.Stat(c.TempDir)
	if err != nil {
		return fmt.Errorf("%w: temp dir: %w", ErrInvalidConfig, err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("%w: temp dir %s is not a directory", ErrInvalidConfig, c.TempDir)
	}
	if err := unix.Access(c.TempDir, unix.W_OK); err != nil {
		return fmt.Errorf("%w: temp dir %s is not writable: %w", ErrInvalidConfig, c.TempDir, err)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must not be negative, got %d", ErrInvalidConfig, c.Workers)
	}
	if _, err := merge.New(c.MergeStrategy); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.DiskSafetyFactor < 0 {
		return fmt.Errorf("%w: disk safety factor must not be negative, got %g", ErrInvalidConfig, c.DiskSafetyFactor)
	}
	return nil
}
