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
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/linesort/internal/chunks"
	"github.com/cardinalhq/linesort/internal/helpers"
	"github.com/cardinalhq/linesort/internal/merge"
	"github.com/cardinalhq/linesort/internal/verify"
)

func plentyOfDisk(string) (helpers.FSUsage, error) {
	return helpers.FSUsage{TotalBytes: 1 << 40, FreeBytes: 1 << 40}, nil
}

func newTestSession(t *testing.T, mutate func(*Config)) *Session {
	t.Helper()
	cfg := DefaultConfig()
	cfg.TempDir = t.TempDir()
	cfg.MemoryBudget = 1 << 20
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := New(cfg)
	require.NoError(t, err)
	s.diskUsage = plentyOfDisk
	return s
}

func writeInput(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.txt")
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func outputPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "sorted.txt")
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	if len(b) == 0 {
		return []string{}
	}
	return strings.Split(strings.TrimSuffix(string(b), "\n"), "\n")
}

func assertTempDirEmpty(t *testing.T, s *Session) {
	t.Helper()
	entries, err := os.ReadDir(s.cfg.TempDir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Empty(t, names, "temp dir should hold no leftovers")
}

func TestRun_Scenarios(t *testing.T) {
	tests := []struct {
		name   string
		input  []string
		budget int64
		dedup  bool
		want   []string
	}{
		{"dedup one chunk", []string{"b", "a", "a", "c"}, 1 << 20, true, []string{"a", "b", "c"}},
		{"no dedup", []string{"b", "a", "a", "c"}, 1 << 20, false, []string{"a", "a", "b", "c"}},
		{"three overlapping chunks", []string{"d", "b", "c", "a", "e", "a"}, 2, true, []string{"a", "b", "c", "d", "e"}},
		{"empty input", nil, 1 << 20, true, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSession(t, func(c *Config) {
				c.MemoryBudget = tt.budget
				c.Deduplicate = tt.dedup
			})
			out := outputPath(t)

			sum, err := s.Run(context.Background(), Job{Inputs: []string{writeInput(t, tt.input...)}, Output: out})
			require.NoError(t, err)
			assert.Equal(t, tt.want, readLines(t, out))
			assert.True(t, sum.Verified)
			assert.True(t, sum.Report.Sorted)
			assert.Equal(t, int64(len(tt.want)), sum.FinalLines)
			assert.Equal(t, int64(len(tt.want)), sum.Report.LinesChecked)
			assert.False(t, sum.ReSorted)
			assertTempDirEmpty(t, s)
		})
	}
}

func TestRun_ThreeChunksSpilled(t *testing.T) {
	s := newTestSession(t, func(c *Config) { c.MemoryBudget = 2 })
	out := outputPath(t)

	sum, err := s.Run(context.Background(), Job{
		Inputs: []string{writeInput(t, "b", "d", "a", "c", "a", "e")},
		Output: out,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Chunks)
	assert.Equal(t, int64(1), sum.Merge.Duplicates)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, readLines(t, out))
}

func TestRun_WorkersSplitTheBudget(t *testing.T) {
	var input []string
	for i := 0; i < 12; i++ {
		input = append(input, fmt.Sprintf("r%03d", i))
	}

	tests := []struct {
		workers int
		chunks  int
	}{
		// 40 bytes whole, 10 bytes per batch with three workers
		{1, 2},
		{3, 6},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("workers=%d", tt.workers), func(t *testing.T) {
			s := newTestSession(t, func(c *Config) {
				c.MemoryBudget = 40
				c.Workers = tt.workers
			})
			out := outputPath(t)

			sum, err := s.Run(context.Background(), Job{Inputs: []string{writeInput(t, input...)}, Output: out})
			require.NoError(t, err)
			assert.Equal(t, tt.chunks, sum.Chunks)
			assert.Equal(t, input, readLines(t, out))
			assertTempDirEmpty(t, s)
		})
	}
}

func randomLines(seed int64, n int) []string {
	rng := rand.New(rand.NewSource(seed))
	lines := make([]string, n)
	for i := range lines {
		lines[i] = fmt.Sprintf("line-%04d", rng.Intn(n/2+1))
	}
	return lines
}

func TestRun_SortednessAndMultiset(t *testing.T) {
	input := randomLines(7, 2000)

	for _, workers := range []int{1, 4} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			s := newTestSession(t, func(c *Config) {
				c.MemoryBudget = 500
				c.Deduplicate = false
				c.Workers = workers
			})
			out := outputPath(t)

			sum, err := s.Run(context.Background(), Job{Inputs: []string{writeInput(t, input...)}, Output: out})
			require.NoError(t, err)
			assert.Greater(t, sum.Chunks, 1)

			got := readLines(t, out)
			want := slices.Clone(input)
			slices.Sort(want)
			assert.Equal(t, want, got)

			rep, err := verify.Verify(context.Background(), out, verify.Options{})
			require.NoError(t, err)
			assert.True(t, rep.Sorted)
			assertTempDirEmpty(t, s)
		})
	}
}

func TestRun_ChunkCountInvariance(t *testing.T) {
	input := randomLines(11, 1000)

	var outputs []string
	for _, budget := range []int64{100, 1000, 1 << 20} {
		s := newTestSession(t, func(c *Config) { c.MemoryBudget = budget })
		out := outputPath(t)
		_, err := s.Run(context.Background(), Job{Inputs: []string{writeInput(t, input...)}, Output: out})
		require.NoError(t, err)
		b, err := os.ReadFile(out)
		require.NoError(t, err)
		outputs = append(outputs, string(b))
	}

	for _, o := range outputs[1:] {
		assert.Equal(t, outputs[0], o)
	}
}

func TestRun_DedupIdempotence(t *testing.T) {
	s := newTestSession(t, func(c *Config) { c.MemoryBudget = 100 })
	in := writeInput(t, randomLines(3, 500)...)
	out := outputPath(t)

	first, err := s.Run(context.Background(), Job{Inputs: []string{in}, Output: out})
	require.NoError(t, err)
	assert.False(t, first.Skipped)
	firstBytes, err := os.ReadFile(out)
	require.NoError(t, err)

	second, err := s.Run(context.Background(), Job{Inputs: []string{in}, Output: out})
	require.NoError(t, err)
	assert.True(t, second.Skipped)
	assert.Equal(t, first.Report.Digest, second.Report.Digest)

	// Sorting the sorted output again is a no-op.
	out2 := outputPath(t)
	third, err := s.Run(context.Background(), Job{Inputs: []string{out}, Output: out2, Force: true})
	require.NoError(t, err)
	assert.False(t, third.Skipped)
	thirdBytes, err := os.ReadFile(out2)
	require.NoError(t, err)
	assert.Equal(t, string(firstBytes), string(thirdBytes))
}

func TestRun_ForceBypassesShortcut(t *testing.T) {
	s := newTestSession(t, nil)
	in := writeInput(t, "b", "a")
	out := outputPath(t)
	require.NoError(t, os.WriteFile(out, []byte("x\ny\n"), 0o644))

	sum, err := s.Run(context.Background(), Job{Inputs: []string{in}, Output: out})
	require.NoError(t, err)
	assert.True(t, sum.Skipped)
	assert.Equal(t, []string{"x", "y"}, readLines(t, out))

	sum, err = s.Run(context.Background(), Job{Inputs: []string{in}, Output: out, Force: true})
	require.NoError(t, err)
	assert.False(t, sum.Skipped)
	assert.Equal(t, []string{"a", "b"}, readLines(t, out))
}

func TestRun_CorruptedOutputIsReplaced(t *testing.T) {
	s := newTestSession(t, nil)
	in := writeInput(t, "c", "a", "b")
	out := outputPath(t)

	_, err := s.Run(context.Background(), Job{Inputs: []string{in}, Output: out})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(out, []byte("a\nc\nb\n"), 0o644))

	sum, err := s.Run(context.Background(), Job{Inputs: []string{in}, Output: out})
	require.NoError(t, err)
	assert.False(t, sum.Skipped)
	assert.Equal(t, []string{"a", "b", "c"}, readLines(t, out))
}

// reversingMerger corrupts the first badCalls merges by writing the output
// in descending order.
type reversingMerger struct {
	inner    merge.Merger
	badCalls int
	calls    int
	dedups   []bool
}

func (m *reversingMerger) Merge(ctx context.Context, in []chunks.Chunk, output string, opts merge.Options) (merge.Result, error) {
	m.calls++
	m.dedups = append(m.dedups, opts.Deduplicate)
	res, err := m.inner.Merge(ctx, in, output, opts)
	if err != nil || m.calls > m.badCalls {
		return res, err
	}
	b, err := os.ReadFile(output)
	if err != nil {
		return res, err
	}
	lines := strings.Split(strings.TrimSuffix(string(b), "\n"), "\n")
	slices.Reverse(lines)
	return res, os.WriteFile(output, []byte(strings.Join(lines, "\n")+"\n"), 0o644)
}

func TestRun_SelfHealsOnce(t *testing.T) {
	s := newTestSession(t, nil)
	bad := &reversingMerger{inner: &merge.HeapMerger{}, badCalls: 1}
	s.merger = bad
	out := outputPath(t)

	sum, err := s.Run(context.Background(), Job{Inputs: []string{writeInput(t, "b", "a", "c", "a")}, Output: out})
	require.NoError(t, err)
	assert.True(t, sum.ReSorted)
	assert.True(t, sum.Verified)
	assert.Equal(t, 2, bad.calls)
	assert.Equal(t, []bool{true, false}, bad.dedups)
	assert.Equal(t, []string{"a", "b", "c"}, readLines(t, out))
	assertTempDirEmpty(t, s)
}

func TestRun_VerificationFailedIsFatal(t *testing.T) {
	s := newTestSession(t, nil)
	bad := &reversingMerger{inner: &merge.HeapMerger{}, badCalls: 2}
	s.merger = bad
	out := outputPath(t)

	sum, err := s.Run(context.Background(), Job{Inputs: []string{writeInput(t, "b", "a", "c")}, Output: out})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrVerificationFailed)
	assert.Equal(t, 2, bad.calls)

	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, StageVerifying, se.Stage)
	assert.Contains(t, se.Paths, out)

	var ve *VerificationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, int64(2), ve.FirstViolation)
	assert.False(t, sum.Report.Sorted)

	// the bad output is kept for inspection
	assert.Equal(t, []string{"c", "b", "a"}, readLines(t, out))
	assertTempDirEmpty(t, s)
}

func TestRun_NoAutoVerify(t *testing.T) {
	s := newTestSession(t, func(c *Config) { c.AutoVerify = false })
	s.merger = &reversingMerger{inner: &merge.HeapMerger{}, badCalls: 1}
	out := outputPath(t)

	sum, err := s.Run(context.Background(), Job{Inputs: []string{writeInput(t, "b", "a")}, Output: out})
	require.NoError(t, err)
	assert.False(t, sum.Verified)
	assert.Equal(t, []string{"b", "a"}, readLines(t, out))
}

func TestRun_InputNotFound(t *testing.T) {
	s := newTestSession(t, nil)
	missing := filepath.Join(t.TempDir(), "missing.txt")

	_, err := s.Run(context.Background(), Job{Inputs: []string{missing}, Output: outputPath(t)})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInputNotFound)

	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, StagePreflight, se.Stage)
	assert.Equal(t, []string{missing}, se.Paths)
	assertTempDirEmpty(t, s)
}

func TestRun_InvalidJobs(t *testing.T) {
	s := newTestSession(t, nil)
	in := writeInput(t, "a")

	tests := []struct {
		name string
		job  Job
	}{
		{"no inputs", Job{Output: outputPath(t)}},
		{"no output", Job{Inputs: []string{in}}},
		{"output is input", Job{Inputs: []string{in}, Output: in}},
		{"skip clean with many inputs", Job{Inputs: []string{in, in}, Output: outputPath(t), SkipClean: true}},
		{"input is a directory", Job{Inputs: []string{t.TempDir()}, Output: outputPath(t)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Run(context.Background(), tt.job)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestRun_LowDisk(t *testing.T) {
	lowDisk := func(string) (helpers.FSUsage, error) {
		return helpers.FSUsage{TotalBytes: 100, FreeBytes: 1}, nil
	}
	in := writeInput(t, "b", "a")

	t.Run("refused", func(t *testing.T) {
		s := newTestSession(t, nil)
		s.diskUsage = lowDisk
		out := outputPath(t)
		_, err := s.Run(context.Background(), Job{Inputs: []string{in}, Output: out})
		assert.ErrorIs(t, err, ErrInsufficientDiskSpace)
		assert.NoFileExists(t, out)
		assertTempDirEmpty(t, s)
	})

	t.Run("declined", func(t *testing.T) {
		s := newTestSession(t, nil)
		s.diskUsage = lowDisk
		var asked bool
		_, err := s.Run(context.Background(), Job{
			Inputs:  []string{in},
			Output:  outputPath(t),
			Confirm: func(need, free uint64) bool { asked = true; return false },
		})
		assert.True(t, asked)
		assert.ErrorIs(t, err, ErrInsufficientDiskSpace)
	})

	t.Run("confirmed", func(t *testing.T) {
		s := newTestSession(t, nil)
		s.diskUsage = lowDisk
		var gotNeed, gotFree uint64
		out := outputPath(t)
		_, err := s.Run(context.Background(), Job{
			Inputs: []string{in},
			Output: out,
			Confirm: func(need, free uint64) bool {
				gotNeed, gotFree = need, free
				return true
			},
		})
		require.NoError(t, err)
		assert.Equal(t, uint64(8), gotNeed)
		assert.Equal(t, uint64(1), gotFree)
		assert.Equal(t, []string{"a", "b"}, readLines(t, out))
	})

	t.Run("allowed by config", func(t *testing.T) {
		s := newTestSession(t, func(c *Config) { c.AllowLowDisk = true })
		s.diskUsage = lowDisk
		_, err := s.Run(context.Background(), Job{Inputs: []string{in}, Output: outputPath(t)})
		require.NoError(t, err)
	})

	t.Run("check disabled", func(t *testing.T) {
		s := newTestSession(t, func(c *Config) { c.DiskSafetyFactor = 0 })
		s.diskUsage = lowDisk
		_, err := s.Run(context.Background(), Job{Inputs: []string{in}, Output: outputPath(t)})
		require.NoError(t, err)
	})
}

func TestRun_CleaningOptions(t *testing.T) {
	s := newTestSession(t, func(c *Config) {
		c.Blacklist = "#"
		c.DeleteChars = "\""
	})
	a := writeInput(t, `  "zeta"  `, "", "#comment", "alpha")
	b := writeInput(t, "alpha", "  ", "mid")
	out := outputPath(t)

	sum, err := s.Run(context.Background(), Job{Inputs: []string{a, b}, Output: out})
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, readLines(t, out))
	assert.Equal(t, int64(7), sum.Cleaning.LinesIn)
	assert.Equal(t, int64(4), sum.Cleaning.LinesOut)
	assert.Equal(t, int64(2), sum.Cleaning.Empty)
	assert.Equal(t, int64(1), sum.Cleaning.Blacklisted)
	assert.Equal(t, int64(1), sum.Merge.Duplicates)
	assertTempDirEmpty(t, s)
}

func TestRun_SkipClean(t *testing.T) {
	s := newTestSession(t, nil)
	out := outputPath(t)

	sum, err := s.Run(context.Background(), Job{
		Inputs:    []string{writeInput(t, "b", "a")},
		Output:    out,
		SkipClean: true,
	})
	require.NoError(t, err)
	assert.Zero(t, sum.Cleaning.LinesIn)
	assert.Equal(t, []string{"a", "b"}, readLines(t, out))
}

func TestRun_Cancelled(t *testing.T) {
	s := newTestSession(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := outputPath(t)

	_, err := s.Run(ctx, Job{Inputs: []string{writeInput(t, "b", "a")}, Output: out})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, out)
	assertTempDirEmpty(t, s)
}

func TestConfig_Validate(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	valid := DefaultConfig()
	valid.TempDir = dir
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero budget", func(c *Config) { c.MemoryBudget = 0 }},
		{"no temp dir", func(c *Config) { c.TempDir = "" }},
		{"missing temp dir", func(c *Config) { c.TempDir = filepath.Join(dir, "nope") }},
		{"temp dir is a file", func(c *Config) { c.TempDir = file }},
		{"negative workers", func(c *Config) { c.Workers = -1 }},
		{"unknown strategy", func(c *Config) { c.MergeStrategy = "bogo" }},
		{"negative safety factor", func(c *Config) { c.DiskSafetyFactor = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

			_, err := New(cfg)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestSummary_LinesPerSecond(t *testing.T) {
	assert.Zero(t, Summary{FinalLines: 10}.LinesPerSecond())
	assert.InDelta(t, 5.0, Summary{FinalLines: 10, Duration: 2e9}.LinesPerSecond(), 1e-9)
}
