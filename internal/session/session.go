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

// Package session runs a complete sort job: clean, spill, merge, verify, and
// re-sort once when verification fails. Chunk files never outlive a run.
package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/cardinalhq/linesort/internal/chunks"
	"github.com/cardinalhq/linesort/internal/cleaner"
	"github.com/cardinalhq/linesort/internal/helpers"
	"github.com/cardinalhq/linesort/internal/idgen"
	"github.com/cardinalhq/linesort/internal/logctx"
	"github.com/cardinalhq/linesort/internal/merge"
	"github.com/cardinalhq/linesort/internal/verify"
)

// Job is one end-to-end invocation.
type Job struct {
	// Inputs are read in order and treated as one stream.
	Inputs []string

	// Output receives the sorted result. It is only ever replaced by rename,
	// so readers never observe a half-written file at this path.
	Output string

	// SkipClean feeds the single input straight to the spiller. The input
	// must already be clean.
	SkipClean bool

	// Force runs the pipeline even when Output already verifies as sorted.
	Force bool

	// Confirm is asked whether to continue when the disk check fails. Nil
	// means no one can be asked and the check is fatal.
	Confirm func(need, free uint64) bool
}

// Summary describes a finished run.
type Summary struct {
	JobID       string
	Output      string
	Skipped     bool
	ReSorted    bool
	Cleaning    cleaner.Counts
	Chunks      int
	Merge       merge.Result
	Report      verify.Report
	Verified    bool
	FinalLines  int64
	InputBytes  int64
	OutputBytes int64
	Duration    time.Duration
}

// LinesPerSecond is the final line count over wall time.
func (s Summary) LinesPerSecond() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.FinalLines) / s.Duration.Seconds()
}

// Session holds a validated Config and runs jobs against it. A Session may
// run several jobs concurrently; each gets its own job id and temp files.
type Session struct {
	cfg         Config
	blacklist   mapset.Set[rune]
	deleteChars mapset.Set[rune]
	merger      merge.Merger
	diskUsage   func(string) (helpers.FSUsage, error)
}

// New validates cfg and returns a Session for it.
func New(cfg Config) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m, err := merge.New(cfg.MergeStrategy)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return &Session{
		cfg:         cfg,
		blacklist:   cleaner.RuneSet(cfg.Blacklist),
		deleteChars: cleaner.RuneSet(cfg.DeleteChars),
		merger:      m,
		diskUsage:   helpers.DiskUsage,
	}, nil
}

// Config returns the session's configuration.
func (s *Session) Config() Config {
	return s.cfg
}

// run is the per-job state.
type run struct {
	s       *Session
	job     Job
	jobID   string
	cleaned string
	span    trace.Span
}

// Run executes job. Every returned error is a *StageError. Inputs are never
// modified or removed, and no chunk file of this job remains afterwards.
func (s *Session) Run(ctx context.Context, job Job) (sum Summary, err error) {
	start := time.Now()
	jobID := idgen.NewJobID()
	ctx, ll := logctx.WithJob(ctx, jobID)

	ctx, span := tracer.Start(ctx, "linesort.session.run",
		trace.WithAttributes(
			attribute.String("job_id", jobID),
			attribute.Int("input_count", len(job.Inputs)),
			attribute.String("output", job.Output),
			attribute.Bool("deduplicate", s.cfg.Deduplicate),
		))
	defer span.End()

	r := &run{s: s, job: job, jobID: jobID, span: span}
	sum = Summary{JobID: jobID, Output: job.Output}

	defer func() {
		r.cleanup(ctx)
		sum.Duration = time.Since(start)
		outcome := "ok"
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, "sort job failed")
			ll.Error("Sort job failed", slog.Any("error", err))
		} else if sum.Skipped {
			outcome = "skipped"
		}
		runCounter.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("outcome", outcome)))
	}()

	inputBytes, err := r.preflight(ctx)
	if err != nil {
		return sum, err
	}
	sum.InputBytes = inputBytes

	if !job.Force {
		if rep, ok := r.alreadySorted(ctx); ok {
			ll.Info("Output already sorted, skipping", slog.String("output", job.Output))
			sum.Skipped = true
			sum.Verified = true
			sum.Report = rep
			sum.FinalLines = rep.LinesChecked
			sum.OutputBytes = fileSize(job.Output)
			return sum, nil
		}
	}

	if err := r.checkDisk(ctx, inputBytes); err != nil {
		return sum, err
	}

	sortInput := job.Inputs[0]
	if !job.SkipClean {
		counts, err := r.clean(ctx)
		sum.Cleaning = counts
		if err != nil {
			return sum, err
		}
		sortInput = r.cleaned
	}

	res, n, err := r.sortInto(ctx, StageSpilling, sortInput, s.cfg.Deduplicate, 0)
	sum.Merge = res
	sum.Chunks = n
	sum.FinalLines = res.LinesWritten
	if err != nil {
		return sum, err
	}

	if s.cfg.AutoVerify {
		rep, err := r.verifyOutput(ctx)
		if err != nil {
			return sum, err
		}
		if !rep.Sorted {
			ll.Warn("Output out of order, re-sorting once",
				slog.Int64("firstViolation", rep.FirstViolation))
			resortCounter.Add(ctx, 1)
			sum.ReSorted = true

			// Dedup already ran; a second pass only has to restore order.
			if _, _, err := r.sortInto(ctx, StageReSorting, job.Output, false, 1); err != nil {
				return sum, err
			}
			if rep, err = r.verifyOutput(ctx); err != nil {
				return sum, err
			}
			if !rep.Sorted {
				sum.Report = rep
				return sum, stageErr(StageVerifying,
					&VerificationError{Path: job.Output, FirstViolation: rep.FirstViolation},
					job.Output)
			}
		}
		sum.Report = rep
		sum.Verified = true
		sum.FinalLines = rep.LinesChecked
	}

	sum.OutputBytes = fileSize(job.Output)
	ll.Info("Sort job complete",
		slog.String("output", job.Output),
		slog.Int64("lines", sum.FinalLines),
		slog.Int64("duplicates", sum.Merge.Duplicates),
		slog.Int("chunks", sum.Chunks),
		slog.Bool("resorted", sum.ReSorted),
		slog.Duration("elapsed", time.Since(start)))
	return sum, nil
}

// preflight checks the job shape and that every input exists, returning the
// total input size. Nothing is written.
func (r *run) preflight(ctx context.Context) (int64, error) {
	_, span := tracer.Start(ctx, "linesort.session.preflight")
	defer span.End()

	job := r.job
	if len(job.Inputs) == 0 {
		return 0, stageErr(StagePreflight, fmt.Errorf("%w: no inputs", ErrInvalidConfig))
	}
	if job.Output == "" {
		return 0, stageErr(StagePreflight, fmt.Errorf("%w: no output path", ErrInvalidConfig))
	}
	if job.SkipClean && len(job.Inputs) > 1 {
		return 0, stageErr(StagePreflight,
			fmt.Errorf("%w: skipping the clean stage requires a single input", ErrInvalidConfig),
			job.Inputs...)
	}

	out, err := filepath.Abs(job.Output)
	if err != nil {
		return 0, stageErr(StagePreflight, fmt.Errorf("%w: %w", ErrInvalidConfig, err), job.Output)
	}
	for _, in := range job.Inputs {
		fi, err := os.Stat(in)
		if errors.Is(err, fs.ErrNotExist) {
			return 0, stageErr(StagePreflight, fmt.Errorf("%w: %w", ErrInputNotFound, err), in)
		}
		if err != nil {
			return 0, stageErr(StagePreflight, fmt.Errorf("%w: %w", ErrIO, err), in)
		}
		if fi.IsDir() {
			return 0, stageErr(StagePreflight, fmt.Errorf("%w: %s is a directory", ErrInvalidConfig, in), in)
		}
		if abs, err := filepath.Abs(in); err == nil && abs == out {
			return 0, stageErr(StagePreflight,
				fmt.Errorf("%w: output would overwrite input", ErrInvalidConfig), in)
		}
	}

	total, err := helpers.TotalFileSize(job.Inputs...)
	if err != nil {
		return 0, stageErr(StagePreflight, fmt.Errorf("%w: %w", ErrIO, err), job.Inputs...)
	}
	return total, nil
}

// alreadySorted reports whether the output exists and passes verification.
// With dedup on it must also be free of adjacent duplicates.
func (r *run) alreadySorted(ctx context.Context) (verify.Report, bool) {
	fi, err := os.Stat(r.job.Output)
	if err != nil || !fi.Mode().IsRegular() {
		return verify.Report{}, false
	}
	rep, err := verify.Verify(ctx, r.job.Output, verify.Options{Strict: r.s.cfg.Deduplicate})
	if err != nil {
		logctx.FromContext(ctx).Warn("Could not verify existing output",
			slog.String("output", r.job.Output), slog.Any("error", err))
		return rep, false
	}
	return rep, rep.Sorted
}

func (r *run) clean(ctx context.Context) (cleaner.Counts, error) {
	ctx, span := tracer.Start(ctx, "linesort.session.clean")
	defer span.End()

	if err := ctx.Err(); err != nil {
		return cleaner.Counts{}, stageErr(StageCleaning, err, r.job.Inputs...)
	}
	r.cleaned = filepath.Join(r.s.cfg.TempDir, "linesort-"+r.jobID+".cleaned")
	counts, err := cleaner.Clean(ctx, r.job.Inputs, r.cleaned, cleaner.Options{
		Blacklist:   r.s.blacklist,
		DeleteChars: r.s.deleteChars,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "clean failed")
		return counts, stageErr(StageCleaning, ioErr(ctx, err), r.job.Inputs...)
	}
	span.SetAttributes(
		attribute.Int64("lines_in", counts.LinesIn),
		attribute.Int64("lines_out", counts.LinesOut),
	)
	return counts, nil
}

// sortInto spills input and merges the chunks into the job's output via a
// partial file and rename. Chunks are removed whatever the outcome.
func (r *run) sortInto(ctx context.Context, stage Stage, input string, dedup bool, attempt int) (merge.Result, int, error) {
	ctx, span := tracer.Start(ctx, "linesort.session."+string(stage),
		trace.WithAttributes(attribute.Int("attempt", attempt)))
	defer span.End()
	ll := logctx.FromContext(ctx)
	if err := ctx.Err(); err != nil {
		return merge.Result{}, 0, stageErr(stage, err, input)
	}

	spillID := r.jobID
	if attempt > 0 {
		spillID = fmt.Sprintf("%s-r%d", r.jobID, attempt)
	}
	spiller, err := chunks.NewSpiller(chunks.Config{
		TempDir:      r.s.cfg.TempDir,
		JobID:        spillID,
		MemoryBudget: r.s.cfg.MemoryBudget,
		Workers:      r.s.cfg.Workers,
	})
	if err != nil {
		return merge.Result{}, 0, stageErr(stage, fmt.Errorf("%w: %w", ErrInvalidConfig, err))
	}

	spilled, err := spiller.Spill(ctx, input)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "spill failed")
		return merge.Result{}, 0, stageErr(stage, ioErr(ctx, err), input)
	}
	defer func() {
		if err := chunks.Remove(spilled); err != nil {
			ll.Warn("Failed to remove chunks", slog.Any("error", err))
		}
	}()
	span.SetAttributes(attribute.Int("chunks", len(spilled)))

	partial := r.partialPath()
	res, err := r.s.merger.Merge(ctx, spilled, partial, merge.Options{
		Deduplicate: dedup,
		Strict:      r.s.cfg.StrictMerge,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "merge failed")
		r.dropPartial(ctx, partial)
		return res, len(spilled), stageErr(StageMerging, ioErr(ctx, err), partial)
	}
	for _, cerr := range res.CursorErrors {
		ll.Warn("Output is missing records from a failed chunk", slog.Any("error", cerr))
	}

	if err := os.Rename(partial, r.job.Output); err != nil {
		r.dropPartial(ctx, partial)
		return res, len(spilled), stageErr(StageMerging, fmt.Errorf("%w: %w", ErrIO, err), partial, r.job.Output)
	}
	return res, len(spilled), nil
}

func (r *run) verifyOutput(ctx context.Context) (verify.Report, error) {
	ctx, span := tracer.Start(ctx, "linesort.session.verify")
	defer span.End()

	rep, err := verify.Verify(ctx, r.job.Output, verify.Options{})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "verify failed")
		return rep, stageErr(StageVerifying, ioErr(ctx, err), r.job.Output)
	}
	span.SetAttributes(
		attribute.Bool("sorted", rep.Sorted),
		attribute.Int64("lines_checked", rep.LinesChecked),
	)
	return rep, nil
}

// partialPath sits beside the output so the final rename stays on one filesystem.
func (r *run) partialPath() string {
	return r.job.Output + "." + r.jobID + ".partial"
}

// dropPartial removes a failed merge's partial output, except on cancellation
// where it is left for inspection. It is never at the output path.
func (r *run) dropPartial(ctx context.Context, partial string) {
	if ctx.Err() != nil {
		return
	}
	if err := os.Remove(partial); err != nil && !os.IsNotExist(err) {
		logctx.FromContext(ctx).Warn("Failed to remove partial output",
			slog.String("path", partial), slog.Any("error", err))
	}
}

// cleanup removes the cleaned temp file and sweeps any chunk of this job
// that escaped tracked removal.
func (r *run) cleanup(ctx context.Context) {
	var errs *multierror.Error
	if r.cleaned != "" {
		if err := os.Remove(r.cleaned); err != nil && !os.IsNotExist(err) {
			errs = multierror.Append(errs, err)
		}
	}
	if n := helpers.RemoveMatching(r.s.cfg.TempDir, chunks.Pattern(r.jobID)); n > 0 {
		logctx.FromContext(ctx).Warn("Swept leftover chunk files", slog.Int("count", n))
	}
	if err := errs.ErrorOrNil(); err != nil {
		logctx.FromContext(ctx).Warn("Cleanup incomplete", slog.Any("error", err))
	}
}

// ioErr tags err as an I/O failure unless it is a cancellation.
func ioErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrIO, err)
}

func fileSize(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return fi.Size()
}
