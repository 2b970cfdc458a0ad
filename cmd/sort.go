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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/linesort/config"
	"github.com/cardinalhq/linesort/internal/helpers"
	"github.com/cardinalhq/linesort/internal/idgen"
	"github.com/cardinalhq/linesort/internal/logctx"
	"github.com/cardinalhq/linesort/internal/objectstore"
	"github.com/cardinalhq/linesort/internal/session"
)

// sortFlags are the command line overrides shared by sort and merge. Only
// flags the user actually set replace loaded configuration.
type sortFlags struct {
	output       string
	memory       string
	noDedup      bool
	noVerify     bool
	tempDir      string
	blacklist    string
	deleteChars  string
	workers      int
	strategy     string
	strictMerge  bool
	allowLowDisk bool
	force        bool
	skipClean    bool
	yes          bool
}

func (f *sortFlags) register(cmd *cobra.Command, dedupFlag bool) {
	fl := cmd.Flags()
	fl.StringVarP(&f.output, "output", "o", "", "Output file path or s3:// URI")
	fl.StringVarP(&f.memory, "memory", "m", "", "Memory budget for in-memory batches, e.g. 512MiB or 4GiB")
	if dedupFlag {
		fl.BoolVar(&f.noDedup, "no-dedup", false, "Keep duplicate lines")
	}
	fl.BoolVar(&f.noVerify, "no-verify", false, "Skip verifying the output after merging")
	fl.StringVar(&f.tempDir, "temp-dir", "", "Directory for chunk files")
	fl.StringVar(&f.blacklist, "blacklist", "", "Drop lines containing any of these characters")
	fl.StringVar(&f.deleteChars, "delete-chars", "", "Remove these characters from every line")
	fl.IntVar(&f.workers, "workers", 0, "Number of batches sorted concurrently")
	fl.StringVar(&f.strategy, "merge-strategy", "", "Merge strategy: heap or linear")
	fl.BoolVar(&f.strictMerge, "strict-merge", false, "Fail the merge if any chunk cannot be read")
	fl.BoolVar(&f.allowLowDisk, "allow-low-disk", false, "Continue when free disk space looks insufficient")
	fl.BoolVarP(&f.force, "force", "f", false, "Rebuild the output even if it is already sorted")
	fl.BoolVarP(&f.yes, "yes", "y", false, "Answer yes to confirmation prompts")
}

// apply overlays the flags the user set onto sc.
func (f *sortFlags) apply(cmd *cobra.Command, sc *session.Config) error {
	changed := cmd.Flags().Changed
	if changed("memory") {
		n, err := helpers.ParseByteSize(f.memory)
		if err != nil {
			return fmt.Errorf("--memory: %w", err)
		}
		sc.MemoryBudget = n
	}
	if changed("no-dedup") {
		sc.Deduplicate = !f.noDedup
	}
	if changed("no-verify") {
		sc.AutoVerify = !f.noVerify
	}
	if changed("temp-dir") {
		sc.TempDir = f.tempDir
	}
	if changed("blacklist") {
		sc.Blacklist = f.blacklist
	}
	if changed("delete-chars") {
		sc.DeleteChars = f.deleteChars
	}
	if changed("workers") {
		sc.Workers = f.workers
	}
	if changed("merge-strategy") {
		sc.MergeStrategy = f.strategy
	}
	if changed("strict-merge") {
		sc.StrictMerge = f.strictMerge
	}
	if changed("allow-low-disk") {
		sc.AllowLowDisk = f.allowLowDisk
	}
	return nil
}

func newSortCmd() *cobra.Command {
	f := &sortFlags{}
	cmd := &cobra.Command{
		Use:   "sort <input> [input...]",
		Short: "Clean, sort, and deduplicate input files into one output",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSort(cmd, args, f, false, func(dedup bool) string {
				return defaultSortOutput(args[0], dedup)
			})
		},
	}
	f.register(cmd, true)
	cmd.Flags().BoolVar(&f.skipClean, "skip-clean", false, "Input is already clean; sort it as is")
	return cmd
}

func newMergeCmd() *cobra.Command {
	f := &sortFlags{}
	cmd := &cobra.Command{
		Use:   "merge <input> <input> [input...]",
		Short: "Merge several files into one sorted, deduplicated output",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSort(cmd, args, f, true, func(bool) string {
				return defaultMergeOutput(time.Now())
			})
		},
	}
	f.register(cmd, false)
	return cmd
}

// newObjectStore builds the client used for s3:// inputs and outputs.
var newObjectStore = func(ctx context.Context, cfg *config.Config) (objectstore.Client, error) {
	return objectstore.NewS3Client(ctx, cfg.S3.Options())
}

// runSort resolves configuration, stages remote inputs, runs the session and
// publishes a remote output. defaultOutput names the output from the
// resolved dedup setting when --output is not given.
func runSort(cmd *cobra.Command, inputs []string, f *sortFlags, forceDedup bool, defaultOutput func(dedup bool) string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	sc, err := cfg.Sort.Session()
	if err != nil {
		return err
	}
	if err := f.apply(cmd, &sc); err != nil {
		return err
	}
	if forceDedup {
		sc.Deduplicate = true
	}

	s, err := session.New(sc)
	if err != nil {
		return err
	}

	dest := f.output
	if dest == "" {
		dest = defaultOutput(sc.Deduplicate)
	}

	var store objectstore.Client
	if needsObjectStore(dest, inputs...) {
		if store, err = newObjectStore(ctx, cfg); err != nil {
			return err
		}
	}

	staged, err := objectstore.StageInputs(ctx, store, sc.TempDir, inputs)
	if err != nil {
		return stagingError(inputs, err)
	}
	defer staged.Cleanup()

	output := dest
	remoteOut := objectstore.IsRemote(output)
	if remoteOut {
		output = filepath.Join(sc.TempDir, "linesort-"+idgen.NewJobID()+".publish")
		defer func() { _ = os.Remove(output) }()
	}

	job := session.Job{
		Inputs:    staged.Inputs,
		Output:    output,
		SkipClean: f.skipClean,
		Force:     f.force || remoteOut,
		Confirm:   confirmer(f.yes, os.Stdin, cmd.ErrOrStderr()),
	}

	sum, err := s.Run(ctx, job)
	if err != nil {
		if errors.Is(err, session.ErrInsufficientDiskSpace) {
			logctx.FromContext(ctx).Info("Use --allow-low-disk or --yes to proceed anyway")
		}
		return err
	}

	if remoteOut {
		if err := objectstore.Publish(ctx, store, output, dest); err != nil {
			return fmt.Errorf("publish output: %w", err)
		}
		sum.Output = dest
	}

	attrs := metric.WithAttributeSet(commonAttributes)
	jobDuration.Record(ctx, sum.Duration.Seconds(), attrs)
	jobLines.Add(ctx, sum.FinalLines, attrs)

	for _, cerr := range sum.Merge.CursorErrors {
		slog.Warn("Chunk lost during merge; output is incomplete", slog.Any("error", cerr))
	}

	printSummary(cmd.OutOrStdout(), sum)
	return nil
}

// stagingError reports a failed download the way the session reports its
// own pre-flight failures, so a missing object matches ErrInputNotFound.
func stagingError(inputs []string, err error) error {
	kind := session.ErrIO
	if errors.Is(err, objectstore.ErrNotFound) {
		kind = session.ErrInputNotFound
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &session.StageError{Stage: session.StagePreflight, Paths: inputs, Err: err}
	}
	return &session.StageError{Stage: session.StagePreflight, Paths: inputs, Err: fmt.Errorf("%w: %w", kind, err)}
}

func needsObjectStore(output string, inputs ...string) bool {
	if objectstore.IsRemote(output) {
		return true
	}
	for _, in := range inputs {
		if objectstore.IsRemote(in) {
			return true
		}
	}
	return false
}
