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
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/cardinalhq/linesort/internal/cleaner"
	"github.com/cardinalhq/linesort/internal/helpers"
	"github.com/cardinalhq/linesort/internal/session"
)

func printSummary(w io.Writer, sum session.Summary) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	row := func(k string, v any) { _, _ = fmt.Fprintf(tw, "%s\t%v\n", k, v) }

	row("Output", sum.Output)
	if sum.Skipped {
		row("Status", "already sorted, nothing to do")
		row("Lines", humanize.Comma(sum.FinalLines))
		row("Digest", fmt.Sprintf("%016x", sum.Report.Digest))
		_ = tw.Flush()
		return
	}

	if sum.Cleaning.LinesIn > 0 {
		row("Initial lines", humanize.Comma(sum.Cleaning.LinesIn))
		row("Empty removed", humanize.Comma(sum.Cleaning.Empty))
		row("Blacklisted removed", humanize.Comma(sum.Cleaning.Blacklisted))
		row("Cleaned lines", humanize.Comma(sum.Cleaning.LinesOut))
	}
	row("Chunks", sum.Chunks)
	row("Duplicates removed", humanize.Comma(sum.Merge.Duplicates))
	row("Final lines", humanize.Comma(sum.FinalLines))
	row("Input size", helpers.FormatBytes(sum.InputBytes))
	row("Output size", helpers.FormatBytes(sum.OutputBytes))
	if sum.Verified {
		row("Verified", "sorted")
		row("Digest", fmt.Sprintf("%016x", sum.Report.Digest))
	}
	if sum.ReSorted {
		row("Re-sorted", "yes")
	}
	if n := len(sum.Merge.CursorErrors); n > 0 {
		row("Failed chunks", n)
	}
	row("Duration", sum.Duration.Round(1e6))
	row("Lines/sec", humanize.CommafWithDigits(sum.LinesPerSecond(), 0))
	_ = tw.Flush()
}

func printCleanCounts(w io.Writer, output string, c cleaner.Counts) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "Output\t%s\n", output)
	_, _ = fmt.Fprintf(tw, "Initial lines\t%s\n", humanize.Comma(c.LinesIn))
	_, _ = fmt.Fprintf(tw, "Empty removed\t%s\n", humanize.Comma(c.Empty))
	_, _ = fmt.Fprintf(tw, "Blacklisted removed\t%s\n", humanize.Comma(c.Blacklisted))
	_, _ = fmt.Fprintf(tw, "Cleaned lines\t%s\n", humanize.Comma(c.LinesOut))
	_ = tw.Flush()
}
