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
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/cardinalhq/linesort/internal/verify"
)

var errNotSorted = errors.New("file is not sorted")

func newVerifyCmd() *cobra.Command {
	var (
		maxLines int64
		strict   bool
	)
	cmd := &cobra.Command{
		Use:   "verify <file>",
		Short: "Check that a file is sorted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if maxLines < 0 {
				return fmt.Errorf("--max-lines must not be negative, got %d", maxLines)
			}
			rep, err := verify.Verify(cmd.Context(), args[0], verify.Options{MaxLines: maxLines, Strict: strict})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !rep.Sorted {
				_, _ = fmt.Fprintf(out, "%s: not sorted, first violation at line %s\n",
					args[0], humanize.Comma(rep.FirstViolation))
				return errNotSorted
			}
			_, _ = fmt.Fprintf(out, "%s: sorted, %s lines checked, digest %016x\n",
				args[0], humanize.Comma(rep.LinesChecked), rep.Digest)
			return nil
		},
	}
	cmd.Flags().Int64Var(&maxLines, "max-lines", 0, "Stop after this many lines (0 checks the whole file)")
	cmd.Flags().BoolVar(&strict, "strict", false, "Also reject equal adjacent lines")
	return cmd
}
