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
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/linesort/config"
	"github.com/cardinalhq/linesort/internal/cleaner"
)

func newCleanCmd() *cobra.Command {
	var (
		output      string
		blacklist   string
		deleteChars string
	)
	cmd := &cobra.Command{
		Use:   "clean <input> [input...]",
		Short: "Trim lines and drop empty or blacklisted ones without sorting",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if !cmd.Flags().Changed("blacklist") {
				blacklist = cfg.Sort.Blacklist
			}
			if !cmd.Flags().Changed("delete-chars") {
				deleteChars = cfg.Sort.DeleteChars
			}
			if output == "" {
				output = defaultCleanOutput(args[0], time.Now())
			}

			counts, err := cleaner.Clean(cmd.Context(), args, output, cleaner.Options{
				Blacklist:   cleaner.RuneSet(blacklist),
				DeleteChars: cleaner.RuneSet(deleteChars),
			})
			if err != nil {
				if !errors.Is(err, cleaner.ErrOutputIsInput) {
					_ = os.Remove(output)
				}
				return err
			}
			printCleanCounts(cmd.OutOrStdout(), output, counts)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file path")
	cmd.Flags().StringVar(&blacklist, "blacklist", "", "Drop lines containing any of these characters")
	cmd.Flags().StringVar(&deleteChars, "delete-chars", "", "Remove these characters from every line")
	return cmd
}
