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
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/linesort/config"
	"github.com/cardinalhq/linesort/internal/debugging"
)

const servicename = "linesort"

var telemetryShutdown func() error

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "linesort",
	Short: "Sort and deduplicate very large line-oriented text files",
	Long: `Sort and deduplicate newline-delimited text files larger than memory.
Input is cleaned, split into sorted chunks that fit the memory budget,
merged back into one sorted file, and verified.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		doneCtx, doneFx, err := setupTelemetry(cmd.Context(), servicename)
		if err != nil {
			return fmt.Errorf("failed to setup telemetry: %w", err)
		}
		telemetryShutdown = doneFx
		cmd.SetContext(doneCtx)

		if cfg, err := config.Load(); err == nil {
			debugging.RunPprof(doneCtx, cfg.Diagnostics.PprofPort)
		}
		return nil
	},
	PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
		shutdownTelemetry()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(newSortCmd())
	rootCmd.AddCommand(newMergeCmd())
	rootCmd.AddCommand(newCleanCmd())
	rootCmd.AddCommand(newVerifyCmd())
}

func shutdownTelemetry() {
	if telemetryShutdown == nil {
		return
	}
	if err := telemetryShutdown(); err != nil {
		slog.Error("Error shutting down telemetry", slog.Any("error", err))
	}
	telemetryShutdown = nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		// PersistentPostRunE does not run after a failed RunE.
		shutdownTelemetry()
		os.Exit(1)
	}
}
