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
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/cardinalhq/linesort/internal/helpers"
)

// confirmer returns the low-disk confirmation callback for a job. With
// --yes every prompt is accepted. Without a terminal there is nobody to ask
// and nil is returned, which makes the disk check fatal.
func confirmer(yes bool, in *os.File, out io.Writer) func(need, free uint64) bool {
	if yes {
		return func(uint64, uint64) bool { return true }
	}
	if in == nil || !term.IsTerminal(int(in.Fd())) {
		return nil
	}
	return func(need, free uint64) bool {
		return promptLowDisk(in, out, need, free)
	}
}

func promptLowDisk(in io.Reader, out io.Writer, need, free uint64) bool {
	_, _ = fmt.Fprintf(out, "Low disk space: need about %s, %s free. Continue? [y/N] ",
		helpers.FormatBytes(int64(min(need, math.MaxInt64))),
		helpers.FormatBytes(int64(min(free, math.MaxInt64))))
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && answer == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
