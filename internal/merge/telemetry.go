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

package merge

import (
	"fmt"

	"go.opentelemetry.io/otel"
	otelmetric "go.opentelemetry.io/otel/metric"
)

var (
	linesMergedCounter   otelmetric.Int64Counter
	duplicatesCounter    otelmetric.Int64Counter
	cursorFailureCounter otelmetric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/linesort/internal/merge")

	var err error
	linesMergedCounter, err = meter.Int64Counter(
		"linesort.merge.lines.written",
		otelmetric.WithDescription("Number of records written by the k-way merge"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create merge.lines.written counter: %w", err))
	}

	duplicatesCounter, err = meter.Int64Counter(
		"linesort.merge.duplicates",
		otelmetric.WithDescription("Number of duplicate records collapsed by the merge"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create merge.duplicates counter: %w", err))
	}

	cursorFailureCounter, err = meter.Int64Counter(
		"linesort.merge.cursor.failures",
		otelmetric.WithDescription("Number of chunks that failed to open or read during a merge"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create merge.cursor.failures counter: %w", err))
	}
}
