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

package cleaner

import (
	"fmt"

	"go.opentelemetry.io/otel"
	otelmetric "go.opentelemetry.io/otel/metric"
)

var (
	linesInCounter      otelmetric.Int64Counter
	linesOutCounter     otelmetric.Int64Counter
	linesDroppedCounter otelmetric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/linesort/internal/cleaner")

	var err error
	linesInCounter, err = meter.Int64Counter(
		"linesort.cleaner.lines.in",
		otelmetric.WithDescription("Number of raw lines read by the cleaner"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create lines.in counter: %w", err))
	}

	linesOutCounter, err = meter.Int64Counter(
		"linesort.cleaner.lines.out",
		otelmetric.WithDescription("Number of cleaned lines written by the cleaner"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create lines.out counter: %w", err))
	}

	linesDroppedCounter, err = meter.Int64Counter(
		"linesort.cleaner.lines.dropped",
		otelmetric.WithDescription("Number of lines dropped by the cleaner, by reason"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create lines.dropped counter: %w", err))
	}
}
