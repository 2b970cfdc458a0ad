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
	"fmt"

	"go.opentelemetry.io/otel"
	otelmetric "go.opentelemetry.io/otel/metric"
)

var (
	tracer = otel.Tracer("github.com/cardinalhq/linesort/internal/session")

	runCounter     otelmetric.Int64Counter
	resortCounter  otelmetric.Int64Counter
	lowDiskCounter otelmetric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/linesort/internal/session")

	var err error
	runCounter, err = meter.Int64Counter(
		"linesort.session.runs",
		otelmetric.WithDescription("Number of sort jobs run, by outcome"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create session.runs counter: %w", err))
	}

	resortCounter, err = meter.Int64Counter(
		"linesort.session.resorts",
		otelmetric.WithDescription("Number of times an unsorted output was re-sorted"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create session.resorts counter: %w", err))
	}

	lowDiskCounter, err = meter.Int64Counter(
		"linesort.session.low_disk",
		otelmetric.WithDescription("Number of jobs refused by the disk space check"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create session.low_disk counter: %w", err))
	}
}
