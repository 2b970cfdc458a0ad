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

package chunks

import (
	"fmt"

	"go.opentelemetry.io/otel"
	otelmetric "go.opentelemetry.io/otel/metric"
)

var (
	chunksSpilledCounter otelmetric.Int64Counter
	bytesSpilledCounter  otelmetric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/linesort/internal/chunks")

	var err error
	chunksSpilledCounter, err = meter.Int64Counter(
		"linesort.chunks.spilled",
		otelmetric.WithDescription("Number of sorted chunk files written to disk"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create chunks.spilled counter: %w", err))
	}

	bytesSpilledCounter, err = meter.Int64Counter(
		"linesort.chunks.spilled.bytes",
		otelmetric.WithUnit("By"),
		otelmetric.WithDescription("Line content bytes written to chunk files"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create chunks.spilled.bytes counter: %w", err))
	}
}
