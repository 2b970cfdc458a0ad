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

package verify

import (
	"fmt"

	"go.opentelemetry.io/otel"
	otelmetric "go.opentelemetry.io/otel/metric"
)

var (
	verifiedCounter  otelmetric.Int64Counter
	violationCounter otelmetric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/linesort/internal/verify")

	var err error
	verifiedCounter, err = meter.Int64Counter(
		"linesort.verify.sorted",
		otelmetric.WithDescription("Number of verification passes that found the file sorted"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create verify.sorted counter: %w", err))
	}

	violationCounter, err = meter.Int64Counter(
		"linesort.verify.violations",
		otelmetric.WithDescription("Number of verification passes that found the file out of order"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create verify.violations counter: %w", err))
	}
}
