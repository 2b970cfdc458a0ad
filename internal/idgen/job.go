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

package idgen

import (
	crand "crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	jobEntropyMu sync.Mutex
	jobEntropy   = ulid.Monotonic(crand.Reader, 0)
)

// NewJobID returns a lowercase ULID. Ids sort by creation time and are safe
// to embed in file names, which is how temp files from concurrent jobs are
// kept apart.
func NewJobID() string {
	return newJobIDAt(time.Now())
}

func newJobIDAt(t time.Time) string {
	jobEntropyMu.Lock()
	defer jobEntropyMu.Unlock()
	return strings.ToLower(ulid.MustNew(ulid.Timestamp(t), jobEntropy).String())
}
