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

package objectstore

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/cardinalhq/linesort/internal/logctx"
)

// Staged is a set of job paths after remote inputs have been downloaded.
type Staged struct {
	// Inputs are local paths in the original order.
	Inputs []string

	downloaded []string
}

// Cleanup removes downloaded copies. Local inputs are untouched.
func (s *Staged) Cleanup() {
	for _, p := range s.downloaded {
		_ = os.Remove(p)
	}
	s.downloaded = nil
}

// StageInputs downloads every remote input into tmpdir. Local paths pass
// through unchanged. On error nothing downloaded is left behind.
func StageInputs(ctx context.Context, client Client, tmpdir string, inputs []string) (*Staged, error) {
	ll := logctx.FromContext(ctx)
	staged := &Staged{Inputs: make([]string, 0, len(inputs))}

	for _, in := range inputs {
		if !IsRemote(in) {
			staged.Inputs = append(staged.Inputs, in)
			continue
		}
		if client == nil {
			staged.Cleanup()
			return nil, fmt.Errorf("no object store client for %s", in)
		}
		loc, err := ParseURI(in)
		if err != nil {
			staged.Cleanup()
			return nil, err
		}
		local, size, err := client.Download(ctx, tmpdir, loc.Bucket, loc.Key)
		if err != nil {
			staged.Cleanup()
			return nil, err
		}
		ll.Info("Downloaded input",
			slog.String("uri", in),
			slog.String("path", local),
			slog.Int64("bytes", size))
		staged.downloaded = append(staged.downloaded, local)
		staged.Inputs = append(staged.Inputs, local)
	}
	return staged, nil
}

// Publish uploads the local file to the remote destination URI.
func Publish(ctx context.Context, client Client, local, dest string) error {
	loc, err := ParseURI(dest)
	if err != nil {
		return err
	}
	if client == nil {
		return fmt.Errorf("no object store client for %s", dest)
	}
	if err := client.Upload(ctx, loc.Bucket, loc.Key, local); err != nil {
		return err
	}
	logctx.FromContext(ctx).Info("Published output", slog.String("uri", dest))
	return nil
}
