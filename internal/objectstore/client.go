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

// Package objectstore moves job inputs and outputs between object storage
// and the local filesystem, so that remote files can be sorted like local ones.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrNotFound is returned when a remote object does not exist.
var ErrNotFound = errors.New("object not found")

// Client transfers whole objects.
type Client interface {
	// Download copies bucket/key into a new file under tmpdir and returns its
	// name and size. A missing object returns ErrNotFound.
	Download(ctx context.Context, tmpdir, bucket, key string) (filename string, size int64, err error)

	// Upload copies the local file to bucket/key, replacing any existing object.
	Upload(ctx context.Context, bucket, key, sourceFilename string) error
}

// Location is a parsed object URI.
type Location struct {
	Scheme string
	Bucket string
	Key    string
}

func (l Location) String() string {
	return l.Scheme + "://" + l.Bucket + "/" + l.Key
}

// IsRemote reports whether path names an object rather than a local file.
func IsRemote(path string) bool {
	return strings.HasPrefix(path, "s3://")
}

// ParseURI splits an s3://bucket/key URI.
func ParseURI(raw string) (Location, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, fmt.Errorf("parse object uri %q: %w", raw, err)
	}
	if u.Scheme != "s3" {
		return Location{}, fmt.Errorf("unsupported object uri scheme %q", u.Scheme)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return Location{}, fmt.Errorf("object uri %q needs both bucket and key", raw)
	}
	return Location{Scheme: u.Scheme, Bucket: u.Host, Key: key}, nil
}
