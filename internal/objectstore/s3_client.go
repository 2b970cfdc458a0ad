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
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// S3Options configures the S3 client. Zero values use the SDK defaults
// from the environment.
type S3Options struct {
	Region       string
	Endpoint     string
	RoleARN      string
	UsePathStyle bool
	InsecureTLS  bool
}

// S3Client moves objects with the S3 transfer manager, which splits large
// files into concurrent part transfers.
type S3Client struct {
	client *s3.Client
}

var _ Client = (*S3Client)(nil)

// NewS3Client loads the default AWS config and applies opts.
func NewS3Client(ctx context.Context, opts S3Options) (*S3Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	otelaws.AppendMiddlewares(&cfg.APIOptions)

	if opts.Region != "" {
		cfg.Region = opts.Region
	}
	if opts.RoleARN != "" {
		p := stscreds.NewAssumeRoleProvider(sts.NewFromConfig(cfg), opts.RoleARN, func(o *stscreds.AssumeRoleOptions) {
			o.RoleSessionName = "linesort"
		})
		cfg.Credentials = aws.NewCredentialsCache(p)
	}
	if opts.InsecureTLS {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		cfg.HTTPClient = &http.Client{Transport: tr}
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	})
	return &S3Client{client: client}, nil
}

func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound"
}

func (c *S3Client) Download(ctx context.Context, tmpdir, bucket, key string) (string, int64, error) {
	ctx, span := tracer.Start(ctx, "objectstore.download",
		trace.WithAttributes(
			attribute.String("bucket", bucket),
			attribute.String("key", key),
		))
	defer span.End()

	f, err := os.CreateTemp(tmpdir, "*-"+filepath.Base(key))
	if err != nil {
		return "", 0, fmt.Errorf("create temp file: %w", err)
	}

	size, err := manager.NewDownloader(c.client).Download(ctx, f, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(f.Name())
		span.RecordError(err)
		if isNotFound(err) {
			downloadErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "not_found")))
			return "", 0, fmt.Errorf("%s/%s: %w", bucket, key, ErrNotFound)
		}
		downloadErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "unknown")))
		return "", 0, fmt.Errorf("download %s/%s: %w", bucket, key, err)
	}

	downloadBytes.Add(ctx, size)
	return f.Name(), size, nil
}

func (c *S3Client) Upload(ctx context.Context, bucket, key, sourceFilename string) error {
	ctx, span := tracer.Start(ctx, "objectstore.upload",
		trace.WithAttributes(
			attribute.String("bucket", bucket),
			attribute.String("key", key),
		))
	defer span.End()

	f, err := os.Open(sourceFilename)
	if err != nil {
		return fmt.Errorf("open %s: %w", sourceFilename, err)
	}
	defer func() { _ = f.Close() }()

	stat, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", sourceFilename, err)
	}

	_, err = manager.NewUploader(c.client).Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("text/plain; charset=utf-8"),
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("upload %s to %s/%s: %w", sourceFilename, bucket, key, err)
	}

	uploadBytes.Add(ctx, stat.Size())
	return nil
}
