// Package archive stores run summaries in object storage for later review.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/okian/talentsync/internal/domain/types"
	"github.com/okian/talentsync/pkg/metrics"
)

// Archiver persists a run summary and returns where it went.
type Archiver interface {
	Archive(ctx context.Context, summary types.Summary) (string, error)
}

// Noop discards summaries.
type Noop struct{}

// Archive implements Archiver.
func (Noop) Archive(context.Context, types.Summary) (string, error) { return "", nil }

// putter is the slice of the S3 API the archiver needs.
type putter interface {
	PutObjectWithContext(ctx aws.Context, input *s3.PutObjectInput, opts ...request.Option) (*s3.PutObjectOutput, error)
}

// S3Config describes an S3-compatible bucket. Endpoint is optional and
// enables path-style addressing for non-AWS providers.
type S3Config struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// S3Archiver uploads summaries as JSON objects.
type S3Archiver struct {
	client putter
	bucket string
	prefix string
}

// NewS3Archiver builds an archiver from cfg. Static credentials are used
// when both keys are set, otherwise the default AWS credential chain.
func NewS3Archiver(cfg S3Config) (*S3Archiver, error) {
	if cfg.Bucket == "" {
		return nil, ErrNoBucket
	}
	awsCfg := &aws.Config{
		Region: aws.String(cfg.Region),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("create aws session: %w", err)
	}
	return newS3Archiver(s3.New(sess), cfg.Bucket, cfg.Prefix), nil
}

func newS3Archiver(client putter, bucket, prefix string) *S3Archiver {
	return &S3Archiver{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

// Archive implements Archiver.
func (a *S3Archiver) Archive(ctx context.Context, summary types.Summary) (string, error) {
	body, err := json.MarshalIndent(summaryDocument(summary), "", "  ")
	if err != nil {
		metrics.RecordArchiveUpload("error")
		return "", fmt.Errorf("encode summary: %w", err)
	}
	key := ObjectKey(a.prefix, summary.Timestamp)

	_, err = a.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		metrics.RecordArchiveUpload("error")
		return "", fmt.Errorf("%w: %s: %w", ErrUpload, key, err)
	}
	metrics.RecordArchiveUpload("ok")
	return key, nil
}

// ObjectKey returns <prefix>/<yyyy>/<mm>/<timestamp>.json for ts in UTC.
func ObjectKey(prefix string, ts time.Time) string {
	ts = ts.UTC()
	name := ts.Format("20060102T150405.000000000Z") + ".json"
	return path.Join(prefix, ts.Format("2006"), ts.Format("01"), name)
}

type document struct {
	types.Summary
	Counts map[types.ItemStatus]int `json:"counts"`
}

func summaryDocument(s types.Summary) document {
	return document{Summary: s, Counts: s.Counts()}
}
