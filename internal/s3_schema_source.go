package internal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"
)

// S3API is the subset of the S3 client used to read content-type documents.
type S3API interface {
	s3.ListObjectsV2APIClient
	manager.DownloadAPIClient
}

// S3SchemaSource reads *.json content-type documents under a bucket prefix.
type S3SchemaSource struct {
	client S3API
	bucket string
	prefix string
}

// NewS3SchemaSource creates a source for bucket/prefix.
func NewS3SchemaSource(client S3API, bucket, prefix string) *S3SchemaSource {
	return &S3SchemaSource{client: client, bucket: bucket, prefix: prefix}
}

// Fetch lists the prefix and downloads every document. Objects removed
// between listing and download are skipped.
func (s *S3SchemaSource) Fetch(ctx context.Context) (map[string][]byte, error) {
	docs := make(map[string][]byte)
	downloader := manager.NewDownloader(s.client)
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			if apiErrorCode(err) == "NoSuchBucket" {
				return nil, fmt.Errorf("schema bucket %s does not exist: %w", s.bucket, err)
			}
			return nil, fmt.Errorf("failed to list s3://%s/%s: %w", s.bucket, s.prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(key, ".json") {
				continue
			}
			buf := manager.NewWriteAtBuffer(make([]byte, 0, aws.ToInt64(obj.Size)))
			if _, err := downloader.Download(ctx, buf, &s3.GetObjectInput{
				Bucket: aws.String(s.bucket),
				Key:    aws.String(key),
			}); err != nil {
				if apiErrorCode(err) == "NoSuchKey" {
					zap.S().Warnw("content type document vanished during sync", "bucket", s.bucket, "key", key)
					continue
				}
				return nil, fmt.Errorf("failed to download s3://%s/%s: %w", s.bucket, key, err)
			}
			docs[strings.TrimPrefix(key, s.prefix)] = buf.Bytes()
		}
	}

	zap.S().Infow("fetched content type documents from s3", "bucket", s.bucket, "prefix", s.prefix, "count", len(docs))
	return docs, nil
}

// Sync downloads the documents into dir, keeping their relative layout.
// It returns the number of files written.
func (s *S3SchemaSource) Sync(ctx context.Context, dir string) (int, error) {
	docs, err := s.Fetch(ctx)
	if err != nil {
		return 0, err
	}
	written := 0
	for name, data := range docs {
		rel := path.Clean("/" + name)[1:]
		if rel == "" {
			continue
		}
		target := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return written, fmt.Errorf("failed to create %s: %w", filepath.Dir(target), err)
		}
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return written, fmt.Errorf("failed to write %s: %w", target, err)
		}
		written++
	}
	zap.S().Infow("synced content type documents", "dir", dir, "files", written)
	return written, nil
}

func apiErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}
