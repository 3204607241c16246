package aws

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Client defines the AWS operations starload needs: reading datasets from S3
// and publishing load reports.
type Client interface {
	VerifyCredentials(ctx context.Context) (*CallerIdentity, error)
	ObjectExists(ctx context.Context, bucket, key string) (bool, error)
	DownloadFromS3(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	UploadToS3(ctx context.Context, bucket, key string, data []byte) error
	UploadFileToS3(ctx context.Context, bucket, key, localPath string) error
}

// CallerIdentity holds AWS STS caller identity information.
type CallerIdentity struct {
	Account string
	ARN     string
	UserID  string
}

// ParseS3URI splits s3://bucket/key into bucket and key.
func ParseS3URI(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an s3 URI: %q", uri)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 URI %q must name a bucket and a key", uri)
	}
	return bucket, key, nil
}

// IsS3URI reports whether location points into S3.
func IsS3URI(location string) bool {
	return strings.HasPrefix(location, "s3://")
}
