package aws

import (
	"context"
	"fmt"
	"path"
	"strings"
)

// ReportUploader publishes load reports to S3 under prefix/run-id/.
type ReportUploader struct {
	client Client
	bucket string
	prefix string
}

// NewReportUploader creates a new report uploader.
func NewReportUploader(client Client, bucket, prefix string) *ReportUploader {
	return &ReportUploader{
		client: client,
		bucket: bucket,
		prefix: prefix,
	}
}

// ReportSet holds the report files to upload. Empty paths are skipped.
type ReportSet struct {
	RunID    string
	JSONPath string
	TextPath string
}

// UploadResult holds the S3 URIs of uploaded reports.
type UploadResult struct {
	JSONS3URI string
	TextS3URI string
}

// UploadReports uploads one run's report files.
func (u *ReportUploader) UploadReports(ctx context.Context, set ReportSet) (*UploadResult, error) {
	result := &UploadResult{}
	dir := path.Join(u.prefix, set.RunID)

	if set.JSONPath != "" {
		key := path.Join(dir, "report.json")
		if err := u.client.UploadFileToS3(ctx, u.bucket, key, set.JSONPath); err != nil {
			return nil, fmt.Errorf("uploading JSON report: %w", err)
		}
		result.JSONS3URI = fmt.Sprintf("s3://%s/%s", u.bucket, key)
	}

	if set.TextPath != "" {
		key := path.Join(dir, "report.txt")
		if err := u.client.UploadFileToS3(ctx, u.bucket, key, set.TextPath); err != nil {
			return nil, fmt.Errorf("uploading text report: %w", err)
		}
		result.TextS3URI = fmt.Sprintf("s3://%s/%s", u.bucket, key)
	}

	return result, nil
}

func contentType(key string) string {
	switch {
	case strings.HasSuffix(key, ".json"):
		return "application/json"
	case strings.HasSuffix(key, ".csv"):
		return "text/csv"
	default:
		return "text/plain"
	}
}
