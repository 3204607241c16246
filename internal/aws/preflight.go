package aws

import (
	"context"
	"fmt"
)

// PreflightResult holds the outcome of an AWS readiness check.
type PreflightResult struct {
	Identity        *CallerIdentity `yaml:"identity,omitempty"`
	DatasetReadable bool            `yaml:"dataset_readable"`
	Errors          []string        `yaml:"errors,omitempty"`
}

// OK reports whether every check passed.
func (r *PreflightResult) OK() bool {
	return len(r.Errors) == 0
}

// RunPreflight verifies credentials and, when datasetURI is an s3:// URI,
// that the dataset object exists. Check failures are collected in the
// result; only a malformed URI is returned as an error.
func RunPreflight(ctx context.Context, client Client, datasetURI string) (*PreflightResult, error) {
	result := &PreflightResult{DatasetReadable: true}

	identity, err := client.VerifyCredentials(ctx)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("AWS credentials are not usable: %v", err))
		result.DatasetReadable = false
		return result, nil
	}
	result.Identity = identity

	if !IsS3URI(datasetURI) {
		return result, nil
	}

	bucket, key, err := ParseS3URI(datasetURI)
	if err != nil {
		return nil, err
	}
	exists, err := client.ObjectExists(ctx, bucket, key)
	if err != nil {
		result.DatasetReadable = false
		result.Errors = append(result.Errors, err.Error())
		return result, nil
	}
	if !exists {
		result.DatasetReadable = false
		result.Errors = append(result.Errors, fmt.Sprintf("dataset %s does not exist", datasetURI))
	}
	return result, nil
}
