package aws

import (
	"bytes"
	"context"
	"fmt"
	"io"
)

// MockClient is a test double for the Client interface.
type MockClient struct {
	Identity      *CallerIdentity
	IdentityErr   error
	DownloadErr   error
	UploadErr     error
	UploadFileErr error

	// Objects maps bucket/key to object content.
	Objects map[string][]byte

	// Track calls
	UploadedObjects map[string][]byte // bucket/key → data
	UploadedFiles   map[string]string // bucket/key → local path
}

// NewMockClient creates a new MockClient with default values.
func NewMockClient() *MockClient {
	return &MockClient{
		Identity: &CallerIdentity{
			Account: "123456789012",
			ARN:     "arn:aws:iam::123456789012:user/test",
			UserID:  "AIDA12345",
		},
		Objects:         make(map[string][]byte),
		UploadedObjects: make(map[string][]byte),
		UploadedFiles:   make(map[string]string),
	}
}

func (m *MockClient) VerifyCredentials(_ context.Context) (*CallerIdentity, error) {
	return m.Identity, m.IdentityErr
}

func (m *MockClient) ObjectExists(_ context.Context, bucket, key string) (bool, error) {
	_, ok := m.Objects[bucket+"/"+key]
	return ok, nil
}

func (m *MockClient) DownloadFromS3(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	if m.DownloadErr != nil {
		return nil, m.DownloadErr
	}
	data, ok := m.Objects[bucket+"/"+key]
	if !ok {
		return nil, fmt.Errorf("downloading s3://%s/%s: NoSuchKey", bucket, key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *MockClient) UploadToS3(_ context.Context, bucket, key string, data []byte) error {
	if m.UploadErr != nil {
		return m.UploadErr
	}
	m.UploadedObjects[bucket+"/"+key] = data
	return nil
}

func (m *MockClient) UploadFileToS3(_ context.Context, bucket, key, localPath string) error {
	if m.UploadFileErr != nil {
		return m.UploadFileErr
	}
	m.UploadedFiles[bucket+"/"+key] = localPath
	return nil
}
