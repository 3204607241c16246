// Package dataset opens and parses the transaction CSV.
package dataset

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/starload/starload/internal/aws"
	"github.com/starload/starload/internal/config"
)

// OpenOptions configures how a dataset location is opened.
type OpenOptions struct {
	// S3 serves s3:// locations. Required only for those.
	S3          aws.Client
	HTTPRetries int
	HTTPTimeout time.Duration
	Logger      *slog.Logger
}

// Open returns a reader for a local path, an s3://bucket/key URI or an
// http(s) URL. The caller closes it.
func Open(ctx context.Context, location string, opts OpenOptions) (io.ReadCloser, error) {
	switch {
	case aws.IsS3URI(location):
		if opts.S3 == nil {
			return nil, fmt.Errorf("opening %s: no AWS client configured", location)
		}
		bucket, key, err := aws.ParseS3URI(location)
		if err != nil {
			return nil, err
		}
		return opts.S3.DownloadFromS3(ctx, bucket, key)
	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		return openHTTP(ctx, location, opts)
	default:
		f, err := os.Open(config.ExpandHome(location))
		if err != nil {
			return nil, fmt.Errorf("opening dataset: %w", err)
		}
		return f, nil
	}
}

func openHTTP(ctx context.Context, url string, opts OpenOptions) (io.ReadCloser, error) {
	client := retryablehttp.NewClient()
	client.RetryMax = opts.HTTPRetries
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 10 * time.Second
	if opts.HTTPTimeout > 0 {
		client.HTTPClient.Timeout = opts.HTTPTimeout
	}
	if opts.Logger != nil {
		client.Logger = opts.Logger
	} else {
		client.Logger = nil
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", url, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("downloading %s: unexpected status %s", url, resp.Status)
	}
	return resp.Body, nil
}
