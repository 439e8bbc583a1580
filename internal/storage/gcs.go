package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GCSFetcher reads objects from Google Cloud Storage.
type GCSFetcher struct {
	client *gcs.Client
}

// NewGCSFetcher creates a client using application default credentials.
func NewGCSFetcher(ctx context.Context, opts ...option.ClientOption) (*GCSFetcher, error) {
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCSFetcher{client: client}, nil
}

// Fetch downloads gs://bucket/name.
func (f *GCSFetcher) Fetch(ctx context.Context, bucket, name string) ([]byte, error) {
	reader, err := f.client.Bucket(bucket).Object(name).NewReader(ctx)
	if err != nil {
		return nil, classifyGCSError(bucket, name, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: reading gs://%s/%s: %v", ErrFetch, bucket, name, err)
	}
	return data, nil
}

// Close releases the underlying client.
func (f *GCSFetcher) Close() error {
	return f.client.Close()
}

func classifyGCSError(bucket, name string, err error) error {
	if errors.Is(err, gcs.ErrObjectNotExist) || errors.Is(err, gcs.ErrBucketNotExist) {
		return fmt.Errorf("%w: gs://%s/%s", ErrFileNotFound, bucket, name)
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
		return fmt.Errorf("%w: gs://%s/%s", ErrFileNotFound, bucket, name)
	}
	return fmt.Errorf("%w: gs://%s/%s: %v", ErrFetch, bucket, name, err)
}
