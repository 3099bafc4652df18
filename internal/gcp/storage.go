package gcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

// NewStorageClient creates a Cloud Storage client using the ambient credentials.
func NewStorageClient(ctx context.Context) (*storage.Client, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return client, nil
}

// ParseGSURI splits a gs://bucket/object URI into bucket and object names.
func ParseGSURI(uri string) (bucket, object string, err error) {
	trimmed := strings.TrimPrefix(uri, "gs://")
	if trimmed == uri {
		return "", "", fmt.Errorf("not a gs:// URI: %q", uri)
	}
	bucket, object, ok := strings.Cut(trimmed, "/")
	if !ok || bucket == "" || object == "" {
		return "", "", fmt.Errorf("malformed gs:// URI: %q", uri)
	}
	return bucket, object, nil
}

// SignObjectURL produces a V4 signed GET URL for the given gs:// URI so the
// console can render photos from a private bucket.
func SignObjectURL(client *storage.Client, gsURI string, ttl time.Duration) (string, error) {
	bucket, object, err := ParseGSURI(gsURI)
	if err != nil {
		return "", err
	}
	url, err := client.Bucket(bucket).SignedURL(object, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(ttl),
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign URL for %s: %w", gsURI, err)
	}
	return url, nil
}
