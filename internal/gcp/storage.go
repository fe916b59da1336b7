package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
)

// NewStorageClient creates a Cloud Storage client using application default credentials.
func NewStorageClient(ctx context.Context) (*storage.Client, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return client, nil
}

// ObjectStore serves uploads and reads against a single document bucket.
type ObjectStore struct {
	client *storage.Client
	bucket string
	// signerEmail is the service account used for V4 signing when the
	// runtime credentials carry no private key.
	signerEmail string
}

// NewObjectStore returns an ObjectStore for bucket. signerEmail may be empty.
func NewObjectStore(client *storage.Client, bucket, signerEmail string) *ObjectStore {
	return &ObjectStore{client: client, bucket: bucket, signerEmail: signerEmail}
}

// SignedUploadURL returns a V4 signed PUT URL for objectKey. The uploader must
// send the same Content-Type header that was signed.
func (s *ObjectStore) SignedUploadURL(ctx context.Context, objectKey, contentType string, ttl time.Duration) (string, error) {
	opts := &storage.SignedURLOptions{
		Scheme:      storage.SigningSchemeV4,
		Method:      http.MethodPut,
		ContentType: contentType,
		Expires:     time.Now().Add(ttl),
	}
	if s.signerEmail != "" {
		opts.GoogleAccessID = s.signerEmail
	}

	url, err := s.client.Bucket(s.bucket).SignedURL(objectKey, opts)
	if err != nil {
		return "", fmt.Errorf("failed to sign upload URL for %s: %w", objectKey, err)
	}
	return url, nil
}

// Open streams an object. A missing object returns storage.ErrObjectNotExist.
func (s *ObjectStore) Open(ctx context.Context, bucket, objectKey string) (io.ReadCloser, error) {
	r, err := s.client.Bucket(bucket).Object(objectKey).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open gs://%s/%s: %w", bucket, objectKey, err)
	}
	return r, nil
}

func (s *ObjectStore) Exists(ctx context.Context, bucket, objectKey string) (bool, error) {
	_, err := s.client.Bucket(bucket).Object(objectKey).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat gs://%s/%s: %w", bucket, objectKey, err)
	}
	return true, nil
}
