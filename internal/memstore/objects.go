package memstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"cloud.google.com/go/storage"
)

// ObjectFunc receives a bucket and key after an object is stored.
type ObjectFunc func(bucket, key string)

// ObjectStore is an in-memory single-bucket object store.
type ObjectStore struct {
	bucket    string
	mu        sync.Mutex
	objects   map[string][]byte
	listeners []ObjectFunc
}

// NewObjectStore returns an empty store for bucket.
func NewObjectStore(bucket string) *ObjectStore {
	return &ObjectStore{bucket: bucket, objects: make(map[string][]byte)}
}

// Bucket is the name events are reported under.
func (s *ObjectStore) Bucket() string {
	return s.bucket
}

// Subscribe registers fn for every subsequent Put.
func (s *ObjectStore) Subscribe(fn ObjectFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Put stores data under key and notifies listeners, as a client PUT to the
// signed URL followed by the finalize event would.
func (s *ObjectStore) Put(key string, data []byte) {
	s.mu.Lock()
	s.objects[key] = append([]byte(nil), data...)
	listeners := append([]ObjectFunc(nil), s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(s.bucket, key)
	}
}

func (s *ObjectStore) SignedUploadURL(ctx context.Context, objectKey, contentType string, ttl time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	q := url.Values{}
	q.Set("contentType", contentType)
	q.Set("expires", ttl.String())
	return fmt.Sprintf("https://storage.example.test/%s/%s?%s", s.bucket, url.PathEscape(objectKey), q.Encode()), nil
}

func (s *ObjectStore) Open(ctx context.Context, bucket, objectKey string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[objectKey]
	if bucket != s.bucket || !ok {
		return nil, storage.ErrObjectNotExist
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *ObjectStore) Exists(ctx context.Context, bucket, objectKey string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[objectKey]
	return bucket == s.bucket && ok, nil
}
