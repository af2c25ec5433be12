package coldstore

import (
	"context"
	"fmt"
	"sync"

	"cloud.google.com/go/storage"
)

// ObjectStore persists encoded record blobs under a storage path.
//
// Implementations:
//   - GCSStore: Google Cloud Storage backend
//   - MemoryStore: in-memory store for tests
type ObjectStore interface {
	// Put writes one blob. Put must be safe for concurrent use; paths are
	// unique per event so writers never contend on an object.
	Put(ctx context.Context, path, contentType string, data []byte) error
}

// GCSStore writes blobs to a Google Cloud Storage bucket.
type GCSStore struct {
	bucket *storage.BucketHandle
}

// NewGCSStore creates an object store over the named bucket.
func NewGCSStore(client *storage.Client, bucket string) *GCSStore {
	return &GCSStore{bucket: client.Bucket(bucket)}
}

// Put implements ObjectStore.
func (s *GCSStore) Put(ctx context.Context, path, contentType string, data []byte) error {
	w := s.bucket.Object(path).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("gcs write %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs close %s: %w", path, err)
	}
	return nil
}

// MemoryStore is an in-memory ObjectStore for tests.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

// NewMemoryStore creates an empty in-memory object store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string][]byte),
		types:   make(map[string]string),
	}
}

// Put implements ObjectStore.
func (s *MemoryStore) Put(ctx context.Context, path, contentType string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[path] = append([]byte(nil), data...)
	s.types[path] = contentType
	return nil
}

// Get returns a stored blob.
func (s *MemoryStore) Get(path string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[path]
	return data, ok
}

// Paths returns all stored object paths.
func (s *MemoryStore) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	paths := make([]string, 0, len(s.objects))
	for p := range s.objects {
		paths = append(paths, p)
	}
	return paths
}
