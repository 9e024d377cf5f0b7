// Package blobstore provides the BlobStore interface for content-addressed
// audio bytes, an in-memory fake for tests, and an S3-backed production
// implementation.
package blobstore

import (
	"context"
	"sync"

	"github.com/musicarena/fabric/apperrors"
)

// BlobStore persists audio bytes under an opaque key and returns a URI the
// caller can later use to fetch them. No ordering guarantees are made
// between concurrent writers.
type BlobStore interface {
	// Put stores bytes under key with the given content type and returns a URI.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)

	// Get retrieves the bytes stored under key.
	Get(ctx context.Context, key string) ([]byte, error)
}

// InMemory is a BlobStore backed by a map, guarded by a mutex. Not
// persistent; intended for tests and local development.
type InMemory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewInMemory creates an empty in-memory BlobStore.
func NewInMemory() *InMemory {
	return &InMemory{data: make(map[string][]byte)}
}

// Put stores data under key and returns a "mem://" URI.
func (s *InMemory) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if key == "" {
		return "", apperrors.Validation("blobstore.Put", "key must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.data[key] = cp
	return "mem://" + key, nil
}

// Get retrieves the bytes stored under key.
func (s *InMemory) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[key]
	if !ok {
		return nil, apperrors.NotFound("blobstore.Get", "key "+key+" not found")
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

var _ BlobStore = (*InMemory)(nil)
