package docstore

import (
	"context"
	"sync"

	"github.com/musicarena/fabric/apperrors"
)

type record struct {
	doc     Doc
	version int
}

// InMemory is a DocStore backed by a nested map, guarded by a mutex. Not
// persistent; intended for tests and local development.
type InMemory struct {
	mu   sync.Mutex
	data map[string]map[string]record
}

// NewInMemory creates an empty in-memory DocStore.
func NewInMemory() *InMemory {
	return &InMemory{data: make(map[string]map[string]record)}
}

// Create inserts doc under (collection, id).
func (s *InMemory) Create(ctx context.Context, collection, id string, doc Doc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll, ok := s.data[collection]
	if !ok {
		coll = make(map[string]record)
		s.data[collection] = coll
	}
	if _, exists := coll[id]; exists {
		return alreadyExists("docstore.Create", collection, id)
	}
	coll[id] = record{doc: cloneDoc(doc), version: 1}
	return nil
}

// Get retrieves the document and its current version.
func (s *InMemory) Get(ctx context.Context, collection, id string) (Doc, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll, ok := s.data[collection]
	if !ok {
		return nil, 0, notFound("docstore.Get", collection, id)
	}
	rec, ok := coll[id]
	if !ok {
		return nil, 0, notFound("docstore.Get", collection, id)
	}
	return cloneDoc(rec.doc), rec.version, nil
}

// Update applies patch atomically if the stored version equals
// expectedVersion; on mismatch it applies last-writer-wins and returns
// apperrors.Conflict rather than failing outright, matching the
// near-zero-conflict vote-update policy.
func (s *InMemory) Update(ctx context.Context, collection, id string, patch Doc, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll, ok := s.data[collection]
	if !ok {
		return notFound("docstore.Update", collection, id)
	}
	rec, ok := coll[id]
	if !ok {
		return notFound("docstore.Update", collection, id)
	}

	merged := cloneDoc(rec.doc)
	for k, v := range patch {
		merged[k] = v
	}
	coll[id] = record{doc: merged, version: rec.version + 1}

	if rec.version != expectedVersion {
		return apperrors.Conflict("docstore.Update", "version mismatch resolved by last-writer-wins")
	}
	return nil
}

func cloneDoc(d Doc) Doc {
	out := make(Doc, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

var _ DocStore = (*InMemory)(nil)
