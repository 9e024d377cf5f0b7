// Package docstore provides the DocStore interface for battle JSON
// documents, an in-memory fake for tests, and a PostgreSQL-backed
// production implementation.
package docstore

import (
	"context"

	"github.com/musicarena/fabric/apperrors"
)

// Doc is an opaque JSON-serializable document keyed within a collection.
type Doc = map[string]any

// DocStore persists JSON documents with optimistic concurrency via a
// version counter. The core code never references cloud-vendor specifics.
type DocStore interface {
	// Create inserts doc under (collection, id). Fails with apperrors
	// CodeAlreadyExists if id already exists.
	Create(ctx context.Context, collection, id string, doc Doc) error

	// Get retrieves the document and its current version.
	Get(ctx context.Context, collection, id string) (Doc, int, error)

	// Update applies patch atomically. If the stored version differs from
	// expectedVersion the patch is still applied (last-writer-wins) and
	// apperrors.Conflict is returned; callers should treat this as a
	// warning rather than a retry loop, consistent with the vote-update
	// policy.
	Update(ctx context.Context, collection, id string, patch Doc, expectedVersion int) error
}

func notFound(operation, collection, id string) error {
	return apperrors.NotFound(operation, collection+"/"+id+" not found")
}

func alreadyExists(operation, collection, id string) error {
	return apperrors.AlreadyExists(operation, collection+"/"+id+" already exists")
}
