// Package store abstracts the document collection that imports reconcile
// against. The contract is intentionally small: exact-match point queries on
// indexed fields scoped to a company, and bounded atomic write groups. Any
// backend with those two capabilities can sit behind it; the production
// implementation is DynamoDB and tests run against the in-memory one.
package store

import (
	"context"
	"errors"
)

var (
	// ErrUnindexedField is returned when a point query targets a field the
	// backend has no exact-match index for.
	ErrUnindexedField = errors.New("field is not indexed for exact-match queries")

	// ErrGroupTooLarge is returned on commit when a group exceeds the
	// backend's atomic write limit.
	ErrGroupTooLarge = errors.New("commit group exceeds backend operation limit")

	// ErrDocumentNotFound is returned when an update targets a document
	// that does not exist.
	ErrDocumentNotFound = errors.New("document not found")
)

// Document is the wire shape of a stored record. Values are JSON-compatible.
type Document map[string]interface{}

// Ref identifies a document within a company scope. Refs for existing
// records come back from QueryByField; refs for new records carry a freshly
// generated ID.
type Ref struct {
	Collection string
	ID         string
}

// serverTimestamp is a sentinel replaced with the commit-time UTC timestamp
// by the backend, so every operation in a group shares one write time.
type serverTimestamp struct{}

// ServerTimestamp marks a Document field to be assigned at commit time.
var ServerTimestamp = serverTimestamp{}

// Store is the remote collection contract used by the import pipeline.
type Store interface {
	// QueryByField returns refs of documents in companyID/collection whose
	// field exactly equals value. Implementations return matches in a
	// stable order; callers use the first.
	QueryByField(ctx context.Context, companyID, collection, field, value string) ([]Ref, error)

	// GetDocument fetches a single document, primarily for verification
	// and the import history API.
	GetDocument(ctx context.Context, companyID string, ref Ref) (Document, error)

	// NewGroup opens an empty atomic write group.
	NewGroup(companyID string) Group

	// MaxGroupOps is the largest operation count a single group commit
	// supports on this backend.
	MaxGroupOps() int
}

// Group accumulates create/update operations and commits them atomically.
// A group is single-use: after Commit it must be discarded.
type Group interface {
	// Set queues a full-document write (create or overwrite).
	Set(ref Ref, doc Document)

	// Update queues a partial update of an existing document.
	Update(ref Ref, doc Document)

	// Len reports the number of queued operations.
	Len() int

	// Commit applies every queued operation as one atomic unit.
	Commit(ctx context.Context) error
}
