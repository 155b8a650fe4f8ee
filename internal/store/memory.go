package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// memoryMaxGroupOps is deliberately generous: each imported record carries a
// paired audit write, so a 450-record group holds 900 operations. Production
// sizing comes from the DynamoDB backend, not from here.
const memoryMaxGroupOps = 1000

// MemoryStore is an in-process Store used for local mode and tests. Queries
// scan in insertion order, which makes "first match wins" deterministic.
type MemoryStore struct {
	mu    sync.RWMutex
	docs  map[string]Document
	order []string
}

// NewMemoryStore creates an empty in-memory document store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]Document)}
}

func memKey(companyID string, ref Ref) string {
	return companyID + "/" + ref.Collection + "/" + ref.ID
}

// QueryByField scans the company's collection for an exact field match.
func (m *MemoryStore) QueryByField(ctx context.Context, companyID, collection, field, value string) ([]Ref, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	prefix := companyID + "/" + collection + "/"
	var refs []Ref
	for _, key := range m.order {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		doc := m.docs[key]
		if got, ok := doc[field].(string); ok && got == value {
			refs = append(refs, Ref{Collection: collection, ID: strings.TrimPrefix(key, prefix)})
		}
	}
	return refs, nil
}

// GetDocument returns a copy of the stored document.
func (m *MemoryStore) GetDocument(ctx context.Context, companyID string, ref Ref) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.docs[memKey(companyID, ref)]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrDocumentNotFound, ref.Collection, ref.ID)
	}
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out, nil
}

// NewGroup opens an atomic write group against this store.
func (m *MemoryStore) NewGroup(companyID string) Group {
	return &memoryGroup{store: m, companyID: companyID}
}

// MaxGroupOps reports the group size bound for the in-memory backend.
func (m *MemoryStore) MaxGroupOps() int { return memoryMaxGroupOps }

// Count reports how many documents exist in a company's collection.
// Test helper and local-mode stats.
func (m *MemoryStore) Count(companyID, collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	prefix := companyID + "/" + collection + "/"
	n := 0
	for key := range m.docs {
		if strings.HasPrefix(key, prefix) {
			n++
		}
	}
	return n
}

type memoryOp struct {
	set bool
	ref Ref
	doc Document
}

type memoryGroup struct {
	store     *MemoryStore
	companyID string
	ops       []memoryOp
}

func (g *memoryGroup) Set(ref Ref, doc Document)    { g.ops = append(g.ops, memoryOp{set: true, ref: ref, doc: doc}) }
func (g *memoryGroup) Update(ref Ref, doc Document) { g.ops = append(g.ops, memoryOp{ref: ref, doc: doc}) }
func (g *memoryGroup) Len() int                     { return len(g.ops) }

// Commit validates the whole group before touching anything, then applies
// every operation under one lock so partial application is impossible.
func (g *memoryGroup) Commit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(g.ops) > g.store.MaxGroupOps() {
		return fmt.Errorf("%w: %d ops, limit %d", ErrGroupTooLarge, len(g.ops), g.store.MaxGroupOps())
	}

	g.store.mu.Lock()
	defer g.store.mu.Unlock()

	for _, op := range g.ops {
		if !op.set {
			if _, ok := g.store.docs[memKey(g.companyID, op.ref)]; !ok {
				return fmt.Errorf("%w: %s/%s", ErrDocumentNotFound, op.ref.Collection, op.ref.ID)
			}
		}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for _, op := range g.ops {
		key := memKey(g.companyID, op.ref)
		if op.set {
			doc := make(Document, len(op.doc))
			for k, v := range op.doc {
				doc[k] = resolveTimestamp(v, now)
			}
			if _, exists := g.store.docs[key]; !exists {
				g.store.order = append(g.store.order, key)
			}
			g.store.docs[key] = doc
		} else {
			existing := g.store.docs[key]
			for k, v := range op.doc {
				existing[k] = resolveTimestamp(v, now)
			}
		}
	}
	g.ops = nil
	return nil
}

func resolveTimestamp(v interface{}, now string) interface{} {
	if _, ok := v.(serverTimestamp); ok {
		return now
	}
	return v
}
