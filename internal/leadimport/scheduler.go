package leadimport

import (
	"context"
	"fmt"
	"log"

	"github.com/ignite/driverdesk/internal/store"
)

// commitScheduler accumulates record writes (each paired with its audit
// entry) into bounded atomic groups and commits them sequentially. The bound
// counts records, not raw operations; every record contributes two
// operations to the underlying group.
type commitScheduler struct {
	store     store.Store
	companyID string
	bound     int

	group     store.Group
	pending   int
	committed int
}

// newCommitScheduler clamps the requested record bound to what the backend's
// atomic write limit can hold (two ops per record) and opens the first group.
func newCommitScheduler(st store.Store, companyID string, bound int) *commitScheduler {
	max := st.MaxGroupOps() / 2
	if bound > max {
		log.Printf("[leadimport] batch size %d exceeds backend limit, clamping to %d", bound, max)
		bound = max
	}
	if bound < 1 {
		bound = 1
	}
	return &commitScheduler{
		store:     st,
		companyID: companyID,
		bound:     bound,
		group:     st.NewGroup(companyID),
	}
}

type writeKind int

const (
	writeSet writeKind = iota
	writeUpdate
)

// add queues one record's data write plus its audit entry. When the group
// reaches the bound it is committed and a fresh group is opened.
func (s *commitScheduler) add(ctx context.Context, kind writeKind, ref store.Ref, doc store.Document, auditRef store.Ref, audit store.Document) error {
	switch kind {
	case writeSet:
		s.group.Set(ref, doc)
	case writeUpdate:
		s.group.Update(ref, doc)
	}
	s.group.Set(auditRef, audit)
	s.pending++

	if s.pending >= s.bound {
		return s.commit(ctx)
	}
	return nil
}

// flush commits whatever remains after the batch is exhausted.
func (s *commitScheduler) flush(ctx context.Context) error {
	if s.pending == 0 {
		return nil
	}
	return s.commit(ctx)
}

func (s *commitScheduler) commit(ctx context.Context) error {
	n := s.pending
	if err := s.group.Commit(ctx); err != nil {
		return fmt.Errorf("committing group %d (%d records): %w", s.committed+1, n, err)
	}
	s.committed++
	log.Printf("[leadimport] committed group %d (%d records)", s.committed, n)
	s.group = s.store.NewGroup(s.companyID)
	s.pending = 0
	return nil
}

// groupsCommitted reports how many groups have been durably applied.
func (s *commitScheduler) groupsCommitted() int { return s.committed }
