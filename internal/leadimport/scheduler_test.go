package leadimport

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/ignite/driverdesk/internal/store"
)

func addRecord(t *testing.T, sched *commitScheduler, i int) {
	t.Helper()
	ref := store.Ref{Collection: DefaultCollection, ID: uuid.New().String()}
	doc := store.Document{"email": fmt.Sprintf("u%d@x.com", i)}
	auditRef := store.Ref{Collection: DefaultAuditCollection, ID: uuid.New().String()}
	audit := store.Document{"record_id": ref.ID, "action": "import_created"}
	if err := sched.add(context.Background(), writeSet, ref, doc, auditRef, audit); err != nil {
		t.Fatalf("add record %d: %v", i, err)
	}
}

func TestSchedulerBoundedGrouping(t *testing.T) {
	st := store.NewMemoryStore()
	sched := newCommitScheduler(st, "acme", 450)

	for i := 0; i < 451; i++ {
		addRecord(t, sched, i)
	}
	if err := sched.flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}

	if got := sched.groupsCommitted(); got != 2 {
		t.Errorf("groups committed = %d, want 2 (450 + 1)", got)
	}
	if n := st.Count("acme", DefaultCollection); n != 451 {
		t.Errorf("documents = %d, want 451", n)
	}
	if n := st.Count("acme", DefaultAuditCollection); n != 451 {
		t.Errorf("audit entries = %d, want 451", n)
	}
}

func TestSchedulerExactMultiple(t *testing.T) {
	st := store.NewMemoryStore()
	sched := newCommitScheduler(st, "acme", 3)

	for i := 0; i < 6; i++ {
		addRecord(t, sched, i)
	}
	if err := sched.flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if got := sched.groupsCommitted(); got != 2 {
		t.Errorf("groups committed = %d, want 2", got)
	}
}

func TestSchedulerFlushEmptyIsNoop(t *testing.T) {
	st := store.NewMemoryStore()
	sched := newCommitScheduler(st, "acme", 10)
	if err := sched.flush(context.Background()); err != nil {
		t.Fatalf("flush of empty scheduler: %v", err)
	}
	if got := sched.groupsCommitted(); got != 0 {
		t.Errorf("groups committed = %d, want 0", got)
	}
}

func TestSchedulerClampsToBackendLimit(t *testing.T) {
	st := store.NewMemoryStore()
	// Request a bound the backend could never hold atomically with audit
	// entries included.
	sched := newCommitScheduler(st, "acme", st.MaxGroupOps())

	if sched.bound != st.MaxGroupOps()/2 {
		t.Errorf("bound = %d, want clamped to %d", sched.bound, st.MaxGroupOps()/2)
	}
}
