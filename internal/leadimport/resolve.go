package leadimport

import (
	"context"
	"fmt"

	"github.com/ignite/driverdesk/internal/store"
)

// resolver answers "does this record already exist remotely?" by exact-match
// identity queries, email first, then normalized phone. At most one query
// round trip is spent per identity field, and no query is issued for a field
// the record does not carry.
type resolver struct {
	store      store.Store
	companyID  string
	collection string
}

// resolve returns a ref to the first matching existing record, or nil when
// the record is new. Placeholder emails are generated locally and can never
// match anything remote, so the email query is skipped for them.
func (r *resolver) resolve(ctx context.Context, rec CanonicalRecord) (*store.Ref, error) {
	if !rec.IsEmailPlaceholder {
		refs, err := r.store.QueryByField(ctx, r.companyID, r.collection, "email", rec.Email)
		if err != nil {
			return nil, fmt.Errorf("email lookup for %s: %w", rec.Email, err)
		}
		if len(refs) > 0 {
			return &refs[0], nil
		}
	}

	if rec.NormalizedPhone != "" {
		refs, err := r.store.QueryByField(ctx, r.companyID, r.collection, "normalized_phone", rec.NormalizedPhone)
		if err != nil {
			return nil, fmt.Errorf("phone lookup for %s: %w", rec.NormalizedPhone, err)
		}
		if len(refs) > 0 {
			return &refs[0], nil
		}
	}

	return nil, nil
}
