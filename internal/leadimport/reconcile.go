package leadimport

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/ignite/driverdesk/internal/phone"
	"github.com/ignite/driverdesk/internal/store"
)

// RunImport reconciles a deduplicated batch against the company's existing
// collection and applies creates/updates in bounded atomic groups. Records
// are processed strictly in order with one identity resolution per record;
// there is no fan-out, which is what keeps same-batch duplicate handling in
// the deduplicator instead of the store.
//
// On failure the returned stats cover the groups committed before the error;
// earlier groups stay applied, there is no cross-group rollback.
func RunImport(ctx context.Context, st store.Store, records []CanonicalRecord, cfg ImportConfig) (ImportStats, error) {
	cfg.applyDefaults()

	var stats ImportStats
	if err := cfg.Validate(); err != nil {
		return stats, err
	}
	if len(records) == 0 {
		return stats, ErrNoUsableRows
	}

	res := &resolver{store: st, companyID: cfg.CompanyID, collection: cfg.Collection}
	sched := newCommitScheduler(st, cfg.CompanyID, cfg.BatchSize)

	total := len(records)
	rrIdx := 0

	for i, rec := range records {
		existing, err := res.resolve(ctx, rec)
		if err != nil {
			return stats, fmt.Errorf("resolving record %d/%d: %w", i+1, total, err)
		}

		if existing == nil {
			doc := createPayload(rec, cfg)
			switch cfg.Mode {
			case AssignSpecific:
				doc["assigned_to"] = cfg.AssignTo.ID
				doc["assigned_to_name"] = cfg.AssignTo.Name
			case AssignRoundRobin:
				member := cfg.TeamMembers[rrIdx%len(cfg.TeamMembers)]
				doc["assigned_to"] = member.ID
				doc["assigned_to_name"] = member.Name
				rrIdx++
			}

			ref := store.Ref{Collection: cfg.Collection, ID: uuid.New().String()}
			auditRef, audit := auditEntry(cfg, ref.ID, "import_created",
				fmt.Sprintf("%s %s imported via %s", rec.FirstName, rec.LastName, cfg.SourceTag))

			if err := sched.add(ctx, writeSet, ref, doc, auditRef, audit); err != nil {
				return stats, err
			}
			stats.Created++
		} else {
			doc := updatePayload(rec)
			auditRef, audit := auditEntry(cfg, existing.ID, "import_updated",
				fmt.Sprintf("%s %s updated via %s", rec.FirstName, rec.LastName, cfg.SourceTag))

			if err := sched.add(ctx, writeUpdate, *existing, doc, auditRef, audit); err != nil {
				return stats, err
			}
			stats.Updated++
		}

		if cfg.OnProgress != nil {
			cfg.OnProgress(i+1, total)
		}
	}

	if err := sched.flush(ctx); err != nil {
		return stats, err
	}

	log.Printf("[leadimport] import complete: %d created, %d updated, %d groups",
		stats.Created, stats.Updated, sched.groupsCommitted())
	return stats, nil
}

// createPayload builds the full document for a brand-new lead.
func createPayload(rec CanonicalRecord, cfg ImportConfig) store.Document {
	return store.Document{
		"first_name":           rec.FirstName,
		"last_name":            rec.LastName,
		"email":                rec.Email,
		"is_email_placeholder": rec.IsEmailPlaceholder,
		"phone":                rec.Phone,
		"normalized_phone":     rec.NormalizedPhone,
		"driver_type":          rec.DriverType,
		"experience":           rec.Experience,
		"city":                 rec.City,
		"state":                rec.State,
		"status":               NewLeadStatus,
		"source":               cfg.SourceTag,
		"created_at":           store.ServerTimestamp,
	}
}

// updatePayload builds the partial document for a matched existing lead.
// Only non-empty parsed values are written so sparse spreadsheet rows never
// blank out data somebody typed in by hand. Placeholder emails are likewise
// withheld: a generated address must not overwrite a real one on a record
// that matched by phone.
func updatePayload(rec CanonicalRecord) store.Document {
	doc := store.Document{
		"updated_at": store.ServerTimestamp,
	}
	if rec.FirstName != "" {
		doc["first_name"] = rec.FirstName
	}
	if rec.LastName != "" {
		doc["last_name"] = rec.LastName
	}
	if !rec.IsEmailPlaceholder && rec.Email != "" {
		doc["email"] = rec.Email
		doc["is_email_placeholder"] = false
	}
	if rec.Phone != "" && rec.Phone != phone.NotSpecified {
		doc["phone"] = rec.Phone
	}
	if rec.NormalizedPhone != "" {
		doc["normalized_phone"] = rec.NormalizedPhone
	}
	if rec.DriverType != "" {
		doc["driver_type"] = rec.DriverType
	}
	if rec.Experience != "" {
		doc["experience"] = rec.Experience
	}
	if rec.City != "" {
		doc["city"] = rec.City
	}
	if rec.State != "" {
		doc["state"] = rec.State
	}
	return doc
}

// auditEntry builds the activity-log document queued into the same commit
// group as the data write it describes.
func auditEntry(cfg ImportConfig, recordID, action, details string) (store.Ref, store.Document) {
	ref := store.Ref{Collection: cfg.AuditCollection, ID: uuid.New().String()}
	doc := store.Document{
		"record_id": recordID,
		"action":    action,
		"details":   details,
		"actor":     cfg.ActorName,
		"source":    cfg.SourceTag,
		"timestamp": store.ServerTimestamp,
	}
	return ref, doc
}
