// Package leadimport implements the bulk driver-lead import pipeline: raw
// spreadsheet buffers are parsed into canonical records, deduplicated within
// the batch, reconciled against the company's existing collection by email or
// phone identity, and written out in bounded atomic commit groups with audit
// entries.
package leadimport

import (
	"errors"
)

var (
	// ErrEmptyFile is returned when the spreadsheet has no rows at all.
	ErrEmptyFile = errors.New("spreadsheet file is empty")

	// ErrNoDataRows is returned when the spreadsheet has a header row but
	// nothing under it.
	ErrNoDataRows = errors.New("spreadsheet has no data rows below the header")

	// ErrNoUsableRows is returned when every row was dropped for missing
	// both an email and a phone number.
	ErrNoUsableRows = errors.New("no rows with an email or phone number found")

	// ErrMissingAssignee is returned when assignment mode is specific_user
	// but no target team member was supplied.
	ErrMissingAssignee = errors.New("assignment target is required for specific_user mode")

	// ErrNoTeamMembers is returned when assignment mode is round_robin but
	// the team member list is empty.
	ErrNoTeamMembers = errors.New("at least one team member is required for round_robin mode")
)

// Default collections and sizing. Call sites may override through
// ImportConfig; the scheduler clamps to what the store backend supports.
const (
	DefaultCollection      = "drivers"
	DefaultAuditCollection = "driver_activity"
	DefaultBatchSize       = 450
	DefaultSourceTag       = "bulk_import"

	// NewLeadStatus is the initial pipeline status stamped on created records.
	NewLeadStatus = "New Lead"

	// UnidentifiedDriverType is the fallback category for rows that carry
	// no recognizable driver type.
	UnidentifiedDriverType = "unidentified"
)

// CanonicalRecord is the normalized output of parsing one spreadsheet row.
type CanonicalRecord struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`

	// Email is always non-empty: either the real address (lowercased) or a
	// generated placeholder when the row had none.
	Email              string `json:"email"`
	IsEmailPlaceholder bool   `json:"is_email_placeholder"`

	// Phone is the display form, "(XXX) XXX-XXXX" for standard US numbers
	// or the original cell text otherwise. NormalizedPhone is the
	// digits-only form used for identity matching, never for display.
	Phone           string `json:"phone"`
	NormalizedPhone string `json:"normalized_phone"`

	DriverType string `json:"driver_type"`
	Experience string `json:"experience,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
}

// ImportStats is the final result returned to the caller. When a run aborts
// mid-way the counts cover the groups committed before the failure; counts
// for the failed group itself are not guaranteed.
type ImportStats struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
}

// AssignMode selects how ownership is attached to created records.
type AssignMode string

const (
	AssignNone       AssignMode = "unassigned"
	AssignSpecific   AssignMode = "specific_user"
	AssignRoundRobin AssignMode = "round_robin"
)

// TeamMember identifies a recruiter who can own leads.
type TeamMember struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ProgressFunc receives a callback after each record is queued and once more
// after the final commit.
type ProgressFunc func(processed, total int)

// ImportConfig parameterizes one reconciliation run. The zero value plus a
// company ID is a valid unassigned import with default sizing.
type ImportConfig struct {
	CompanyID       string
	Collection      string
	AuditCollection string

	// SourceTag identifies the import method in created records and audit
	// entries, e.g. "bulk_import" or "sheet_import".
	SourceTag string

	// BatchSize bounds how many records (each a data write plus its audit
	// entry) go into one atomic commit group.
	BatchSize int

	Mode        AssignMode
	AssignTo    TeamMember
	TeamMembers []TeamMember

	// ActorName is recorded on audit entries as who ran the import.
	ActorName string

	OnProgress ProgressFunc
}

func (c *ImportConfig) applyDefaults() {
	if c.Collection == "" {
		c.Collection = DefaultCollection
	}
	if c.AuditCollection == "" {
		c.AuditCollection = DefaultAuditCollection
	}
	if c.SourceTag == "" {
		c.SourceTag = DefaultSourceTag
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Mode == "" {
		c.Mode = AssignNone
	}
}

// Validate checks that the assignment mode has its prerequisites. Callers
// that accept the config over the wire should call this before starting a
// run so misconfiguration fails fast instead of surfacing as a failed job.
func (c *ImportConfig) Validate() error {
	switch c.Mode {
	case AssignSpecific:
		if c.AssignTo.ID == "" {
			return ErrMissingAssignee
		}
	case AssignRoundRobin:
		if len(c.TeamMembers) == 0 {
			return ErrNoTeamMembers
		}
	}
	return nil
}
