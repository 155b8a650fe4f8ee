// Package progress tracks import jobs and holds preview sessions in Redis.
// A preview session caches the parsed, deduplicated records between the
// preview call and the recruiter's confirmation; a job record is what the
// frontend polls while an import runs.
package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/driverdesk/internal/leadimport"
)

var (
	ErrJobNotFound     = errors.New("import job not found")
	ErrPreviewNotFound = errors.New("preview session not found or expired")
)

const (
	// PreviewTTL bounds how long a parsed preview waits for confirmation.
	PreviewTTL = 2 * time.Hour

	// JobTTL keeps finished job records around long enough for the
	// frontend to pick up the final counts.
	JobTTL = 24 * time.Hour

	// historyLimit caps the per-company run history list.
	historyLimit = 50
)

// Job statuses.
const (
	StatusImporting = "importing"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Job is the polled state of a running or finished import.
type Job struct {
	ID        string    `json:"id"`
	CompanyID string    `json:"company_id"`
	Status    string    `json:"status"`
	Total     int       `json:"total"`
	Processed int       `json:"processed"`
	Created   int       `json:"created"`
	Updated   int       `json:"updated"`
	Error     string    `json:"error,omitempty"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Preview holds the parsed batch between preview and confirm.
type Preview struct {
	ID                string                       `json:"id"`
	CompanyID         string                       `json:"company_id"`
	Filename          string                       `json:"filename"`
	Records           []leadimport.CanonicalRecord `json:"records"`
	TotalParsed       int                          `json:"total_parsed"`
	DuplicatesRemoved int                          `json:"duplicates_removed"`
	CreatedAt         time.Time                    `json:"created_at"`
}

// Tracker persists jobs and previews in Redis.
type Tracker struct {
	rdb *redis.Client
}

func NewTracker(rdb *redis.Client) *Tracker {
	return &Tracker{rdb: rdb}
}

func (t *Tracker) jobKey(id string) string {
	return fmt.Sprintf("driverdesk:import:job:%s", id)
}

func (t *Tracker) previewKey(id string) string {
	return fmt.Sprintf("driverdesk:import:preview:%s", id)
}

func (t *Tracker) historyKey(companyID string) string {
	return fmt.Sprintf("driverdesk:import:history:%s", companyID)
}

// PutJob writes the job state. Called from the import goroutine on every
// progress tick, so it must stay cheap.
func (t *Tracker) PutJob(ctx context.Context, job *Job) error {
	job.UpdatedAt = time.Now()
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshaling job: %w", err)
	}
	if err := t.rdb.Set(ctx, t.jobKey(job.ID), data, JobTTL).Err(); err != nil {
		return fmt.Errorf("storing job: %w", err)
	}
	return nil
}

func (t *Tracker) GetJob(ctx context.Context, id string) (*Job, error) {
	data, err := t.rdb.Get(ctx, t.jobKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading job: %w", err)
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("unmarshaling job: %w", err)
	}
	return &job, nil
}

func (t *Tracker) SavePreview(ctx context.Context, p *Preview) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshaling preview: %w", err)
	}
	if err := t.rdb.Set(ctx, t.previewKey(p.ID), data, PreviewTTL).Err(); err != nil {
		return fmt.Errorf("storing preview: %w", err)
	}
	return nil
}

func (t *Tracker) GetPreview(ctx context.Context, id string) (*Preview, error) {
	data, err := t.rdb.Get(ctx, t.previewKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrPreviewNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading preview: %w", err)
	}
	var p Preview
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unmarshaling preview: %w", err)
	}
	return &p, nil
}

// DeletePreview removes a consumed preview so the same session cannot be
// confirmed twice.
func (t *Tracker) DeletePreview(ctx context.Context, id string) error {
	return t.rdb.Del(ctx, t.previewKey(id)).Err()
}

// RecordRun appends a finished job to the company's run history.
func (t *Tracker) RecordRun(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshaling run: %w", err)
	}
	key := t.historyKey(job.CompanyID)
	pipe := t.rdb.Pipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, historyLimit-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	return nil
}

// RecentRuns returns the most recent finished imports for a company, newest
// first.
func (t *Tracker) RecentRuns(ctx context.Context, companyID string) ([]Job, error) {
	items, err := t.rdb.LRange(ctx, t.historyKey(companyID), 0, historyLimit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("loading run history: %w", err)
	}
	runs := make([]Job, 0, len(items))
	for _, item := range items {
		var job Job
		if err := json.Unmarshal([]byte(item), &job); err != nil {
			continue
		}
		runs = append(runs, job)
	}
	return runs, nil
}
