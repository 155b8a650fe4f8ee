// Package api exposes the bulk import pipeline over HTTP. The flow is
// preview -> confirm -> poll: preview parses and deduplicates the batch
// without writing anything, confirm kicks off the reconciling import as a
// background job, and the job endpoint reports progress and final counts.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ignite/driverdesk/internal/config"
	"github.com/ignite/driverdesk/internal/leadimport"
	"github.com/ignite/driverdesk/internal/progress"
	"github.com/ignite/driverdesk/internal/sheets"
	"github.com/ignite/driverdesk/internal/store"
)

// previewSampleSize caps how many parsed records the preview response
// echoes back for the review table.
const previewSampleSize = 20

// RunsCollection is where finished import summaries are persisted.
const RunsCollection = "import_runs"

// ImportService wires the pipeline stages to HTTP handlers.
type ImportService struct {
	store   store.Store
	tracker *progress.Tracker
	fetcher *sheets.Fetcher
	cfg     config.ImportConfig
}

func NewImportService(st store.Store, tracker *progress.Tracker, fetcher *sheets.Fetcher, cfg config.ImportConfig) *ImportService {
	return &ImportService{store: st, tracker: tracker, fetcher: fetcher, cfg: cfg}
}

// RegisterRoutes mounts the import endpoints.
func (s *ImportService) RegisterRoutes(r chi.Router) {
	r.Route("/imports", func(r chi.Router) {
		r.Post("/preview", s.HandlePreview)
		r.Post("/{previewID}/confirm", s.HandleConfirm)
		r.Get("/jobs/{jobID}", s.HandleJobStatus)
		r.Get("/history", s.HandleHistory)
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// previewRequest is the JSON body for sheet-link previews. File uploads use
// multipart form fields instead.
type previewRequest struct {
	CompanyID string `json:"company_id"`
	SheetURL  string `json:"sheet_url"`
}

// HandlePreview accepts either a multipart upload (fields: company_id, file)
// or a JSON body with a shared sheet link. It parses, deduplicates, caches
// the batch, and returns a sample for review. Nothing is written to the
// document store here.
func (s *ImportService) HandlePreview(w http.ResponseWriter, r *http.Request) {
	var (
		companyID string
		filename  string
		data      []byte
	)

	maxBytes := int64(s.cfg.MaxUploadSizeMB) << 20

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			writeError(w, http.StatusBadRequest, "invalid multipart form")
			return
		}
		companyID = r.FormValue("company_id")
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "file field is required")
			return
		}
		defer file.Close()
		data, err = io.ReadAll(io.LimitReader(file, maxBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, "reading upload")
			return
		}
		filename = header.Filename
	} else {
		var req previewRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
		companyID = req.CompanyID
		if req.SheetURL == "" {
			writeError(w, http.StatusBadRequest, "sheet_url is required")
			return
		}
		var err error
		data, err = s.fetcher.FetchCSV(r.Context(), req.SheetURL)
		if err != nil {
			if errors.Is(err, sheets.ErrInvalidSheetURL) || errors.Is(err, sheets.ErrSheetNotAccessible) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			log.Printf("[api] sheet fetch failed: %v", err)
			writeError(w, http.StatusBadGateway, "failed to fetch spreadsheet")
			return
		}
		filename = "google-sheet.csv"
	}

	if companyID == "" {
		writeError(w, http.StatusBadRequest, "company_id is required")
		return
	}

	records, err := leadimport.ParseBuffer(data, filename)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	totalParsed := len(records)
	records = leadimport.Deduplicate(records)
	if len(records) == 0 {
		writeError(w, http.StatusBadRequest, leadimport.ErrNoUsableRows.Error())
		return
	}

	preview := &progress.Preview{
		ID:                uuid.New().String(),
		CompanyID:         companyID,
		Filename:          filename,
		Records:           records,
		TotalParsed:       totalParsed,
		DuplicatesRemoved: totalParsed - len(records),
		CreatedAt:         time.Now(),
	}
	if err := s.tracker.SavePreview(r.Context(), preview); err != nil {
		log.Printf("[api] saving preview: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to save preview")
		return
	}

	sample := records
	if len(sample) > previewSampleSize {
		sample = sample[:previewSampleSize]
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"preview_id":         preview.ID,
		"filename":           filename,
		"total_parsed":       totalParsed,
		"duplicates_removed": preview.DuplicatesRemoved,
		"record_count":       len(records),
		"sample":             sample,
	})
}

// confirmRequest is the JSON body for confirming a cached preview.
type confirmRequest struct {
	AssignmentMode string                  `json:"assignment_mode"`
	AssignedTo     *leadimport.TeamMember  `json:"assigned_to,omitempty"`
	TeamMembers    []leadimport.TeamMember `json:"team_members,omitempty"`
	ActorName      string                  `json:"actor_name"`
}

// HandleConfirm starts the import for a previously previewed batch. Ownership
// configuration is validated here, before the job is accepted, so a
// misconfigured request fails with a 400 instead of a failed job.
func (s *ImportService) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	previewID := chi.URLParam(r, "previewID")

	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	preview, err := s.tracker.GetPreview(r.Context(), previewID)
	if err != nil {
		if errors.Is(err, progress.ErrPreviewNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		log.Printf("[api] loading preview %s: %v", previewID, err)
		writeError(w, http.StatusInternalServerError, "failed to load preview")
		return
	}

	mode := leadimport.AssignMode(req.AssignmentMode)
	if mode == "" {
		mode = leadimport.AssignNone
	}
	importCfg := leadimport.ImportConfig{
		CompanyID:   preview.CompanyID,
		SourceTag:   s.cfg.SourceTag,
		BatchSize:   s.cfg.BatchSize,
		Mode:        mode,
		TeamMembers: req.TeamMembers,
		ActorName:   req.ActorName,
	}
	if req.AssignedTo != nil {
		importCfg.AssignTo = *req.AssignedTo
	}
	if err := importCfg.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	job := &progress.Job{
		ID:        uuid.New().String(),
		CompanyID: preview.CompanyID,
		Status:    progress.StatusImporting,
		Total:     len(preview.Records),
		StartedAt: time.Now(),
	}
	if err := s.tracker.PutJob(r.Context(), job); err != nil {
		log.Printf("[api] creating job: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	// Consume the preview so the same batch cannot be imported twice.
	if err := s.tracker.DeletePreview(r.Context(), previewID); err != nil {
		log.Printf("[api] deleting preview %s: %v", previewID, err)
	}

	go s.runImport(job, preview, importCfg)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"job_id": job.ID,
		"total":  job.Total,
	})
}

// runImport executes the import in the background and keeps the job record
// current. It deliberately uses a fresh context: the import must not die with
// the HTTP request that confirmed it.
func (s *ImportService) runImport(job *progress.Job, preview *progress.Preview, importCfg leadimport.ImportConfig) {
	ctx := context.Background()

	importCfg.OnProgress = func(processed, total int) {
		job.Processed = processed
		if processed%25 == 0 || processed == total {
			if err := s.tracker.PutJob(ctx, job); err != nil {
				log.Printf("[api] updating job %s: %v", job.ID, err)
			}
		}
	}

	stats, err := leadimport.RunImport(ctx, s.store, preview.Records, importCfg)
	job.Created = stats.Created
	job.Updated = stats.Updated
	if err != nil {
		job.Status = progress.StatusFailed
		job.Error = err.Error()
		log.Printf("[api] import job %s failed after %d created / %d updated: %v",
			job.ID, stats.Created, stats.Updated, err)
	} else {
		job.Status = progress.StatusCompleted
	}

	if err := s.tracker.PutJob(ctx, job); err != nil {
		log.Printf("[api] finalizing job %s: %v", job.ID, err)
	}
	if err := s.tracker.RecordRun(ctx, job); err != nil {
		log.Printf("[api] recording run for job %s: %v", job.ID, err)
	}
	s.persistRunSummary(ctx, job, preview)
}

// persistRunSummary writes a durable record of the run alongside the
// imported documents. Failures here are logged, not fatal: the import itself
// already committed.
func (s *ImportService) persistRunSummary(ctx context.Context, job *progress.Job, preview *progress.Preview) {
	group := s.store.NewGroup(job.CompanyID)
	ref := store.Ref{Collection: RunsCollection, ID: job.ID}
	doc := store.Document{
		"filename":           preview.Filename,
		"status":             job.Status,
		"total":              job.Total,
		"created":            job.Created,
		"updated":            job.Updated,
		"duplicates_removed": preview.DuplicatesRemoved,
		"error":              job.Error,
		"started_at":         job.StartedAt,
		"finished_at":        store.ServerTimestamp,
	}
	group.Set(ref, doc)
	if err := group.Commit(ctx); err != nil {
		log.Printf("[api] writing run summary for job %s: %v", job.ID, err)
	}
}

// HandleJobStatus reports progress for a running or recently finished job.
func (s *ImportService) HandleJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job, err := s.tracker.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, progress.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		log.Printf("[api] loading job %s: %v", jobID, err)
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(job)
}

// HandleHistory lists recent imports for a company, newest first.
func (s *ImportService) HandleHistory(w http.ResponseWriter, r *http.Request) {
	companyID := r.URL.Query().Get("company_id")
	if companyID == "" {
		writeError(w, http.StatusBadRequest, "company_id is required")
		return
	}
	runs, err := s.tracker.RecentRuns(r.Context(), companyID)
	if err != nil {
		log.Printf("[api] loading history for %s: %v", companyID, err)
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"company_id": companyID,
		"runs":       runs,
		"count":      len(runs),
	})
}
