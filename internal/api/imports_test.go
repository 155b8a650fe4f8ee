package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/driverdesk/internal/config"
	"github.com/ignite/driverdesk/internal/leadimport"
	"github.com/ignite/driverdesk/internal/progress"
	"github.com/ignite/driverdesk/internal/sheets"
	"github.com/ignite/driverdesk/internal/store"
)

type testEnv struct {
	router  *chi.Mux
	store   *store.MemoryStore
	tracker *progress.Tracker
	fetcher *sheets.Fetcher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	st := store.NewMemoryStore()
	tracker := progress.NewTracker(rdb)
	fetcher := sheets.NewFetcher()
	svc := NewImportService(st, tracker, fetcher, config.ImportConfig{
		BatchSize:       450,
		SourceTag:       "bulk_import",
		MaxUploadSizeMB: 50,
	})

	r := chi.NewRouter()
	r.Route("/api", svc.RegisterRoutes)
	return &testEnv{router: r, store: st, tracker: tracker, fetcher: fetcher}
}

func multipartUpload(t *testing.T, companyID, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("company_id", companyID))
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func doJSON(t *testing.T, router *chi.Mux, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func waitForJob(t *testing.T, env *testEnv, jobID string) *progress.Job {
	t.Helper()
	var job *progress.Job
	require.Eventually(t, func() bool {
		var err error
		job, err = env.tracker.GetJob(context.Background(), jobID)
		if err != nil {
			return false
		}
		return job.Status != progress.StatusImporting
	}, 5*time.Second, 10*time.Millisecond, "job never finished")
	return job
}

func TestPreviewConfirmFlow(t *testing.T) {
	env := newTestEnv(t)

	csvData := "First Name,Last Name,Email,Phone\n" +
		"John,Doe,john@example.com,5550100001\n" +
		"Jane,Smith,jane@example.com,5550100002\n" +
		"Johnny,Doe,JOHN@EXAMPLE.COM,5550100003\n"
	body, contentType := multipartUpload(t, "acme", "drivers.csv", csvData)

	req := httptest.NewRequest(http.MethodPost, "/api/imports/preview", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var previewResp struct {
		PreviewID         string                       `json:"preview_id"`
		TotalParsed       int                          `json:"total_parsed"`
		DuplicatesRemoved int                          `json:"duplicates_removed"`
		RecordCount       int                          `json:"record_count"`
		Sample            []leadimport.CanonicalRecord `json:"sample"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &previewResp))
	assert.Equal(t, 3, previewResp.TotalParsed)
	assert.Equal(t, 1, previewResp.DuplicatesRemoved)
	assert.Equal(t, 2, previewResp.RecordCount)
	require.Len(t, previewResp.Sample, 2)

	// Nothing hits the store until confirmation.
	assert.Equal(t, 0, env.store.Count("acme", leadimport.DefaultCollection))

	confirm := map[string]interface{}{
		"assignment_mode": "round_robin",
		"team_members": []leadimport.TeamMember{
			{ID: "u1", Name: "Pat"},
			{ID: "u2", Name: "Sam"},
		},
		"actor_name": "Recruiter Rae",
	}
	rec = doJSON(t, env.router, http.MethodPost, "/api/imports/"+previewResp.PreviewID+"/confirm", confirm)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var confirmResp struct {
		JobID string `json:"job_id"`
		Total int    `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &confirmResp))
	assert.Equal(t, 2, confirmResp.Total)

	job := waitForJob(t, env, confirmResp.JobID)
	assert.Equal(t, progress.StatusCompleted, job.Status)
	assert.Equal(t, 2, job.Created)
	assert.Equal(t, 0, job.Updated)

	assert.Equal(t, 2, env.store.Count("acme", leadimport.DefaultCollection))
	assert.Equal(t, 2, env.store.Count("acme", leadimport.DefaultAuditCollection))
	assert.Equal(t, 1, env.store.Count("acme", RunsCollection))

	// The preview is consumed; confirming again is a 404.
	rec = doJSON(t, env.router, http.MethodPost, "/api/imports/"+previewResp.PreviewID+"/confirm", confirm)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// The run shows up in history.
	req = httptest.NewRequest(http.MethodGet, "/api/imports/history?company_id=acme", nil)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var histResp struct {
		Runs  []progress.Job `json:"runs"`
		Count int            `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &histResp))
	require.Equal(t, 1, histResp.Count)
	assert.Equal(t, confirmResp.JobID, histResp.Runs[0].ID)
}

func TestPreviewFromSheetURL(t *testing.T) {
	env := newTestEnv(t)

	sheetSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("email,phone\nlead@example.com,5550100001\n"))
	}))
	defer sheetSrv.Close()
	env.fetcher.BaseURL = sheetSrv.URL

	rec := doJSON(t, env.router, http.MethodPost, "/api/imports/preview", map[string]string{
		"company_id": "acme",
		"sheet_url":  "https://docs.google.com/spreadsheets/d/abc123/edit",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		RecordCount int `json:"record_count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.RecordCount)
}

func TestPreviewRejectsBadSheetURL(t *testing.T) {
	env := newTestEnv(t)

	rec := doJSON(t, env.router, http.MethodPost, "/api/imports/preview", map[string]string{
		"company_id": "acme",
		"sheet_url":  "https://example.com/not-a-sheet",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "spreadsheet ID")
}

func TestPreviewRequiresCompanyID(t *testing.T) {
	env := newTestEnv(t)

	body, contentType := multipartUpload(t, "", "drivers.csv", "email\na@x.com\n")
	req := httptest.NewRequest(http.MethodPost, "/api/imports/preview", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPreviewHeaderOnlyFile(t *testing.T) {
	env := newTestEnv(t)

	body, contentType := multipartUpload(t, "acme", "drivers.csv", "email,phone\n")
	req := httptest.NewRequest(http.MethodPost, "/api/imports/preview", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "no data rows")
}

func TestConfirmValidatesAssignment(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.tracker.SavePreview(context.Background(), &progress.Preview{
		ID:        "prev1",
		CompanyID: "acme",
		Records: []leadimport.CanonicalRecord{
			{FirstName: "John", Email: "john@x.com", NormalizedPhone: "5550100001"},
		},
	}))

	rec := doJSON(t, env.router, http.MethodPost, "/api/imports/prev1/confirm", map[string]interface{}{
		"assignment_mode": "specific_user",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "assignment target")

	// Rejected before the preview is consumed or any job created.
	_, err := env.tracker.GetPreview(context.Background(), "prev1")
	assert.NoError(t, err)
	assert.Equal(t, 0, env.store.Count("acme", leadimport.DefaultCollection))
}

func TestConfirmUnknownPreview(t *testing.T) {
	env := newTestEnv(t)
	rec := doJSON(t, env.router, http.MethodPost, "/api/imports/nope/confirm", map[string]interface{}{})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJobStatusNotFound(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/api/imports/jobs/nope", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistoryRequiresCompanyID(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/api/imports/history", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConfirmUpdatesExistingLeads(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Seed an existing driver that the upload should match by email.
	group := env.store.NewGroup("acme")
	group.Set(store.Ref{Collection: leadimport.DefaultCollection, ID: "d1"}, store.Document{
		"email":  "john@example.com",
		"status": "Contacted",
	})
	require.NoError(t, group.Commit(ctx))

	csvData := "Email,Phone,City\njohn@example.com,5550100001,Austin\n"
	body, contentType := multipartUpload(t, "acme", "drivers.csv", csvData)
	req := httptest.NewRequest(http.MethodPost, "/api/imports/preview", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var previewResp struct {
		PreviewID string `json:"preview_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &previewResp))

	rec = doJSON(t, env.router, http.MethodPost, "/api/imports/"+previewResp.PreviewID+"/confirm", map[string]interface{}{})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var confirmResp struct {
		JobID string `json:"job_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &confirmResp))

	job := waitForJob(t, env, confirmResp.JobID)
	assert.Equal(t, progress.StatusCompleted, job.Status)
	assert.Equal(t, 0, job.Created)
	assert.Equal(t, 1, job.Updated)

	doc, err := env.store.GetDocument(ctx, "acme", store.Ref{Collection: leadimport.DefaultCollection, ID: "d1"})
	require.NoError(t, err)
	assert.Equal(t, "Austin", doc["city"])
	assert.Equal(t, "Contacted", doc["status"])
}
