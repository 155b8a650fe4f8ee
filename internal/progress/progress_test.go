package progress

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/driverdesk/internal/leadimport"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewTracker(rdb)
}

func TestJobRoundTrip(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()

	job := &Job{ID: "job1", CompanyID: "acme", Status: StatusImporting, Total: 100, Processed: 40}
	require.NoError(t, tracker.PutJob(ctx, job))

	got, err := tracker.GetJob(ctx, "job1")
	require.NoError(t, err)
	assert.Equal(t, "acme", got.CompanyID)
	assert.Equal(t, StatusImporting, got.Status)
	assert.Equal(t, 40, got.Processed)
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestGetJobNotFound(t *testing.T) {
	tracker := newTestTracker(t)
	_, err := tracker.GetJob(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrJobNotFound))
}

func TestPreviewRoundTrip(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()

	p := &Preview{
		ID:        "prev1",
		CompanyID: "acme",
		Records: []leadimport.CanonicalRecord{
			{FirstName: "John", Email: "john@x.com", NormalizedPhone: "5550100001"},
		},
		TotalParsed:       2,
		DuplicatesRemoved: 1,
	}
	require.NoError(t, tracker.SavePreview(ctx, p))

	got, err := tracker.GetPreview(ctx, "prev1")
	require.NoError(t, err)
	require.Len(t, got.Records, 1)
	assert.Equal(t, "john@x.com", got.Records[0].Email)
	assert.Equal(t, 1, got.DuplicatesRemoved)
}

func TestDeletePreviewConsumesSession(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tracker.SavePreview(ctx, &Preview{ID: "prev1", CompanyID: "acme"}))
	require.NoError(t, tracker.DeletePreview(ctx, "prev1"))

	_, err := tracker.GetPreview(ctx, "prev1")
	assert.True(t, errors.Is(err, ErrPreviewNotFound))
}

func TestRunHistoryNewestFirst(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tracker.RecordRun(ctx, &Job{ID: "a", CompanyID: "acme", Status: StatusCompleted, Created: 5}))
	require.NoError(t, tracker.RecordRun(ctx, &Job{ID: "b", CompanyID: "acme", Status: StatusCompleted, Created: 7}))
	require.NoError(t, tracker.RecordRun(ctx, &Job{ID: "c", CompanyID: "other", Status: StatusFailed}))

	runs, err := tracker.RecentRuns(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "b", runs[0].ID)
	assert.Equal(t, "a", runs[1].ID)
}
