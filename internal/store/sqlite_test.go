package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brushhour/fieldclock/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testOp(eventID string, at time.Time) model.QueuedOperation {
	return model.QueuedOperation{
		EventID:    eventID,
		Type:       model.OpClockIn,
		Payload:    []byte(`{"job_id":"job-1"}`),
		EnqueuedAt: at,
	}
}

func TestSQLite_InsertOperation_Dedupes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	inserted, err := s.InsertOperation(ctx, testOp("1700000000000-aaa", now))
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.InsertOperation(ctx, testOp("1700000000000-aaa", now.Add(time.Second)))
	require.NoError(t, err)
	assert.False(t, inserted, "duplicate event id must be a no-op")

	n, err := s.CountOperations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLite_ListOperations_FIFO(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC)

	for i, id := range []string{"k-b", "k-c", "k-a"} {
		_, err := s.InsertOperation(ctx, testOp(id, base.Add(time.Duration(i)*time.Second)))
		require.NoError(t, err)
	}

	ops, err := s.ListOperations(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 3)
	assert.Equal(t, "k-b", ops[0].EventID)
	assert.Equal(t, "k-c", ops[1].EventID)
	assert.Equal(t, "k-a", ops[2].EventID)
}

func TestSQLite_RecordAttempt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC)

	_, err := s.InsertOperation(ctx, testOp("k-1", now))
	require.NoError(t, err)

	require.NoError(t, s.RecordAttempt(ctx, "k-1", now.Add(time.Minute)))
	require.NoError(t, s.RecordAttempt(ctx, "k-1", now.Add(2*time.Minute)))

	ops, err := s.ListOperations(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, 2, ops[0].RetryCount)
	require.NotNil(t, ops[0].LastAttemptAt)
	assert.Equal(t, now.Add(2*time.Minute), ops[0].LastAttemptAt.UTC())

	err = s.RecordAttempt(ctx, "missing", now)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_DeleteAndClearOperations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, id := range []string{"k-1", "k-2", "k-3"} {
		_, err := s.InsertOperation(ctx, testOp(id, now))
		require.NoError(t, err)
	}

	require.NoError(t, s.DeleteOperation(ctx, "k-2"))
	n, err := s.CountOperations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	cleared, err := s.ClearOperations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, cleared)

	n, err = s.CountOperations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSQLite_AlertDebounce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec, err := s.GetAlertDebounce(ctx, "w-1", "job-1")
	require.NoError(t, err)
	assert.Nil(t, rec)

	first := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	require.NoError(t, s.PutAlertDebounce(ctx, model.AlertDebounceRecord{
		WorkerID: "w-1", JobID: "job-1", LastShownAt: first,
	}))

	rec, err = s.GetAlertDebounce(ctx, "w-1", "job-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, first, rec.LastShownAt.UTC())

	// Overwritten on next alert, never independently deleted.
	second := first.Add(20 * time.Minute)
	require.NoError(t, s.PutAlertDebounce(ctx, model.AlertDebounceRecord{
		WorkerID: "w-1", JobID: "job-1", LastShownAt: second,
	}))
	rec, err = s.GetAlertDebounce(ctx, "w-1", "job-1")
	require.NoError(t, err)
	assert.Equal(t, second, rec.LastShownAt.UTC())
}

func TestSQLite_EvaluationsAppendOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v1 := model.GeofenceVerdict{Kind: model.VerdictOutsideGrace, DistanceMeters: 300, RadiusMeters: 100, WithinGrace: true, EvaluatedAt: time.Now().UTC()}
	v2 := model.GeofenceVerdict{
		Kind: model.VerdictOverrideApproved, DistanceMeters: 300, RadiusMeters: 100, EvaluatedAt: time.Now().UTC(),
		Override: &model.OverrideMeta{ApproverID: "sup-1", Reason: "gate locked", ApprovedAt: time.Now().UTC()},
	}
	require.NoError(t, s.AppendEvaluation(ctx, "te-1", v1))
	require.NoError(t, s.AppendEvaluation(ctx, "te-1", v2))
	require.NoError(t, s.AppendEvaluation(ctx, "te-other", v1))

	got, err := s.ListEvaluations(ctx, "te-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, model.VerdictOutsideGrace, got[0].Kind)
	assert.Equal(t, model.VerdictOverrideApproved, got[1].Kind)
	require.NotNil(t, got[1].Override)
	assert.Equal(t, "sup-1", got[1].Override.ApproverID)
}

func TestSQLite_OverrideLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	req := model.OverrideRequest{
		ID: "ov-1", EventID: "1700000000000-ev", WorkerID: "w-1", JobID: "job-1", SupervisorID: "sup-1",
		Reason: "parking lot across the street", Status: model.OverridePending, RequestedAt: now,
		Location: model.LocationReading{Latitude: 39.7, Longitude: -104.9, AccuracyMeters: 12, CapturedAt: now},
	}
	require.NoError(t, s.InsertOverride(ctx, req))

	pending, err := s.ListPendingOverrides(ctx, "sup-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "ov-1", pending[0].ID)

	updated, err := s.ResolveOverride(ctx, "ov-1", model.OverrideApproved, "sup-1", "", now.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, updated)

	// Second resolution must not touch the row.
	updated, err = s.ResolveOverride(ctx, "ov-1", model.OverrideDenied, "sup-1", "changed my mind", now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.False(t, updated)

	got, err := s.GetOverride(ctx, "ov-1")
	require.NoError(t, err)
	assert.Equal(t, model.OverrideApproved, got.Status)
	assert.Equal(t, "1700000000000-ev", got.EventID)
	assert.Equal(t, "sup-1", got.ResolvedBy)
	require.NotNil(t, got.ResolvedAt)

	pending, err = s.ListPendingOverrides(ctx, "sup-1")
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = s.GetOverride(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_CachedLocation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r, err := s.GetCachedLocation(ctx)
	require.NoError(t, err)
	assert.Nil(t, r)

	reading := model.LocationReading{
		Latitude: 39.7392, Longitude: -104.9903, AccuracyMeters: 8,
		CapturedAt: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		Satellite:  true, WiFi: true,
	}
	require.NoError(t, s.PutCachedLocation(ctx, reading))

	r, err = s.GetCachedLocation(ctx)
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, reading.Latitude, r.Latitude)
	assert.True(t, r.Satellite)

	// Single row: a new reading replaces the old one.
	reading.Latitude = 40.0
	require.NoError(t, s.PutCachedLocation(ctx, reading))
	r, err = s.GetCachedLocation(ctx)
	require.NoError(t, err)
	assert.Equal(t, 40.0, r.Latitude)
}

func TestSQLite_JobSites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	shift := now.Add(2 * time.Hour)

	site := model.JobSite{
		ID: "job-1", Name: "Maple St Exterior", Address: "412 Maple St",
		Geofence: model.GeofenceDefinition{
			CenterLat: 39.7392, CenterLng: -104.9903,
			Environment: model.EnvironmentUrban,
		},
		ShiftStart: &shift,
		CreatedAt:  now, UpdatedAt: now,
	}
	require.NoError(t, s.UpsertJobSite(ctx, site))

	got, err := s.GetJobSite(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "Maple St Exterior", got.Name)
	assert.Equal(t, model.EnvironmentUrban, got.Geofence.Environment)
	require.NotNil(t, got.ShiftStart)
	assert.Equal(t, shift, got.ShiftStart.UTC())

	site.Name = "Maple St Full Repaint"
	site.UpdatedAt = now.Add(time.Hour)
	require.NoError(t, s.UpsertJobSite(ctx, site))

	sites, err := s.ListJobSites(ctx)
	require.NoError(t, err)
	require.Len(t, sites, 1)
	assert.Equal(t, "Maple St Full Repaint", sites[0].Name)

	_, err = s.GetJobSite(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
