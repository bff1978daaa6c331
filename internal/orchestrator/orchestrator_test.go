package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brushhour/fieldclock/internal/connectivity"
	"github.com/brushhour/fieldclock/internal/geofence"
	"github.com/brushhour/fieldclock/internal/location"
	"github.com/brushhour/fieldclock/internal/model"
	"github.com/brushhour/fieldclock/internal/queue"
	"github.com/brushhour/fieldclock/internal/remote"
	"github.com/brushhour/fieldclock/internal/store"
)

type fakeService struct {
	mu      sync.Mutex
	inCalls []remote.ClockInRequest
	err     error
}

func (f *fakeService) ClockIn(_ context.Context, req remote.ClockInRequest) (remote.ClockInResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inCalls = append(f.inCalls, req)
	if f.err != nil {
		return remote.ClockInResult{}, f.err
	}
	return remote.ClockInResult{TimeEntryID: "te-1"}, nil
}

func (f *fakeService) ClockOut(context.Context, remote.ClockOutRequest) (remote.ClockOutResult, error) {
	return remote.ClockOutResult{Warning: "shift capped at 12 hours"}, nil
}

type fixture struct {
	orch     *Orchestrator
	queue    *queue.Queue
	store    store.Store
	provider *location.StaticProvider
	source   *connectivity.FakeSource
	svc      *fakeService
}

// siteCenter is the seeded job site's geofence center.
const (
	siteLat = 39.7392
	siteLng = -104.9903
)

func onSiteFix() model.LocationReading {
	return model.LocationReading{
		Latitude:       siteLat,
		Longitude:      siteLng,
		AccuracyMeters: 8,
		CapturedAt:     time.Now(),
		Satellite:      true,
		WiFi:           true,
	}
}

// offSiteFix is roughly 1.2km from the site center.
func offSiteFix() model.LocationReading {
	r := onSiteFix()
	r.Latitude = 39.75
	return r
}

func newFixture(t *testing.T, state connectivity.State, shiftStart *time.Time) *fixture {
	t.Helper()
	s, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx))

	now := time.Now().UTC()
	require.NoError(t, s.UpsertJobSite(ctx, model.JobSite{
		ID:   "job-1",
		Name: "Maple St exterior",
		Geofence: model.GeofenceDefinition{
			CenterLat:   siteLat,
			CenterLng:   siteLng,
			Environment: model.EnvironmentSuburban,
		},
		ShiftStart: shiftStart,
		CreatedAt:  now,
		UpdatedAt:  now,
	}))

	src := connectivity.NewFakeSource(state)
	t.Cleanup(src.Close)
	svc := &fakeService{}
	q := queue.New(s, svc, src, queue.Options{})
	eval := geofence.NewEvaluator(s, nil, geofence.DefaultOptions())
	provider := location.NewStaticProvider(onSiteFix())

	return &fixture{
		orch:     New(provider, eval, q, s),
		queue:    q,
		store:    s,
		provider: provider,
		source:   src,
		svc:      svc,
	}
}

func TestClockIn_OnlineConfirms(t *testing.T) {
	f := newFixture(t, connectivity.Online, nil)
	ctx := context.Background()

	res, err := f.orch.ClockIn(ctx, ClockInInput{WorkerID: "w-1", JobID: "job-1", Notes: "south wall prep"})
	require.NoError(t, err)
	assert.Equal(t, model.ClockConfirmed, res.Status)
	assert.Equal(t, "te-1", res.TimeEntryID)
	require.NotNil(t, res.Verdict)
	assert.Equal(t, model.VerdictInside, res.Verdict.Kind)

	n, err := f.queue.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	// The verdict is on the event's audit trail.
	trail, err := f.store.ListEvaluations(ctx, res.EventID)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, model.VerdictInside, trail[0].Kind)

	// The idempotency key rode to the backend.
	require.Len(t, f.svc.inCalls, 1)
	assert.Equal(t, res.EventID, f.svc.inCalls[0].ClientEventID)
	assert.Equal(t, "south wall prep", f.svc.inCalls[0].Notes)
}

func TestClockIn_OfflineQueuesPending(t *testing.T) {
	f := newFixture(t, connectivity.Offline, nil)
	ctx := context.Background()

	res, err := f.orch.ClockIn(ctx, ClockInInput{WorkerID: "w-1", JobID: "job-1"})
	require.NoError(t, err)
	assert.Equal(t, model.ClockPendingSync, res.Status)
	assert.NotEmpty(t, res.EventID)
	assert.Empty(t, res.TimeEntryID)

	n, err := f.queue.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Reconnect drains the queued operation.
	stats := f.queue.DrainOnce(ctx)
	assert.Equal(t, 1, stats.Sent)
	require.Len(t, f.svc.inCalls, 1)
	assert.Equal(t, res.EventID, f.svc.inCalls[0].ClientEventID)
}

func TestClockIn_DoubleTapProducesOneOperation(t *testing.T) {
	f := newFixture(t, connectivity.Offline, nil)
	ctx := context.Background()

	first, err := f.orch.ClockIn(ctx, ClockInInput{WorkerID: "w-1", JobID: "job-1"})
	require.NoError(t, err)
	second, err := f.orch.ClockIn(ctx, ClockInInput{WorkerID: "w-1", JobID: "job-1"})
	require.NoError(t, err)

	assert.Equal(t, first.EventID, second.EventID, "in-flight binding reuses the key")

	n, err := f.queue.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "dedup collapses the double tap")
}

func TestClockIn_NewEventAfterSync(t *testing.T) {
	f := newFixture(t, connectivity.Online, nil)
	ctx := context.Background()

	first, err := f.orch.ClockIn(ctx, ClockInInput{WorkerID: "w-1", JobID: "job-1"})
	require.NoError(t, err)
	require.Equal(t, model.ClockConfirmed, first.Status)

	second, err := f.orch.ClockIn(ctx, ClockInInput{WorkerID: "w-1", JobID: "job-1"})
	require.NoError(t, err)
	assert.NotEqual(t, first.EventID, second.EventID, "a synced action releases its binding")
}

func TestClockIn_OutsideGraceRejectsWithEscalation(t *testing.T) {
	shift := time.Now().UTC().Add(-2 * time.Minute)
	f := newFixture(t, connectivity.Online, &shift)
	f.provider.SetFix(func(model.AccuracyTier) (model.LocationReading, error) { return offSiteFix(), nil })
	ctx := context.Background()

	res, err := f.orch.ClockIn(ctx, ClockInInput{WorkerID: "w-1", JobID: "job-1"})
	require.NoError(t, err)
	assert.Equal(t, model.ClockRejected, res.Status)
	require.NotNil(t, res.Verdict)
	assert.Equal(t, model.VerdictOutsideGrace, res.Verdict.Kind)
	assert.True(t, res.Verdict.Actionable())
	assert.NotEmpty(t, res.Message)

	n, err := f.queue.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "rejected actions are never enqueued")
	assert.Empty(t, f.svc.inCalls)
}

func TestClockIn_OverrideFlowEndToEnd(t *testing.T) {
	shift := time.Now().UTC().Add(-2 * time.Minute)
	f := newFixture(t, connectivity.Online, &shift)
	f.provider.SetFix(func(model.AccuracyTier) (model.LocationReading, error) { return offSiteFix(), nil })
	ctx := context.Background()

	rejected, err := f.orch.ClockIn(ctx, ClockInInput{WorkerID: "w-1", JobID: "job-1"})
	require.NoError(t, err)
	require.Equal(t, model.ClockRejected, rejected.Status)

	req, err := f.orch.RequestOverride(ctx, rejected.EventID, "w-1", "job-1", "sup-1", "gate locked, parked outside")
	require.NoError(t, err)

	// Resume before approval is rejected.
	_, err = f.orch.ResumeApproved(ctx, req.ID)
	assert.ErrorIs(t, err, ErrOverrideNotApproved)

	eval := geofence.NewEvaluator(f.store, nil, geofence.DefaultOptions())
	_, err = eval.ApproveOverride(ctx, req.ID, "sup-1")
	require.NoError(t, err)

	res, err := f.orch.ResumeApproved(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ClockConfirmed, res.Status)
	assert.Equal(t, rejected.EventID, res.EventID, "approval resumes the original event")

	// The trail tells the whole story on one event ID.
	trail, err := f.store.ListEvaluations(ctx, rejected.EventID)
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, model.VerdictOutsideGrace, trail[0].Kind)
	assert.Equal(t, model.VerdictOverrideApproved, trail[1].Kind)
}

func TestClockIn_ViolationAlertDebounced(t *testing.T) {
	f := newFixture(t, connectivity.Online, nil) // no shift start, no grace
	f.provider.SetFix(func(model.AccuracyTier) (model.LocationReading, error) { return offSiteFix(), nil })
	ctx := context.Background()

	res, err := f.orch.ClockIn(ctx, ClockInInput{WorkerID: "w-1", JobID: "job-1"})
	require.NoError(t, err)
	assert.Equal(t, model.ClockRejected, res.Status)
	assert.Equal(t, model.VerdictOutsideViolation, res.Verdict.Kind)
	assert.NotEmpty(t, res.Message, "first violation shows the alert")

	res, err = f.orch.ClockIn(ctx, ClockInInput{WorkerID: "w-1", JobID: "job-1"})
	require.NoError(t, err)
	assert.Equal(t, model.ClockRejected, res.Status)
	assert.Empty(t, res.Message, "repeat violation inside the cooldown is silenced")
}

func TestClockIn_PermissionErrorSurfaces(t *testing.T) {
	f := newFixture(t, connectivity.Online, nil)
	f.provider.SetPermission(model.PermissionDenied)

	_, err := f.orch.ClockIn(context.Background(), ClockInInput{WorkerID: "w-1", JobID: "job-1"})
	assert.ErrorIs(t, err, location.ErrPermissionDenied)

	// A failed attempt releases its binding; the retry mints a fresh key.
	f.provider.SetPermission(model.PermissionGranted)
	res, err := f.orch.ClockIn(context.Background(), ClockInInput{WorkerID: "w-1", JobID: "job-1"})
	require.NoError(t, err)
	assert.Equal(t, model.ClockConfirmed, res.Status)
}

func TestClockOut_NeverBlockedByGeofence(t *testing.T) {
	f := newFixture(t, connectivity.Online, nil)
	f.provider.SetFix(func(model.AccuracyTier) (model.LocationReading, error) { return offSiteFix(), nil })
	ctx := context.Background()

	res, err := f.orch.ClockOut(ctx, ClockOutInput{WorkerID: "w-1", JobID: "job-1", TimeEntryID: "te-1"})
	require.NoError(t, err)
	assert.Equal(t, model.ClockConfirmed, res.Status)
	assert.Equal(t, "shift capped at 12 hours", res.Warning)

	// The off-site verdict is still recorded for the audit trail.
	trail, err := f.store.ListEvaluations(ctx, res.EventID)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, model.VerdictOutsideViolation, trail[0].Kind)
}
