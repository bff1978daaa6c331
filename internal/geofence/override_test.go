package geofence

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brushhour/fieldclock/internal/model"
)

func overrideInput() OverrideInput {
	return OverrideInput{
		EventID:      "1700000000000-ev",
		WorkerID:     "w-1",
		JobID:        "job-1",
		SupervisorID: "sup-1",
		Reason:       "parking lot across the street",
		Location:     fixNear(39.7405, -104.9903, 2),
	}
}

func TestRequestOverride_PersistsAndNotifies(t *testing.T) {
	var notified []model.OverrideRequest
	notifier := NotifierFunc(func(_ context.Context, req model.OverrideRequest) error {
		notified = append(notified, req)
		return nil
	})
	e, _ := newTestEvaluator(t, notifier)
	ctx := context.Background()

	req, err := e.RequestOverride(ctx, overrideInput())
	require.NoError(t, err)
	assert.NotEmpty(t, req.ID)
	assert.Equal(t, model.OverridePending, req.Status)
	assert.Equal(t, "1700000000000-ev", req.EventID)

	require.Len(t, notified, 1)
	assert.Equal(t, req.ID, notified[0].ID)

	pending, err := e.PendingOverrides(ctx, "sup-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, req.ID, pending[0].ID)
}

func TestRequestOverride_SurvivesNotifierFailure(t *testing.T) {
	notifier := NotifierFunc(func(context.Context, model.OverrideRequest) error {
		return eris.New("push gateway down")
	})
	e, _ := newTestEvaluator(t, notifier)

	req, err := e.RequestOverride(context.Background(), overrideInput())
	require.NoError(t, err, "notification failure must not lose the override")

	pending, err := e.PendingOverrides(context.Background(), "sup-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, req.ID, pending[0].ID)
}

func TestApproveOverride_AppendsNewVerdict(t *testing.T) {
	e, _ := newTestEvaluator(t, nil)
	ctx := context.Background()

	// The original failing verdict is already on the trail.
	original := model.GeofenceVerdict{Kind: model.VerdictOutsideGrace, DistanceMeters: 220, RadiusMeters: 150, WithinGrace: true, EvaluatedAt: e.now()}
	require.NoError(t, e.StoreEvaluation(ctx, "1700000000000-ev", original))

	req, err := e.RequestOverride(ctx, overrideInput())
	require.NoError(t, err)

	v, err := e.ApproveOverride(ctx, req.ID, "sup-1")
	require.NoError(t, err)
	assert.Equal(t, model.VerdictOverrideApproved, v.Kind)
	require.NotNil(t, v.Override)
	assert.Equal(t, "sup-1", v.Override.ApproverID)
	assert.Equal(t, "parking lot across the street", v.Override.Reason)

	// The trail keeps the failing verdict and gains the approval.
	trail, err := e.HistoricalEvaluations(ctx, "1700000000000-ev")
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, model.VerdictOutsideGrace, trail[0].Kind)
	assert.Equal(t, model.VerdictOverrideApproved, trail[1].Kind)

	pending, err := e.PendingOverrides(ctx, "sup-1")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestApproveOverride_WrongSupervisor(t *testing.T) {
	e, _ := newTestEvaluator(t, nil)
	ctx := context.Background()

	req, err := e.RequestOverride(ctx, overrideInput())
	require.NoError(t, err)

	_, err = e.ApproveOverride(ctx, req.ID, "sup-2")
	assert.ErrorIs(t, err, ErrUnauthorized)

	// Still pending for the right supervisor.
	pending, err := e.PendingOverrides(ctx, "sup-1")
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestApproveOverride_NotFound(t *testing.T) {
	e, _ := newTestEvaluator(t, nil)
	_, err := e.ApproveOverride(context.Background(), "missing", "sup-1")
	assert.ErrorIs(t, err, ErrOverrideNotFound)
}

func TestApproveOverride_AlreadyResolved(t *testing.T) {
	e, _ := newTestEvaluator(t, nil)
	ctx := context.Background()

	req, err := e.RequestOverride(ctx, overrideInput())
	require.NoError(t, err)

	_, err = e.ApproveOverride(ctx, req.ID, "sup-1")
	require.NoError(t, err)

	_, err = e.ApproveOverride(ctx, req.ID, "sup-1")
	assert.ErrorIs(t, err, ErrAlreadyResolved)

	// A deny after an approve is also rejected.
	err = e.DenyOverride(ctx, req.ID, "sup-1", "too late")
	assert.ErrorIs(t, err, ErrAlreadyResolved)
}

func TestDenyOverride(t *testing.T) {
	e, _ := newTestEvaluator(t, nil)
	ctx := context.Background()

	req, err := e.RequestOverride(ctx, overrideInput())
	require.NoError(t, err)

	require.NoError(t, e.DenyOverride(ctx, req.ID, "sup-1", "no exceptions today"))

	// Denial adds nothing to the audit trail; the failing verdict stands.
	trail, err := e.HistoricalEvaluations(ctx, "1700000000000-ev")
	require.NoError(t, err)
	assert.Empty(t, trail)

	pending, err := e.PendingOverrides(ctx, "sup-1")
	require.NoError(t, err)
	assert.Empty(t, pending)
}
