package geofence

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/brushhour/fieldclock/internal/model"
	"github.com/brushhour/fieldclock/internal/store"
)

var (
	ErrOverrideNotFound = eris.New("geofence: override not found")
	ErrUnauthorized     = eris.New("geofence: supervisor not authorized for this override")
	ErrAlreadyResolved  = eris.New("geofence: override already resolved")
)

// Notifier delivers an override request to the assigned supervisor.
type Notifier interface {
	NotifySupervisor(ctx context.Context, req model.OverrideRequest) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, req model.OverrideRequest) error

func (f NotifierFunc) NotifySupervisor(ctx context.Context, req model.OverrideRequest) error {
	return f(ctx, req)
}

// OverrideInput is what a worker supplies when escalating a failed check.
type OverrideInput struct {
	EventID      string
	WorkerID     string
	JobID        string
	SupervisorID string
	Reason       string
	Location     model.LocationReading
}

// RequestOverride records a pending supervisor override and notifies the
// supervisor. Notification failure does not fail the request; the override
// is durable and still shows up in the supervisor's pending list.
func (e *Evaluator) RequestOverride(ctx context.Context, in OverrideInput) (*model.OverrideRequest, error) {
	req := model.OverrideRequest{
		ID:           uuid.New().String(),
		EventID:      in.EventID,
		WorkerID:     in.WorkerID,
		JobID:        in.JobID,
		SupervisorID: in.SupervisorID,
		Reason:       in.Reason,
		Location:     in.Location,
		Status:       model.OverridePending,
		RequestedAt:  e.now(),
	}
	if err := e.store.InsertOverride(ctx, req); err != nil {
		return nil, eris.Wrap(err, "geofence: persist override request")
	}

	if e.notifier != nil {
		if err := e.notifier.NotifySupervisor(ctx, req); err != nil {
			zap.L().Warn("geofence: notify supervisor",
				zap.String("override_id", req.ID),
				zap.String("supervisor_id", req.SupervisorID),
				zap.Error(err),
			)
		}
	}
	return &req, nil
}

// ApproveOverride resolves a pending override as approved and appends an
// override_approved verdict to the originating event's audit trail. The prior
// verdicts are left untouched.
func (e *Evaluator) ApproveOverride(ctx context.Context, overrideID, supervisorID string) (*model.GeofenceVerdict, error) {
	req, err := e.loadForResolution(ctx, overrideID, supervisorID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	updated, err := e.store.ResolveOverride(ctx, overrideID, model.OverrideApproved, supervisorID, "", now)
	if err != nil {
		return nil, eris.Wrapf(err, "geofence: approve override %s", overrideID)
	}
	if !updated {
		return nil, ErrAlreadyResolved
	}

	v := model.GeofenceVerdict{
		Kind:        model.VerdictOverrideApproved,
		EvaluatedAt: now,
		Override: &model.OverrideMeta{
			ApproverID: supervisorID,
			Reason:     req.Reason,
			ApprovedAt: now,
		},
	}
	if req.EventID != "" {
		if err := e.StoreEvaluation(ctx, req.EventID, v); err != nil {
			return nil, err
		}
	}

	zap.L().Info("geofence: override approved",
		zap.String("override_id", overrideID),
		zap.String("supervisor_id", supervisorID),
		zap.String("event_id", req.EventID),
	)
	return &v, nil
}

// DenyOverride resolves a pending override as denied with the supervisor's
// stated reason.
func (e *Evaluator) DenyOverride(ctx context.Context, overrideID, supervisorID, reason string) error {
	if _, err := e.loadForResolution(ctx, overrideID, supervisorID); err != nil {
		return err
	}

	updated, err := e.store.ResolveOverride(ctx, overrideID, model.OverrideDenied, supervisorID, reason, e.now())
	if err != nil {
		return eris.Wrapf(err, "geofence: deny override %s", overrideID)
	}
	if !updated {
		return ErrAlreadyResolved
	}

	zap.L().Info("geofence: override denied",
		zap.String("override_id", overrideID),
		zap.String("supervisor_id", supervisorID),
	)
	return nil
}

// PendingOverrides lists a supervisor's unresolved override requests, oldest
// first.
func (e *Evaluator) PendingOverrides(ctx context.Context, supervisorID string) ([]model.OverrideRequest, error) {
	reqs, err := e.store.ListPendingOverrides(ctx, supervisorID)
	return reqs, eris.Wrapf(err, "geofence: list pending overrides for %s", supervisorID)
}

func (e *Evaluator) loadForResolution(ctx context.Context, overrideID, supervisorID string) (*model.OverrideRequest, error) {
	req, err := e.store.GetOverride(ctx, overrideID)
	if eris.Is(err, store.ErrNotFound) {
		return nil, ErrOverrideNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "geofence: load override %s", overrideID)
	}
	if req.SupervisorID != supervisorID {
		return nil, ErrUnauthorized
	}
	if req.Status != model.OverridePending {
		return nil, ErrAlreadyResolved
	}
	return req, nil
}
