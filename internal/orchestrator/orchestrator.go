// Package orchestrator is the composition root of the clock pipeline. A clock
// action flows: acquire location with the fallback chain, evaluate the
// geofence, record the verdict, then hand the operation to the durable queue.
// The operation is always enqueued regardless of apparent connectivity;
// enqueue is cheap and idempotent and the queue attempts an immediate send
// when the device looks online, so "try direct then fall back to queue" and
// "always queue" behave identically and the latter is simpler.
package orchestrator

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/brushhour/fieldclock/internal/geofence"
	"github.com/brushhour/fieldclock/internal/ident"
	"github.com/brushhour/fieldclock/internal/location"
	"github.com/brushhour/fieldclock/internal/model"
	"github.com/brushhour/fieldclock/internal/queue"
	"github.com/brushhour/fieldclock/internal/remote"
	"github.com/brushhour/fieldclock/internal/store"
)

// ErrOverrideNotApproved is returned when a resume is attempted for an
// override that is still pending or was denied.
var ErrOverrideNotApproved = eris.New("orchestrator: override not approved")

// Orchestrator wires location, geofence, and the operation queue into the
// clock-in/out flow.
type Orchestrator struct {
	provider location.Provider
	eval     *geofence.Evaluator
	queue    *queue.Queue
	store    store.Store
	acquire  location.AcquireConfig

	newEventID func() string

	// The in-flight registry binds an event ID to a clock action for its
	// whole duration, so a double tap reuses the key of the attempt already
	// running and the queue's dedup collapses the two into one operation.
	mu         sync.Mutex
	inflight   map[string]string            // action key -> event ID
	eventToKey map[string]string            // event ID -> action key
	waiting    map[string]bool              // event IDs a caller is blocked on
	synced     map[string]queue.SyncResult  // results for waiting callers
}

// New builds an Orchestrator and registers it as the queue's synced observer.
func New(provider location.Provider, eval *geofence.Evaluator, q *queue.Queue, s store.Store) *Orchestrator {
	o := &Orchestrator{
		provider:   provider,
		eval:       eval,
		queue:      q,
		store:      s,
		acquire:    location.DefaultAcquireConfig(),
		newEventID: ident.NewEventID,
		inflight:   make(map[string]string),
		eventToKey: make(map[string]string),
		waiting:    make(map[string]bool),
		synced:     make(map[string]queue.SyncResult),
	}
	q.SetOnSynced(o.handleSynced)
	return o
}

// ClockInInput is a worker's clock-in request.
type ClockInInput struct {
	WorkerID string
	JobID    string
	Notes    string
}

// ClockOutInput is a worker's clock-out request.
type ClockOutInput struct {
	WorkerID    string
	JobID       string
	TimeEntryID string
}

// ClockIn runs the full clock-in pipeline. The returned result is Confirmed
// when the backend acknowledged during the call, PendingSync when the
// operation is queued for later delivery, and Rejected when the geofence
// blocked the action.
func (o *Orchestrator) ClockIn(ctx context.Context, in ClockInInput) (model.ClockResult, error) {
	eventID, isNew := o.claimEvent(in.WorkerID, in.JobID, model.OpClockIn)
	if !isNew {
		zap.L().Info("orchestrator: duplicate clock-in tap joins in-flight attempt",
			zap.String("event_id", eventID))
	}

	reading, site, verdict, err := o.locateAndEvaluate(ctx, eventID, in.JobID)
	if err != nil {
		o.releaseEvent(eventID)
		return model.ClockResult{}, err
	}

	if blocked := o.rejectIfBlocked(ctx, eventID, in.WorkerID, in.JobID, verdict); blocked != nil {
		o.releaseEvent(eventID)
		return *blocked, nil
	}

	payload, err := json.Marshal(remote.ClockInRequest{
		JobID:          site.ID,
		Latitude:       reading.Latitude,
		Longitude:      reading.Longitude,
		AccuracyMeters: reading.AccuracyMeters,
		Notes:          in.Notes,
	})
	if err != nil {
		o.releaseEvent(eventID)
		return model.ClockResult{}, eris.Wrap(err, "orchestrator: marshal clock-in payload")
	}

	return o.dispatch(ctx, eventID, model.OpClockIn, payload, verdict)
}

// ClockOut runs the clock-out pipeline. The geofence is evaluated and the
// verdict recorded for the audit trail, but an off-site verdict never blocks
// a clock-out; a worker must always be able to end a shift.
func (o *Orchestrator) ClockOut(ctx context.Context, in ClockOutInput) (model.ClockResult, error) {
	eventID, isNew := o.claimEvent(in.WorkerID, in.JobID, model.OpClockOut)
	if !isNew {
		zap.L().Info("orchestrator: duplicate clock-out tap joins in-flight attempt",
			zap.String("event_id", eventID))
	}

	reading, _, verdict, err := o.locateAndEvaluate(ctx, eventID, in.JobID)
	if err != nil {
		o.releaseEvent(eventID)
		return model.ClockResult{}, err
	}

	payload, err := json.Marshal(remote.ClockOutRequest{
		TimeEntryID:    in.TimeEntryID,
		Latitude:       reading.Latitude,
		Longitude:      reading.Longitude,
		AccuracyMeters: reading.AccuracyMeters,
	})
	if err != nil {
		o.releaseEvent(eventID)
		return model.ClockResult{}, eris.Wrap(err, "orchestrator: marshal clock-out payload")
	}

	return o.dispatch(ctx, eventID, model.OpClockOut, payload, verdict)
}

// RequestOverride escalates a rejected clock attempt to the worker's
// supervisor. eventID is the rejected attempt's event ID from the ClockResult,
// so an eventual approval lands on the same audit trail.
func (o *Orchestrator) RequestOverride(ctx context.Context, eventID, workerID, jobID, supervisorID, reason string) (*model.OverrideRequest, error) {
	reading, err := location.Acquire(ctx, o.provider, o.acquire)
	if err != nil {
		// The last verdict already captured a location; escalation should
		// not fail just because the fix aged out.
		if cached, cacheErr := o.provider.GetCachedLocation(ctx); cacheErr == nil && cached != nil {
			reading = *cached
		} else {
			return nil, err
		}
	}
	return o.eval.RequestOverride(ctx, geofence.OverrideInput{
		EventID:      eventID,
		WorkerID:     workerID,
		JobID:        jobID,
		SupervisorID: supervisorID,
		Reason:       reason,
		Location:     reading,
	})
}

// ResumeApproved completes the clock-in that an approved override unblocked.
// The queued operation reuses the override's originating event ID, so a
// resume raced from two devices still produces a single operation.
func (o *Orchestrator) ResumeApproved(ctx context.Context, overrideID string) (model.ClockResult, error) {
	req, err := o.store.GetOverride(ctx, overrideID)
	if eris.Is(err, store.ErrNotFound) {
		return model.ClockResult{}, geofence.ErrOverrideNotFound
	}
	if err != nil {
		return model.ClockResult{}, eris.Wrapf(err, "orchestrator: load override %s", overrideID)
	}
	if req.Status != model.OverrideApproved {
		return model.ClockResult{}, ErrOverrideNotApproved
	}

	payload, err := json.Marshal(remote.ClockInRequest{
		JobID:          req.JobID,
		Latitude:       req.Location.Latitude,
		Longitude:      req.Location.Longitude,
		AccuracyMeters: req.Location.AccuracyMeters,
		Notes:          "supervisor override: " + req.Reason,
	})
	if err != nil {
		return model.ClockResult{}, eris.Wrap(err, "orchestrator: marshal override clock-in payload")
	}

	verdict := model.GeofenceVerdict{Kind: model.VerdictOverrideApproved}
	return o.dispatch(ctx, req.EventID, model.OpClockIn, payload, &verdict)
}

// locateAndEvaluate acquires a fix, loads the site, and records the verdict
// on the event's audit trail.
func (o *Orchestrator) locateAndEvaluate(ctx context.Context, eventID, jobID string) (model.LocationReading, *model.JobSite, *model.GeofenceVerdict, error) {
	reading, err := location.Acquire(ctx, o.provider, o.acquire)
	if err != nil {
		return model.LocationReading{}, nil, nil, err
	}

	site, err := o.store.GetJobSite(ctx, jobID)
	if err != nil {
		return model.LocationReading{}, nil, nil, eris.Wrapf(err, "orchestrator: load job site %s", jobID)
	}

	verdict := o.eval.Evaluate(reading, *site)
	if err := o.eval.StoreEvaluation(ctx, eventID, verdict); err != nil {
		// Audit write failure is logged, not fatal; the verdict still
		// gates the action.
		zap.L().Error("orchestrator: store evaluation", zap.String("event_id", eventID), zap.Error(err))
	}
	return reading, site, &verdict, nil
}

// rejectIfBlocked returns a Rejected result for verdicts that gate a
// clock-in, handling the alert debounce for violations. nil means proceed.
func (o *Orchestrator) rejectIfBlocked(ctx context.Context, eventID, workerID, jobID string, v *model.GeofenceVerdict) *model.ClockResult {
	switch v.Kind {
	case model.VerdictInside, model.VerdictOverrideApproved:
		return nil
	}

	res := &model.ClockResult{
		Status:  model.ClockRejected,
		EventID: eventID,
		Verdict: v,
		Message: v.StatusMessage(),
	}

	if v.Kind == model.VerdictOutsideViolation || v.Kind == model.VerdictOutsideGrace {
		show, err := o.eval.ShouldShowAlert(ctx, workerID, jobID)
		if err != nil {
			zap.L().Error("orchestrator: alert debounce check", zap.Error(err))
			return res
		}
		if !show {
			res.Message = ""
			return res
		}
		if err := o.eval.RecordAlertShown(ctx, workerID, jobID); err != nil {
			zap.L().Error("orchestrator: record alert shown", zap.Error(err))
		}
	}
	return res
}

// dispatch enqueues the operation and reports Confirmed if the queue's
// immediate send already got an acknowledgement, PendingSync otherwise.
func (o *Orchestrator) dispatch(ctx context.Context, eventID string, opType model.OperationType, payload []byte, verdict *model.GeofenceVerdict) (model.ClockResult, error) {
	o.markWaiting(eventID)
	defer o.unmarkWaiting(eventID)

	_, err := o.queue.Enqueue(ctx, model.QueuedOperation{
		EventID: eventID,
		Type:    opType,
		Payload: payload,
	})
	if err != nil {
		o.releaseEvent(eventID)
		return model.ClockResult{}, err
	}

	if res, ok := o.takeSynced(eventID); ok {
		return model.ClockResult{
			Status:      model.ClockConfirmed,
			EventID:     eventID,
			TimeEntryID: res.TimeEntryID,
			Warning:     res.Warning,
			Verdict:     verdict,
		}, nil
	}

	return model.ClockResult{
		Status:  model.ClockPendingSync,
		EventID: eventID,
		Verdict: verdict,
	}, nil
}

// claimEvent returns the event ID bound to this action, minting one if the
// action is not already in flight.
func (o *Orchestrator) claimEvent(workerID, jobID string, opType model.OperationType) (string, bool) {
	key := workerID + "|" + jobID + "|" + string(opType)
	o.mu.Lock()
	defer o.mu.Unlock()
	if id, ok := o.inflight[key]; ok {
		return id, false
	}
	id := o.newEventID()
	o.inflight[key] = id
	o.eventToKey[id] = key
	return id, true
}

func (o *Orchestrator) releaseEvent(eventID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if key, ok := o.eventToKey[eventID]; ok {
		delete(o.inflight, key)
		delete(o.eventToKey, eventID)
	}
}

func (o *Orchestrator) markWaiting(eventID string) {
	o.mu.Lock()
	o.waiting[eventID] = true
	o.mu.Unlock()
}

func (o *Orchestrator) unmarkWaiting(eventID string) {
	o.mu.Lock()
	delete(o.waiting, eventID)
	o.mu.Unlock()
}

func (o *Orchestrator) takeSynced(eventID string) (queue.SyncResult, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	res, ok := o.synced[eventID]
	if ok {
		delete(o.synced, eventID)
	}
	return res, ok
}

// handleSynced is the queue's synced callback. It hands the result to a
// caller blocked in dispatch and releases the action's in-flight binding.
func (o *Orchestrator) handleSynced(res queue.SyncResult) {
	o.mu.Lock()
	if o.waiting[res.EventID] {
		o.synced[res.EventID] = res
	}
	if key, ok := o.eventToKey[res.EventID]; ok {
		delete(o.inflight, key)
		delete(o.eventToKey, res.EventID)
	}
	o.mu.Unlock()
}
