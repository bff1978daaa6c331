// Package geofence decides whether a clock action happened on site. It
// produces tiered verdicts, debounces repeated boundary alerts, and keeps an
// append-only evaluation trail per clock event.
package geofence

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/brushhour/fieldclock/internal/geodesy"
	"github.com/brushhour/fieldclock/internal/model"
	"github.com/brushhour/fieldclock/internal/store"
)

const (
	// DefaultGraceWindow is how long after shift start an off-site worker
	// still gets the soft outside_grace verdict instead of a violation.
	DefaultGraceWindow = 5 * time.Minute

	// DefaultAlertCooldown suppresses repeat boundary alerts for the same
	// worker and job.
	DefaultAlertCooldown = 15 * time.Minute

	// MinSignals is the number of independent positioning signals a reading
	// needs before the evaluator will trust it.
	MinSignals = 2
)

// Options tunes the evaluator. The zero value is normalized to defaults.
type Options struct {
	GraceWindow        time.Duration
	AlertCooldown      time.Duration
	RequireMultiSignal bool
}

// DefaultOptions returns the production evaluator settings.
func DefaultOptions() Options {
	return Options{
		GraceWindow:        DefaultGraceWindow,
		AlertCooldown:      DefaultAlertCooldown,
		RequireMultiSignal: true,
	}
}

func (o Options) normalized() Options {
	if o.GraceWindow <= 0 {
		o.GraceWindow = DefaultGraceWindow
	}
	if o.AlertCooldown <= 0 {
		o.AlertCooldown = DefaultAlertCooldown
	}
	return o
}

// Evaluator runs geofence checks against the durable store.
type Evaluator struct {
	store    store.Store
	opts     Options
	notifier Notifier
	now      func() time.Time
}

// NewEvaluator builds an Evaluator. notifier may be nil when supervisor
// escalation is not wired (for example in backfill tooling).
func NewEvaluator(s store.Store, notifier Notifier, opts Options) *Evaluator {
	return &Evaluator{
		store:    s,
		opts:     opts.normalized(),
		notifier: notifier,
		now:      time.Now,
	}
}

// Evaluate classifies a location reading against a job site's geofence.
// The verdict is pure output; persisting it to the audit trail is the
// caller's decision via StoreEvaluation.
func (e *Evaluator) Evaluate(reading model.LocationReading, site model.JobSite) model.GeofenceVerdict {
	now := e.now()
	radius := site.Geofence.Radius()

	if e.opts.RequireMultiSignal && reading.SignalCount() < MinSignals {
		zap.L().Debug("geofence: reading below signal floor",
			zap.String("job_id", site.ID),
			zap.Int("signals", reading.SignalCount()),
		)
		return model.GeofenceVerdict{
			Kind:         model.VerdictIndeterminate,
			RadiusMeters: radius,
			EvaluatedAt:  now,
		}
	}

	distance := geodesy.Distance(reading.Latitude, reading.Longitude, site.Geofence.CenterLat, site.Geofence.CenterLng)
	v := model.GeofenceVerdict{
		DistanceMeters: distance,
		RadiusMeters:   radius,
		EvaluatedAt:    now,
	}

	// The boundary itself counts as inside.
	if distance <= radius {
		v.Kind = model.VerdictInside
		return v
	}

	if e.withinGrace(site, now) {
		v.Kind = model.VerdictOutsideGrace
		v.WithinGrace = true
		return v
	}

	v.Kind = model.VerdictOutsideViolation
	zap.L().Info("geofence: boundary violation",
		zap.String("job_id", site.ID),
		zap.Float64("distance_m", distance),
		zap.Float64("radius_m", radius),
	)
	return v
}

// withinGrace reports whether now falls inside the post-shift-start grace
// window. A site without a shift start has no window to anchor to, so the
// check is conservative and grants no grace.
func (e *Evaluator) withinGrace(site model.JobSite, now time.Time) bool {
	if site.ShiftStart == nil {
		return false
	}
	// Early arrivals (before shift start) are always within grace.
	return now.Sub(*site.ShiftStart) <= e.opts.GraceWindow
}

// ShouldShowAlert reports whether a boundary alert for this worker and job is
// outside the debounce cooldown. Callers that show the alert must follow up
// with RecordAlertShown.
func (e *Evaluator) ShouldShowAlert(ctx context.Context, workerID, jobID string) (bool, error) {
	rec, err := e.store.GetAlertDebounce(ctx, workerID, jobID)
	if err != nil {
		return false, eris.Wrap(err, "geofence: load alert debounce")
	}
	if rec == nil {
		return true, nil
	}
	return e.now().Sub(rec.LastShownAt) >= e.opts.AlertCooldown, nil
}

// RecordAlertShown stamps the debounce record for a worker and job.
func (e *Evaluator) RecordAlertShown(ctx context.Context, workerID, jobID string) error {
	rec := model.AlertDebounceRecord{WorkerID: workerID, JobID: jobID, LastShownAt: e.now()}
	return eris.Wrap(e.store.PutAlertDebounce(ctx, rec), "geofence: record alert shown")
}

// StoreEvaluation appends a verdict to the audit trail for a clock event.
// Verdicts are immutable once stored; corrections append a new verdict.
func (e *Evaluator) StoreEvaluation(ctx context.Context, eventID string, v model.GeofenceVerdict) error {
	return eris.Wrapf(e.store.AppendEvaluation(ctx, eventID, v), "geofence: store evaluation %s", eventID)
}

// HistoricalEvaluations returns every verdict recorded for a clock event, in
// the order they were appended.
func (e *Evaluator) HistoricalEvaluations(ctx context.Context, eventID string) ([]model.GeofenceVerdict, error) {
	vs, err := e.store.ListEvaluations(ctx, eventID)
	return vs, eris.Wrapf(err, "geofence: list evaluations %s", eventID)
}
