// Package queue is the durable offline-first operation queue. Clock actions
// are always enqueued, the queue attempts an immediate drain when the device
// looks online, and a connectivity transition to online triggers a drain of
// whatever is still pending. Deduplication is by idempotency key at the
// storage layer, so a double tap or an enqueue-after-crash replay can never
// produce two operations.
package queue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/brushhour/fieldclock/internal/connectivity"
	"github.com/brushhour/fieldclock/internal/model"
	"github.com/brushhour/fieldclock/internal/remote"
	"github.com/brushhour/fieldclock/internal/resilience"
)

// SyncResult is delivered to the synced callback when a queued operation is
// acknowledged by the backend.
type SyncResult struct {
	EventID     string
	Type        model.OperationType
	TimeEntryID string // set for clock-ins
	Warning     string // set for clock-outs when the backend warns
}

// Options configures a Queue. Zero values take defaults.
type Options struct {
	Backoff resilience.Backoff
	Circuit resilience.CircuitConfig

	// OnSynced observes successful sends. Called synchronously from the
	// drain, so it must be fast.
	OnSynced func(SyncResult)

	// OnPendingChange observes the pending count after every change. Drives
	// the UI's pending-sync badge.
	OnPendingChange func(count int)
}

// Queue owns drain scheduling over the durable operation store.
type Queue struct {
	store   Store
	svc     remote.Service
	source  connectivity.Source
	backoff resilience.Backoff
	circuit *resilience.Circuit

	// drainSem is the single-drain guard. A drain entered while another is
	// in flight returns immediately; the pending operations will be picked
	// up by the drain already running or by the next trigger.
	drainSem *semaphore.Weighted

	mu       sync.Mutex
	onSynced func(SyncResult)
	onCount  func(int)

	now func() time.Time
}

// Store is the slice of the durable store the queue needs.
type Store interface {
	InsertOperation(ctx context.Context, op model.QueuedOperation) (bool, error)
	ListOperations(ctx context.Context) ([]model.QueuedOperation, error)
	DeleteOperation(ctx context.Context, eventID string) error
	RecordAttempt(ctx context.Context, eventID string, at time.Time) error
	CountOperations(ctx context.Context) (int, error)
	ClearOperations(ctx context.Context) (int, error)
}

// New builds a Queue over a store, a clock backend, and a connectivity
// source.
func New(s Store, svc remote.Service, source connectivity.Source, opts Options) *Queue {
	return &Queue{
		store:    s,
		svc:      svc,
		source:   source,
		backoff:  opts.Backoff,
		circuit:  resilience.NewCircuit(opts.Circuit),
		drainSem: semaphore.NewWeighted(1),
		onSynced: opts.OnSynced,
		onCount:  opts.OnPendingChange,
		now:      time.Now,
	}
}

// Enqueue persists an operation if its idempotency key is not already queued,
// then attempts an immediate drain when the device looks online. Returns
// whether the operation was newly inserted; false means the key was already
// queued and nothing changed.
func (q *Queue) Enqueue(ctx context.Context, op model.QueuedOperation) (bool, error) {
	if op.EnqueuedAt.IsZero() {
		op.EnqueuedAt = q.now()
	}
	inserted, err := q.store.InsertOperation(ctx, op)
	if err != nil {
		return false, eris.Wrap(err, "queue: enqueue")
	}
	if !inserted {
		zap.L().Debug("queue: duplicate enqueue ignored", zap.String("event_id", op.EventID))
		return false, nil
	}

	q.notifyPending(ctx)
	if q.source != nil && q.source.Current() == connectivity.Online {
		q.DrainOnce(ctx)
	}
	return true, nil
}

// DrainStats summarizes one drain pass.
type DrainStats struct {
	// Skipped is true when another drain held the guard and this call did
	// nothing.
	Skipped   bool
	Attempted int
	Sent      int
	Failed    int
	Deferred  int // still inside their backoff window
}

// DrainOnce walks the queue once in enqueue order, attempting each eligible
// operation at most once. Failures stay queued for the next pass. Only one
// drain runs at a time; concurrent calls are no-ops.
func (q *Queue) DrainOnce(ctx context.Context) DrainStats {
	return q.drain(ctx, false)
}

func (q *Queue) drain(ctx context.Context, force bool) DrainStats {
	if !q.drainSem.TryAcquire(1) {
		return DrainStats{Skipped: true}
	}
	defer q.drainSem.Release(1)

	ops, err := q.store.ListOperations(ctx)
	if err != nil {
		zap.L().Error("queue: list for drain", zap.Error(err))
		return DrainStats{}
	}
	if len(ops) == 0 {
		return DrainStats{}
	}

	var stats DrainStats
	now := q.now()
	for _, op := range ops {
		if ctx.Err() != nil {
			break
		}
		if !force && !q.backoff.Eligible(op.RetryCount, op.LastAttemptAt, now) {
			stats.Deferred++
			continue
		}

		stats.Attempted++
		res, err := q.send(ctx, op)
		if err != nil {
			stats.Failed++
			if recErr := q.store.RecordAttempt(ctx, op.EventID, q.now()); recErr != nil {
				zap.L().Error("queue: record attempt", zap.String("event_id", op.EventID), zap.Error(recErr))
			}
			zap.L().Warn("queue: send failed",
				zap.String("event_id", op.EventID),
				zap.String("type", string(op.Type)),
				zap.Int("retry_count", op.RetryCount+1),
				zap.Error(err),
			)
			continue
		}

		if err := q.store.DeleteOperation(ctx, op.EventID); err != nil {
			// The backend accepted the operation; a replay is safe because
			// the backend dedupes on client_event_id.
			zap.L().Error("queue: remove synced operation", zap.String("event_id", op.EventID), zap.Error(err))
			stats.Failed++
			continue
		}
		stats.Sent++
		q.notifySynced(res)
	}

	if stats.Sent > 0 {
		q.notifyPending(ctx)
	}
	zap.L().Debug("queue: drain pass complete",
		zap.Int("attempted", stats.Attempted),
		zap.Int("sent", stats.Sent),
		zap.Int("failed", stats.Failed),
		zap.Int("deferred", stats.Deferred),
	)
	return stats
}

// send dispatches one operation through the circuit breaker.
func (q *Queue) send(ctx context.Context, op model.QueuedOperation) (SyncResult, error) {
	res := SyncResult{EventID: op.EventID, Type: op.Type}
	err := q.circuit.Do(ctx, func(ctx context.Context) error {
		switch op.Type {
		case model.OpClockIn:
			var req remote.ClockInRequest
			if err := json.Unmarshal(op.Payload, &req); err != nil {
				return eris.Wrapf(err, "queue: decode clock-in payload %s", op.EventID)
			}
			req.ClientEventID = op.EventID
			out, err := q.svc.ClockIn(ctx, req)
			if err != nil {
				return err
			}
			res.TimeEntryID = out.TimeEntryID
			return nil
		case model.OpClockOut:
			var req remote.ClockOutRequest
			if err := json.Unmarshal(op.Payload, &req); err != nil {
				return eris.Wrapf(err, "queue: decode clock-out payload %s", op.EventID)
			}
			req.ClientEventID = op.EventID
			out, err := q.svc.ClockOut(ctx, req)
			if err != nil {
				return err
			}
			res.Warning = out.Warning
			return nil
		default:
			return eris.Errorf("queue: unknown operation type %q", op.Type)
		}
	})
	return res, err
}

// Replay forces a drain pass regardless of backoff or circuit state. Used by
// the operator replay command; an explicit human retry should never be
// rejected by a stale open circuit.
func (q *Queue) Replay(ctx context.Context) DrainStats {
	q.circuit.Reset()
	return q.drain(ctx, true)
}

// PendingCount returns the number of queued operations.
func (q *Queue) PendingCount(ctx context.Context) (int, error) {
	n, err := q.store.CountOperations(ctx)
	return n, eris.Wrap(err, "queue: pending count")
}

// Clear drops every queued operation. Destructive; exposed for the operator
// clear command only.
func (q *Queue) Clear(ctx context.Context) (int, error) {
	n, err := q.store.ClearOperations(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "queue: clear")
	}
	q.notifyPending(ctx)
	return n, nil
}

// Run subscribes to connectivity transitions and drains on every offline to
// online edge while anything is pending. Blocks until ctx is done or the
// source closes its watch channel.
func (q *Queue) Run(ctx context.Context) {
	if q.source == nil {
		<-ctx.Done()
		return
	}
	watch := q.source.Watch()
	for {
		select {
		case <-ctx.Done():
			return
		case state, ok := <-watch:
			if !ok {
				return
			}
			if state != connectivity.Online {
				continue
			}
			n, err := q.PendingCount(ctx)
			if err != nil {
				zap.L().Error("queue: pending count on reconnect", zap.Error(err))
				continue
			}
			if n == 0 {
				continue
			}
			zap.L().Info("queue: connectivity restored, draining", zap.Int("pending", n))
			q.DrainOnce(ctx)
		}
	}
}

// SetOnSynced replaces the synced callback. The orchestrator wires itself in
// here after both it and the queue exist.
func (q *Queue) SetOnSynced(fn func(SyncResult)) {
	q.mu.Lock()
	q.onSynced = fn
	q.mu.Unlock()
}

// SetOnPendingChange replaces the pending-count observer.
func (q *Queue) SetOnPendingChange(fn func(int)) {
	q.mu.Lock()
	q.onCount = fn
	q.mu.Unlock()
}

func (q *Queue) notifySynced(res SyncResult) {
	q.mu.Lock()
	cb := q.onSynced
	q.mu.Unlock()
	if cb != nil {
		cb(res)
	}
}

func (q *Queue) notifyPending(ctx context.Context) {
	q.mu.Lock()
	cb := q.onCount
	q.mu.Unlock()
	if cb == nil {
		return
	}
	n, err := q.store.CountOperations(ctx)
	if err != nil {
		zap.L().Error("queue: pending count", zap.Error(err))
		return
	}
	cb(n)
}
