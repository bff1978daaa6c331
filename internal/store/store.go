// Package store persists the clock pipeline's durable state: the pending
// operation queue, alert debounce records, the append-only geofence audit
// trail, override requests, the cached last-known location, and job sites.
//
// Two drivers are provided. SQLite backs the normal on-device deployment;
// Postgres backs shared job-site kiosks where several workers clock in on one
// terminal against a central database. The driver is selected by
// store.driver in config.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/brushhour/fieldclock/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = eris.New("store: not found")

// Store is the persistence interface for the clock pipeline. All times are
// stored in UTC.
type Store interface {
	// Operation queue. InsertOperation is insert-if-absent on the event ID
	// and reports whether a row was actually inserted; a duplicate key is
	// not an error. ListOperations returns pending operations in enqueue
	// order.
	InsertOperation(ctx context.Context, op model.QueuedOperation) (bool, error)
	ListOperations(ctx context.Context) ([]model.QueuedOperation, error)
	DeleteOperation(ctx context.Context, eventID string) error
	RecordAttempt(ctx context.Context, eventID string, at time.Time) error
	CountOperations(ctx context.Context) (int, error)
	ClearOperations(ctx context.Context) (int, error)

	// Alert debounce. Get returns nil when no record exists; Put overwrites.
	GetAlertDebounce(ctx context.Context, workerID, jobID string) (*model.AlertDebounceRecord, error)
	PutAlertDebounce(ctx context.Context, rec model.AlertDebounceRecord) error

	// Geofence audit trail, append-only and keyed by time entry.
	AppendEvaluation(ctx context.Context, timeEntryID string, v model.GeofenceVerdict) error
	ListEvaluations(ctx context.Context, timeEntryID string) ([]model.GeofenceVerdict, error)

	// Override requests. ResolveOverride only transitions rows still in
	// Pending and reports whether a row was updated.
	InsertOverride(ctx context.Context, req model.OverrideRequest) error
	GetOverride(ctx context.Context, id string) (*model.OverrideRequest, error)
	ResolveOverride(ctx context.Context, id string, status model.OverrideStatus, supervisorID, denyReason string, at time.Time) (bool, error)
	ListPendingOverrides(ctx context.Context, supervisorID string) ([]model.OverrideRequest, error)

	// Cached last-known location (single row). Get returns nil when no
	// reading has ever been cached.
	GetCachedLocation(ctx context.Context) (*model.LocationReading, error)
	PutCachedLocation(ctx context.Context, r model.LocationReading) error

	// Job sites.
	UpsertJobSite(ctx context.Context, site model.JobSite) error
	GetJobSite(ctx context.Context, id string) (*model.JobSite, error)
	ListJobSites(ctx context.Context) ([]model.JobSite, error)

	// Lifecycle.
	Migrate(ctx context.Context) error
	Close() error
}
