package model

import "time"

// OperationType tags a queued remote operation.
type OperationType string

const (
	OpClockIn  OperationType = "clock_in"
	OpClockOut OperationType = "clock_out"
)

// QueuedOperation is a pending remote clock operation awaiting delivery.
// Exactly one queued operation may exist per event ID at any time; enqueue of
// a duplicate ID is a silent no-op. The row is removed the moment the backend
// confirms success and retained indefinitely on failure.
type QueuedOperation struct {
	EventID       string        `json:"event_id"` // idempotency key, sole dedup key
	Type          OperationType `json:"type"`
	Payload       []byte        `json:"payload"` // opaque JSON payload for the remote call
	EnqueuedAt    time.Time     `json:"enqueued_at"`
	RetryCount    int           `json:"retry_count"`
	LastAttemptAt *time.Time    `json:"last_attempt_at,omitempty"`
}

// ClockStatus is the synchronous outcome surfaced to the caller of a clock
// action.
type ClockStatus string

const (
	ClockConfirmed   ClockStatus = "confirmed"    // backend acknowledged during the call
	ClockPendingSync ClockStatus = "pending_sync" // accepted locally, queued for delivery
	ClockRejected    ClockStatus = "rejected"     // geofence or backend rejected the action
)

// ClockResult is what the orchestrator returns to the caller.
type ClockResult struct {
	Status      ClockStatus      `json:"status"`
	EventID     string           `json:"event_id"`
	TimeEntryID string           `json:"time_entry_id,omitempty"` // set when confirmed on clock-in
	Warning     string           `json:"warning,omitempty"`       // backend advisory on clock-out
	Verdict     *GeofenceVerdict `json:"verdict,omitempty"`
	Message     string           `json:"message,omitempty"`
}

// TimeEntry is the worker's shift record as known to this client. The backend
// owns the authoritative copy; this mirror keys the local audit trail.
type TimeEntry struct {
	ID         string     `json:"id"`
	WorkerID   string     `json:"worker_id"`
	JobID      string     `json:"job_id"`
	ClockInAt  time.Time  `json:"clock_in_at"`
	ClockOutAt *time.Time `json:"clock_out_at,omitempty"`
	Notes      string     `json:"notes,omitempty"`
}
