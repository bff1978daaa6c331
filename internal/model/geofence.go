package model

import "time"

// Environment classifies a job site's surroundings; it drives the adaptive
// geofence radius when no explicit radius is set on the site.
type Environment string

const (
	EnvironmentUrban    Environment = "urban"
	EnvironmentSuburban Environment = "suburban"
	EnvironmentRural    Environment = "rural"
)

// RadiusForEnvironment returns the adaptive geofence radius in meters for an
// environment class. Unknown classes fall back to the suburban radius.
func RadiusForEnvironment(env Environment) float64 {
	switch env {
	case EnvironmentUrban:
		return 100
	case EnvironmentRural:
		return 250
	default:
		return 150
	}
}

// GeofenceDefinition is the circular boundary around a job site. Owned by the
// job site entity; read-only to the clock pipeline.
type GeofenceDefinition struct {
	CenterLat    float64     `json:"center_lat"`
	CenterLng    float64     `json:"center_lng"`
	RadiusMeters float64     `json:"radius_meters,omitempty"` // explicit override; 0 = derive from Environment
	Environment  Environment `json:"environment,omitempty"`
}

// Radius resolves the effective geofence radius in meters.
func (g GeofenceDefinition) Radius() float64 {
	if g.RadiusMeters > 0 {
		return g.RadiusMeters
	}
	return RadiusForEnvironment(g.Environment)
}

// VerdictKind is the tiered outcome of a geofence evaluation.
type VerdictKind string

const (
	VerdictInside           VerdictKind = "inside"
	VerdictOutsideGrace     VerdictKind = "outside_grace"
	VerdictOutsideViolation VerdictKind = "outside_violation"
	VerdictOverrideApproved VerdictKind = "override_approved"
	VerdictIndeterminate    VerdictKind = "indeterminate"
)

// OverrideMeta carries the approval details on an override-approved verdict.
type OverrideMeta struct {
	ApproverID string    `json:"approver_id"`
	Reason     string    `json:"reason"`
	ApprovedAt time.Time `json:"approved_at"`
}

// GeofenceVerdict is the immutable result of one evaluation. Overrides
// produce a new verdict appended to the audit trail; existing verdicts are
// never edited.
type GeofenceVerdict struct {
	Kind           VerdictKind   `json:"kind"`
	DistanceMeters float64       `json:"distance_meters"`
	RadiusMeters   float64       `json:"radius_meters"`
	WithinGrace    bool          `json:"within_grace"`
	EvaluatedAt    time.Time     `json:"evaluated_at"`
	Override       *OverrideMeta `json:"override,omitempty"`
}

// Actionable reports whether the verdict should offer the worker a
// supervisor-override escalation path.
func (v GeofenceVerdict) Actionable() bool {
	return v.Kind == VerdictOutsideGrace
}

// StatusMessage is the inline UI text for a verdict.
func (v GeofenceVerdict) StatusMessage() string {
	switch v.Kind {
	case VerdictInside:
		return "You're on site."
	case VerdictOutsideGrace:
		return "You appear to be off site. You can request a supervisor override."
	case VerdictOutsideViolation:
		return "You're outside the job site boundary."
	case VerdictOverrideApproved:
		return "Clock-in approved by your supervisor."
	case VerdictIndeterminate:
		return "We couldn't verify your location. Check GPS and WiFi and try again."
	default:
		return ""
	}
}

// OverrideStatus is the lifecycle state of a supervisor override request.
type OverrideStatus string

const (
	OverridePending  OverrideStatus = "pending"
	OverrideApproved OverrideStatus = "approved"
	OverrideDenied   OverrideStatus = "denied"
)

// OverrideRequest is a worker's escalation of a failing geofence check.
// It transitions out of Pending exactly once and is immutable thereafter.
type OverrideRequest struct {
	ID           string          `json:"id"`
	EventID      string          `json:"event_id,omitempty"` // originating clock event, keys the audit trail
	WorkerID     string          `json:"worker_id"`
	JobID        string          `json:"job_id"`
	SupervisorID string          `json:"supervisor_id"`
	Reason       string          `json:"reason"`
	Location     LocationReading `json:"location"`
	Status       OverrideStatus  `json:"status"`
	RequestedAt  time.Time       `json:"requested_at"`
	ResolvedAt   *time.Time      `json:"resolved_at,omitempty"`
	ResolvedBy   string          `json:"resolved_by,omitempty"`
	DenyReason   string          `json:"deny_reason,omitempty"`
}

// AlertDebounceRecord tracks when a geofence alert was last shown for a
// (worker, job) pair so repeated alerts can be suppressed within a cooldown.
type AlertDebounceRecord struct {
	WorkerID    string    `json:"worker_id"`
	JobID       string    `json:"job_id"`
	LastShownAt time.Time `json:"last_shown_at"`
}
