package remote

import (
	"errors"
	"fmt"
)

// Kind is the closed taxonomy of clock service failures. Backend error codes
// are folded into these; the UI never sees a raw backend code.
type Kind string

const (
	KindAlreadyClockedIn  Kind = "already_clocked_in"
	KindOutsideGeofence   Kind = "outside_geofence"
	KindNotAssigned       Kind = "not_assigned"
	KindGpsAccuracyLow    Kind = "gps_accuracy_low"
	KindPermissionDenied  Kind = "permission_denied"
	KindUnauthenticated   Kind = "unauthenticated"
	KindJobNotFound       Kind = "job_not_found"
	KindTimeEntryNotFound Kind = "time_entry_not_found"
	KindInvalidArgument   Kind = "invalid_argument"
	KindUnknown           Kind = "unknown"

	// KindClockTimeout is produced locally when the 8 second call budget
	// elapses; it never comes from a backend code.
	KindClockTimeout Kind = "clock_timeout"
)

// userMessages is the single source of UI copy per kind. One fixed string per
// kind, no free text.
var userMessages = map[Kind]string{
	KindAlreadyClockedIn:  "You're already clocked in to a job. Clock out first.",
	KindOutsideGeofence:   "The server couldn't verify you're on site.",
	KindNotAssigned:       "You're not assigned to this job.",
	KindGpsAccuracyLow:    "Your GPS signal is too weak. Move to an open area and try again.",
	KindPermissionDenied:  "You don't have permission to do that.",
	KindUnauthenticated:   "Your session has expired. Sign in again.",
	KindJobNotFound:       "That job no longer exists.",
	KindTimeEntryNotFound: "We couldn't find that time entry.",
	KindInvalidArgument:   "Something about this request was invalid. Update the app and try again.",
	KindUnknown:           "Something went wrong. Please try again.",
	KindClockTimeout:      "The server took too long to respond. Your clock action will sync automatically.",
}

// ClockError is a classified clock service failure.
type ClockError struct {
	Kind Kind
	// Detail carries the backend detail for invalid_argument, or the raw
	// backend code for unknown. Diagnostic only, never shown to workers.
	Detail string
}

func (e *ClockError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("remote: %s (%s)", e.Kind, e.Detail)
	}
	return fmt.Sprintf("remote: %s", e.Kind)
}

// UserMessage returns the fixed UI string for this error.
func (e *ClockError) UserMessage() string {
	if msg, ok := userMessages[e.Kind]; ok {
		return msg
	}
	return userMessages[KindUnknown]
}

// KindOf extracts the taxonomy kind from an error chain. The second return is
// false when the error did not originate from the clock service.
func KindOf(err error) (Kind, bool) {
	var ce *ClockError
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return "", false
}

// codeToKind maps backend error codes to taxonomy kinds. Codes missing from
// this table become KindUnknown with the raw code preserved in Detail.
var codeToKind = map[string]Kind{
	"already-clocked-in":   KindAlreadyClockedIn,
	"outside-geofence":     KindOutsideGeofence,
	"not-assigned":         KindNotAssigned,
	"gps-accuracy-low":     KindGpsAccuracyLow,
	"permission-denied":    KindPermissionDenied,
	"unauthenticated":      KindUnauthenticated,
	"job-not-found":        KindJobNotFound,
	"time-entry-not-found": KindTimeEntryNotFound,
	"invalid-argument":     KindInvalidArgument,
}

// classifyCode folds a backend error code and detail into a ClockError.
func classifyCode(code, detail string) *ClockError {
	if kind, ok := codeToKind[code]; ok {
		if kind != KindInvalidArgument {
			detail = ""
		}
		return &ClockError{Kind: kind, Detail: detail}
	}
	return &ClockError{Kind: KindUnknown, Detail: code}
}
