package model

import "time"

// RecencyWindow is how long a location reading is considered fresh enough
// for geofence evaluation.
const RecencyWindow = 30 * time.Second

// AccuracyTier requests a positioning quality level from the provider.
type AccuracyTier string

const (
	AccuracyBest     AccuracyTier = "best"
	AccuracyHigh     AccuracyTier = "high"
	AccuracyBalanced AccuracyTier = "balanced"
	AccuracyLow      AccuracyTier = "low"
)

// PermissionStatus reflects the OS-level location permission state.
type PermissionStatus string

const (
	PermissionGranted       PermissionStatus = "granted"
	PermissionDenied        PermissionStatus = "denied"
	PermissionDeniedForever PermissionStatus = "denied_forever"
	PermissionNotDetermined PermissionStatus = "not_determined"
)

// LocationReading is an immutable position fix. Readings are created by the
// location provider and either discarded after use or cached as last-known;
// they are never mutated.
type LocationReading struct {
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	AccuracyMeters float64   `json:"accuracy_meters"`
	CapturedAt     time.Time `json:"captured_at"`

	// Signal flags record which positioning systems contributed to the fix.
	Satellite bool `json:"satellite"`
	WiFi      bool `json:"wifi"`
	Network   bool `json:"network"`

	Altitude *float64 `json:"altitude,omitempty"`
	Speed    *float64 `json:"speed,omitempty"`
	Heading  *float64 `json:"heading,omitempty"`
	Geohash  string   `json:"geohash,omitempty"`
}

// SignalCount returns how many positioning signals contributed to the reading.
func (r LocationReading) SignalCount() int {
	n := 0
	if r.Satellite {
		n++
	}
	if r.WiFi {
		n++
	}
	if r.Network {
		n++
	}
	return n
}

// IsRecent reports whether the reading was captured within the recency window
// of now. A reading exactly RecencyWindow old still counts as recent.
func (r LocationReading) IsRecent(now time.Time) bool {
	return now.Sub(r.CapturedAt) <= RecencyWindow
}
