// Package location abstracts position acquisition for the clock pipeline:
// permission state, one-shot and cached reads, continuous watch streams, and
// the fallback chain the orchestrator runs when a fresh fix times out.
package location

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/brushhour/fieldclock/internal/geodesy"
	"github.com/brushhour/fieldclock/internal/model"
)

// Closed error set for location acquisition.
var (
	ErrTimeout              = eris.New("location: timed out acquiring a fix")
	ErrServiceDisabled      = eris.New("location: location services are disabled")
	ErrPermissionDenied     = eris.New("location: permission denied")
	ErrInsufficientAccuracy = eris.New("location: accuracy below required threshold")
	ErrInsufficientSignals  = eris.New("location: not enough positioning signals")
)

// Provider acquires position readings. Implementations wrap whatever the
// host platform exposes: a GPS daemon, an NMEA feed, or a fixed kiosk
// position.
type Provider interface {
	// CheckPermission returns the OS permission state without side effects.
	CheckPermission(ctx context.Context) (model.PermissionStatus, error)

	// RequestPermission triggers the OS permission prompt. Idempotent when
	// already granted. The call suspends until the user responds.
	RequestPermission(ctx context.Context) (bool, error)

	// GetCurrentLocation acquires a fresh fix at the requested tier,
	// bounded by timeout.
	GetCurrentLocation(ctx context.Context, tier model.AccuracyTier, timeout time.Duration) (model.LocationReading, error)

	// GetCachedLocation returns the last successful reading without a new
	// hardware fix. Returns nil when no prior reading exists; never fails
	// on absence.
	GetCachedLocation(ctx context.Context) (*model.LocationReading, error)

	// WatchLocation streams readings at the given interval until
	// StopTracking is called or ctx is cancelled. The stream is restartable:
	// a new WatchLocation call after StopTracking begins a fresh stream.
	WatchLocation(ctx context.Context, tier model.AccuracyTier, interval time.Duration) (<-chan model.LocationReading, error)

	// StopTracking cancels the active watch stream, if any.
	StopTracking()
}

// Distance returns the great-circle distance in meters between two points.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	return geodesy.Distance(lat1, lon1, lat2, lon2)
}

// Geohash returns the deterministic geohash of a coordinate for coarse
// spatial caching.
func Geohash(lat, lon float64, precision int) string {
	return geodesy.EncodeGeohash(lat, lon, precision)
}
