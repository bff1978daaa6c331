package location

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/brushhour/fieldclock/internal/model"
)

// TimeoutError is returned when the whole fallback chain fails. It carries
// the stabilization hint the UI shows the worker; the hint gets more specific
// as the last observed accuracy gets worse.
type TimeoutError struct {
	LastAccuracy float64 // meters; 0 = never observed
	Hint         string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("location: timed out acquiring a fix: %s", e.Hint)
}

// Is makes errors.Is(err, ErrTimeout) hold for the fallback chain's failure.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// StabilizationHint maps the last observed accuracy to user guidance.
// Zero means accuracy was never observed.
func StabilizationHint(accuracyMeters float64) string {
	switch {
	case accuracyMeters > 0 && accuracyMeters <= 25:
		return "hold still for a few seconds while GPS settles"
	case accuracyMeters > 0 && accuracyMeters <= 100:
		return "move to an open area away from buildings"
	default:
		return "go outside and wait 10-30 seconds for a GPS fix"
	}
}

// AcquireConfig tunes the fallback chain.
type AcquireConfig struct {
	PrimaryTier    model.AccuracyTier
	PrimaryTimeout time.Duration
	RetryTier      model.AccuracyTier
	RetryTimeout   time.Duration
}

// DefaultAcquireConfig returns the production fallback chain settings.
func DefaultAcquireConfig() AcquireConfig {
	return AcquireConfig{
		PrimaryTier:    model.AccuracyHigh,
		PrimaryTimeout: 10 * time.Second,
		RetryTier:      model.AccuracyBalanced,
		RetryTimeout:   3 * time.Second,
	}
}

// Acquire runs the fallback chain: fresh high-accuracy fix, then the cached
// reading if recent, then a short lower-accuracy retry, then a TimeoutError
// carrying a stabilization hint. Non-timeout failures surface immediately;
// retrying a permission denial at a lower tier cannot help.
func Acquire(ctx context.Context, p Provider, cfg AcquireConfig) (model.LocationReading, error) {
	reading, err := p.GetCurrentLocation(ctx, cfg.PrimaryTier, cfg.PrimaryTimeout)
	if err == nil {
		return reading, nil
	}
	if !eris.Is(err, ErrTimeout) {
		return model.LocationReading{}, err
	}

	var lastAccuracy float64
	now := time.Now()

	if cached, cacheErr := p.GetCachedLocation(ctx); cacheErr == nil && cached != nil {
		lastAccuracy = cached.AccuracyMeters
		if cached.IsRecent(now) {
			zap.L().Debug("location fallback: using recent cached reading",
				zap.Float64("accuracy_m", cached.AccuracyMeters),
				zap.Time("captured_at", cached.CapturedAt),
			)
			return *cached, nil
		}
	}

	reading, err = p.GetCurrentLocation(ctx, cfg.RetryTier, cfg.RetryTimeout)
	if err == nil {
		zap.L().Debug("location fallback: lower-accuracy retry succeeded",
			zap.Float64("accuracy_m", reading.AccuracyMeters),
		)
		return reading, nil
	}
	if !eris.Is(err, ErrTimeout) {
		return model.LocationReading{}, err
	}

	return model.LocationReading{}, &TimeoutError{
		LastAccuracy: lastAccuracy,
		Hint:         StabilizationHint(lastAccuracy),
	}
}
