package location

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/brushhour/fieldclock/internal/model"
	"github.com/brushhour/fieldclock/internal/store"
)

// PersistentProvider wraps a raw Provider and keeps the last successful
// reading in the durable store, so the cached-location rung of the fallback
// chain survives process restart.
type PersistentProvider struct {
	Provider
	store store.Store
}

// NewPersistentProvider wraps p with store-backed last-known-location caching.
func NewPersistentProvider(p Provider, s store.Store) *PersistentProvider {
	return &PersistentProvider{Provider: p, store: s}
}

func (p *PersistentProvider) GetCurrentLocation(ctx context.Context, tier model.AccuracyTier, timeout time.Duration) (model.LocationReading, error) {
	r, err := p.Provider.GetCurrentLocation(ctx, tier, timeout)
	if err != nil {
		return r, err
	}
	// Cache write failure never fails the fix itself.
	if putErr := p.store.PutCachedLocation(ctx, r); putErr != nil {
		zap.L().Warn("location: persist cached reading", zap.Error(putErr))
	}
	return r, nil
}

func (p *PersistentProvider) GetCachedLocation(ctx context.Context) (*model.LocationReading, error) {
	if r, err := p.Provider.GetCachedLocation(ctx); err == nil && r != nil {
		return r, nil
	}
	return p.store.GetCachedLocation(ctx)
}
