package location

import (
	"context"
	"sync"
	"time"

	"github.com/brushhour/fieldclock/internal/model"
)

// StaticProvider serves readings from an injectable fix function. It backs
// kiosk deployments fed by an external GPS source and every test that needs
// deterministic position behavior.
type StaticProvider struct {
	mu         sync.Mutex
	fix        func(tier model.AccuracyTier) (model.LocationReading, error)
	cached     *model.LocationReading
	permission model.PermissionStatus

	watchCancel context.CancelFunc
}

// NewStaticProvider creates a provider that returns the given reading for
// every fix. Permission starts granted.
func NewStaticProvider(reading model.LocationReading) *StaticProvider {
	return &StaticProvider{
		fix: func(model.AccuracyTier) (model.LocationReading, error) {
			return reading, nil
		},
		permission: model.PermissionGranted,
	}
}

// NewFuncProvider creates a provider whose fixes come from fn.
func NewFuncProvider(fn func(tier model.AccuracyTier) (model.LocationReading, error)) *StaticProvider {
	return &StaticProvider{fix: fn, permission: model.PermissionGranted}
}

// SetPermission overrides the reported permission state.
func (p *StaticProvider) SetPermission(s model.PermissionStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.permission = s
}

// SetFix replaces the fix function.
func (p *StaticProvider) SetFix(fn func(tier model.AccuracyTier) (model.LocationReading, error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fix = fn
}

func (p *StaticProvider) CheckPermission(context.Context) (model.PermissionStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.permission, nil
}

func (p *StaticProvider) RequestPermission(context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.permission == model.PermissionDeniedForever {
		return false, nil
	}
	p.permission = model.PermissionGranted
	return true, nil
}

func (p *StaticProvider) GetCurrentLocation(ctx context.Context, tier model.AccuracyTier, timeout time.Duration) (model.LocationReading, error) {
	p.mu.Lock()
	perm := p.permission
	fix := p.fix
	p.mu.Unlock()

	if perm != model.PermissionGranted {
		return model.LocationReading{}, ErrPermissionDenied
	}

	r, err := fix(tier)
	if err != nil {
		return model.LocationReading{}, err
	}
	if r.Geohash == "" {
		r.Geohash = Geohash(r.Latitude, r.Longitude, 9)
	}

	p.mu.Lock()
	p.cached = &r
	p.mu.Unlock()
	return r, nil
}

func (p *StaticProvider) GetCachedLocation(context.Context) (*model.LocationReading, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cached == nil {
		return nil, nil
	}
	r := *p.cached
	return &r, nil
}

func (p *StaticProvider) WatchLocation(ctx context.Context, tier model.AccuracyTier, interval time.Duration) (<-chan model.LocationReading, error) {
	p.mu.Lock()
	if p.permission != model.PermissionGranted {
		p.mu.Unlock()
		return nil, ErrPermissionDenied
	}
	if p.watchCancel != nil {
		p.watchCancel()
	}
	watchCtx, cancel := context.WithCancel(ctx)
	p.watchCancel = cancel
	p.mu.Unlock()

	ch := make(chan model.LocationReading)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-watchCtx.Done():
				return
			case <-ticker.C:
				r, err := p.GetCurrentLocation(watchCtx, tier, interval)
				if err != nil {
					continue
				}
				select {
				case ch <- r:
				case <-watchCtx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}

func (p *StaticProvider) StopTracking() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.watchCancel != nil {
		p.watchCancel()
		p.watchCancel = nil
	}
}
